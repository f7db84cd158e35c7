package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/vecmath"
)

type folderRow struct {
	ID               string         `db:"id"`
	OwnerID          string         `db:"owner_id"`
	ParentID         sql.NullString `db:"parent_id"`
	Name             string         `db:"name"`
	Description      string         `db:"description"`
	Keywords         string         `db:"keywords"`
	URLPatterns      string         `db:"url_patterns"`
	BucketingEnabled bool           `db:"bucketing_enabled"`
	Profile          []byte         `db:"profile"`
	ProfileState     string         `db:"profile_state"`
	Version          int64          `db:"version"`
	CreatedAt        string         `db:"created_at"`
	UpdatedAt        string         `db:"updated_at"`
}

const folderColumns = `id, owner_id, parent_id, name, description, keywords, url_patterns,
	bucketing_enabled, profile, profile_state, version, created_at, updated_at`

func (r folderRow) toFolder() (*folders.Folder, error) {
	f := &folders.Folder{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		Name:             r.Name,
		Description:      r.Description,
		BucketingEnabled: r.BucketingEnabled,
		ProfileState:     folders.ProfileState(r.ProfileState),
		Version:          r.Version,
	}
	if r.ParentID.Valid {
		parent := r.ParentID.String
		f.ParentID = &parent
	}
	if err := json.Unmarshal([]byte(r.Keywords), &f.Keywords); err != nil {
		return nil, fmt.Errorf("decode keywords of folder %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.URLPatterns), &f.URLPatterns); err != nil {
		return nil, fmt.Errorf("decode url patterns of folder %s: %w", r.ID, err)
	}
	profile, err := vecmath.Decode(r.Profile)
	if err != nil {
		return nil, fmt.Errorf("decode profile of folder %s: %w", r.ID, err)
	}
	f.Profile = profile
	if f.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, err
	}
	return f, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	return string(b), err
}

// GetFolder loads one folder.
func (s *Store) GetFolder(ctx context.Context, id string) (*folders.Folder, error) {
	var row folderRow
	err := s.db.GetContext(ctx, &row, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	if err != nil {
		return nil, notFound("get folder", err, folders.ErrFolderNotFound)
	}
	return row.toFolder()
}

// CreateFolder inserts f. ID, timestamps and state must already be set.
func (s *Store) CreateFolder(ctx context.Context, f *folders.Folder) error {
	if f.ID == "" || f.OwnerID == "" || f.Name == "" {
		return fmt.Errorf("%w: folder id, owner and name are required", folders.ErrInvalidInput)
	}
	keywords, err := encodeList(f.Keywords)
	if err != nil {
		return err
	}
	patterns, err := encodeList(f.URLPatterns)
	if err != nil {
		return err
	}
	state := f.ProfileState
	if state == "" {
		state = folders.ProfileNone
	}
	var parent sql.NullString
	if f.ParentID != nil {
		parent = sql.NullString{String: *f.ParentID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO folders (`+folderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.OwnerID, parent, f.Name, f.Description, keywords, patterns,
		f.BucketingEnabled, blob(f.Profile), string(state), f.Version,
		formatTime(f.CreatedAt), formatTime(f.UpdatedAt),
	)
	if err != nil {
		return storageErr("create folder", err)
	}
	return nil
}

func (s *Store) selectFolders(ctx context.Context, op, query string, args ...interface{}) ([]folders.Folder, error) {
	var rows []folderRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr(op, err)
	}
	out := make([]folders.Folder, 0, len(rows))
	for _, r := range rows {
		f, err := r.toFolder()
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, nil
}

// ListFolders returns every folder owned by ownerID, oldest first.
func (s *Store) ListFolders(ctx context.Context, ownerID string) ([]folders.Folder, error) {
	return s.selectFolders(ctx, "list folders",
		`SELECT `+folderColumns+` FROM folders WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
}

// ListBucketingEnabled returns ownerID's folders that take part in matching.
func (s *Store) ListBucketingEnabled(ctx context.Context, ownerID string) ([]folders.Folder, error) {
	return s.selectFolders(ctx, "list bucketing folders",
		`SELECT `+folderColumns+` FROM folders WHERE owner_id = ? AND bucketing_enabled = 1 ORDER BY created_at, id`, ownerID)
}

// ListIndexable returns every folder that belongs in the vector index.
func (s *Store) ListIndexable(ctx context.Context) ([]folders.Folder, error) {
	return s.selectFolders(ctx, "list indexable folders",
		`SELECT `+folderColumns+` FROM folders WHERE bucketing_enabled = 1 AND profile IS NOT NULL ORDER BY id`)
}

// UpdateMetadata replaces name, description, keywords and patterns.
func (s *Store) UpdateMetadata(ctx context.Context, id string, meta folders.FolderMetadata) (*folders.Folder, error) {
	meta = meta.Clean()
	if meta.Name == "" {
		return nil, fmt.Errorf("%w: folder name is required", folders.ErrInvalidInput)
	}
	keywords, err := encodeList(meta.Keywords)
	if err != nil {
		return nil, err
	}
	patterns, err := encodeList(meta.URLPatterns)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE folders
		SET name = ?, description = ?, keywords = ?, url_patterns = ?, updated_at = ?
		WHERE id = ?`,
		meta.Name, meta.Description, keywords, patterns, formatTime(s.now()), id)
	if err != nil {
		return nil, storageErr("update folder metadata", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, folders.ErrFolderNotFound
	}
	return s.GetFolder(ctx, id)
}

// SetBucketing toggles automatic filing into the folder.
func (s *Store) SetBucketing(ctx context.Context, id string, enabled bool) (*folders.Folder, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE folders SET bucketing_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, formatTime(s.now()), id)
	if err != nil {
		return nil, storageErr("set bucketing", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, folders.ErrFolderNotFound
	}
	return s.GetFolder(ctx, id)
}

// UpdateProfile writes the profile with compare-and-swap on version.
func (s *Store) UpdateProfile(ctx context.Context, id string, profile []float64, state folders.ProfileState, expectedVersion int64) (*folders.Folder, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE folders
		SET profile = ?, profile_state = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		blob(profile), string(state), formatTime(s.now()), id, expectedVersion)
	if err != nil {
		return nil, storageErr("update folder profile", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr("update folder profile", err)
	}
	if n == 0 {
		// distinguish a missing row from a lost race
		if _, err := s.GetFolder(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("folder %s at version %d: %w", id, expectedVersion, folders.ErrVersionConflict)
	}
	return s.GetFolder(ctx, id)
}

// LinkItem inserts the folder link, doing nothing if it already exists.
func (s *Store) LinkItem(ctx context.Context, item folders.FolderItem) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO folder_items (id, folder_id, content_id, user_id, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (folder_id, content_id, user_id) DO NOTHING`,
		item.ID, item.FolderID, item.ContentID, item.UserID, formatTime(item.AddedAt))
	if err != nil {
		return false, storageErr("link item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("link item", err)
	}
	return n == 1, nil
}

// UnlinkItem removes the folder link.
func (s *Store) UnlinkItem(ctx context.Context, folderID, contentID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM folder_items WHERE folder_id = ? AND content_id = ? AND user_id = ?`,
		folderID, contentID, userID)
	if err != nil {
		return false, storageErr("unlink item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("unlink item", err)
	}
	return n > 0, nil
}

// CountItems returns how many links folderID holds.
func (s *Store) CountItems(ctx context.Context, folderID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM folder_items WHERE folder_id = ?`, folderID); err != nil {
		return 0, storageErr("count items", err)
	}
	return n, nil
}
