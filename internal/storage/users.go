package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/vecmath"
)

type userRow struct {
	ID                string         `db:"id"`
	Profile           []byte         `db:"profile"`
	LastProfileUpdate sql.NullString `db:"last_profile_update"`
}

// EnsureUser creates the user row if it does not exist.
func (s *Store) EnsureUser(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: user id is required", folders.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
		id, formatTime(s.now()))
	if err != nil {
		return storageErr("ensure user", err)
	}
	return nil
}

// GetUser loads a user's profile.
func (s *Store) GetUser(ctx context.Context, id string) (*folders.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT id, profile, last_profile_update FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, notFound("get user", err, folders.ErrUserNotFound)
	}
	u := &folders.User{ID: row.ID}
	if u.Profile, err = vecmath.Decode(row.Profile); err != nil {
		return nil, fmt.Errorf("decode profile of user %s: %w", id, err)
	}
	if u.LastProfileUpdate, err = parseNullTime(row.LastProfileUpdate); err != nil {
		return nil, err
	}
	return u, nil
}

// ListUserIDs returns every known user, sorted.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM users ORDER BY id`); err != nil {
		return nil, storageErr("list users", err)
	}
	return ids, nil
}

// UpdateUserProfile stores the profile and stamps last_profile_update.
func (s *Store) UpdateUserProfile(ctx context.Context, id string, profile []float64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET profile = ?, last_profile_update = ? WHERE id = ?`,
		blob(profile), formatTime(at), id)
	if err != nil {
		return storageErr("update user profile", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return folders.ErrUserNotFound
	}
	return nil
}
