package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/vecmath"
	"github.com/google/uuid"
)

type contentRow struct {
	ID           string         `db:"id"`
	URL          string         `db:"url"`
	Title        string         `db:"title"`
	Source       string         `db:"source"`
	FirstSavedAt sql.NullString `db:"first_saved_at"`
	Summary      string         `db:"summary"`
	Embedding    []byte         `db:"embedding"`
	CreatedAt    string         `db:"created_at"`
}

const contentColumns = `id, url, title, source, first_saved_at, summary, embedding, created_at`

func (s *Store) loadContent(ctx context.Context, op, where string, arg interface{}) (*folders.Content, error) {
	var row contentRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+contentColumns+` FROM content WHERE `+where, arg); err != nil {
		return nil, notFound(op, err, folders.ErrContentNotFound)
	}

	c := &folders.Content{
		ID:      row.ID,
		URL:     row.URL,
		Title:   row.Title,
		Source:  row.Source,
		Summary: row.Summary,
	}
	var err error
	if c.FirstSavedAt, err = parseNullTime(row.FirstSavedAt); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return nil, err
	}
	if c.Embedding, err = vecmath.Decode(row.Embedding); err != nil {
		return nil, fmt.Errorf("decode embedding of content %s: %w", row.ID, err)
	}
	if err := s.db.SelectContext(ctx, &c.Categories,
		`SELECT category FROM content_categories WHERE content_id = ? ORDER BY category`, c.ID); err != nil {
		return nil, storageErr(op, err)
	}
	return c, nil
}

// GetContent loads content by ID, including categories.
func (s *Store) GetContent(ctx context.Context, id string) (*folders.Content, error) {
	return s.loadContent(ctx, "get content", "id = ?", id)
}

// GetContentByURL loads content by its unique URL.
func (s *Store) GetContentByURL(ctx context.Context, url string) (*folders.Content, error) {
	return s.loadContent(ctx, "get content by url", "url = ?", url)
}

// CreateContent inserts c or returns the row already stored for c.URL.
func (s *Store) CreateContent(ctx context.Context, c *folders.Content) (*folders.Content, error) {
	if strings.TrimSpace(c.URL) == "" {
		return nil, fmt.Errorf("%w: content url is required", folders.ErrInvalidInput)
	}
	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content (`+contentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING`,
		id, c.URL, c.Title, c.Source, formatNullTime(c.FirstSavedAt), c.Summary,
		blob(c.Embedding), formatTime(created))
	if err != nil {
		return nil, storageErr("create content", err)
	}
	return s.GetContentByURL(ctx, c.URL)
}

// UpdateEnrichment stores the summary, embedding and categories produced
// by the oracle, replacing any previous categories.
func (s *Store) UpdateEnrichment(ctx context.Context, id, summary string, embedding []float64, categories []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("update enrichment", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE content SET summary = ?, embedding = ? WHERE id = ?`,
		summary, blob(embedding), id)
	if err != nil {
		return storageErr("update enrichment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return folders.ErrContentNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM content_categories WHERE content_id = ?`, id); err != nil {
		return storageErr("update enrichment", err)
	}
	for _, cat := range categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO content_categories (content_id, category) VALUES (?, ?)`, id, cat); err != nil {
			return storageErr("update enrichment", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("update enrichment", err)
	}
	return nil
}

// SaveContentItem records the user's bookmark once per content.
func (s *Store) SaveContentItem(ctx context.Context, item folders.ContentItem) (bool, error) {
	saved := item.SavedAt
	if saved.IsZero() {
		saved = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO content_items (user_id, content_id, notes, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, content_id) DO NOTHING`,
		item.UserID, item.ContentID, item.Notes, formatTime(saved))
	if err != nil {
		return false, storageErr("save content item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("save content item", err)
	}
	return n == 1, nil
}

// SavedEmbeddings returns the bookmarks userID saved in (since, until],
// oldest first. Content still awaiting enrichment has a nil Embedding.
func (s *Store) SavedEmbeddings(ctx context.Context, userID string, since *time.Time, until time.Time) ([]folders.SavedEmbedding, error) {
	query := `
		SELECT ci.saved_at, c.embedding FROM content_items ci
		JOIN content c ON c.id = ci.content_id
		WHERE ci.user_id = ? AND ci.saved_at <= ?`
	args := []interface{}{userID, formatTime(until)}
	if since != nil {
		query += ` AND ci.saved_at > ?`
		args = append(args, formatTime(*since))
	}
	query += ` ORDER BY ci.saved_at`

	var rows []struct {
		SavedAt   string `db:"saved_at"`
		Embedding []byte `db:"embedding"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr("list saved embeddings", err)
	}
	out := make([]folders.SavedEmbedding, 0, len(rows))
	for _, r := range rows {
		at, err := parseTime(r.SavedAt)
		if err != nil {
			return nil, storageErr("list saved embeddings", err)
		}
		v, err := vecmath.Decode(r.Embedding)
		if err != nil {
			return nil, err
		}
		if len(v) == 0 {
			v = nil
		}
		out = append(out, folders.SavedEmbedding{SavedAt: at, Embedding: v})
	}
	return out, nil
}
