package folders

import (
	"context"
	"time"
)

// FolderRepository gives the matching engine access to folder rows.
type FolderRepository interface {
	GetFolder(ctx context.Context, id string) (*Folder, error)
	CreateFolder(ctx context.Context, f *Folder) error
	ListFolders(ctx context.Context, ownerID string) ([]Folder, error)

	// ListBucketingEnabled returns ownerID's folders with bucketing on,
	// with or without a profile.
	ListBucketingEnabled(ctx context.Context, ownerID string) ([]Folder, error)

	// ListIndexable returns every folder that belongs in the vector index
	// (bucketing enabled and a profile present), across all owners.
	ListIndexable(ctx context.Context) ([]Folder, error)

	UpdateMetadata(ctx context.Context, id string, meta FolderMetadata) (*Folder, error)
	SetBucketing(ctx context.Context, id string, enabled bool) (*Folder, error)

	// UpdateProfile writes profile and state only if the row is still at
	// expectedVersion, bumping the version. Returns ErrVersionConflict when
	// another writer got there first.
	UpdateProfile(ctx context.Context, id string, profile []float64, state ProfileState, expectedVersion int64) (*Folder, error)
}

// LinkRepository persists FolderItem links.
type LinkRepository interface {
	// LinkItem inserts the link unless (folder, content, user) already
	// exists. created is false for the existing case.
	LinkItem(ctx context.Context, item FolderItem) (created bool, err error)

	// UnlinkItem deletes the link. deleted is false when none existed.
	UnlinkItem(ctx context.Context, folderID, contentID, userID string) (deleted bool, err error)
}

// ContentRepository persists content and per-user bookmarks.
type ContentRepository interface {
	GetContent(ctx context.Context, id string) (*Content, error)
	GetContentByURL(ctx context.Context, url string) (*Content, error)

	// CreateContent inserts c, or returns the existing row for c.URL.
	CreateContent(ctx context.Context, c *Content) (*Content, error)

	UpdateEnrichment(ctx context.Context, id, summary string, embedding []float64, categories []string) error

	// SaveContentItem records a bookmark. created is false when the user
	// had already saved the content.
	SaveContentItem(ctx context.Context, item ContentItem) (created bool, err error)

	// SavedEmbeddings lists the bookmarks userID saved in (since, until],
	// oldest first (all history up to until when since is nil). Entries
	// whose content has not been embedded yet carry a nil Embedding.
	SavedEmbeddings(ctx context.Context, userID string, since *time.Time, until time.Time) ([]SavedEmbedding, error)
}

// UserRepository persists user profiles.
type UserRepository interface {
	EnsureUser(ctx context.Context, id string) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	UpdateUserProfile(ctx context.Context, id string, profile []float64, at time.Time) error
}
