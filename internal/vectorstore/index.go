// Package vectorstore indexes folder profile vectors for candidate recall.
//
// The relational store is the source of truth for profiles. The index holds
// a copy of every folder that is eligible for matching (bucketing enabled
// and a profile present) so recall can run a filtered nearest-neighbour
// query per owner. Two backends are provided: an embedded chromem-go
// database and a remote Qdrant collection.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/crosve/Csphere/internal/folders"
)

var (
	// ErrInvalidConfig indicates invalid index configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore configuration")

	// ErrConnectionFailed indicates the remote index could not be reached.
	ErrConnectionFailed = errors.New("vectorstore connection failed")

	// ErrCircuitOpen is returned while the remote index is being shed.
	ErrCircuitOpen = errors.New("vectorstore circuit breaker open")

	// ErrInvalidCollectionName indicates a collection name failed validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Entry is the indexed view of one folder.
type Entry struct {
	FolderID         string
	OwnerID          string
	BucketingEnabled bool
	Profile          []float64
}

// EntryFor builds the index entry for f.
func EntryFor(f *folders.Folder) Entry {
	return Entry{
		FolderID:         f.ID,
		OwnerID:          f.OwnerID,
		BucketingEnabled: f.BucketingEnabled,
		Profile:          f.Profile,
	}
}

// Neighbor is one nearest-folder hit.
type Neighbor struct {
	FolderID   string
	Similarity float64
}

// FolderIndex is the nearest-neighbour index over folder profiles.
type FolderIndex interface {
	// Upsert inserts or replaces the entry for e.FolderID.
	Upsert(ctx context.Context, e Entry) error

	// Delete removes folderID. Deleting an absent folder is not an error.
	Delete(ctx context.Context, folderID string) error

	// Nearest returns up to limit folders owned by ownerID with bucketing
	// enabled, ordered by descending cosine similarity to query.
	Nearest(ctx context.Context, ownerID string, query []float64, limit int) ([]Neighbor, error)

	// Dimension is the vector length the index accepts.
	Dimension() int

	// Health reports whether the backend is usable.
	Health(ctx context.Context) error

	Close() error
}

// Sync brings the index entry for f in line with the relational row:
// eligible folders are upserted, everything else is removed.
func Sync(ctx context.Context, idx FolderIndex, f *folders.Folder) error {
	if f.BucketingEnabled && len(f.Profile) > 0 {
		return idx.Upsert(ctx, EntryFor(f))
	}
	return idx.Delete(ctx, f.ID)
}

func checkDimension(idx FolderIndex, v []float64) error {
	if len(v) != idx.Dimension() {
		return fmt.Errorf("%w: got %d, index expects %d", folders.ErrDimensionMismatch, len(v), idx.Dimension())
	}
	return nil
}

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName accepts lowercase alphanumerics and underscores,
// 1 to 64 characters.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	return nil
}
