package vectorstore

import (
	"context"
	"fmt"

	"github.com/crosve/Csphere/internal/folders"
	"go.uber.org/zap"
)

// IndexableSource lists the folders that belong in the index.
type IndexableSource interface {
	ListIndexable(ctx context.Context) ([]folders.Folder, error)
}

// Reindex upserts every eligible folder from src. It is used on startup when
// the index is in-memory and by the reindex command after a backend switch.
// Stale entries for folders that became ineligible are not swept; Sync
// removes them as soon as the folder is next updated.
func Reindex(ctx context.Context, idx FolderIndex, src IndexableSource, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fs, err := src.ListIndexable(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing indexable folders: %w", err)
	}

	n := 0
	for i := range fs {
		f := &fs[i]
		if len(f.Profile) != idx.Dimension() {
			logger.Warn("skipping folder with mismatched profile dimension",
				zap.String("folder_id", f.ID),
				zap.Int("dimension", len(f.Profile)),
			)
			continue
		}
		if err := idx.Upsert(ctx, EntryFor(f)); err != nil {
			return n, fmt.Errorf("indexing folder %s: %w", f.ID, err)
		}
		n++
	}
	logger.Info("reindexed folders", zap.Int("count", n), zap.Int("listed", len(fs)))
	return n, nil
}
