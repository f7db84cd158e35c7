// Package recall selects the candidate folders for a content vector: the
// owner's nearest folder profiles by cosine similarity.
package recall

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("csphere.recall")

// DefaultLimit is the number of candidates recalled when the caller does
// not ask for a specific count.
const DefaultLimit = 5

// Recaller runs candidate recall against a FolderIndex and hydrates the
// hits from the folder repository.
type Recaller struct {
	index   vectorstore.FolderIndex
	folders folders.FolderRepository
	logger  *zap.Logger
	limit   atomic.Int64
}

// New creates a Recaller. defaultLimit <= 0 means DefaultLimit.
func New(index vectorstore.FolderIndex, repo folders.FolderRepository, defaultLimit int, logger *zap.Logger) *Recaller {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recaller{index: index, folders: repo, logger: logger}
	r.SetDefaultLimit(defaultLimit)
	return r
}

// SetDefaultLimit changes the limit used when Recall is called with
// limit <= 0.
func (r *Recaller) SetDefaultLimit(n int) {
	if n <= 0 {
		n = DefaultLimit
	}
	r.limit.Store(int64(n))
}

// Dimension is the vector length Recall accepts.
func (r *Recaller) Dimension() int { return r.index.Dimension() }

// Recall returns up to limit eligible folders of userID ordered by
// descending similarity to vector. An empty result means the user has no
// eligible folders. Infrastructure failures wrap folders.ErrRecallFailure.
func (r *Recaller) Recall(ctx context.Context, vector []float64, userID string, limit int) ([]folders.MatchCandidate, error) {
	ctx, span := tracer.Start(ctx, "Recaller.Recall")
	defer span.End()

	if len(vector) != r.index.Dimension() {
		return nil, fmt.Errorf("%w: content vector has %d dimensions, index expects %d",
			folders.ErrDimensionMismatch, len(vector), r.index.Dimension())
	}
	if limit <= 0 {
		limit = int(r.limit.Load())
	}
	span.SetAttributes(attribute.Int("limit", limit))

	hits, err := r.index.Nearest(ctx, userID, vector, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, folders.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", folders.ErrRecallFailure, err)
	}

	out := make([]folders.MatchCandidate, 0, len(hits))
	for _, h := range hits {
		f, err := r.folders.GetFolder(ctx, h.FolderID)
		if errors.Is(err, folders.ErrFolderNotFound) {
			r.logger.Debug("dropping stale index entry", zap.String("folder_id", h.FolderID))
			continue
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: loading folder %s: %v", folders.ErrRecallFailure, h.FolderID, err)
		}
		if !f.Eligible(userID) {
			r.logger.Debug("dropping ineligible folder from recall",
				zap.String("folder_id", f.ID),
				zap.Bool("bucketing_enabled", f.BucketingEnabled),
				zap.Bool("has_profile", len(f.Profile) > 0),
			)
			continue
		}
		sim := clamp(h.Similarity)
		out = append(out, folders.MatchCandidate{Folder: *f, Similarity: &sim})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Similarity > *out[j].Similarity
	})

	span.SetAttributes(attribute.Int("candidates", len(out)))
	return out, nil
}

func clamp(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}
