// Package learning keeps folder and user profile vectors in step with what
// users file where.
//
// Folder profiles move towards content matched into the folder (Reinforce),
// away from content a user removes (Penalize), and are re-derived from the
// folder's metadata when it is edited. Every update is a read-modify-write
// guarded by a per-folder mutex and persisted with compare-and-swap on the
// folder version, so concurrent updates never overwrite each other.
package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/crosve/Csphere/internal/config"
	"github.com/crosve/Csphere/internal/embeddings"
	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/vecmath"
	"github.com/crosve/Csphere/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("csphere.learning")

// Update kinds, used as metric labels.
const (
	KindReinforce  = "reinforce"
	KindPenalize   = "penalize"
	KindMetadata   = "metadata"
	KindInitialize = "initialize"
	KindClear      = "clear"
)

// Params are the learning rates.
type Params struct {
	// ReinforceAlpha is the pull towards matched content.
	ReinforceAlpha float64
	// PenalizeBeta is the push away from removed content.
	PenalizeBeta float64
	// MetadataAlpha is the weight of the re-derived metadata vector when
	// blended into an existing profile.
	MetadataAlpha float64
	// MaxUpdateRetries bounds compare-and-swap attempts.
	MaxUpdateRetries int
}

// ParamsFrom extracts the learner's rates from the matching config.
func ParamsFrom(cfg config.MatchingConfig) Params {
	return Params{
		ReinforceAlpha:   cfg.ReinforceAlpha,
		PenalizeBeta:     cfg.PenalizeBeta,
		MetadataAlpha:    cfg.MetadataAlpha,
		MaxUpdateRetries: cfg.MaxUpdateRetries,
	}
}

// DefaultParams returns α=0.1, β=0.15, metadata 0.7 and 5 attempts.
func DefaultParams() Params {
	return ParamsFrom(config.DefaultMatching())
}

// ProfileLearner updates folder profile vectors.
type ProfileLearner struct {
	folders  folders.FolderRepository
	index    vectorstore.FolderIndex
	embedder embeddings.Embedder
	logger   *zap.Logger
	params   atomic.Pointer[Params]

	// locks serializes updates per folder. Folders share a shard by hash of
	// their ID, so the set stays fixed however many folders come and go.
	locks [lockShards]sync.Mutex
}

const lockShards = 64

// NewProfileLearner creates a learner. index may be nil when no vector
// index is kept in sync (tests, offline tools). embedder is required for
// metadata-derived profiles only.
func NewProfileLearner(repo folders.FolderRepository, index vectorstore.FolderIndex, embedder embeddings.Embedder, params Params, logger *zap.Logger) *ProfileLearner {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &ProfileLearner{folders: repo, index: index, embedder: embedder, logger: logger}
	l.SetParams(params)
	return l
}

// SetParams swaps the learning rates. Updates in flight keep the rates they
// started with.
func (l *ProfileLearner) SetParams(p Params) {
	if p.MaxUpdateRetries <= 0 {
		p.MaxUpdateRetries = config.DefaultMatching().MaxUpdateRetries
	}
	l.params.Store(&p)
}

// Params returns the current learning rates.
func (l *ProfileLearner) Params() Params {
	return *l.params.Load()
}

func lockShard(folderID string) int {
	return int(xxhash.Sum64String(folderID) % lockShards)
}

func (l *ProfileLearner) lock(folderID string) func() {
	mu := &l.locks[lockShard(folderID)]
	mu.Lock()
	return mu.Unlock
}

// step computes the next profile from a freshly read folder. A non-empty
// skip reason leaves the folder untouched.
type step func(f *folders.Folder) (next []float64, state folders.ProfileState, skip string)

// apply runs the compare-and-swap loop for folderID. The caller holds the
// folder's lock.
func (l *ProfileLearner) apply(ctx context.Context, kind, folderID string, compute step) (*folders.Folder, error) {
	params := l.Params()

	for attempt := 1; attempt <= params.MaxUpdateRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			UpdatesTotal.WithLabelValues(kind, "error").Inc()
			return nil, err
		}

		f, err := l.folders.GetFolder(ctx, folderID)
		if err != nil {
			if !errors.Is(err, folders.ErrFolderNotFound) {
				UpdatesTotal.WithLabelValues(kind, "error").Inc()
			}
			return nil, err
		}

		next, state, skip := compute(f)
		if skip != "" {
			UpdatesTotal.WithLabelValues(kind, "skipped").Inc()
			l.logger.Info("profile update skipped",
				zap.String("kind", kind),
				zap.String("folder_id", folderID),
				zap.String("reason", skip),
			)
			return f, nil
		}

		updated, err := l.folders.UpdateProfile(ctx, folderID, next, state, f.Version)
		if errors.Is(err, folders.ErrVersionConflict) {
			ConflictsTotal.Inc()
			l.logger.Debug("profile update lost race, retrying",
				zap.String("kind", kind),
				zap.String("folder_id", folderID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			UpdatesTotal.WithLabelValues(kind, "error").Inc()
			return nil, err
		}

		UpdatesTotal.WithLabelValues(kind, "updated").Inc()
		l.syncIndex(ctx, updated)
		l.logger.Debug("profile updated",
			zap.String("kind", kind),
			zap.String("folder_id", folderID),
			zap.String("state", string(updated.ProfileState)),
			zap.Int64("version", updated.Version),
		)
		return updated, nil
	}

	UpdatesTotal.WithLabelValues(kind, "conflict").Inc()
	return nil, fmt.Errorf("updating profile of folder %s after %d attempts: %w",
		folderID, params.MaxUpdateRetries, folders.ErrVersionConflict)
}

// syncIndex mirrors f into the vector index. Failures are logged only;
// reindex repairs drift from the relational store.
func (l *ProfileLearner) syncIndex(ctx context.Context, f *folders.Folder) {
	if l.index == nil {
		return
	}
	if err := vectorstore.Sync(ctx, l.index, f); err != nil {
		l.logger.Warn("failed to sync folder index",
			zap.String("folder_id", f.ID),
			zap.Error(err),
		)
	}
}

// Reinforce pulls the folder profile towards contentVector:
// normalize((1-α)·profile + α·content). A missing folder, profile or vector
// and a dimension mismatch are logged and skipped.
func (l *ProfileLearner) Reinforce(ctx context.Context, folderID string, contentVector []float64) error {
	ctx, span := tracer.Start(ctx, "ProfileLearner.Reinforce")
	defer span.End()
	span.SetAttributes(attribute.String("folder.id", folderID))

	alpha := l.Params().ReinforceAlpha
	return l.adjust(ctx, KindReinforce, folderID, contentVector, func(cur []float64) ([]float64, error) {
		return vecmath.Blend(cur, contentVector, alpha)
	})
}

// Penalize pushes the folder profile away from contentVector:
// normalize(profile − β·(content − profile)). Skips like Reinforce.
func (l *ProfileLearner) Penalize(ctx context.Context, folderID string, contentVector []float64) error {
	ctx, span := tracer.Start(ctx, "ProfileLearner.Penalize")
	defer span.End()
	span.SetAttributes(attribute.String("folder.id", folderID))

	beta := l.Params().PenalizeBeta
	return l.adjust(ctx, KindPenalize, folderID, contentVector, func(cur []float64) ([]float64, error) {
		return vecmath.PushAway(cur, contentVector, beta)
	})
}

func (l *ProfileLearner) adjust(ctx context.Context, kind, folderID string, contentVector []float64, move func(cur []float64) ([]float64, error)) error {
	if len(contentVector) == 0 {
		UpdatesTotal.WithLabelValues(kind, "skipped").Inc()
		l.logger.Info("profile update skipped",
			zap.String("kind", kind),
			zap.String("folder_id", folderID),
			zap.String("reason", "content has no embedding"),
		)
		return nil
	}

	unlock := l.lock(folderID)
	defer unlock()

	_, err := l.apply(ctx, kind, folderID, func(f *folders.Folder) ([]float64, folders.ProfileState, string) {
		if len(f.Profile) == 0 {
			return nil, "", "folder has no profile"
		}
		if len(f.Profile) != len(contentVector) {
			l.logger.Warn("content vector dimension mismatch",
				zap.String("folder_id", f.ID),
				zap.Int("profile_dim", len(f.Profile)),
				zap.Int("content_dim", len(contentVector)),
			)
			return nil, "", "dimension mismatch"
		}
		moved, err := move(f.Profile)
		if err != nil {
			return nil, "", err.Error()
		}
		if vecmath.Norm(moved) == 0 {
			return nil, "", "degenerate profile"
		}
		return vecmath.Normalize(moved), folders.ProfileLearning, ""
	})
	if errors.Is(err, folders.ErrFolderNotFound) {
		UpdatesTotal.WithLabelValues(kind, "skipped").Inc()
		l.logger.Info("profile update skipped",
			zap.String("kind", kind),
			zap.String("folder_id", folderID),
			zap.String("reason", "folder not found"),
		)
		return nil
	}
	return err
}

// ClearProfile drops the folder's profile (any state → none) and removes
// it from the vector index.
func (l *ProfileLearner) ClearProfile(ctx context.Context, folderID string) (*folders.Folder, error) {
	unlock := l.lock(folderID)
	defer unlock()

	return l.apply(ctx, KindClear, folderID, func(f *folders.Folder) ([]float64, folders.ProfileState, string) {
		if len(f.Profile) == 0 && f.ProfileState == folders.ProfileNone {
			return nil, "", "folder has no profile"
		}
		return nil, folders.ProfileNone, ""
	})
}
