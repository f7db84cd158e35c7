package learning

import (
	"context"
	"fmt"
	"strings"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/vecmath"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DeriveFromMetadata renders the text embedded for a folder's metadata
// profile. Empty optional fields are omitted.
func DeriveFromMetadata(name, description string, keywords, urlPatterns []string) string {
	lines := []string{"Folder name: " + name}
	if description != "" {
		lines = append(lines, "Description: "+description)
	}
	if len(keywords) > 0 {
		lines = append(lines, "Keywords: "+strings.Join(keywords, ", "))
	}
	if len(urlPatterns) > 0 {
		lines = append(lines, "URL patterns: "+strings.Join(urlPatterns, ", "))
	}
	return strings.Join(lines, "\n")
}

func derive(m folders.FolderMetadata) string {
	return DeriveFromMetadata(m.Name, m.Description, m.Keywords, m.URLPatterns)
}

// embedMetadata embeds the folder's derived text. Errors wrap
// folders.ErrEmbeddingOracleFailure.
func (l *ProfileLearner) embedMetadata(ctx context.Context, f *folders.Folder) ([]float64, error) {
	if l.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", folders.ErrEmbeddingOracleFailure)
	}
	vec, err := l.embedder.Embed(ctx, derive(f.Metadata()))
	if err != nil {
		return nil, fmt.Errorf("%w: embedding metadata of folder %s: %v", folders.ErrEmbeddingOracleFailure, f.ID, err)
	}
	if vecmath.Norm(vec) == 0 {
		return nil, fmt.Errorf("%w: zero vector for folder %s", folders.ErrEmbeddingOracleFailure, f.ID)
	}
	if l.index != nil && len(vec) != l.index.Dimension() {
		return nil, fmt.Errorf("%w: metadata vector has %d dimensions, index expects %d",
			folders.ErrDimensionMismatch, len(vec), l.index.Dimension())
	}
	return vecmath.Normalize(vec), nil
}

// InitializeProfile gives a folder without a profile its first vector,
// embedded from its metadata (none → initialized). Folders that already
// have a profile are left alone.
func (l *ProfileLearner) InitializeProfile(ctx context.Context, folderID string) (*folders.Folder, error) {
	ctx, span := tracer.Start(ctx, "ProfileLearner.InitializeProfile")
	defer span.End()
	span.SetAttributes(attribute.String("folder.id", folderID))

	unlock := l.lock(folderID)
	defer unlock()

	f, err := l.folders.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if len(f.Profile) > 0 {
		return f, nil
	}
	vec, err := l.embedMetadata(ctx, f)
	if err != nil {
		UpdatesTotal.WithLabelValues(KindInitialize, "error").Inc()
		span.RecordError(err)
		return f, err
	}

	return l.apply(ctx, KindInitialize, folderID, func(cur *folders.Folder) ([]float64, folders.ProfileState, string) {
		if len(cur.Profile) > 0 {
			return nil, "", "folder already has a profile"
		}
		return vec, folders.ProfileInitialized, ""
	})
}

// ApplyMetadata saves edited metadata and re-derives the profile from it.
// With a prior profile the result is normalize(a·new + (1−a)·old) with
// a = MetadataAlpha; without one the new vector is used as is.
//
// The metadata is saved even when the embedding oracle fails; the profile
// is then left unchanged and the failure is logged.
func (l *ProfileLearner) ApplyMetadata(ctx context.Context, folderID string, meta folders.FolderMetadata) (*folders.Folder, error) {
	ctx, span := tracer.Start(ctx, "ProfileLearner.ApplyMetadata")
	defer span.End()
	span.SetAttributes(attribute.String("folder.id", folderID))

	unlock := l.lock(folderID)
	defer unlock()

	f, err := l.folders.UpdateMetadata(ctx, folderID, meta)
	if err != nil {
		return nil, err
	}

	vec, err := l.embedMetadata(ctx, f)
	if err != nil {
		UpdatesTotal.WithLabelValues(KindMetadata, "error").Inc()
		span.RecordError(err)
		l.logger.Warn("metadata saved without profile update",
			zap.String("folder_id", folderID),
			zap.Error(err),
		)
		return f, nil
	}

	alpha := l.Params().MetadataAlpha
	return l.apply(ctx, KindMetadata, folderID, func(cur *folders.Folder) ([]float64, folders.ProfileState, string) {
		if len(cur.Profile) == 0 {
			return vec, folders.ProfileInitialized, ""
		}
		if len(cur.Profile) != len(vec) {
			// a model change makes the old profile meaningless
			l.logger.Warn("replacing profile with different dimension",
				zap.String("folder_id", cur.ID),
				zap.Int("old_dim", len(cur.Profile)),
				zap.Int("new_dim", len(vec)),
			)
			return vec, folders.ProfileInitialized, ""
		}
		blended, err := vecmath.Blend(cur.Profile, vec, alpha)
		if err != nil {
			return nil, "", err.Error()
		}
		if vecmath.Norm(blended) == 0 {
			return vec, cur.ProfileState, ""
		}
		return vecmath.Normalize(blended), cur.ProfileState, ""
	})
}
