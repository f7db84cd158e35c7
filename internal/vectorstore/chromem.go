package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/crosve/Csphere/internal/vecmath"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("csphere.vectorstore.chromem")

const (
	metaOwnerID   = "owner_id"
	metaBucketing = "bucketing_enabled"
	metaFolderID  = "folder_id"
)

// errNoEmbedder is returned if chromem ever asks us to embed text: the index
// only accepts precomputed profile vectors.
var errNoEmbedder = errors.New("folder index stores precomputed vectors only")

// ChromemConfig configures the embedded index.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps the index in memory,
	// which is only useful together with a reindex on startup.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// Collection holds every folder entry.
	Collection string

	// Dimension is the profile vector length.
	Dimension int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "csphere_folders"
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemIndex implements FolderIndex on chromem-go.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger
}

var _ FolderIndex = (*ChromemIndex)(nil)

// NewChromemIndex opens (or creates) the embedded index.
func NewChromemIndex(config ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = path
	}

	embed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbedder }
	collection, err := db.GetOrCreateCollection(config.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	logger.Info("chromem folder index ready",
		zap.String("path", config.Path),
		zap.String("collection", config.Collection),
		zap.Int("dimension", config.Dimension),
		zap.Int("entries", collection.Count()),
	)

	return &ChromemIndex{db: db, collection: collection, config: config, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Dimension returns the configured vector length.
func (x *ChromemIndex) Dimension() int { return x.config.Dimension }

// Upsert stores e, replacing any previous entry for the folder.
func (x *ChromemIndex) Upsert(ctx context.Context, e Entry) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()
	defer observe("chromem", "upsert", time.Now(), &err)
	span.SetAttributes(attribute.String("folder.id", e.FolderID))

	if err = checkDimension(x, e.Profile); err != nil {
		return err
	}

	err = x.collection.AddDocument(ctx, chromem.Document{
		ID: e.FolderID,
		Metadata: map[string]string{
			metaFolderID:  e.FolderID,
			metaOwnerID:   e.OwnerID,
			metaBucketing: strconv.FormatBool(e.BucketingEnabled),
		},
		Embedding: vecmath.ToFloat32(e.Profile),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting folder %s: %w", e.FolderID, err)
	}
	return nil
}

// Delete removes the folder's entry.
func (x *ChromemIndex) Delete(ctx context.Context, folderID string) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Delete")
	defer span.End()
	defer observe("chromem", "delete", time.Now(), &err)

	if err = x.collection.Delete(ctx, nil, nil, folderID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting folder %s: %w", folderID, err)
	}
	return nil
}

// Nearest runs a filtered cosine query.
func (x *ChromemIndex) Nearest(ctx context.Context, ownerID string, query []float64, limit int) (out []Neighbor, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Nearest")
	defer span.End()
	defer observe("chromem", "nearest", time.Now(), &err)
	span.SetAttributes(attribute.Int("limit", limit))

	if err = checkDimension(x, query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	// chromem requires nResults <= document count
	count := x.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	where := map[string]string{metaOwnerID: ownerID, metaBucketing: "true"}
	results, err := x.collection.QueryEmbedding(ctx, vecmath.ToFloat32(query), limit, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", x.config.Collection, err)
	}

	out = make([]Neighbor, 0, len(results))
	for _, r := range results {
		out = append(out, Neighbor{FolderID: r.ID, Similarity: float64(r.Similarity)})
	}
	span.SetAttributes(attribute.Int("results_count", len(out)))

	x.logger.Debug("queried chromem folder index",
		zap.String("owner_id", ownerID),
		zap.Int("limit", limit),
		zap.Int("results", len(out)),
	)
	return out, nil
}

// Count returns the number of indexed folders.
func (x *ChromemIndex) Count() int { return x.collection.Count() }

// Health always succeeds for the embedded index.
func (x *ChromemIndex) Health(context.Context) error { return nil }

// Close is a no-op; chromem persists on every write.
func (x *ChromemIndex) Close() error { return nil }
