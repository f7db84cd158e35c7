package vectorstore

import (
	"context"
	"fmt"

	"github.com/crosve/Csphere/internal/config"
	"go.uber.org/zap"
)

// New creates the folder index selected by cfg.Provider:
//   - "chromem" (default): embedded, persisted under cfg.ChromemPath
//   - "qdrant": remote Qdrant server over gRPC
func New(ctx context.Context, cfg config.VectorStoreConfig, logger *zap.Logger) (FolderIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "", "chromem":
		return NewChromemIndex(ChromemConfig{
			Path:       cfg.ChromemPath,
			Compress:   cfg.ChromemCompress,
			Collection: cfg.Collection,
			Dimension:  cfg.Dimension,
		}, logger)

	case "qdrant":
		return NewQdrantIndex(ctx, QdrantConfig{
			Host:                    cfg.QdrantHost,
			Port:                    cfg.QdrantPort,
			APIKey:                  cfg.QdrantAPIKey.Value(),
			UseTLS:                  cfg.QdrantUseTLS,
			Collection:              cfg.Collection,
			Dimension:               cfg.Dimension,
			MaxRetries:              cfg.QdrantMaxRetries,
			RetryBackoff:            cfg.QdrantRetryBackoff.Duration(),
			CircuitBreakerThreshold: cfg.QdrantCircuitBreakerThreshold,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
