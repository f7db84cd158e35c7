// Package config provides configuration loading for csphere.
//
// Configuration is read from an optional YAML file and overridden by
// CSPHERE_-prefixed environment variables. Sections used by other packages
// (logging, telemetry) are decoded on demand through Section so those
// packages can keep their own config types.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/knadh/koanf/v2"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete csphere configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Storage     StorageConfig     `koanf:"storage"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Matching    MatchingConfig    `koanf:"matching"`
	NATS        NATSConfig        `koanf:"nats"`
	Temporal    TemporalConfig    `koanf:"temporal"`
	Secrets     SecretsConfig     `koanf:"secrets"`

	// k keeps the merged sources so sections owned by other packages can be
	// decoded after the fact.
	k *koanf.Koanf
	// path is the YAML file the config was read from ("" when env only).
	path string
}

// ServerConfig holds the operational HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig configures the relational store.
type StorageConfig struct {
	// Path is the SQLite database file, or ":memory:".
	Path        string   `koanf:"path"`
	BusyTimeout Duration `koanf:"busy_timeout"`
}

// VectorStoreConfig configures the folder profile index used for recall.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider   string `koanf:"provider"`
	Dimension  int    `koanf:"dimension"`
	Collection string `koanf:"collection"`

	ChromemPath     string `koanf:"chromem_path"`
	ChromemCompress bool   `koanf:"chromem_compress"`

	QdrantHost                    string   `koanf:"qdrant_host"`
	QdrantPort                    int      `koanf:"qdrant_port"`
	QdrantUseTLS                  bool     `koanf:"qdrant_use_tls"`
	QdrantAPIKey                  Secret   `koanf:"qdrant_api_key"`
	QdrantMaxRetries              int      `koanf:"qdrant_max_retries"`
	QdrantRetryBackoff            Duration `koanf:"qdrant_retry_backoff"`
	QdrantCircuitBreakerThreshold int      `koanf:"qdrant_circuit_breaker_threshold"`
}

// EmbeddingsConfig configures the embedding/summary oracle.
type EmbeddingsConfig struct {
	// Provider is "tei", "openai" or "fastembed".
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	Model    string `koanf:"model"`
	// SummaryModel is the chat model used for summaries and categories.
	// Empty disables summarization; titles are used instead.
	SummaryModel string `koanf:"summary_model"`
	// SummaryBaseURL is the OpenAI-compatible endpoint for SummaryModel.
	// Empty reuses BaseURL.
	SummaryBaseURL string   `koanf:"summary_base_url"`
	APIKey         Secret   `koanf:"api_key"`
	Dimension      int      `koanf:"dimension"`
	RateLimit      float64  `koanf:"rate_limit"`
	Burst          int      `koanf:"burst"`
	Timeout        Duration `koanf:"timeout"`
	MaxRetries     int      `koanf:"max_retries"`
	CacheDir       string   `koanf:"cache_dir"`
}

// MatchingConfig holds the tunable constants of the folder matcher and the
// profile learner. These can be hot-reloaded, see Watcher.
type MatchingConfig struct {
	RecallLimit      int     `koanf:"recall_limit"`
	Threshold        float64 `koanf:"threshold"`
	KeywordWeight    float64 `koanf:"keyword_weight"`
	FuzzyWeight      float64 `koanf:"fuzzy_weight"`
	SemanticWeight   float64 `koanf:"semantic_weight"`
	ReinforceAlpha   float64 `koanf:"reinforce_alpha"`
	PenalizeBeta     float64 `koanf:"penalize_beta"`
	MetadataAlpha    float64 `koanf:"metadata_alpha"`
	UserProfileAlpha float64 `koanf:"user_profile_alpha"`
	MaxUpdateRetries int     `koanf:"max_update_retries"`
}

// NATSConfig configures the JetStream ingestion queue.
type NATSConfig struct {
	URL           string   `koanf:"url"`
	Token         Secret   `koanf:"token"`
	Stream        string   `koanf:"stream"`
	SubjectPrefix string   `koanf:"subject_prefix"`
	Durable       string   `koanf:"durable"`
	Workers       int      `koanf:"workers"`
	AckWait       Duration `koanf:"ack_wait"`
	MaxDeliver    int      `koanf:"max_deliver"`
	RetryDelay    Duration `koanf:"retry_delay"`
}

// TemporalConfig configures the scheduled user profile refresh.
type TemporalConfig struct {
	HostPort     string `koanf:"host_port"`
	Namespace    string `koanf:"namespace"`
	TaskQueue    string `koanf:"task_queue"`
	ScheduleCron string `koanf:"schedule_cron"`
	ScheduleID   string `koanf:"schedule_id"`
}

// SecretsConfig toggles credential scrubbing before text reaches the oracle.
type SecretsConfig struct {
	ScrubEnabled bool `koanf:"scrub_enabled"`
}

// Default returns the configuration used when neither file nor env set a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9090,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: StorageConfig{
			Path:        "csphere.db",
			BusyTimeout: Duration(5 * time.Second),
		},
		VectorStore: VectorStoreConfig{
			Provider:                      "chromem",
			Dimension:                     1536,
			Collection:                    "csphere_folders",
			ChromemPath:                   "data/vectorstore",
			QdrantHost:                    "localhost",
			QdrantPort:                    6334,
			QdrantMaxRetries:              3,
			QdrantRetryBackoff:            Duration(time.Second),
			QdrantCircuitBreakerThreshold: 5,
		},
		Embeddings: EmbeddingsConfig{
			Provider:     "openai",
			BaseURL:      "https://api.openai.com/v1",
			Model:        "text-embedding-3-small",
			SummaryModel: "gpt-4o-mini",
			Dimension:    1536,
			RateLimit:    5,
			Burst:        5,
			Timeout:      Duration(30 * time.Second),
			MaxRetries:   3,
		},
		Matching: DefaultMatching(),
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			Stream:        "CSPHERE_TASKS",
			SubjectPrefix: "csphere.tasks",
			Durable:       "csphere-worker",
			Workers:       4,
			AckWait:       Duration(2 * time.Minute),
			MaxDeliver:    5,
			RetryDelay:    Duration(10 * time.Second),
		},
		Temporal: TemporalConfig{
			HostPort:     "localhost:7233",
			Namespace:    "default",
			TaskQueue:    "csphere-user-profiles",
			ScheduleCron: "0 1 * * *",
			ScheduleID:   "csphere-user-profile-refresh",
		},
		Secrets: SecretsConfig{
			ScrubEnabled: true,
		},
	}
}

// DefaultMatching returns the empirically tuned matcher constants.
func DefaultMatching() MatchingConfig {
	return MatchingConfig{
		RecallLimit:      5,
		Threshold:        0.20,
		KeywordWeight:    0.2,
		FuzzyWeight:      0.30,
		SemanticWeight:   0.5,
		ReinforceAlpha:   0.1,
		PenalizeBeta:     0.15,
		MetadataAlpha:    0.7,
		UserProfileAlpha: 0.1,
		MaxUpdateRetries: 5,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path is required", ErrInvalidConfig)
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("%w: unknown vectorstore.provider %q", ErrInvalidConfig, c.VectorStore.Provider)
	}
	if c.VectorStore.Dimension <= 0 {
		return fmt.Errorf("%w: vectorstore.dimension must be positive", ErrInvalidConfig)
	}

	switch c.Embeddings.Provider {
	case "tei", "openai", "fastembed":
	default:
		return fmt.Errorf("%w: unknown embeddings.provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension != c.VectorStore.Dimension {
		return fmt.Errorf("%w: embeddings.dimension (%d) must equal vectorstore.dimension (%d)",
			ErrInvalidConfig, c.Embeddings.Dimension, c.VectorStore.Dimension)
	}

	if err := c.Matching.Validate(); err != nil {
		return err
	}

	if c.NATS.URL == "" {
		return fmt.Errorf("%w: nats.url is required", ErrInvalidConfig)
	}
	if c.NATS.MaxDeliver <= 0 {
		return fmt.Errorf("%w: nats.max_deliver must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the matcher constants.
func (m MatchingConfig) Validate() error {
	if m.RecallLimit <= 0 {
		return fmt.Errorf("%w: matching.recall_limit must be positive", ErrInvalidConfig)
	}
	unit := map[string]float64{
		"threshold":       m.Threshold,
		"keyword_weight":  m.KeywordWeight,
		"fuzzy_weight":    m.FuzzyWeight,
		"semantic_weight": m.SemanticWeight,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: matching.%s must be within [0,1], got %v", ErrInvalidConfig, name, v)
		}
	}
	rates := map[string]float64{
		"reinforce_alpha":    m.ReinforceAlpha,
		"penalize_beta":      m.PenalizeBeta,
		"metadata_alpha":     m.MetadataAlpha,
		"user_profile_alpha": m.UserProfileAlpha,
	}
	for name, v := range rates {
		if v <= 0 || v >= 1 {
			return fmt.Errorf("%w: matching.%s must be within (0,1), got %v", ErrInvalidConfig, name, v)
		}
	}
	if m.MaxUpdateRetries <= 0 {
		return fmt.Errorf("%w: matching.max_update_retries must be positive", ErrInvalidConfig)
	}
	return nil
}

// Section decodes the named top-level section into out, which should already
// hold that section's defaults. It is a no-op when the section is absent.
func (c *Config) Section(name string, out interface{}) error {
	if c.k == nil || !c.k.Exists(name) {
		return nil
	}
	if err := c.k.Unmarshal(name, out); err != nil {
		return fmt.Errorf("decoding %s section: %w", name, err)
	}
	return nil
}

// Path returns the YAML file this config was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}
