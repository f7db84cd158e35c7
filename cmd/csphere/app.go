package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/crosve/Csphere/internal/catalog"
	"github.com/crosve/Csphere/internal/config"
	"github.com/crosve/Csphere/internal/embeddings"
	"github.com/crosve/Csphere/internal/learning"
	"github.com/crosve/Csphere/internal/logging"
	"github.com/crosve/Csphere/internal/matcher"
	"github.com/crosve/Csphere/internal/recall"
	"github.com/crosve/Csphere/internal/reranker"
	"github.com/crosve/Csphere/internal/secrets"
	"github.com/crosve/Csphere/internal/storage"
	"github.com/crosve/Csphere/internal/telemetry"
	"github.com/crosve/Csphere/internal/vectorstore"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
)

// app holds the services shared by the commands. Fields a command did not
// ask for stay nil.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	logger *zap.Logger
	tel    *telemetry.Telemetry

	store      *storage.Store
	index      vectorstore.FolderIndex
	embedder   embeddings.Provider
	summarizer embeddings.Summarizer
	scrubber   *secrets.Scrubber

	learner *learning.ProfileLearner
	users   *learning.UserProfiles
	matcher *matcher.Matcher
	catalog *catalog.Service

	closers []func() error
}

// appOptions selects the optional parts of the bootstrap.
type appOptions struct {
	// role names the command in telemetry resource attributes.
	role string
	// oracle connects the embedding and summary models.
	oracle bool
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadWithFile(path)
	}
	return config.Load()
}

// newApp loads configuration and opens storage, the folder index and the
// domain services. The order follows dependency order; Close undoes it.
func newApp(ctx context.Context, root *rootOptions, opts appOptions) (*app, error) {
	cfg, err := loadConfig(root.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a := &app{cfg: cfg}

	if err := a.initObservability(ctx, opts.role); err != nil {
		return nil, err
	}

	if err := a.initStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if opts.oracle {
		if err := a.initOracle(); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.scrubber, err = secrets.New(cfg.Secrets.ScrubEnabled, a.logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}

	var emb embeddings.Embedder
	if a.embedder != nil {
		emb = a.embedder
	}
	a.learner = learning.NewProfileLearner(a.store, a.index, emb, learning.ParamsFrom(cfg.Matching), a.logger)
	a.users = learning.NewUserProfiles(a.store, a.store, cfg.Matching.UserProfileAlpha, a.logger)
	a.matcher = matcher.New(matcher.Deps{
		Recall:  recall.New(a.index, a.store, cfg.Matching.RecallLimit, a.logger),
		Scorer:  reranker.NewScorer(reranker.WeightsFrom(cfg.Matching), a.logger),
		Links:   a.store,
		Folders: a.store,
		Content: a.store,
		Learner: a.learner,
		Logger:  a.logger,
	}, matcher.SettingsFrom(cfg.Matching))
	a.catalog = catalog.NewService(a.store, a.store, a.learner, a.index, a.logger)
	return a, nil
}

// newLogger builds the logger from the config's logging section.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if err := cfg.Section("logging", logCfg); err != nil {
		return nil, err
	}
	var lp otellog.LoggerProvider
	if logCfg.Output.OTEL {
		lp = global.GetLoggerProvider()
	}
	log, err := logging.NewLogger(logCfg, lp)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

func (a *app) initObservability(ctx context.Context, role string) error {
	log, err := newLogger(a.cfg)
	if err != nil {
		return err
	}
	a.log = log
	a.logger = log.Underlying()
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})

	telCfg := telemetry.NewDefaultConfig()
	telCfg.ServiceVersion = version
	if err := a.cfg.Section("telemetry", telCfg); err != nil {
		return err
	}
	tel, err := telemetry.New(ctx, telCfg, telemetry.ProcessFrom(role, a.cfg), a.logger)
	if err != nil {
		return err
	}
	a.tel = tel
	a.closers = append(a.closers, func() error {
		return tel.Shutdown(context.Background())
	})
	return nil
}

func (a *app) initStorage(ctx context.Context) error {
	store, err := storage.Open(ctx, storage.Options{
		Path:        a.cfg.Storage.Path,
		BusyTimeout: a.cfg.Storage.BusyTimeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	index, err := vectorstore.New(ctx, a.cfg.VectorStore, a.logger)
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	a.index = index
	a.closers = append(a.closers, index.Close)

	// an in-memory chromem index starts empty every run
	if a.cfg.VectorStore.Provider == "chromem" && a.cfg.VectorStore.ChromemPath == "" {
		if _, err := vectorstore.Reindex(ctx, index, store, a.logger); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) initOracle() error {
	provider, err := embeddings.NewProvider(a.cfg.Embeddings, a.logger)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	a.embedder = provider
	a.closers = append(a.closers, provider.Close)

	summarizer, err := embeddings.NewSummarizer(a.cfg.Embeddings, a.logger)
	if err != nil {
		return fmt.Errorf("creating summarizer: %w", err)
	}
	a.summarizer = summarizer
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
