package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/crosve/Csphere/internal/config"
	httpserver "github.com/crosve/Csphere/internal/http"
	"github.com/crosve/Csphere/internal/ingest"
	"github.com/crosve/Csphere/internal/learning"
	"github.com/crosve/Csphere/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion worker and the HTTP API",
		Long: `Run the JetStream ingestion worker and the operational HTTP API until
interrupted. When the config was read from a file, edits to its matching
section are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, !noWorker)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve the HTTP API only")
	return cmd
}

// newRegistry wires every task processor to the app's services.
func newRegistry(a *app) *ingest.Registry {
	content := ingest.NewContentProcessor(ingest.ContentDeps{
		Content:    a.store,
		Users:      a.store,
		Matcher:    a.matcher,
		Embedder:   a.embedder,
		Summarizer: a.summarizer,
		Scrubber:   a.scrubber,
		Logger:     a.logger,
	})
	return ingest.NewRegistry(
		content,
		ingest.NewFolderProcessor(a.catalog, a.logger),
		ingest.NewMetadataProcessor(a.catalog, a.logger),
		ingest.NewRemovalProcessor(a.matcher, a.logger),
		ingest.NewUserProfileProcessor(a.users, a.logger),
	)
}

// applyMatching pushes a reloaded matching section into the running services.
func applyMatching(a *app, cfg *config.Config) {
	a.matcher.ApplyMatching(cfg.Matching)
	a.learner.SetParams(learning.ParamsFrom(cfg.Matching))
	a.users.SetAlpha(cfg.Matching.UserProfileAlpha)
}

func runServe(ctx context.Context, root *rootOptions, withWorker bool) error {
	a, err := newApp(ctx, root, appOptions{role: "serve", oracle: true})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	logger.Info("starting csphere",
		zap.String("version", version),
		zap.Int("port", a.cfg.Server.Port),
		zap.String("vectorstore", a.cfg.VectorStore.Provider),
		zap.String("embeddings", a.cfg.Embeddings.Provider),
		zap.Bool("worker", withWorker),
	)

	srv, err := httpserver.NewServer(httpserver.Deps{
		Matcher:   a.matcher,
		Catalog:   a.catalog,
		Embedder:  a.embedder,
		Scrubber:  a.scrubber,
		Store:     a.store,
		Index:     a.index,
		Telemetry: a.tel,
		Version:   version,
	}, logger, &httpserver.Config{Host: a.cfg.Server.Host, Port: a.cfg.Server.Port})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	var w *worker.Worker
	if withWorker {
		nc, err := worker.Connect(a.cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer nc.Close()

		if w, err = worker.New(nc, a.cfg.NATS, newRegistry(a), logger); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if w != nil {
		g.Go(func() error { return w.Run(gctx) })
	}

	if a.cfg.Path() != "" {
		watcher, err := config.NewWatcher(a.cfg, logger, func(cfg *config.Config) {
			applyMatching(a, cfg)
		})
		if err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			g.Go(func() error {
				watcher.Run(gctx)
				return nil
			})
		}
	}

	err = g.Wait()
	logger.Info("csphere stopped")
	return err
}
