package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/contentindex/internal/access"
	"github.com/Aman-CERP/contentindex/internal/async"
	"github.com/Aman-CERP/contentindex/internal/config"
	"github.com/Aman-CERP/contentindex/internal/content"
	"github.com/Aman-CERP/contentindex/internal/indexing"
	"github.com/Aman-CERP/contentindex/internal/lifecycle"
	"github.com/Aman-CERP/contentindex/internal/registry"
	"github.com/Aman-CERP/contentindex/internal/scope"
	"github.com/Aman-CERP/contentindex/internal/store"
)

// shutdownTimeout bounds how long closing waits for queued index work.
const shutdownTimeout = 30 * time.Second

// app is the wired object graph shared by the commands.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	repo     *content.Repository
	scopes   *scope.Provider
	registry *registry.Registry
	handler  *indexing.Handler
	service  *content.Service

	// metricsFile receives the handler metrics when the app closes.
	metricsFile string
}

// openApp opens the content database and every configured index, then starts
// the index handler.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, registry: registry.New()}
	if err := a.open(ctx); err != nil {
		_ = a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	cfg := a.cfg
	db, err := content.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	a.db = db
	if err := content.Migrate(ctx, db); err != nil {
		return err
	}
	a.repo = content.NewRepository(db)
	a.scopes = scope.NewProvider(db)

	for _, ic := range cfg.Indexes {
		if err := a.openIndex(ic); err != nil {
			return err
		}
	}

	role, err := lifecycle.ParseRole(cfg.MainInstance)
	if err != nil {
		return err
	}
	itemTimeout, enqueueTimeout, breakerReset := cfg.Durations()
	policy := access.NewPolicy(a.repo, cfg.Access.CacheSize)

	a.handler = indexing.NewHandler(indexing.HandlerConfig{
		Registry: a.registry,
		Source:   content.NewSource(a.repo),
		Access:   policy,
		Arbiter:  lifecycle.NewArbiter(role, cfg.DataDir),
		Worker: async.WorkerConfig{
			Workers:        cfg.Worker.Workers,
			QueueSize:      cfg.Worker.QueueSize,
			EnqueueTimeout: enqueueTimeout,
			ItemTimeout:    itemTimeout,
		},
		DataDir:         cfg.DataDir,
		BreakerFailures: cfg.Breaker.MaxFailures,
		BreakerReset:    breakerReset,
	})
	a.handler.Start(ctx)
	a.service = content.NewService(a.repo, a.scopes, a.handler, policy)

	if async.HasIncompleteRebuild(cfg.DataDir) {
		slog.Warn("incomplete_rebuild_detected", slog.String("data_dir", cfg.DataDir))
	}
	return nil
}

func (a *app) openIndex(ic config.IndexConfig) error {
	ivc, err := ic.Configuration()
	if err != nil {
		return fmt.Errorf("index %s: %w", ic.Name, err)
	}
	backend, err := store.ParseBackend(ic.Backend)
	if err != nil {
		return fmt.Errorf("index %s: %w", ic.Name, err)
	}
	path := ic.Path
	if path == "" {
		path = store.DefaultPath(a.cfg.DataDir, ic.Name)
	}
	idx, err := store.New(backend, path)
	if err != nil {
		return fmt.Errorf("index %s: %w", ic.Name, err)
	}
	if err := a.registry.Register(ic.Name, idx, ivc); err != nil {
		_ = idx.Close()
		return err
	}
	return nil
}

// close stops the handler, waiting for queued work, and closes the indexes
// and the database.
func (a *app) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if a.handler != nil {
		errs = append(errs, a.handler.Close(ctx))
		if a.metricsFile != "" {
			errs = append(errs, a.writeMetrics())
		}
	}
	errs = append(errs, a.registry.Close())
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func (a *app) writeMetrics() error {
	if err := a.handler.Metrics().WriteFile(a.metricsFile); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	slog.Debug("metrics_written", slog.String("path", a.metricsFile))
	return nil
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	a.metricsFile = metricsFile
	defer func() {
		if closeErr := a.close(context.Background()); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, a)
}
