package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/memewatch/internal/catalog"
	"github.com/starford/memewatch/internal/memeservice"
	"github.com/starford/memewatch/internal/pages"
	"github.com/starford/memewatch/internal/report"
	"github.com/starford/memewatch/internal/scheduler"
	"github.com/starford/memewatch/internal/store"
)

// core is the detection stack shared by the HTTP server and the MCP server.
type core struct {
	logger   *slog.Logger
	db       *store.DB
	dir      *catalog.Dir
	reporter *report.Reporter
	registry *pages.Registry
	svc      *memeservice.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// newCore opens the stats store and the catalog and builds the page
// registry. renderer and listener may be nil. listener runs on the detector
// loop for every admitted detection. The caller must call close.
func newCore(ctx context.Context, cfg *Config, logger *slog.Logger, renderer report.Renderer, listener scheduler.Listener) (*core, error) {
	// Ensure catalog directory exists.
	if err := os.MkdirAll(cfg.Catalog.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	dir, err := catalog.NewDir(cfg.Catalog.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	reporter := report.New(renderer, db, report.WithLogger(logger))
	regOpts := []pages.Option{
		pages.WithLogger(logger),
		pages.WithMaxPages(cfg.Detection.MaxPages),
	}
	if listener != nil {
		regOpts = append(regOpts, pages.WithListener(listener))
	}
	registry := pages.NewRegistry(reporter, cfg.Detection.DetectorConfig(), regOpts...)

	provider := catalog.NewCached(dir,
		catalog.WithTTL(cfg.Catalog.TTL),
		catalog.WithCache(db),
		catalog.WithCachedLogger(logger))
	svc := memeservice.NewService(provider, registry, db, logger,
		memeservice.WithSelectionStore(db))
	if err := svc.RestoreSelection(ctx); err != nil {
		logger.Warn("selection restore failed", slog.String("error", err.Error()))
	}

	// An unavailable catalog leaves detectors idle until a refresh succeeds.
	if _, _, err := svc.RefreshCatalog(ctx, false); err != nil {
		logger.Warn("initial catalog load failed", slog.String("error", err.Error()))
	}

	return &core{
		logger:   logger,
		db:       db,
		dir:      dir,
		reporter: reporter,
		registry: registry,
		svc:      svc,
	}, nil
}

// close tears pages down before flushing pending stats and closing the store.
func (c *core) close() {
	c.registry.CloseAll()
	c.reporter.Close()
	if err := c.db.Close(); err != nil {
		c.logger.Error("store close failed", slog.String("error", err.Error()))
	}
}
