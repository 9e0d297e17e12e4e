// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/memewatch/internal/api"
	"github.com/starford/memewatch/internal/catalog"
	"github.com/starford/memewatch/internal/models"
	"github.com/starford/memewatch/internal/overlay"
	"github.com/starford/memewatch/internal/sse"
	pkgconfig "github.com/starford/memewatch/pkg/config"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(cfg, app.logOutput)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("catalog_path", cfg.Catalog.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("detection_enabled", cfg.Detection.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker carries detections and overlay commands to clients.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := newCore(ctx, cfg, logger, overlay.New(broker), broker.PublishDetection)
	if err != nil {
		return err
	}
	defer c.close()

	c.svc.OnCatalogChange(func(all, active []models.CatalogEntry) {
		broker.Publish(sse.Event{
			Type: sse.TypeCatalogUpdated,
			Data: map[string]any{"total": len(all), "active": len(active)},
		})
	})

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	refresh := func(reason string) {
		if _, _, err := c.svc.RefreshCatalog(gCtx, true); err != nil {
			logger.Warn("catalog refresh failed",
				slog.String("reason", reason),
				slog.String("error", err.Error()))
		}
	}

	// Reload the catalog when its files change.
	if cfg.Catalog.Watch {
		g.Go(func() error {
			if err := catalog.Watch(gCtx, c.dir.Root(), logger, func() { refresh("watch") }); err != nil {
				logger.Error("catalog watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Periodic refresh picks up changes the watcher cannot see.
	if cfg.Catalog.TTL > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Catalog.TTL)
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					if _, _, err := c.svc.RefreshCatalog(gCtx, false); err != nil {
						logger.Warn("catalog refresh failed",
							slog.String("reason", "ttl"),
							slog.String("error", err.Error()))
					}
				}
			}
		})
	}

	// Hot-reload detection settings from the config file.
	if app.configPath != "" {
		g.Go(func() error {
			err := pkgconfig.Watch(gCtx, app.configPath, NewDefaultConfig,
				func(next *Config) {
					if err := c.svc.UpdateDetectionConfig(next.Detection.DetectorConfig()); err != nil {
						logger.Warn("detection config rejected", slog.String("error", err.Error()))
						return
					}
					logger.Info("detection config reloaded",
						slog.Bool("enabled", next.Detection.Enabled),
						slog.String("scoring", next.Detection.Scoring),
						slog.Duration("cooldown", next.Detection.Cooldown))
				},
				func(err error) {
					logger.Warn("config reload failed", slog.String("error", err.Error()))
				})
			if err != nil {
				logger.Error("config watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the background loops exit once the
// server has stopped.
var errShutdown = errors.New("shutdown")
