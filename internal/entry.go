// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/logtags/internal/api"
	"github.com/starford/logtags/internal/importer"
	"github.com/starford/logtags/internal/mcpserver"
	"github.com/starford/logtags/internal/search"
	"github.com/starford/logtags/internal/sse"
	"github.com/starford/logtags/internal/storage"
	"github.com/starford/logtags/internal/store"
	"github.com/starford/logtags/internal/tagservice"
)

// mcpUser is the author recorded for writes made through MCP tools.
const mcpUser = "mcp"

// core holds the components every command needs.
type core struct {
	cfg    *Config
	logger *slog.Logger
	db     *store.DB
	index  *search.Index
	engine *search.Engine
}

func (c *core) close() {
	if err := c.index.Close(); err != nil {
		c.logger.Warn("close search index", slog.String("error", err.Error()))
	}
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close database", slog.String("error", err.Error()))
	}
}

func (c *core) service(opts ...tagservice.Option) *tagservice.Service {
	return tagservice.New(c.db, c.engine, append([]tagservice.Option{tagservice.WithLogger(c.logger)}, opts...)...)
}

// setup applies options, installs the JSON logger and opens the store and
// search index.
func setup(opts ...Option) (*core, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(app.logOutput, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("search_path", cfg.Search.Path),
		slog.String("import_path", cfg.Import.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	ix, err := search.Open(search.Options{Path: cfg.Search.Path, Logger: logger})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init search index: %w", err)
	}
	return &core{
		cfg:    cfg,
		logger: logger,
		db:     db,
		index:  ix,
		engine: search.NewEngine(db, ix, logger),
	}, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// rebuildIndex repopulates the search index from the store.
func (c *core) rebuildIndex(ctx context.Context) error {
	start := time.Now()
	n, err := c.engine.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild search index: %w", err)
	}
	c.logger.Info("Search index rebuilt",
		slog.Int("tags", n),
		slog.Duration("took", time.Since(start)))
	return nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	c, err := setup(opts...)
	if err != nil {
		return err
	}
	defer c.close()
	cfg, logger := c.cfg, c.logger

	if err := c.rebuildIndex(ctx); err != nil {
		return err
	}

	broker := sse.NewBroker(2*time.Second, 30*time.Second)
	defer broker.Close()

	svc := c.service(tagservice.WithPublisher(broker))

	var im *importer.Importer
	var importRoot string
	if cfg.Import.Enabled() {
		if err := os.MkdirAll(cfg.Import.Path, 0o755); err != nil {
			return fmt.Errorf("create import dir: %w", err)
		}
		files, err := storage.NewFS(cfg.Import.Path)
		if err != nil {
			return fmt.Errorf("init tag files: %w", err)
		}
		importRoot = files.Root()
		im = importer.New(svc, c.db, files, cfg.Import.User, logger)
		if _, err := im.Sync(ctx); err != nil {
			logger.Warn("initial import failed", slog.String("error", err.Error()))
		}
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := c.db.CountTags(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if im != nil && cfg.Import.Watch {
		g.Go(func() error {
			return im.Watch(gCtx, importRoot, importer.DefaultDebounce)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		// SSE streams never finish on their own; close them first.
		broker.Close()

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

// errShutdown cancels the group so background workers stop with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	c, err := setup(append(opts, WithLogOutput(os.Stderr))...)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.rebuildIndex(ctx); err != nil {
		return err
	}
	c.logger.Info("Serving MCP on stdio")
	return mcpserver.New(c.service(), mcpUser).ServeStdio()
}

// Reindex rebuilds the search index from SQLite and exits.
func Reindex(ctx context.Context, opts ...Option) error {
	c, err := setup(opts...)
	if err != nil {
		return err
	}
	defer c.close()
	return c.rebuildIndex(ctx)
}
