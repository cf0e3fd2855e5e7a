// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: every dependency in the chain
//
//	sqlite.DB → repository, blob store, guard, allocator
//	          → SnippetService → handlers, hub, janitor
//
// is wired here, in one place, rather than scattered across the codebase.
// main.go stays minimal: load config, build a Server, Start it.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/codether/codether/internal/access"
	"github.com/codether/codether/internal/allocator"
	"github.com/codether/codether/internal/blob"
	"github.com/codether/codether/internal/blob/fsblob"
	"github.com/codether/codether/internal/blob/s3blob"
	"github.com/codether/codether/internal/config"
	"github.com/codether/codether/internal/handler"
	"github.com/codether/codether/internal/hashgen"
	"github.com/codether/codether/internal/hub"
	"github.com/codether/codether/internal/janitor"
	"github.com/codether/codether/internal/middleware"
	sqliteRepo "github.com/codether/codether/internal/repository/sqlite"
	"github.com/codether/codether/internal/reservation"
	"github.com/codether/codether/internal/service"
)

// Server owns the router and every long-lived resource behind it. The
// database connection and the janitor are created in New and torn down
// during graceful shutdown in Start.
type Server struct {
	router  *chi.Mux
	cfg     *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	janitor *janitor.Janitor
}

// New assembles the full dependency chain from config.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	guard := access.NewGuard(cfg.MaxContentBytes)
	alloc := allocator.New(
		hashgen.New(),
		reservation.NewLRU(cfg.ReservationTTL),
		db,
		cfg.IDMinLen,
		cfg.IDMaxLen,
		logger,
	)
	svc := service.NewSnippetService(db, blobs, guard, alloc, cfg.SnippetTTL, logger)

	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		logger:  logger,
		db:      db,
		janitor: janitor.New(db, blobs, cfg.JanitorInterval, logger),
	}
	s.setupRoutes(svc)
	return s, nil
}

// newBlobStore selects the content backend from config. Local disk for
// single-node deployments, S3-compatible object storage for everything
// else.
func newBlobStore(cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case config.BackendFS:
		return fsblob.New(cfg.BlobDir)
	case config.BackendS3:
		return s3blob.New(s3blob.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// setupRoutes configures middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                      → liveness probe
//	POST /api/snippets                 → create snippet
//	GET  /api/snippets/{shortId}       → fetch snippet + content
//	PUT  /api/snippets/{shortId}       → replace content
//	GET  /api/snippets/{shortId}/ws    → live collaboration session
func (s *Server) setupRoutes(svc *service.SnippetService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	snippets := handler.NewSnippetHandler(svc, s.cfg.MaxContentBytes, s.logger)
	ws := handler.NewWSHandler(hub.New(svc, s.logger), s.cfg.MaxContentBytes, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/snippets", snippets.HandleCreate)
		r.Get("/snippets/{shortId}", snippets.HandleFind)
		r.Put("/snippets/{shortId}", snippets.HandleUpdate)
		r.Get("/snippets/{shortId}/ws", ws.HandleWS)
	})
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, drain in-flight requests for up to 30s,
// stop the janitor, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go s.janitor.Start(janitorCtx)

	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("blob_backend", s.cfg.BlobBackend),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
