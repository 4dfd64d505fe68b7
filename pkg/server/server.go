// Package server exposes the conversation pipeline over HTTP: a
// synchronous chat webhook, an SSE streaming variant, a classifier
// debug endpoint, and the operational endpoints (health, status,
// metrics).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/graph"
	"github.com/vigila-ai/vigila/pkg/llms"
	"github.com/vigila-ai/vigila/pkg/observability"
	"github.com/vigila-ai/vigila/pkg/retriever"
	"github.com/vigila-ai/vigila/pkg/router"
	"github.com/vigila-ai/vigila/pkg/session"
)

// Directory resolves a caller's organizational unit from the staff
// directory. Optional: a nil Directory skips unit enrichment.
type Directory interface {
	UnitFor(ctx context.Context, username string) (string, bool)
}

// Server is the HTTP front of the pipeline.
type Server struct {
	cfg       config.ServerConfig
	graph     *graph.Graph
	router    *router.Router
	provider  llms.Provider
	retriever retriever.Retriever
	store     *session.Store
	obs       *observability.Manager
	directory Directory
	version   string

	httpServer *http.Server
}

// Options carries the collaborators the handlers need beyond the graph.
type Options struct {
	Router    *router.Router
	Provider  llms.Provider
	Retriever retriever.Retriever
	Store     *session.Store
	Obs       *observability.Manager
	Directory Directory
	Version   string
}

// New builds the server and its route table.
func New(cfg config.ServerConfig, g *graph.Graph, opts Options) *Server {
	s := &Server{
		cfg:       cfg,
		graph:     g,
		router:    opts.Router,
		provider:  opts.Provider,
		retriever: opts.Retriever,
		store:     opts.Store,
		obs:       opts.Obs,
		directory: opts.Directory,
		version:   opts.Version,
	}

	s.httpServer = &http.Server{
		Addr:         s.Address(),
		Handler:      s.routes(),
		ReadTimeout:  time.Duration(cfg.ReadTimeoutS) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutS) * time.Second,
	}
	return s
}

// Address returns the host:port the server listens on.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	var metrics *observability.Metrics
	if s.obs != nil {
		metrics = s.obs.Metrics()
	}
	r.Use(observability.Middleware(metrics))

	r.Post("/chat", s.handleChat)
	r.Post("/chat/stream", s.handleChatStream)
	r.Post("/parse", s.handleParse)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	if s.obs != nil {
		r.Get("/metrics", s.obs.Handler().ServeHTTP)
	}

	return r
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the context is cancelled, then drains in-flight
// requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "address", s.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

// enrich fills metadata gaps the frontend leaves open, resolving the
// caller's unit through the staff directory.
func (s *Server) enrich(ctx context.Context, meta router.Metadata) router.Metadata {
	if meta.Unit == "" && meta.Username != "" && s.directory != nil {
		if unit, ok := s.directory.UnitFor(ctx, meta.Username); ok {
			meta.Unit = unit
		}
	}
	return meta
}
