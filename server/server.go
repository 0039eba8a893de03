// Package server exposes the engine over HTTP.
//
// Information Hiding:
// - Route layout and middleware stack
// - Request decoding and candidate document lookup
// - Mapping of engine errors to status codes
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/richinex/querygate/engine"
	"github.com/richinex/querygate/model"
	"github.com/richinex/querygate/storage"
)

// Querier answers one query. *engine.Engine implements it.
type Querier interface {
	Handle(ctx context.Context, req model.QueryRequest) (engine.Result, error)
}

// Server routes HTTP requests to the engine.
type Server struct {
	querier Querier
	docs    storage.DocumentStore
	history storage.ConversationStorage
	origins []string
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithDocuments enables owner_scope and document_ids lookups.
func WithDocuments(docs storage.DocumentStore) Option {
	return func(s *Server) {
		s.docs = docs
	}
}

// WithHistory loads and extends conversation history by conversation_id.
func WithHistory(history storage.ConversationStorage) Option {
	return func(s *Server) {
		s.history = history
	}
}

// WithAllowedOrigins sets the CORS origins. The default allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// New creates a server.
func New(q Querier, opts ...Option) *Server {
	s := &Server{querier: q, origins: []string{"*"}}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ping", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down http server")
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	return <-errc
}
