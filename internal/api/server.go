package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/fleek/internal/metrics"
	"github.com/MikeSquared-Agency/fleek/internal/processor"
	"github.com/MikeSquared-Agency/fleek/internal/session"
	"github.com/MikeSquared-Agency/fleek/internal/store"
)

// CharacterReader reads back saved characters.
type CharacterReader interface {
	GetCharacter(ctx context.Context, id uuid.UUID) (store.Character, error)
	ListCharacters(ctx context.Context, limit int) ([]store.Character, error)
}

type Config struct {
	Port           int
	Backend        string
	APIToken       string
	AllowedOrigins []string
	RateLimitRPM   int
	RateLimitBurst int
}

type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	port       int
	backend    string
	sessions   *session.Registry
	proc       *processor.Processor
	characters CharacterReader
	limiter    *RateLimiter
	logger     *slog.Logger
}

// NewServer wires the HTTP surface. characters and m may be nil when storage
// or metrics are not configured.
func NewServer(cfg Config, sessions *session.Registry, proc *processor.Processor, characters CharacterReader, m *metrics.Collector, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	s := &Server{
		router:     router,
		port:       cfg.Port,
		backend:    cfg.Backend,
		sessions:   sessions,
		proc:       proc,
		characters: characters,
		limiter:    NewRateLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst, logger),
		logger:     logger,
	}

	router.Get("/health", s.health)
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/fleek/status", s.status)

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(cfg.APIToken))

			r.Post("/sessions", s.createSession)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.endSession)
				r.Get("/character", s.getSessionCharacter)
				r.With(s.limiter.Middleware).Post("/messages", s.postMessage)
				r.With(s.limiter.Middleware).Post("/retry", s.retry)
				r.Post("/stop", s.stop)
				r.Post("/save", s.save)
			})

			r.Get("/characters", s.listCharacters)
			r.Get("/characters/{id}", s.getCharacter)
		})
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for open streams to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":    "fleek",
		"status":   "ok",
		"backend":  s.backend,
		"sessions": s.sessions.Len(),
		"storage":  s.characters != nil,
	})
}
