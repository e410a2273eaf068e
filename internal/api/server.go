// Package api exposes the recognition service over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pagekit/recognize-gw/internal/events"
	"github.com/pagekit/recognize-gw/internal/history"
	"github.com/pagekit/recognize-gw/internal/job"
)

// Enqueuer defines the queue operations the server needs.
type Enqueuer interface {
	Enqueue(jb *job.Job)
	Depth() int
}

// Tool defines the recognizer introspection operations relayed to clients.
type Tool interface {
	Version(ctx context.Context) (string, error)
	Help(ctx context.Context) (string, error)
}

// HistoryReader defines the job-outcome lookup used by GET /jobs/{jobID}.
type HistoryReader interface {
	Get(ctx context.Context, jobID string) (*history.Record, error)
}

// Config holds API server configuration.
type Config struct {
	Listen     string
	PathPrefix string
	// RequestTimeout bounds how long a recognize request waits for its
	// job result before returning 504.
	RequestTimeout time.Duration
	// APIKey, when set, requires a bearer token on every endpoint except
	// the health check.
	APIKey string
	// Workers is reported in the health response.
	Workers int
}

// Server is the HTTP API server.
type Server struct {
	config    Config
	queue     Enqueuer
	tool      Tool
	histories HistoryReader
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates an API server. histories may be nil when the history store is
// disabled.
func New(config Config, queue Enqueuer, tool Tool, histories HistoryReader, hub *events.Hub, logger *slog.Logger) *Server {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Minute
	}
	return &Server{
		config:    config,
		queue:     queue,
		tool:      tool,
		histories: histories,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.config.RequestTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("api server starting", "listen", s.config.Listen, "prefix", s.config.PathPrefix)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Routes builds the full router, honoring the configured path prefix.
func (s *Server) Routes() *chi.Mux {
	root := chi.NewRouter()

	root.Use(middleware.RequestID)
	root.Use(middleware.RealIP)
	root.Use(s.loggingMiddleware)
	root.Use(middleware.Recoverer)

	prefix := strings.TrimRight(s.config.PathPrefix, "/")
	if prefix == "" {
		s.registerRoutes(root)
	} else {
		root.Route(prefix, func(r chi.Router) {
			s.registerRoutes(r)
		})
	}
	return root
}

func (s *Server) registerRoutes(r chi.Router) {
	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(s.authMiddleware)
		}
		r.Post("/recognize", s.handleRecognize)
		r.Get("/version", s.handleVersion)
		r.Get("/help", s.handleHelp)
		r.Get("/openapi.json", s.handleOpenAPI)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Get("/events", s.handleEvents)
	})
}

// authMiddleware validates the bearer token from the Authorization header.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !validToken(token, s.config.APIKey) {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	token := strings.TrimSpace(auth[len(prefix):])
	if token == "" {
		return "", fmt.Errorf("missing API key")
	}
	return token, nil
}

func validToken(provided, configured string) bool {
	if provided == "" || configured == "" {
		return false
	}
	if len(provided) != len(configured) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
