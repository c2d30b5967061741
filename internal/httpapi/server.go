// Package httpapi serves the read-only HTTP surface: the publication
// artifact, health, status counts, and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/metrics"
	"github.com/tokenscout/tokenscout/internal/publish"
	"github.com/tokenscout/tokenscout/internal/store"
)

const (
	readTimeout    = 10 * time.Second
	writeTimeout   = 15 * time.Second
	idleTimeout    = 60 * time.Second
	requestTimeout = 10 * time.Second
)

// Server is the read-only HTTP server. It never mutates the token store.
type Server struct {
	router *mux.Router
	server *http.Server

	repo store.TokenRepo
	gen  *publish.Generator
	cfg  *config.Store
}

// NewServer assembles routes over the generator and store.
func NewServer(addr string, repo store.TokenRepo, gen *publish.Generator, cfg *config.Store, reg *metrics.Registry) *Server {
	s := &Server{
		router: mux.NewRouter(),
		repo:   repo,
		gen:    gen,
		cfg:    cfg,
	}

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.HandleFunc("/artifact", s.handleArtifact).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	if reg != nil {
		s.router.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}

// handleArtifact renders the publication artifact. Consumers may cache it
// briefly; the max-age tracks the configured artifact lifetime capped at 60s.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	doc, err := s.gen.Generate(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("artifact generation failed")
		http.Error(w, "artifact generation failed", http.StatusInternalServerError)
		return
	}

	maxAge := s.cfg.Current().ArtifactMaxAge
	if maxAge > 60 || maxAge < 0 {
		maxAge = 60
	}
	w.Header().Set("Content-Type", "application/toml; charset=utf-8")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	_, _ = w.Write([]byte(doc))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.repo.Ping(r.Context()); err != nil {
		status = "store unavailable"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{"status": status})
}

// handleStatus reports token counts per lifecycle state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int64, 3)
	for _, status := range []domain.Status{domain.StatusMonitored, domain.StatusActive, domain.StatusArchived} {
		n, err := s.repo.CountByStatus(r.Context(), status)
		if err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		counts[string(status)] = n
	}
	s.writeJSON(w, http.StatusOK, counts)
}

// handleConfig exposes the current snapshot. Secrets carry `json:"-"` tags
// and never appear in the response.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Current())
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
