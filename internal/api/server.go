package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/predictradar/signalscan/internal/logging"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Server is the read-only HTTP surface over the latest tick (C9).
type Server struct {
	router *mux.Router
	http   *http.Server
	db     *sqlx.DB
	log    zerolog.Logger
}

// New builds a Server bound to addr ("host:port").
func New(db *sqlx.DB, addr string) *Server {
	s := &Server{
		db:  db,
		log: logging.Component("api"),
	}

	s.router = mux.NewRouter()
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.Health).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/movers", s.metricsMiddleware("movers", s.Movers)).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until the process is shut down, matching the semantics
// of http.Server.ListenAndServe (returns http.ErrServerClosed on
// graceful Shutdown).
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("read API listening")
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Health reports process liveness; it does not probe the database so it
// stays cheap enough for a liveness probe.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

// requestIDMiddleware tags each request with a short correlation id,
// echoed in the response and carried in the request context for the
// logging middleware to pick up.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		start := time.Now()
		next.ServeHTTP(w, r)
		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", requestID).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}
