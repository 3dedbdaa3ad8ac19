// Package server implements the jobly HTTP API.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/rayjc/jobly/auth"
	"github.com/rayjc/jobly/store"
)

// Server is the jobly HTTP server.
type Server struct {
	store      *store.Store
	issuer     *auth.Issuer
	hasher     auth.Hasher
	metrics    *metrics
	logger     zerolog.Logger
	handler    http.Handler
	httpServer *http.Server
	startedAt  time.Time
}

// Config holds server configuration options.
type Config struct {
	Addr   string
	Logger zerolog.Logger
}

// New creates the server and its routes.
func New(cfg Config, st *store.Store, issuer *auth.Issuer, hasher auth.Hasher) *Server {
	s := &Server{
		store:   st,
		issuer:  issuer,
		hasher:  hasher,
		metrics: newMetrics(),
		logger:  cfg.Logger.With().Str("component", "http-server").Logger(),
	}
	s.metrics.sampleBuildInfo()
	s.handler = s.middleware(s.routes())
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login", s.handleLogin)

	mux.Handle("GET /companies", s.requireLoggedIn(s.handleListCompanies))
	mux.Handle("GET /companies/{handle}", s.requireLoggedIn(s.handleGetCompany))
	mux.Handle("POST /companies", s.requireAdmin(s.handleCreateCompany))
	mux.Handle("PATCH /companies/{handle}", s.requireAdmin(s.handleUpdateCompany))
	mux.Handle("DELETE /companies/{handle}", s.requireAdmin(s.handleDeleteCompany))

	mux.Handle("GET /jobs", s.requireLoggedIn(s.handleListJobs))
	mux.Handle("GET /jobs/{id}", s.requireLoggedIn(s.handleGetJob))
	mux.Handle("POST /jobs", s.requireAdmin(s.handleCreateJob))
	mux.Handle("PATCH /jobs/{id}", s.requireAdmin(s.handleUpdateJob))
	mux.Handle("DELETE /jobs/{id}", s.requireAdmin(s.handleDeleteJob))

	mux.Handle("GET /users", s.requireLoggedIn(s.handleListUsers))
	mux.Handle("GET /users/{username}", s.requireLoggedIn(s.handleGetUser))
	mux.HandleFunc("POST /users", s.handleRegister)
	mux.Handle("PATCH /users/{username}", s.requireCorrectUser(s.handleUpdateUser))
	mux.Handle("DELETE /users/{username}", s.requireCorrectUser(s.handleDeleteUser))

	mux.Handle("GET /metrics", s.metrics.handler())
	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

// middleware wraps the routes with request logging, metrics and token lookup.
// The access handler sits directly above the mux so it sees the request the
// mux records the matched pattern on.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := hlog.AccessHandler(s.logAccess)(next)
	h = s.authenticate(h)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	return hlog.NewHandler(s.logger)(h)
}

func (s *Server) logAccess(r *http.Request, status, size int, duration time.Duration) {
	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	s.metrics.observe(r.Method, route, status, duration)

	event := hlog.FromRequest(r).Info()
	if status >= http.StatusInternalServerError {
		event = hlog.FromRequest(r).Error()
	}
	event.
		Str("method", r.Method).
		Stringer("url", r.URL).
		Str("route", route).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve starts the HTTP server on the given listener. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.startedAt = time.Now()
	s.logger.Info().Str("address", listener.Addr().String()).Msg("Starting HTTP server")
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Dur("uptime", time.Since(s.startedAt)).Msg("Gracefully stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.fail(w, r, newError(http.StatusNotFound, "Not Found"), "")
}
