// Package api provides HTTP handlers and the main API server logic for TriagePipe.
//
// It exposes RESTful endpoints for conversational triage turns, complaint
// listing, and session introspection. Request framing is thin glue: all
// triage behavior lives in the triage service.
package api

import (
	"log/slog"
	"net/http"

	"github.com/triagekit/triagepipe/internal/triage"
)

// DefaultAddr is the default API listen address.
const DefaultAddr = ":8080"

// Opts holds configuration for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server serves the TriagePipe HTTP API.
type Server struct {
	svc  *triage.Service
	addr string
}

// NewServer creates an API server over the triage service.
func NewServer(svc *triage.Service, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{svc: svc, addr: cfg.Addr}
}

// Handler returns the route table as an http.Handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/complaints", s.complaintsHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/sessions/", s.sessionHandler)
	mux.HandleFunc("/records", s.recordsHandler)
	return mux
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	slog.Info("TriagePipe API running", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}
