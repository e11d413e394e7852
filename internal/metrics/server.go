package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/densityscanner/internal/logger"
)

// HealthFunc reports whether the process is healthy.
type HealthFunc func() error

// Server exposes /metrics and /healthz.
type Server struct {
	server   *http.Server
	listener net.Listener
}

// NewRouter builds the ops routes. health may be nil.
func NewRouter(health HealthFunc) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)
	return router
}

// Listen binds addr and returns a server ready to Serve.
func Listen(addr string, health HealthFunc) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &Server{
		server: &http.Server{
			Handler:      NewRouter(health),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		listener: ln,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until the server is shut down.
func (s *Server) Serve() {
	logger.Info("Metrics server listening on %s", s.Addr())
	if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server failed: %v", err)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
