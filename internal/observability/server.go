// Package observability serves Prometheus metrics and health probes.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/udisondev/instancer/internal/game/instance"
)

// ReadinessChecker returns whether the service is ready.
type ReadinessChecker func() bool

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 5 * time.Second

// NewRegistry returns a private registry with Go/process collectors and
// the instance metrics registered.
func NewRegistry() *prometheus.Registry {
	// отдельный registry, чтобы не засорять глобальный
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	instance.RegisterMetrics(reg)
	return reg
}

// Server exposes /metrics and /healthz/{liveness,readiness}.
type Server struct {
	addr     string
	registry *prometheus.Registry
	isReady  ReadinessChecker

	listener net.Listener
}

// NewServer creates a server for addr ("host:port", ":9108").
func NewServer(addr string, registry *prometheus.Registry, isReady ReadinessChecker) *Server {
	return &Server{addr: addr, registry: registry, isReady: isReady}
}

// Listen binds the listening socket. Run calls it if needed.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("observability server started", "addr", s.Addr())

	select {
	case err := <-errCh:
		return fmt.Errorf("observability server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down observability server: %w", err)
	}
	<-errCh

	slog.Info("observability server stopped")
	return nil
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n")) //nolint:errcheck
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n")) //nolint:errcheck
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("not ready\n")) //nolint:errcheck
}
