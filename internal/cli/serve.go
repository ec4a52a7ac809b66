package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paintersrp/procwatch/internal/metrics"
)

const metricsShutdownTimeout = 2 * time.Second

type metricsServer struct {
	srv      *http.Server
	listener net.Listener
	errCh    chan error
}

func newMetricsRouter() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return router
}

func startMetricsServer(addr string) (*metricsServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	s := &metricsServer{
		srv: &http.Server{
			Handler:           newMetricsRouter(),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		listener: listener,
		errCh:    make(chan error, 1),
	}
	go func() {
		s.errCh <- s.srv.Serve(listener)
	}()
	return s, nil
}

func (s *metricsServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *metricsServer) Shutdown() error {
	ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	if err := <-s.errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// serveMetrics starts the metrics endpoint when --metrics-addr is set. The
// returned func stops it and is always safe to call.
func (c *context) serveMetrics() (func(), error) {
	addr := ""
	if c.metricsAddr != nil {
		addr = *c.metricsAddr
	}
	if addr == "" {
		return func() {}, nil
	}
	server, err := startMetricsServer(addr)
	if err != nil {
		return nil, err
	}
	log := c.log()
	log.Info("Serving metrics", "addr", server.Addr())
	return func() {
		if err := server.Shutdown(); err != nil {
			log.Warn("Metrics server shutdown failed", slog.Any("err", err))
		}
	}, nil
}
