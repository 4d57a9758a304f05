// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/packetware/ghostwire/internal/logging"
)

// DefaultAddr is the default bind address for the metrics HTTP endpoint.
const DefaultAddr = "127.0.0.1:4242"

// DefaultSampleInterval is how often the exporter pulls a fresh analytics
// snapshot.
const DefaultSampleInterval = 10 * time.Second

// Server serves /metrics over HTTP, sampling the Exporter on a fixed
// cadence in the background.
type Server struct {
	Addr     string
	Interval time.Duration
	Exporter *Exporter
	Logger   *logging.Logger
}

// NewServer builds a metrics Server sampling whatever source currently
// returns on each tick.
func NewServer(addr string, source Source, logger *logging.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{Addr: addr, Interval: DefaultSampleInterval, Exporter: NewExporter(source), Logger: logger}
}

// ListenAndServe runs the sampling loop and the HTTP server until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSampleInterval
	}

	go s.sampleLoop(ctx, interval)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(s.Exporter.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	srv := &http.Server{Addr: s.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.Logger.Info("metrics server listening", "addr", s.Addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) sampleLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Exporter.Sample()
		}
	}
}
