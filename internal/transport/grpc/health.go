// Package grpc exposes the server's health over the standard gRPC health
// protocol.
package grpc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Check probes one dependency. A nil error means it is serving.
type Check func(ctx context.Context) error

// Health reports SERVING for "" only while every check passes; each check is
// also exposed under its own service name.
type Health struct {
	srv      *health.Server
	checks   map[string]Check
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	last map[string]bool
}

func NewHealth(checks map[string]Check, interval time.Duration, log *slog.Logger) *Health {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Health{
		srv:      health.NewServer(),
		checks:   checks,
		interval: interval,
		timeout:  5 * time.Second,
		log:      log.With(slog.String("component", "health")),
		last:     make(map[string]bool),
	}
	h.srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Run probes until ctx is done, then marks everything NOT_SERVING.
func (h *Health) Run(ctx context.Context) {
	h.Probe(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}

// Probe runs every check once and publishes the statuses.
func (h *Health) Probe(ctx context.Context) bool {
	allOK := true
	for name, check := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := check(cctx)
		cancel()

		ok := err == nil
		allOK = allOK && ok
		h.srv.SetServingStatus(name, status(ok))

		h.mu.Lock()
		prev, seen := h.last[name]
		h.last[name] = ok
		h.mu.Unlock()
		if !seen || prev != ok {
			if ok {
				h.log.InfoContext(ctx, "dependency healthy", slog.String("check", name))
			} else {
				h.log.WarnContext(ctx, "dependency unhealthy", slog.String("check", name), slog.Any("err", err))
			}
		}
	}
	h.srv.SetServingStatus("", status(allOK))
	return allOK
}

func status(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// NewServer builds the gRPC server with health and reflection registered.
func NewServer(h *Health, requestTimeout time.Duration) *grpc.Server {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(DefaultRequestTimeoutInterceptor(requestTimeout)),
	)
	healthpb.RegisterHealthServer(s, h.srv)
	reflection.Register(s)
	return s
}

// DefaultRequestTimeoutInterceptor bounds calls that arrive without a
// deadline.
func DefaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

// Shutdown stops s gracefully, forcing it after timeout.
func Shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
