package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestDefaultRequestTimeoutInterceptor(t *testing.T) {
	icpt := DefaultRequestTimeoutInterceptor(50 * time.Millisecond)

	var got time.Time
	_, err := icpt(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		d, ok := ctx.Deadline()
		if !ok {
			t.Fatalf("expected a deadline")
		}
		got = d
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error: %v", err)
	}
	if time.Until(got) > 50*time.Millisecond {
		t.Fatalf("deadline too far: %v", time.Until(got))
	}

	parent, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	want, _ := parent.Deadline()
	_, _ = icpt(parent, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		if d, _ := ctx.Deadline(); !d.Equal(want) {
			t.Fatalf("existing deadline replaced: %v != %v", d, want)
		}
		return nil, nil
	})
}

func TestHealth_ServesAggregateStatus(t *testing.T) {
	dbErr := errors.New("db down")
	var failing error
	h := NewHealth(map[string]Check{
		"postgres": func(context.Context) error { return failing },
		"dynamodb": func(context.Context) error { return nil },
	}, time.Hour, slog.Default())

	srv := NewServer(h, time.Second)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) error: %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("before probe status = %v", got)
	}

	if !h.Probe(context.Background()) {
		t.Fatalf("expected healthy probe")
	}
	if got := check(""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", got)
	}

	failing = dbErr
	if h.Probe(context.Background()) {
		t.Fatalf("expected unhealthy probe")
	}
	if got := check(""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, want NOT_SERVING", got)
	}
	if got := check("dynamodb"); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("dynamodb status = %v, want SERVING", got)
	}
}
