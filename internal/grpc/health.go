package grpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"alumni-service/internal/observability"
)

// GroupsService is the health service name reported for the group policy engine.
const GroupsService = "alumni.groups.v1.GroupService"

const (
	pingTimeout      = 2 * time.Second
	defaultStopGrace = 5 * time.Second
)

// Pinger reports whether the backing database answers.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthServer exposes grpc.health.v1 with status derived from database pings.
type HealthServer struct {
	server   *gogrpc.Server
	health   *health.Server
	db       Pinger
	interval time.Duration

	// stopGrace bounds GracefulStop; open Watch streams never finish on their own.
	stopGrace time.Duration
}

// NewHealthServer builds the gRPC server. interval controls how often the database is probed.
func NewHealthServer(db Pinger, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	server := gogrpc.NewServer(
		gogrpc.StatsHandler(otelgrpc.NewServerHandler()),
		gogrpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(GroupsService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{server: server, health: hs, db: db, interval: interval, stopGrace: defaultStopGrace}
}

// Probe pings the database once and updates the reported status.
func (s *HealthServer) Probe(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.db.PingContext(ctx); err != nil {
		log.Printf("health probe failed: %v", err)
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(GroupsService, status)
	return status
}

// Serve probes the database periodically and serves gRPC on lis until ctx ends.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	s.Probe(ctx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(lis)
	}()
	log.Printf("grpc health server listening at %v", lis.Addr())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.stop()
			return nil
		case err := <-serveErr:
			if err == nil || errors.Is(err, gogrpc.ErrServerStopped) {
				return nil
			}
			return fmt.Errorf("serve gRPC: %w", err)
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// stop drains in-flight RPCs for up to stopGrace, then closes remaining streams.
func (s *HealthServer) stop() {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(s.stopGrace)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		log.Printf("grpc graceful stop timed out after %s, forcing stop", s.stopGrace)
		s.server.Stop()
		<-stopped
	}
}
