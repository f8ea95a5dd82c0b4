// ABOUTME: gRPC health service for load balancers and orchestrators
// ABOUTME: Serving status follows the store's reachability

package gateway

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// RelayServiceName is the health service name reported alongside the overall status
const RelayServiceName = "relay.Relay"

// readinessInterval is how often the store is pinged to refresh health status
const readinessInterval = 10 * time.Second

// newGRPCServer creates a gRPC server exposing grpc.health.v1.
func newGRPCServer() (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(RelayServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)

	return server, hs
}

// checkReadiness pings the store once and updates the health status.
func (g *Gateway) checkReadiness(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, g.config.Database.Timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("store ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(RelayServiceName, status)
	return status
}

// watchReadiness refreshes the health status until ctx is done.
func (g *Gateway) watchReadiness(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.checkReadiness(ctx)
	for {
		select {
		case <-ticker.C:
			g.checkReadiness(ctx)
		case <-ctx.Done():
			return
		}
	}
}
