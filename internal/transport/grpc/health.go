// Package grpc exposes the cart readiness through the standard gRPC health service.
package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the cart.
const ServiceName = "gomarketplace.cart"

// Health reports NOT_SERVING until the cart is loaded, SERVING afterwards
// and NOT_SERVING again once shutdown starts.
type Health struct {
	server *health.Server
	logger *slog.Logger
}

func NewHealth(logger *slog.Logger) *Health {
	s := health.NewServer()
	s.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Health{server: s, logger: logger.With("component", "grpc-health")}
}

// Register adds the health service to a gRPC server.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Watch flips the status to SERVING when ready is closed and to NOT_SERVING when ctx is done.
// It returns after ctx is done.
func (h *Health) Watch(ctx context.Context, ready <-chan struct{}) {
	select {
	case <-ready:
		h.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		h.server.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		h.logger.InfoContext(ctx, "Cart is serving")
	case <-ctx.Done():
	}
	<-ctx.Done()
	h.Shutdown()
}

// Shutdown sets every service to NOT_SERVING. Later status updates are ignored.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}
