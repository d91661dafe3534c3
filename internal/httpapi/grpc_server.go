package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"quoteguard.org/internal/obs"
)

// HealthServer answers the standard grpc.health.v1 protocol from the same
// readiness probe as /readyz, so load balancers can use either port.
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer

	readiness ReadinessChecker
}

// NewHealthServer wraps a readiness probe. A nil probe always reports SERVING.
func NewHealthServer(r ReadinessChecker) *HealthServer {
	if r == nil {
		r = ReadyProbe{}
	}
	return &HealthServer{readiness: r}
}

// Check reports SERVING for the empty service name and for quoteguard-api.
func (s *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != serviceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		return nil, status.Errorf(codes.Unavailable, "not ready: %v", err)
	}
	obs.SetReady(true)
	return &grpc_health_v1.HealthCheckResponse{
		Status: grpc_health_v1.HealthCheckResponse_SERVING,
	}, nil
}

// NewGRPCServer returns a server with the health service registered.
func NewGRPCServer(r ReadinessChecker, log *zap.Logger) *grpc.Server {
	if log == nil {
		log = obs.Logger()
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(log)))
	grpc_health_v1.RegisterHealthServer(srv, NewHealthServer(r))
	return srv
}

func unaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Info("grpc_complete",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return resp, err
	}
}
