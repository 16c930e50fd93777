package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"courier-auth/backend/internal/security"
	"courier-auth/backend/internal/server/interceptors"
)

// publicMethods do not require a bearer token.
var publicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewGRPCServer returns a gRPC server instrumented with otelgrpc, with request logging and
// bearer auth interceptors, serving grpc.health.v1.Health. The returned health server
// starts NOT_SERVING until a health check updates it.
func NewGRPCServer(tokens *security.TokenIssuer, log *zap.Logger) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(log, publicMethods),
			interceptors.AuthUnary(tokens, publicMethods),
		),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
