package interceptors

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor that logs each RPC with its status code,
// duration and client IP. Methods in skipMethods are not logged (e.g. health probes).
func LoggingUnary(log *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", ClientIP(ctx)),
		}
		if err != nil {
			log.Warn("grpc request failed", append(fields, zap.Error(err))...)
			return resp, err
		}
		log.Info("grpc request", fields...)
		return resp, err
	}
}
