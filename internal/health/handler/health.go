// Package handler serves liveness and readiness over HTTP and keeps the gRPC health service in sync.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status.
const ServiceName = "courier.auth.v1.AuthService"

const defaultCheckTimeout = 2 * time.Second

// Pinger is a dependency whose reachability gates readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RedisPinger adapts a Redis client to Pinger.
type RedisPinger struct {
	Client redis.UniversalClient
}

func (p RedisPinger) PingContext(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}

// StatusSetter is the part of *health.Server (google.golang.org/grpc/health) that Watch drives.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// Server checks named dependencies. Nil pingers are skipped, so an unconfigured DB or Redis is not a failure.
type Server struct {
	pingers map[string]Pinger
	timeout time.Duration
	log     *zap.Logger
}

// NewServer returns a Server over pingers (keyed by dependency name, e.g. "postgres", "redis").
func NewServer(pingers map[string]Pinger, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	checks := make(map[string]Pinger, len(pingers))
	for name, p := range pingers {
		if p != nil {
			checks[name] = p
		}
	}
	return &Server{pingers: checks, timeout: defaultCheckTimeout, log: log}
}

// Check pings every dependency. The result maps dependency name to "ok" or the error text.
func (s *Server) Check(ctx context.Context) (bool, map[string]string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ok := true
	results := make(map[string]string, len(s.pingers))
	for name, p := range s.pingers {
		if err := p.PingContext(ctx); err != nil {
			ok = false
			results[name] = err.Error()
			s.log.Warn("health: dependency check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		results[name] = "ok"
	}
	return ok, results
}

// Liveness handles GET /healthz. It never touches dependencies.
func (s *Server) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz: 200 when every dependency answers, 503 otherwise.
func (s *Server) Readiness(c *gin.Context) {
	ok, checks := s.Check(c.Request.Context())
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

// Sync runs one check and publishes the result to the gRPC health service.
func (s *Server) Sync(ctx context.Context, hs StatusSetter) {
	status := healthpb.HealthCheckResponse_SERVING
	if ok, _ := s.Check(ctx); !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
}

// Watch calls Sync immediately and then every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, hs StatusSetter, interval time.Duration) {
	s.Sync(ctx, hs)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sync(ctx, hs)
		}
	}
}
