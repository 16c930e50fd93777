// Package server builds the HTTP (gin) and gRPC servers and their middleware.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	healthhandler "courier-auth/backend/internal/health/handler"
	identityhandler "courier-auth/backend/internal/identity/handler"
	"courier-auth/backend/internal/security"
	"courier-auth/backend/internal/server/interceptors"
)

// TraceIDHeader is set on every response that carries a sampled trace.
const TraceIDHeader = "X-Trace-ID"

// Auth routes are served under both prefixes.
var authPrefixes = []string{"/auth", "/api/v1/auth"}

// RouterDeps holds what NewRouter mounts. Health may be nil.
type RouterDeps struct {
	Auth   *identityhandler.AuthHandler
	Tokens *security.TokenIssuer
	Health *healthhandler.Server
	Log    *zap.Logger
}

// NewRouter returns the gin engine with recovery, request logging, client IP capture,
// health probes and the auth routes.
func NewRouter(d RouterDeps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), ClientIP(), RequestLogger(log))

	if d.Health != nil {
		r.GET("/healthz", d.Health.Liveness)
		r.GET("/readyz", d.Health.Readiness)
	}
	if d.Auth != nil {
		requireAuth := identityhandler.BearerAuth(d.Tokens)
		for _, prefix := range authPrefixes {
			d.Auth.Register(r.Group(prefix), requireAuth)
		}
	}
	return r
}

// Handler wraps h with OpenTelemetry HTTP instrumentation and the X-Trace-ID response header.
func Handler(h http.Handler, opts ...otelhttp.Option) http.Handler {
	opts = append([]otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
	}, opts...)
	return otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			w.Header().Set(TraceIDHeader, sc.TraceID().String())
		}
		h.ServeHTTP(w, r)
	}), "http.request", opts...)
}

// NewHTTPServer returns an http.Server for addr with conservative timeouts.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ClientIP stores gin's view of the client IP in the request context for audit and events.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(interceptors.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// RequestLogger logs method, path, status and latency of every request except health probes.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/readyz" {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("http request", fields...)
			return
		}
		log.Info("http request", fields...)
	}
}
