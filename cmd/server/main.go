// Server runs the courier auth REST API on HTTP_ADDR and the gRPC health service on GRPC_ADDR.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"courier-auth/backend/internal/audit"
	auditrepo "courier-auth/backend/internal/audit/repository"
	"courier-auth/backend/internal/config"
	"courier-auth/backend/internal/db"
	healthhandler "courier-auth/backend/internal/health/handler"
	identityhandler "courier-auth/backend/internal/identity/handler"
	identityrepo "courier-auth/backend/internal/identity/repository"
	"courier-auth/backend/internal/identity/seed"
	"courier-auth/backend/internal/identity/service"
	"courier-auth/backend/internal/mfa"
	"courier-auth/backend/internal/platform/logging"
	"courier-auth/backend/internal/refreshtoken"
	refreshrepo "courier-auth/backend/internal/refreshtoken/repository"
	"courier-auth/backend/internal/security"
	"courier-auth/backend/internal/server"
	"courier-auth/backend/internal/server/interceptors"
	"courier-auth/backend/internal/telemetry"
	telemetryotel "courier-auth/backend/internal/telemetry/otel"
	"courier-auth/backend/internal/telemetry/producer"
)

const (
	serviceName         = "courier-auth"
	healthCheckInterval = 10 * time.Second
	shutdownTimeout     = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Env: cfg.Env, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()

	var conn *sql.DB
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer conn.Close()
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	hasher := security.NewHasher(cfg.BcryptCost)

	var identities identityrepo.Repository
	if conn != nil {
		identities = identityrepo.NewPostgresRepository(conn)
	} else {
		identities = identityrepo.NewMemoryRepository()
		logger.Warn("DATABASE_URL not set; identities are held in memory")
	}
	if cfg.SeedDemoUsers {
		results, err := seed.DemoUsers(ctx, identities, hasher, cfg.MFAIssuer)
		if err != nil {
			return err
		}
		logDemoIdentities(logger, results)
	}

	var refreshRepo refreshrepo.Repository
	switch cfg.ResolvedRefreshStore() {
	case config.RefreshStorePostgres:
		refreshRepo = refreshrepo.NewPostgresRepository(conn)
	case config.RefreshStoreRedis:
		refreshRepo = refreshrepo.NewRedisRepository(rdb, "")
	default:
		refreshRepo = refreshrepo.NewMemoryRepository()
	}
	logger.Info("refresh token store", zap.String("backend", cfg.ResolvedRefreshStore()))

	var auditRepo auditrepo.Repository = auditrepo.NewZapRepository(logger)
	if conn != nil {
		auditRepo = auditrepo.NewPostgresRepository(conn)
	}
	auditLogger := audit.NewLogger(auditRepo, interceptors.ClientIP, logger)

	events, closeEvents, err := buildEmitter(cfg, rdb, providers, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	secret, err := security.LoadSecret(cfg.JWTSecret)
	if err != nil {
		return err
	}
	tokens, err := security.NewTokenIssuer(secret, cfg.JWTIssuer, cfg.AccessTTL(), cfg.Leeway())
	if err != nil {
		return err
	}
	verifier, err := service.NewCredentialVerifier(ctx, identities, hasher)
	if err != nil {
		return err
	}
	metrics, err := telemetryotel.NewAuthMetrics(providers.MeterProvider)
	if err != nil {
		return err
	}
	authSvc, err := service.NewAuthService(service.Deps{
		Identities: identities,
		Verifier:   verifier,
		Gate:       mfa.NewGate(uint(cfg.MFASkew)),
		Tokens:     tokens,
		Refresh:    refreshtoken.NewStore(refreshRepo, cfg.RefreshTTL()),
		Audit:      auditLogger,
		Events:     events,
		Metrics:    metrics,
		Log:        logger,
	})
	if err != nil {
		return err
	}

	pingers := map[string]healthhandler.Pinger{}
	if conn != nil {
		pingers["postgres"] = conn
	}
	if rdb != nil {
		pingers["redis"] = healthhandler.RedisPinger{Client: rdb}
	}
	health := healthhandler.NewServer(pingers, logger)

	router := server.NewRouter(server.RouterDeps{
		Auth:   identityhandler.NewAuthHandler(authSvc, logger),
		Tokens: tokens,
		Health: health,
		Log:    logger,
	})
	httpSrv := server.NewHTTPServer(cfg.HTTPAddr, server.Handler(router))

	grpcSrv, hs := server.NewGRPCServer(tokens, logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go health.Watch(ctx, hs, healthCheckInterval)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()

	drainCtx, drainCancel := context.WithTimeout(shutdownCtx, telemetry.ShutdownDrainDuration)
	if err := events.Wait(drainCtx); err != nil {
		logger.Warn("event drain incomplete", zap.Error(err))
	}
	drainCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
	logger.Info("stopped")
	return serveErr
}

// buildEmitter fans events out to every configured sink (Redis stream, Kafka, OTel logs)
// and makes emission asynchronous. The returned func closes the producers.
func buildEmitter(cfg *config.Config, rdb *redis.Client, providers *telemetryotel.Providers, logger *zap.Logger) (*telemetry.Async, func(), error) {
	var (
		sinks     telemetry.Multi
		producers []producer.Producer
	)
	if rdb != nil {
		p, err := producer.NewRedisStreamProducer(rdb, cfg.EventsTopic, nil)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, p)
		producers = append(producers, p)
	}
	kp, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.EventsTopic, logger)
	if err != nil {
		return nil, nil, err
	}
	if kp != nil {
		sinks = append(sinks, kp)
		producers = append(producers, kp)
	}
	sinks = append(sinks, telemetryotel.NewEventEmitter(providers.LoggerProvider))

	closeAll := func() {
		for _, p := range producers {
			if err := p.Close(); err != nil {
				logger.Warn("close event producer", zap.Error(err))
			}
		}
	}
	return telemetry.NewAsync(sinks, logger), closeAll, nil
}

// logDemoIdentities reports seeded identities. The TOTP enrollment URL is only known on
// creation, so it is logged then or never.
func logDemoIdentities(logger *zap.Logger, results []seed.Result) {
	for _, r := range results {
		fields := []zap.Field{zap.String("username", r.Username), zap.Bool("created", r.Created)}
		if r.EnrollURL != "" {
			fields = append(fields, zap.String("totp_enroll_url", r.EnrollURL))
		}
		logger.Info("demo identity", fields...)
	}
}
