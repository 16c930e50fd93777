// seed inserts the demo identities alice (no MFA) and bob (TOTP) into Postgres.
// Idempotent: existing identities are skipped and keep their TOTP secret.
package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/zap"

	"courier-auth/backend/internal/config"
	"courier-auth/backend/internal/db"
	identityrepo "courier-auth/backend/internal/identity/repository"
	"courier-auth/backend/internal/identity/seed"
	"courier-auth/backend/internal/platform/logging"
	"courier-auth/backend/internal/security"
)

func main() {
	cfg, err := config.LoadDatabase()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Env: cfg.Env})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	defer conn.Close()

	results, err := seed.DemoUsers(ctx, identityrepo.NewPostgresRepository(conn), security.NewHasher(cfg.BcryptCost), cfg.MFAIssuer)
	if err != nil {
		logger.Fatal("seed", zap.Error(err))
	}

	for _, r := range results {
		if !r.Created {
			logger.Info("identity exists, skipped", zap.String("username", r.Username))
			continue
		}
		logger.Info("identity created", zap.String("username", r.Username), zap.String("email", r.Email))
		fmt.Printf("Login: %s / %s\n", r.Username, seed.DemoPassword)
		if r.EnrollURL != "" {
			fmt.Printf("  TOTP enrollment for %s: %s\n", r.Username, r.EnrollURL)
		}
	}
}
