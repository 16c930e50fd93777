// migrate applies the embedded SQL migrations (users, refresh_tokens, audit_logs).
// Usage: go run ./cmd/migrate -direction up [-steps N]
package main

import (
	"flag"
	"fmt"
	"os"

	"courier-auth/backend/internal/config"
	"courier-auth/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", migrate.Up, "Migration direction: up or down")
	steps := flag.Int("steps", 0, "Number of migrations to apply; 0 applies all")
	flag.Parse()

	cfg, err := config.LoadDatabase()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction, *steps); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}

	version, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: version:", err)
		os.Exit(1)
	}
	fmt.Printf("schema version %d (dirty=%t)\n", version, dirty)
}
