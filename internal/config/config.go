// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Refresh token backends accepted by REFRESH_STORE.
const (
	RefreshStoreAuto     = "auto"
	RefreshStorePostgres = "postgres"
	RefreshStoreRedis    = "redis"
	RefreshStoreMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the REST API listens on (e.g. :8081).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health service listens on (e.g. :9091).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty means in-memory users and refresh tokens.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL enables the Redis refresh store and the Redis Stream event publisher (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`
	// RefreshStore selects the refresh token backend: auto, postgres, redis or memory.
	RefreshStore string `mapstructure:"REFRESH_STORE"`
	// JWTSecret is the HMAC signing secret, inline or "file:<path>". At least 32 bytes.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim (e.g. "courier-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// JWTLeeway is the clock skew tolerated on exp/iat. Zero means strict comparison.
	JWTLeeway string `mapstructure:"JWT_LEEWAY"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// MFAIssuer is the issuer label shown in authenticator apps.
	MFAIssuer string `mapstructure:"MFA_ISSUER"`
	// MFASkew is the number of 30s TOTP steps accepted either side of now.
	MFASkew int `mapstructure:"MFA_SKEW"`
	// EventsTopic is the Redis stream and Kafka topic auth events are published to.
	EventsTopic string `mapstructure:"EVENTS_TOPIC"`
	// KafkaBrokers is a comma-separated broker list. Empty disables the Kafka producer.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaGroupID is the consumer group of the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL the event worker pushes to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFile, when set, also writes JSON logs to this path with rotation.
	LogFile string `mapstructure:"LOG_FILE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// SeedDemoUsers seeds alice and bob into the in-memory user store. Must not be true in production.
	SeedDemoUsers bool `mapstructure:"SEED_DEMO_USERS"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}
	if cfg.SeedDemoUsers && cfg.Env == "production" {
		return nil, errors.New("config: SEED_DEMO_USERS must not be true when APP_ENV=production")
	}
	return cfg, nil
}

// LoadWorker loads config for the event worker. JWT_SECRET is not required; KAFKA_BROKERS and LOKI_URL are.
func LoadWorker() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if len(cfg.KafkaBrokersList()) == 0 {
		return nil, errors.New("config: KAFKA_BROKERS must be set")
	}
	if strings.TrimSpace(cfg.LokiURL) == "" {
		return nil, errors.New("config: LOKI_URL must be set")
	}
	return cfg, nil
}

// LoadDatabase loads config for cmd/migrate and cmd/seed. Only DATABASE_URL is required.
func LoadDatabase() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("config: DATABASE_URL must be set; create a .env or set DATABASE_URL")
	}
	return cfg, nil
}

func load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("GRPC_ADDR", ":9091")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REFRESH_STORE", RefreshStoreAuto)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "courier-auth")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("JWT_LEEWAY", "0s")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("MFA_ISSUER", "Courier")
	v.SetDefault("MFA_SKEW", 1)
	v.SetDefault("EVENTS_TOPIC", "courier.auth.events")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_GROUP_ID", "courier-auth-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("SEED_DEMO_USERS", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.MFASkew < 0 || cfg.MFASkew > 10 {
		return nil, errors.New("config: MFA_SKEW must be between 0 and 10")
	}

	cfg.RefreshStore = strings.ToLower(strings.TrimSpace(cfg.RefreshStore))
	switch cfg.RefreshStore {
	case "":
		cfg.RefreshStore = RefreshStoreAuto
	case RefreshStoreAuto, RefreshStoreMemory:
	case RefreshStorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: REFRESH_STORE=postgres requires DATABASE_URL")
		}
	case RefreshStoreRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("config: REFRESH_STORE=redis requires REDIS_URL")
		}
	default:
		return nil, errors.New("config: REFRESH_STORE must be one of auto, postgres, redis, memory")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// Leeway parses JWTLeeway. Returns 0 if unset, invalid or negative.
func (c *Config) Leeway() time.Duration {
	d, err := time.ParseDuration(c.JWTLeeway)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ResolvedRefreshStore returns the concrete backend for RefreshStore, resolving "auto"
// to postgres when a database is configured and memory otherwise.
func (c *Config) ResolvedRefreshStore() string {
	if c.RefreshStore != RefreshStoreAuto && c.RefreshStore != "" {
		return c.RefreshStore
	}
	if c.DatabaseURL != "" {
		return RefreshStorePostgres
	}
	return RefreshStoreMemory
}

// KafkaBrokersList splits KafkaBrokers on commas, dropping empty entries.
func (c *Config) KafkaBrokersList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
