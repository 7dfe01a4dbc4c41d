// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for the hot store and the credential/token store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; signs access tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; verifies access tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "events-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "events-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "30m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "720h" = 30d).
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// ClickHouseURL is the base URL of the ClickHouse HTTP interface (e.g. http://localhost:8123).
	ClickHouseURL string `mapstructure:"CLICKHOUSE_URL"`
	// ClickHouseDB is the ClickHouse database holding the cold tables (default events).
	ClickHouseDB string `mapstructure:"CLICKHOUSE_DB"`
	// ClickHouseUser and ClickHousePassword are optional basic-auth credentials.
	ClickHouseUser     string `mapstructure:"CLICKHOUSE_USER"`
	ClickHousePassword string `mapstructure:"CLICKHOUSE_PASSWORD"`

	// HotRetentionDays is how long events stay in the hot store before archival (default 7).
	HotRetentionDays int `mapstructure:"HOT_RETENTION_DAYS"`
	// MaxArchiveAgeDays bounds how far back an archival run scans (default 30).
	MaxArchiveAgeDays int `mapstructure:"MAX_ARCHIVE_AGE_DAYS"`
	// ArchiveBatchSize is the number of events moved per batch (default 1000).
	ArchiveBatchSize int `mapstructure:"ARCHIVE_BATCH_SIZE"`
	// ArchiveInterval is how often the archiver daemon runs (e.g. "1h").
	ArchiveInterval string `mapstructure:"ARCHIVE_INTERVAL"`
	// ArchiveBatchDelay is the pause between archival batches (e.g. "100ms").
	// Bounds hot store load during large backfills.
	ArchiveBatchDelay string `mapstructure:"ARCHIVE_BATCH_DELAY"`

	// RateLimitPerIP is the ingestion/query rate limit in limiter format ("1000-M"). Empty disables.
	RateLimitPerIP string `mapstructure:"RATE_LIMIT_PER_IP"`

	// StreamKafkaBrokers is a comma-separated list of Kafka broker addresses.
	// When set, accepted events are mirrored to Kafka best-effort.
	StreamKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// StreamKafkaTopic is the Kafka topic for the event stream (default events-ingested).
	StreamKafkaTopic string `mapstructure:"STREAM_KAFKA_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables tracing/metrics export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "events-auth")
	v.SetDefault("JWT_AUDIENCE", "events-api")
	v.SetDefault("JWT_ACCESS_TTL", "30m")
	v.SetDefault("JWT_REFRESH_TTL", "720h") // 30d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("CLICKHOUSE_URL", "http://localhost:8123")
	v.SetDefault("CLICKHOUSE_DB", "events")
	v.SetDefault("CLICKHOUSE_USER", "")
	v.SetDefault("CLICKHOUSE_PASSWORD", "")
	v.SetDefault("HOT_RETENTION_DAYS", 7)
	v.SetDefault("MAX_ARCHIVE_AGE_DAYS", 30)
	v.SetDefault("ARCHIVE_BATCH_SIZE", 1000)
	v.SetDefault("ARCHIVE_INTERVAL", "1h")
	v.SetDefault("ARCHIVE_BATCH_DELAY", "100ms")
	v.SetDefault("RATE_LIMIT_PER_IP", "1000-M")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("STREAM_KAFKA_TOPIC", "events-ingested")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

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
	if cfg.HotRetentionDays <= 0 {
		return nil, errors.New("config: HOT_RETENTION_DAYS must be positive")
	}
	if cfg.MaxArchiveAgeDays <= cfg.HotRetentionDays {
		return nil, errors.New("config: MAX_ARCHIVE_AGE_DAYS must be greater than HOT_RETENTION_DAYS")
	}
	if cfg.ArchiveBatchSize <= 0 {
		return nil, errors.New("config: ARCHIVE_BATCH_SIZE must be positive")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 30m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// ArchiveIntervalDuration parses ArchiveInterval. Returns 1h if unset or invalid.
func (c *Config) ArchiveIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.ArchiveInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// ArchiveBatchDelayDuration parses ArchiveBatchDelay as a time.Duration.
// Returns 100ms if unset or invalid.
func (c *Config) ArchiveBatchDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.ArchiveBatchDelay)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// StreamKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the event stream is enabled (non-empty list) and to create the producer.
func (c *Config) StreamKafkaBrokersList() []string {
	if c == nil || c.StreamKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.StreamKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
