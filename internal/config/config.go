// Package config defines the top-level configuration for the wagering
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BETSOL_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	Limits   LimitsConfig   `toml:"limits"`
	Observer ObserverConfig `toml:"observer"`
	Payout   PayoutConfig   `toml:"payout"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds the settlement network RPC parameters.
type ChainConfig struct {
	RPCURL           string   `toml:"rpc_url"`
	Commitment       string   `toml:"commitment"`
	ReceivingAddress string   `toml:"receiving_address"`
	RequestTimeout   duration `toml:"request_timeout"`
}

// WalletConfig holds the treasury signing key source.
type WalletConfig struct {
	Seed             string `toml:"seed"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// LimitsConfig bounds wager intake.
type LimitsConfig struct {
	// MinStake and MaxStake are the inclusive stake bounds in SOL, as
	// decimal strings.
	MinStake string `toml:"min_stake"`
	MaxStake string `toml:"max_stake"`
	// TolerancePct and ToleranceMin define the deposit-matching tolerance
	// ε = max(stake × pct, min).
	TolerancePct string `toml:"tolerance_pct"`
	ToleranceMin string `toml:"tolerance_min"`
	// RateLimit wagers per RateWindow per user handle; 0 disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// ObserverConfig holds deposit polling parameters.
type ObserverConfig struct {
	PollInterval duration `toml:"poll_interval"`
	// Lookback is how many recent transfers each poll requests. It must be
	// large enough to cover burst traffic between two polls.
	Lookback int `toml:"lookback"`
}

// PayoutConfig holds payout engine parameters.
type PayoutConfig struct {
	Interval     duration `toml:"interval"`
	MaxAttempts  int      `toml:"max_attempts"`
	InitialDelay duration `toml:"initial_delay"`
	MaxDelay     duration `toml:"max_delay"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds cold-storage export parameters.
type ArchiveConfig struct {
	Interval  duration `toml:"interval"`
	Retention duration `toml:"retention"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	AdminToken  string   `toml:"admin_token"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit caps API requests per client IP per RateWindow; 0 disables
	// HTTP-level limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:         "https://api.devnet.solana.com",
			Commitment:     "confirmed",
			RequestTimeout: duration{15 * time.Second},
		},
		Limits: LimitsConfig{
			MinStake:     "0.01",
			MaxStake:     "1.0",
			TolerancePct: "0.01",
			ToleranceMin: "0.001",
			RateLimit:    10,
			RateWindow:   duration{time.Minute},
		},
		Observer: ObserverConfig{
			PollInterval: duration{8 * time.Second},
			Lookback:     20,
		},
		Payout: PayoutConfig{
			Interval:     duration{30 * time.Second},
			MaxAttempts:  3,
			InitialDelay: duration{time.Second},
			MaxDelay:     duration{30 * time.Second},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "betsol",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "betsol-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval:  duration{24 * time.Hour},
			Retention: duration{30 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"deposit_unmatched", "deposit_ambiguous", "match_settled", "payout_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"watch": true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// needsSigner reports whether the mode runs the payout engine and therefore
// needs the treasury key.
func (c *Config) needsSigner() bool {
	mode := strings.ToLower(c.Mode)
	return mode == "watch" || mode == "full"
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, watch, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ReceivingAddress == "" && c.needsSigner() {
		errs = append(errs, "chain: receiving_address is required for mode "+c.Mode)
	}
	if c.Chain.RequestTimeout.Duration <= 0 {
		errs = append(errs, "chain: request_timeout must be positive")
	}

	// Wallet: the payout engine needs a key source.
	if c.needsSigner() {
		if c.Wallet.Seed == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either seed or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Limits
	if c.Limits.MinStake == "" || c.Limits.MaxStake == "" {
		errs = append(errs, "limits: min_stake and max_stake must not be empty")
	}
	if c.Limits.RateLimit > 0 && c.Limits.RateWindow.Duration <= 0 {
		errs = append(errs, "limits: rate_window must be positive when rate_limit is set")
	}

	// Observer
	if c.Observer.PollInterval.Duration <= 0 {
		errs = append(errs, "observer: poll_interval must be positive")
	}
	if c.Observer.Lookback < 1 {
		errs = append(errs, "observer: lookback must be >= 1")
	}

	// Payout
	if c.Payout.MaxAttempts < 1 {
		errs = append(errs, "payout: max_attempts must be >= 1")
	}
	if c.Payout.Interval.Duration <= 0 {
		errs = append(errs, "payout: interval must be positive")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.Archive.Retention.Duration <= 0 {
			errs = append(errs, "archive: retention must be positive when s3 is enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
