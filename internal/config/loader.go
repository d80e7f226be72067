package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BETSOL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BETSOL_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "BETSOL_CHAIN_RPC_URL")
	setStr(&cfg.Chain.Commitment, "BETSOL_CHAIN_COMMITMENT")
	setStr(&cfg.Chain.ReceivingAddress, "BETSOL_CHAIN_RECEIVING_ADDRESS")
	setDuration(&cfg.Chain.RequestTimeout, "BETSOL_CHAIN_REQUEST_TIMEOUT")

	// ── Wallet ──
	setStr(&cfg.Wallet.Seed, "BETSOL_WALLET_SEED")
	setStr(&cfg.Wallet.EncryptedKeyPath, "BETSOL_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "BETSOL_WALLET_KEY_PASSWORD")

	// ── Limits ──
	setStr(&cfg.Limits.MinStake, "BETSOL_LIMITS_MIN_STAKE")
	setStr(&cfg.Limits.MaxStake, "BETSOL_LIMITS_MAX_STAKE")
	setStr(&cfg.Limits.TolerancePct, "BETSOL_LIMITS_TOLERANCE_PCT")
	setStr(&cfg.Limits.ToleranceMin, "BETSOL_LIMITS_TOLERANCE_MIN")
	setInt(&cfg.Limits.RateLimit, "BETSOL_LIMITS_RATE_LIMIT")
	setDuration(&cfg.Limits.RateWindow, "BETSOL_LIMITS_RATE_WINDOW")

	// ── Observer ──
	setDuration(&cfg.Observer.PollInterval, "BETSOL_OBSERVER_POLL_INTERVAL")
	setInt(&cfg.Observer.Lookback, "BETSOL_OBSERVER_LOOKBACK")

	// ── Payout ──
	setDuration(&cfg.Payout.Interval, "BETSOL_PAYOUT_INTERVAL")
	setInt(&cfg.Payout.MaxAttempts, "BETSOL_PAYOUT_MAX_ATTEMPTS")
	setDuration(&cfg.Payout.InitialDelay, "BETSOL_PAYOUT_INITIAL_DELAY")
	setDuration(&cfg.Payout.MaxDelay, "BETSOL_PAYOUT_MAX_DELAY")

	// ── Database ──
	setStr(&cfg.Database.DSN, "BETSOL_DATABASE_DSN")
	setStr(&cfg.Database.Host, "BETSOL_DATABASE_HOST")
	setInt(&cfg.Database.Port, "BETSOL_DATABASE_PORT")
	setStr(&cfg.Database.Database, "BETSOL_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "BETSOL_DATABASE_USER")
	setStr(&cfg.Database.Password, "BETSOL_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "BETSOL_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "BETSOL_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "BETSOL_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "BETSOL_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BETSOL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BETSOL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BETSOL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BETSOL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BETSOL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BETSOL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BETSOL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BETSOL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BETSOL_S3_REGION")
	setStr(&cfg.S3.Bucket, "BETSOL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BETSOL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BETSOL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BETSOL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BETSOL_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setDuration(&cfg.Archive.Interval, "BETSOL_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.Retention, "BETSOL_ARCHIVE_RETENTION")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BETSOL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BETSOL_SERVER_PORT")
	setStr(&cfg.Server.AdminToken, "BETSOL_SERVER_ADMIN_TOKEN")
	setStringSlice(&cfg.Server.CORSOrigins, "BETSOL_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "BETSOL_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "BETSOL_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BETSOL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BETSOL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BETSOL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BETSOL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BETSOL_MODE")
	setStr(&cfg.LogLevel, "BETSOL_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
