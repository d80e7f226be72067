package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/parasfix/betsol/internal/blob/s3"
	"github.com/parasfix/betsol/internal/cache/redis"
	"github.com/parasfix/betsol/internal/config"
	"github.com/parasfix/betsol/internal/crypto"
	"github.com/parasfix/betsol/internal/domain"
	"github.com/parasfix/betsol/internal/notify"
	"github.com/parasfix/betsol/internal/platform/solana"
	"github.com/parasfix/betsol/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	MatchStore    domain.MatchStore
	WagerStore    domain.WagerStore
	TransferStore domain.TransferStore
	AuditStore    domain.AuditStore

	// Caches and coordination
	MatchCache  *redis.MatchCache
	SeenSet     *redis.SeenSet
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Chain access. Chain always reads; it also implements
	// domain.ChainWriter and domain.TreasuryReader when a signer is
	// attached (watch and full modes).
	Chain *solana.Client

	// Cold-storage archiver, nil unless S3 is enabled.
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsSigner reports whether the mode runs the payout engine and therefore
// needs the treasury signing key.
func needsSigner(mode string) bool {
	switch strings.ToLower(mode) {
	case "watch", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MatchStore = postgres.NewMatchStore(pool)
	deps.WagerStore = postgres.NewWagerStore(pool)
	deps.TransferStore = postgres.NewTransferStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.MatchCache = redis.NewMatchCache(redisClient)
	deps.SeenSet = redis.NewSeenSet(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Chain client ---
	chain := solana.NewClient(solana.Config{
		RPCURL:     cfg.Chain.RPCURL,
		Commitment: cfg.Chain.Commitment,
		Timeout:    cfg.Chain.RequestTimeout.Duration,
	}, logger)

	if needsSigner(cfg.Mode) {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawSeed:          cfg.Wallet.Seed,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load treasury key: %w", err)
		}
		signer, err := solana.NewSigner(key)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: treasury signer: %w", err)
		}
		chain = chain.WithSigner(signer)
	}
	deps.Chain = chain

	// --- S3 cold storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.MatchStore,
			deps.WagerStore,
			deps.AuditStore,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
