package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/outcomebet/paribet/internal/blob/s3"
	"github.com/outcomebet/paribet/internal/cache/redis"
	"github.com/outcomebet/paribet/internal/config"
	"github.com/outcomebet/paribet/internal/custody"
	"github.com/outcomebet/paribet/internal/domain"
	"github.com/outcomebet/paribet/internal/ledger"
	"github.com/outcomebet/paribet/internal/notify"
	"github.com/outcomebet/paribet/internal/service"
	"github.com/outcomebet/paribet/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Treasury domain.Treasury
	Bank     *custody.Bank // non-nil only with the bank backend

	Service *service.LedgerService

	// Caches (nil without Redis)
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	Streams     domain.StreamReader

	// Blob storage (nil unless S3 is enabled)
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require the journal.
func needsPostgres(mode string) bool {
	return mode == "serve"
}

// needsRedis returns true for modes that require the cache and signal bus.
func needsRedis(mode string) bool {
	return mode == "serve"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Treasury ---
	switch cfg.Custody.Backend {
	case "erc20":
		key, err := custody.LoadOperatorKey(custody.KeyConfig{
			RawPrivateKey:    cfg.Custody.PrivateKey,
			EncryptedKeyPath: cfg.Custody.EncryptedKeyPath,
			KeyPassword:      cfg.Custody.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}

		treasury, err := custody.NewERC20Treasury(ctx, custody.ERC20Config{
			RPCURL:      cfg.Custody.RPCURL,
			ChainID:     cfg.Custody.ChainID,
			Token:       cfg.Custody.Token,
			Custodian:   cfg.Custody.Custodian,
			OperatorKey: key,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: erc20 treasury: %w", err)
		}
		closers = append(closers, treasury.Close)
		deps.Treasury = treasury

	default: // "bank"
		bank := custody.NewBank(cfg.Custody.OpeningBalance)
		deps.Bank = bank
		deps.Treasury = bank
	}

	// --- PostgreSQL journal ---
	var (
		marketStore domain.MarketStore
		betStore    domain.BetStore
		payoutStore domain.PayoutStore
		stateStore  domain.StateStore
	)
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		marketStore = postgres.NewMarketStore(pool)
		betStore = postgres.NewBetStore(pool)
		payoutStore = postgres.NewPayoutStore(pool)
		stateStore = postgres.NewStateStore(pool)
	}

	// --- Redis ---
	if needsRedis(cfg.Mode) {
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

		deps.MarketCache = redis.NewMarketCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		bus := redis.NewSignalBus(redisClient)
		deps.SignalBus = bus
		deps.Streams = bus
	}

	// --- S3 settlement archive ---
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

		writer := s3blob.NewWriter(s3Client)
		deps.BlobWriter = writer
		deps.Archiver = s3blob.NewArchiver(writer, marketStore, betStore)
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

	// --- Core and service facade ---
	core, err := ledger.New(ledger.Config{
		Admin:          cfg.Ledger.Admin,
		Treasury:       deps.Treasury,
		PlatformFeeBps: cfg.Ledger.PlatformFeeBps,
		MinStake:       cfg.Ledger.MinStake,
		MinDuration:    cfg.Ledger.MinDuration,
		FeeRecipient:   cfg.Ledger.FeeRecipient,
		Logger:         logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}

	svcDeps := service.Deps{
		Markets: marketStore,
		Bets:    betStore,
		Payouts: payoutStore,
		State:   stateStore,
		Cache:   deps.MarketCache,
		Bus:     deps.SignalBus,
		Locks:   deps.LockManager,
	}
	if deps.Archiver != nil {
		svcDeps.Archiver = deps.Archiver
	}
	if len(senders) > 0 {
		svcDeps.Notifier = deps.Notifier
	}
	deps.Service = service.NewLedgerService(core, svcDeps, logger)

	// Replay the journal before configuring authorities so a fresh deployment
	// and a restarted one end up identical.
	if err := deps.Service.Restore(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: restore: %w", err)
	}

	for _, account := range cfg.Ledger.Authorities {
		if err := core.AddAuthority(cfg.Ledger.Admin, account); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: add authority %s: %w", account, err)
		}
	}

	return deps, cleanup, nil
}
