package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/predictify/marketengine/internal/admin"
	"github.com/predictify/marketengine/internal/archive"
	"github.com/predictify/marketengine/internal/config"
	"github.com/predictify/marketengine/internal/dispute"
	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/engine"
	"github.com/predictify/marketengine/internal/events"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/hostimpl/authn"
	"github.com/predictify/marketengine/internal/hostimpl/clock"
	"github.com/predictify/marketengine/internal/ledger"
	"github.com/predictify/marketengine/internal/market"
	redisclient "github.com/predictify/marketengine/internal/cache/redis"
	"github.com/predictify/marketengine/internal/notify"
	"github.com/predictify/marketengine/internal/oracle"
	"github.com/predictify/marketengine/internal/payout"
	"github.com/predictify/marketengine/internal/resolution"
	"github.com/predictify/marketengine/internal/store/postgres"
	"github.com/predictify/marketengine/internal/store/redistore"
	s3blob "github.com/predictify/marketengine/internal/store/s3blob"
	"github.com/predictify/marketengine/internal/store/sqlitekv"
)

// Dependencies bundles every dependency the application's serve/bootstrap
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	KV       host.KV
	Auth     host.Authenticator
	Clock    host.Clock
	Transfer *postgres.ValueTransfer // non-nil only when storage.backend = "postgres"
	EventLog host.EventLog

	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	Markets  *market.Registry
	Ledger   *ledger.Ledger
	Oracles  *oracle.Adapter
	Resolver *resolution.Engine
	Payouts  *payout.Payout
	Disputes *dispute.Module
	Admins   *admin.Module
	Events   *events.Emitter
	Engine   *engine.Engine

	Archiver *archive.Archiver // nil unless archive.enabled

	Notifier *notify.Notifier
}

// Wire constructs every concrete dependency from cfg and returns them
// together with a cleanup function that releases held resources on
// shutdown, mirroring internal/app/wire.go's Dependencies-plus-cleanup
// shape in the teacher.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	engineCfg, err := cfg.Engine.Domain()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: engine config: %w", err)
	}

	var pgClient *postgres.Client
	switch strings.ToLower(cfg.Storage.Backend) {
	case "postgres":
		pgClient, err = postgres.New(ctx, postgres.ClientConfig{
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

		deps.KV = postgres.NewKVStore(pgClient)
		deps.Transfer = postgres.NewValueTransfer(pgClient)
		deps.EventLog = postgres.NewEventLog(pgClient)
	case "sqlite":
		sqliteStore, err := sqlitekv.Open(cfg.Storage.SQLitePath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = sqliteStore.Close() })
		deps.KV = sqliteStore
		// sqlite mode has no durable value ledger or event log backend of its
		// own; both are Postgres-only concerns in this deployment shape.
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown storage backend %q", cfg.Storage.Backend)
	}

	redisClient, err := redisclient.New(ctx, redisclient.ClientConfig{
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

	redisStore := redistore.New(redisClient.Underlying())
	deps.RateLimiter = redistore.NewRateLimiter(redisClient.Underlying())
	deps.SignalBus = redisStore

	deps.Clock = clock.System{}
	deps.Auth = authn.NewVerifier(deps.KV, cfg.Chain.ID)

	deps.Markets = market.New(deps.KV)
	deps.Oracles = oracle.NewAdapter(deps.KV, engineCfg)
	deps.Resolver = resolution.New(deps.Markets, deps.Oracles, deps.Clock, engineCfg)
	deps.Admins = admin.New(deps.KV, deps.Clock, engineCfg)

	if deps.Transfer != nil {
		deps.Ledger = ledger.New(deps.Markets, deps.Transfer, deps.Clock, engineCfg)
		deps.Payouts = payout.New(deps.Markets, deps.Transfer, deps.Clock, engineCfg, deps.KV)
		deps.Disputes = dispute.New(deps.Markets, deps.Resolver, deps.Transfer, deps.Clock, engineCfg)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	if deps.EventLog != nil {
		deps.Events = events.New(deps.EventLog, deps.SignalBus, deps.Notifier)
	}

	if deps.Ledger != nil && deps.Events != nil {
		deps.Engine = engine.New(
			deps.KV,
			deps.Auth,
			deps.Clock,
			deps.Transfer,
			engineCfg,
			deps.Events,
			deps.Markets,
			deps.Ledger,
			deps.Oracles,
			deps.Resolver,
			deps.Payouts,
			deps.Disputes,
			deps.Admins,
		)
	} else {
		cleanup()
		return nil, nil, fmt.Errorf("wire: engine requires the postgres storage backend (value transfer and event log are postgres-only)")
	}

	if cfg.Archive.Enabled {
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
		deps.Archiver = archive.New(writer, deps.Markets, logger)
	}

	return deps, cleanup, nil
}
