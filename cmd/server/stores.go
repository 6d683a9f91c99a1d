package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	actservice "credence/internal/activity/service"
	actstore "credence/internal/activity/store"
	credstore "credence/internal/credential/store"
	"credence/internal/delivery"
	deliverystore "credence/internal/delivery/store"
	"credence/internal/events/outbox"
	"credence/internal/ledger"
	ledgerstore "credence/internal/ledger/store"
	"credence/internal/platform/config"
	"credence/internal/platform/postgres"
	"credence/internal/ratelimit"
	redisplatform "credence/internal/platform/redis"
	audit "credence/pkg/platform/audit"
	auditmemory "credence/pkg/platform/audit/store/memory"
	auditpostgres "credence/pkg/platform/audit/store/postgres"
	"credence/pkg/platform/tx"
)

type activityStore interface {
	actservice.ActivityStore
	ledger.KeyLister
}

// stores is the persistence layer for one process. Postgres and memory
// implementations share the same interfaces.
type stores struct {
	activities  activityStore
	records     ledger.Store
	outbox      outbox.Store
	credentials credstore.Store
	deadLetters delivery.DeadLetterStore
	processed   delivery.ProcessedStore
	audit       audit.Store
	limits      ratelimit.Store
	tx          tx.Runner

	ready   map[string]func(context.Context) error
	closers []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	s := &stores{ready: map[string]func(context.Context) error{}}

	if cfg.Database.URL == "" {
		logger.Warn("database url not set, using in-memory stores")
		s.activities = actstore.NewInMemoryStore()
		s.records = ledgerstore.NewInMemoryStore()
		s.outbox = outbox.NewInMemoryStore()
		s.credentials = credstore.NewInMemoryStore()
		s.deadLetters = deliverystore.NewInMemoryStore()
		s.audit = auditmemory.NewInMemoryStore()
		s.tx = tx.NewKeyedRunner(cfg.Verify.TransitionTimeout)
	} else {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			s.Close()
			return nil, err
		}
		s.usePostgres(db, cfg)
		s.ready["postgres"] = db.PingContext
		logger.Info("postgres stores ready")
	}

	client, err := redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	if client == nil {
		s.processed = delivery.NewInMemoryProcessed(cfg.Delivery.ProcessedTTL)
		s.limits = ratelimit.NewInMemoryStore()
	} else {
		s.closers = append(s.closers, client.Close)
		s.processed = delivery.NewRedisProcessed(client.Client, cfg.Delivery.ProcessedTTL)
		s.limits = ratelimit.NewRedisStore(client.Client)
		s.ready["redis"] = client.Health
		logger.Info("redis idempotency markers and rate limits ready")
	}
	return s, nil
}

func (s *stores) usePostgres(db *sql.DB, cfg config.Config) {
	s.activities = actstore.NewPostgres(db)
	s.records = ledgerstore.NewPostgres(db)
	s.outbox = outbox.NewPostgres(db)
	s.credentials = credstore.NewPostgres(db)
	s.deadLetters = deliverystore.NewPostgres(db)
	s.audit = auditpostgres.New(db)
	s.tx = postgres.NewTxRunner(db, cfg.Verify.TransitionTimeout)
}
