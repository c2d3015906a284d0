package cli

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/liarslock/internal/agent"
	"github.com/park285/liarslock/internal/archive"
	"github.com/park285/liarslock/internal/config"
	"github.com/park285/liarslock/internal/match"
	"github.com/park285/liarslock/internal/metrics"
	"github.com/park285/liarslock/internal/obslog"
	"github.com/park285/liarslock/internal/store"
)

// backends are the stateful collaborators shared by serve and sweep.
type backends struct {
	store    store.Store
	archive  archive.Archive
	engine   *match.Engine
	registry *agent.Registry
}

// openBackends connects Redis and Postgres when configured and falls back
// to the in-process implementations otherwise.
func openBackends(ctx context.Context, cfg *config.AppConfig) (*backends, error) {
	log := obslog.L()
	b := &backends{}

	storeOpts := []store.Option{
		store.WithMaxRetries(cfg.MaxTxRetries),
		store.WithKeyPrefix(cfg.KeyPrefix),
		store.WithConflictObserver(metrics.ObserveConflict),
	}
	if cfg.RedisURL != "" {
		st, err := store.OpenRedis(ctx, cfg.RedisURL, storeOpts...)
		if err != nil {
			return nil, err
		}
		b.store = st
		log.Info("store_ready", zap.String("kind", "redis"))
	} else {
		b.store = store.NewMemoryStore()
		log.Warn("store_ready", zap.String("kind", "memory"))
	}

	if cfg.DatabaseURL != "" {
		pg, err := archive.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = b.store.Close()
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			_ = b.store.Close()
			return nil, err
		}
		b.archive = pg
		log.Info("archive_ready", zap.String("kind", "postgres"))
	} else {
		b.archive = archive.NewMemory()
		log.Warn("archive_ready", zap.String("kind", "memory"))
	}

	b.engine = match.NewEngine(b.store,
		match.WithPhaseTimeout(cfg.PhaseTimeout),
		match.WithResultSink(b.archive),
	)
	b.registry = agent.NewRegistry(b.store)
	return b, nil
}

func (b *backends) Close() error {
	return errors.Join(b.archive.Close(), b.store.Close())
}
