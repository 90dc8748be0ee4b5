// Package bootstrap opens the store and approval locker selected by config.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fuel-ledger/internal/config"
	"fuel-ledger/internal/core"
	"fuel-ledger/internal/db"
	"fuel-ledger/internal/lock"
	"fuel-ledger/internal/store/memory"
	"fuel-ledger/internal/store/postgres"
)

const redisConnectTimeout = 30 * time.Second

// Deps are the long-lived resources shared by the binaries.
type Deps struct {
	Store   core.Store
	Locker  core.Locker
	closers []func()
}

// Close releases everything Open acquired, in reverse order.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// Open connects the configured store and locker. Without REDIS_ADDR approvals
// are serialised in-process only.
func Open(ctx context.Context, cfg config.Config, log *logrus.Entry) (*Deps, error) {
	deps := &Deps{}

	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store, data is lost on exit")
		deps.Store = memory.New()
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		deps.closers = append(deps.closers, pool.Close)
		deps.Store = postgres.New(pool, log)
	}

	if cfg.RedisAddr == "" {
		deps.Locker = core.NewLocalLocker(cfg.ApprovalLockTTL)
		return deps, nil
	}

	redisCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	rdb, err := config.ConnectRedis(redisCtx, cfg.RedisAddr)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.closers = append(deps.closers, func() { _ = rdb.Close() })
	deps.Locker = lock.NewRedisLocker(rdb, cfg.ApprovalLockTTL)
	log.WithField("addr", cfg.RedisAddr).Info("approval locks held in redis")
	return deps, nil
}
