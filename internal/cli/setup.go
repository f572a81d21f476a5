package cli

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/plantops/shopcore/internal/actions"
	"github.com/plantops/shopcore/internal/engine"
	"github.com/plantops/shopcore/internal/store"
)

// openStore opens the configured backing store. Postgres wins when both a
// DSN and a sqlite path are set.
func openStore(ctx context.Context, opts *RootOptions) (store.Store, error) {
	if opts.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "connecting to postgres", err)
		}
		st, err := store.NewPGStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, WrapExitError(ExitCommandError, "initializing postgres store", err)
		}
		return st, nil
	}
	st, err := store.OpenSQLite(opts.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening sqlite store", err)
	}
	return st, nil
}

// buildEngine wires the store, dispatcher, and optional Redis ledger into
// an evaluation engine.
func buildEngine(ctx context.Context, opts *RootOptions, st store.Store) (*engine.Engine, error) {
	dispatcher := actions.NewDispatcher(st, engine.SystemClock{}, engine.UUIDGenerator{})

	engOpts := []engine.Option{engine.WithCapacityHours(opts.CapacityHours)}
	if opts.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		ledger, err := store.NewRedisLedger(ctx, client, "")
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "connecting to redis ledger", err)
		}
		engOpts = append(engOpts, engine.WithLedger(ledger))
	}
	return engine.New(st, dispatcher, engOpts...), nil
}
