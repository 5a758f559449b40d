package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// AdvisoryLocker serializes work per key across every process sharing the
// database by holding a session-level advisory lock on a dedicated pooled
// connection until the returned unlock func runs.
//
// At most maxHolders connections are tied up in locks at once, so the
// holder's own queries always find a free connection. Waiting for a lock
// is bounded by the wait timeout.
type AdvisoryLocker struct {
	pool    *pgxpool.Pool
	holders *semaphore.Weighted
	wait    time.Duration
}

func NewAdvisoryLocker(pool *pgxpool.Pool, maxHolders int64, wait time.Duration) *AdvisoryLocker {
	if maxHolders < 1 {
		maxHolders = 1
	}
	return &AdvisoryLocker{
		pool:    pool,
		holders: semaphore.NewWeighted(maxHolders),
		wait:    wait,
	}
}

// LockHolders returns how many pool connections may be spent on advisory
// locks: half the pool, at least one.
func LockHolders(maxConns int32) int64 {
	if maxConns < 2 {
		return 1
	}
	return int64(maxConns / 2)
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	if err := l.holders.Acquire(waitCtx, 1); err != nil {
		return nil, l.waitError(ctx, key, err)
	}

	conn, err := l.pool.Acquire(waitCtx)
	if err != nil {
		l.holders.Release(1)
		return nil, l.waitError(ctx, key, err)
	}

	if _, err := conn.Exec(waitCtx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		// The session may hold a half-taken lock; drop the connection instead of reusing it.
		conn.Conn().Close(context.Background())
		conn.Release()
		l.holders.Release(1)
		return nil, l.waitError(ctx, key, err)
	}

	unlock := func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), l.wait)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			log.Error().Err(err).Str("lock_key", key).Msg("advisory unlock failed, closing connection")
			conn.Conn().Close(context.Background())
		}
		conn.Release()
		l.holders.Release(1)
	}

	return unlock, nil
}

// waitError reports a wait that ran out of time as the store being
// unavailable, unless the caller itself gave up.
func (l *AdvisoryLocker) waitError(ctx context.Context, key string, err error) error {
	if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || IsTransient(err)) {
		log.Warn().Err(err).Str("lock_key", key).Dur("wait", l.wait).Msg("advisory lock: wait exhausted")
		return fmt.Errorf("%w: advisory lock %q not acquired within %s: %w", ErrServiceUnavailable, key, l.wait, err)
	}
	return fmt.Errorf("advisory lock %q: %w", key, err)
}
