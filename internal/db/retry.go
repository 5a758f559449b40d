package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/food-circles/internal/config"
)

var (
	// ErrServiceUnavailable is returned once the retry budget for a store call
	// is spent or a scope lock could not be taken in time.
	ErrServiceUnavailable = errors.New("store unavailable")

	// ErrTransient marks store errors that are worth retrying. Stores that do
	// not speak pgx wrap their own failures with it.
	ErrTransient = errors.New("transient store error")
)

type RetryPolicy struct {
	QueryTimeout    time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

func NewRetryPolicy(cfg config.StoreConfig) RetryPolicy {
	return RetryPolicy{
		QueryTimeout:    cfg.QueryTimeout,
		InitialInterval: cfg.RetryInitial,
		MaxInterval:     cfg.RetryMax,
		MaxElapsedTime:  cfg.RetryMaxElapsed,
	}
}

// Retry runs op with a per-attempt timeout, retrying transient failures
// with exponential backoff. Non-transient errors are returned as is;
// an exhausted budget is reported as ErrServiceUnavailable wrapping the
// last failure.
func Retry(ctx context.Context, p RetryPolicy, name string, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsedTime

	attempt := 0
	var lastErr error

	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, p.QueryTimeout)
		defer cancel()

		err := op(attemptCtx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("op", name).Int("attempt", attempt).Dur("retry_in", wait).Msg("store: transient failure, retrying")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return fmt.Errorf("store: %s: %w", name, ctx.Err())
	}
	if lastErr != nil && IsTransient(lastErr) {
		log.Error().Err(lastErr).Str("op", name).Int("attempts", attempt).Msg("store: retry budget exhausted")
		return fmt.Errorf("%w: %s after %d attempts: %w", ErrServiceUnavailable, name, attempt, lastErr)
	}
	return err
}

// IsTransient reports whether err looks like a timeout or an outage
// rather than a problem with the request itself.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgerrcode.IsOperatorIntervention(pgErr.Code) ||
			pgerrcode.IsInsufficientResources(pgErr.Code) ||
			pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
