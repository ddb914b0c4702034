package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultRetryAttempts = 3

// Transient reports whether a store error may succeed when the same
// statement or transaction is run again.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected,
			pgerrcode.TooManyConnections, pgerrcode.CannotConnectNow:
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err)
}

func newBackOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 5 * time.Second
	if attempts < 0 {
		attempts = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts)), ctx)
}

// retry runs op until it succeeds, fails permanently, or attempts retries are
// spent. Only Transient errors are retried.
func retry[T any](ctx context.Context, attempts int, op func() (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && !Transient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, newBackOff(ctx, attempts))
}

func retryExec(ctx context.Context, attempts int, op func() error) error {
	_, err := retry(ctx, attempts, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
