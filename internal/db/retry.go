package db

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("db")

// WithRetry calls connect until it succeeds, ctx ends, or attempts run out,
// backing off exponentially between tries. Databases started alongside the
// service (compose, CI) are often not ready on the first dial.
func WithRetry[T any](ctx context.Context, attempts uint64, what string, connect func(context.Context) (T, error)) (T, error) {
	var out T
	if attempts == 0 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	op := func() error {
		v, err := connect(ctx)
		if err != nil {
			log.Warningf("connecting to %s: %v", what, err)
			return err
		}
		out = v
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx))
	return out, err
}
