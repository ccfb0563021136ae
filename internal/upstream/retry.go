// Package upstream bounds calls to external services with a per-attempt
// timeout and exponential backoff between attempts.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"plantcare/internal/config"
)

// StatusError is a non-2xx upstream reply.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Retryable reports whether another attempt may succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

type Policy struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

func PolicyFrom(cfg config.UpstreamConfig) Policy {
	return Policy{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.Backoff,
	}
}

// Do runs op at most MaxRetries+1 times. Each attempt gets its own timeout.
// Non-retryable status errors stop immediately.
func Do(ctx context.Context, p Policy, log *zap.Logger, name string, op func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	if p.Backoff > 0 {
		eb.InitialInterval = p.Backoff
	}
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(max(p.MaxRetries, 0)))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		actx, cancel := withTimeout(ctx, p.Timeout)
		defer cancel()

		err := op(actx)
		if err == nil {
			return nil
		}

		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		log.Warn("Retrying upstream call",
			zap.String("upstream", name),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", p.MaxRetries),
			zap.Duration("backoff", wait),
			zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("%s failed after %d attempt(s): %w", name, attempt, err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
