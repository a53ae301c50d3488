// Package retry wraps a single provider call with a bounded,
// error-class-aware backoff policy. This is the pipeline's resilience
// contract: an upstream with uneven availability must never force redoing
// already-completed chunk work.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/provider"
)

// DefaultMaxAttempts bounds how often one provider call is tried.
const DefaultMaxAttempts = 3

// SleepFunc waits for d or until ctx is done. Injected so tests can record
// delays instead of sleeping.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Controller retries one provider call according to the error class:
//
//	rate-limited with hint    sleep the hinted duration
//	rate-limited without hint attempt x 15s
//	transient                 5s x 2^(attempt-1)
//	fatal                     no retry
type Controller struct {
	maxAttempts int
	sleep       SleepFunc
}

// New creates a Controller. maxAttempts < 1 falls back to the default.
func New(maxAttempts int) *Controller {
	return NewWithSleep(maxAttempts, ctxSleep)
}

// NewWithSleep creates a Controller with a custom sleep function.
func NewWithSleep(maxAttempts int, sleep SleepFunc) *Controller {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Controller{maxAttempts: maxAttempts, sleep: sleep}
}

// Do invokes fn until it succeeds, fails fatally, or attempts are exhausted.
// Each failed retryable attempt incurs its scheduled delay; the wait blocks
// only the calling pipeline.
func (c *Controller) Do(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		class := provider.ClassOf(err)
		if class == provider.ClassFatal {
			return "", fmt.Errorf("attempt %d: %w", attempt, err)
		}

		delay := delayFor(class, attempt, provider.RetryAfterOf(err))
		slog.Warn("provider call failed, backing off",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"class", class.String(),
			"delay", delay,
			"error", err,
		)
		if serr := c.sleep(ctx, delay); serr != nil {
			return "", serr
		}
	}

	return "", fmt.Errorf("retries exhausted after %d attempts: %w", c.maxAttempts, lastErr)
}

func delayFor(class provider.Class, attempt int, hint time.Duration) time.Duration {
	if class == provider.ClassRateLimited {
		if hint > 0 {
			return hint
		}
		return time.Duration(attempt) * 15 * time.Second
	}
	// Transient: 5s, 10s, 20s, ...
	return 5 * time.Second << (attempt - 1)
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
