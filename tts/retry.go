package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// withRetry runs fn up to attempts times, growing the pause by half each round.
// Pauses end early on ctx cancellation; cancellation is never retried.
func withRetry(ctx context.Context, logger *slog.Logger, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := retryDelay
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
			return err
		}
		logger.Warn("attempt failed", "attempt", i, "of", attempts, "error", err)
		if i == attempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case <-timer.C:
		}
		delay = delay * 3 / 2
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}
