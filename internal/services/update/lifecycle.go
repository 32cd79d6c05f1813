package update

import (
	"context"
	"fmt"
	"time"

	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/store"
)

const (
	// openAttempts bounds store initialization: 1 try + 3 retries.
	openAttempts = 4

	openBackoffBase = 250 * time.Millisecond
	openBackoffMax  = time.Second
)

// OpenWithRetry opens the persistent store with bounded retries and
// capped exponential backoff. The open function must not leave a
// partially-opened instance behind on error. A typical terminal cause
// is a host environment that disallows persistent storage at all.
func OpenWithRetry(ctx context.Context, open func(context.Context) (store.Store, error), logger *events.Logger) (store.Store, error) {
	var lastErr error
	delay := openBackoffBase

	for attempt := 1; attempt <= openAttempts; attempt++ {
		st, err := open(ctx)
		if err == nil {
			return st, nil
		}
		lastErr = err

		logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("Failed to open dataset store")

		if attempt == openAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		delay *= 2
		if delay > openBackoffMax {
			delay = openBackoffMax
		}
	}

	return nil, fmt.Errorf("open dataset store after %d attempts: %w", openAttempts, lastErr)
}
