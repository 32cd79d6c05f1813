package update_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/services/update"
	"github.com/seiken-dev/jiten/internal/store"
)

func TestOpenWithRetrySucceedsFirstTry(t *testing.T) {
	logger := events.NewTestLogger(events.ErrorLevel, io.Discard)
	mock := store.NewMockStore()

	attempts := 0
	st, err := update.OpenWithRetry(context.Background(), func(ctx context.Context) (store.Store, error) {
		attempts++
		return mock, nil
	}, logger)

	require.NoError(t, err)
	assert.True(t, st == store.Store(mock), "the opened store is returned as-is")
	assert.Equal(t, 1, attempts)
}

func TestOpenWithRetryRecovers(t *testing.T) {
	logger := events.NewTestLogger(events.ErrorLevel, io.Discard)
	mock := store.NewMockStore()

	attempts := 0
	st, err := update.OpenWithRetry(context.Background(), func(ctx context.Context) (store.Store, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("database locked")
		}
		return mock, nil
	}, logger)

	require.NoError(t, err)
	assert.NotNil(t, st)
	assert.Equal(t, 3, attempts)
}

func TestOpenWithRetryGivesUp(t *testing.T) {
	logger := events.NewTestLogger(events.ErrorLevel, io.Discard)

	attempts := 0
	_, err := update.OpenWithRetry(context.Background(), func(ctx context.Context) (store.Store, error) {
		attempts++
		return nil, errors.New("storage forbidden")
	}, logger)

	require.Error(t, err)
	assert.Equal(t, 4, attempts, "one try plus three retries")
	assert.Contains(t, err.Error(), "storage forbidden")
}

func TestOpenWithRetryHonorsContext(t *testing.T) {
	logger := events.NewTestLogger(events.ErrorLevel, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	start := time.Now()
	_, err := update.OpenWithRetry(ctx, func(ctx context.Context) (store.Store, error) {
		attempts++
		cancel() // fail once, then abort during the backoff wait
		return nil, errors.New("database locked")
	}, logger)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), 5*time.Second)
}
