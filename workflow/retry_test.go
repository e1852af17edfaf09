package workflow

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"github.com/stretchr/testify/assert"
)

func TestWithRetry(t *testing.T) {
	busy := &models.ConcurrencyError{Op: "test", Err: errors.New("database is locked")}

	t.Run("retries retryable errors until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), quietLogger(), 5, func(context.Context) error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), nil, 3, func(context.Context) error {
			calls++
			return busy
		})
		assert.True(t, errors.Is(err, models.ErrConcurrency))
		assert.Equal(t, 3, calls)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), nil, 5, func(context.Context) error {
			calls++
			return models.NewValidationError("quantity", "must be positive")
		})
		assert.True(t, errors.Is(err, models.ErrValidation))
		assert.Equal(t, 1, calls)
	})

	t.Run("duplicate numbers are retried", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), nil, 2, func(context.Context) error {
			calls++
			if calls == 1 {
				return &models.DuplicateNumberError{Number: "GRN-202603-0001"}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("cancelled context stops before the first call", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := WithRetry(ctx, nil, 5, func(context.Context) error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls)
	})
}
