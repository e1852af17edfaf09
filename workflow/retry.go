package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts = 5
	retryBaseDelay       = 20 * time.Millisecond
	retryMaxDelay        = time.Second
)

// WithRetry re-runs fn while it fails with a retryable error. fn must be a whole
// atomic operation: a failed attempt has already rolled back.
func WithRetry(ctx context.Context, logger *logrus.Logger, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := retryBaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		err = fn(ctx)
		if err == nil || !models.IsRetryable(err) || attempt == attempts {
			return err
		}
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":   "WithRetry",
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn("retrying after: " + err.Error())
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return err
}
