package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"bitbucket.org/mmdatafocus/stock_ledger/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllocateNext hands out the next number for (key, period) inside tx.
//
// The sequence row is locked FOR UPDATE for the rest of the transaction, so
// numbers stay gap-free and unique across instances sharing the store. The
// first allocation of a period inserts the row at 1; losing that insert race
// to another writer surfaces as a retryable ConcurrencyError.
func AllocateNext(tx *gorm.DB, key string, period string) (int, error) {
	key = utils.NormalizeCode(key)
	if key == "" || period == "" {
		return 0, models.NewValidationError("sequence", "key and period are required")
	}

	var seq models.Sequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("seq_key = ? AND period = ?", key, period).
		Take(&seq).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, models.ClassifyDBError("AllocateNext", err)
		}
		seq = models.Sequence{SeqKey: key, Period: period, LastValue: 1}
		if err := tx.Create(&seq).Error; err != nil {
			return 0, models.ClassifyDBError("AllocateNext", err)
		}
		return 1, nil
	}

	next := seq.LastValue + 1
	res := tx.Model(&models.Sequence{}).
		Where("id = ? AND last_value = ?", seq.ID, seq.LastValue).
		Update("last_value", next)
	if res.Error != nil {
		return 0, models.ClassifyDBError("AllocateNext", res.Error)
	}
	if res.RowsAffected != 1 {
		return 0, &models.ConcurrencyError{Op: "AllocateNext", Err: fmt.Errorf("sequence %s/%s moved", key, period)}
	}
	return next, nil
}

// AllocateNextNumber runs one allocation in its own transaction, retrying the
// whole allocation on lock timeouts and insert races.
func AllocateNextNumber(ctx context.Context, db *gorm.DB, logger *logrus.Logger, key string, period string) (int, error) {
	var n int
	err := WithRetry(ctx, logger, defaultRetryAttempts, func(ctx context.Context) error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			n, err = AllocateNext(tx, key, period)
			return err
		})
	})
	return n, err
}

// SequencePrefixes maps a sequence key to the prefix printed in front of its numbers.
type SequencePrefixes map[string]string

func (p SequencePrefixes) Prefix(key string) string {
	key = utils.NormalizeCode(key)
	if prefix, ok := p[key]; ok && prefix != "" {
		return prefix
	}
	return key
}

// FormatDocumentNumber renders <PREFIX>-<YYYYMM>-<0000>.
func FormatDocumentNumber(prefix string, date time.Time, n int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, utils.PeriodOf(date), n)
}
