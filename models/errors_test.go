package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyDBError(t *testing.T) {
	assert.Nil(t, ClassifyDBError("op", nil))

	cases := []struct {
		name      string
		err       error
		sentinel  error
		retryable bool
	}{
		{"mysql lock wait", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, ErrConcurrency, true},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, ErrConcurrency, true},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, ErrConcurrency, true},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, ErrConcurrency, true},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, ErrConcurrency, true},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, ErrConcurrency, true},
		{"other", errors.New("disk full"), ErrPersistence, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyDBError("CreateThing", tc.err)
			assert.True(t, errors.Is(got, tc.sentinel), "got %v", got)
			assert.True(t, errors.Is(got, tc.err), "cause must stay reachable")
			assert.Equal(t, tc.retryable, IsRetryable(got))
		})
	}
}

func TestClassifyDBError_PassesThroughClassified(t *testing.T) {
	classified := []error{
		NewValidationError("quantity", "must be positive"),
		NewNotFoundError("product", 4),
		&InsufficientStockError{ProductId: 1, WarehouseId: 1},
		&DuplicateNumberError{Number: "GRN-202603-0001"},
		&VoucheredDocumentError{DocumentId: 1, VoucherId: 2},
		fmt.Errorf("wrapped: %w", &ConcurrencyError{Op: "x"}),
		context.Canceled,
		context.DeadlineExceeded,
	}
	for _, err := range classified {
		assert.Equal(t, err, ClassifyDBError("op", err))
	}
}

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, IsClientError(NewValidationError("f", "bad")))
	assert.True(t, IsClientError(NewNotFoundError("warehouse", 3)))
	assert.True(t, IsClientError(&InsufficientStockError{}))
	assert.True(t, IsClientError(&VoucheredDocumentError{}))
	assert.False(t, IsClientError(&PersistenceError{Op: "x", Err: errors.New("io")}))
	assert.False(t, IsClientError(&ConcurrencyError{Op: "x"}))

	assert.True(t, IsRetryable(&DuplicateNumberError{Key: "GRN", Period: "202603"}))
	assert.False(t, IsRetryable(&JournalImbalanceError{}))

	assert.Equal(t, "product not found: 4", NewNotFoundError("product", 4).Error())
	assert.Equal(t, "x: concurrent modification", (&ConcurrencyError{Op: "x"}).Error())
}
