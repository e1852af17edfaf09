package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateNumber   = errors.New("duplicate number")
	ErrJournalImbalance  = errors.New("journal imbalance")
	ErrConcurrency       = errors.New("concurrent modification")
	ErrPersistence       = errors.New("persistence failure")

	// ErrDocumentHasVoucher is returned when deleting a document that was posted to the ledger.
	ErrDocumentHasVoucher = errors.New("document has a linked voucher")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NewNotFoundError(entity string, key any) error {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(key)}
}

type InsufficientStockError struct {
	ProductId   int
	WarehouseId int
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d in warehouse %d: available %s, requested %s",
		e.ProductId, e.WarehouseId, e.Available.String(), e.Requested.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type DuplicateNumberError struct {
	Key    string
	Period string
	Number string
}

func (e *DuplicateNumberError) Error() string {
	if e.Number != "" {
		return fmt.Sprintf("duplicate number %s", e.Number)
	}
	return fmt.Sprintf("duplicate sequence row for %s/%s", e.Key, e.Period)
}

func (e *DuplicateNumberError) Unwrap() error { return ErrDuplicateNumber }

type JournalImbalanceError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *JournalImbalanceError) Error() string {
	return fmt.Sprintf("journal imbalance: debit %s != credit %s", e.Debit.String(), e.Credit.String())
}

func (e *JournalImbalanceError) Unwrap() error { return ErrJournalImbalance }

type ConcurrencyError struct {
	Op  string
	Err error
}

func (e *ConcurrencyError) Error() string {
	if e.Err == nil {
		return e.Op + ": concurrent modification"
	}
	return fmt.Sprintf("%s: concurrent modification: %v", e.Op, e.Err)
}

func (e *ConcurrencyError) Unwrap() []error { return []error{ErrConcurrency, e.Err} }

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

type VoucheredDocumentError struct {
	DocumentId int
	VoucherId  int
}

func (e *VoucheredDocumentError) Error() string {
	return fmt.Sprintf("document %d is linked to voucher %d and cannot be deleted", e.DocumentId, e.VoucherId)
}

func (e *VoucheredDocumentError) Unwrap() error { return ErrDocumentHasVoucher }

// IsRetryable reports whether re-running the whole operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrency) || errors.Is(err, ErrDuplicateNumber)
}

// IsClientError reports whether err was caused by the request rather than the store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDocumentHasVoucher)
}

const (
	mysqlErrDuplicateEntry   = 1062
	mysqlErrLockWaitTimeout  = 1205
	mysqlErrDeadlockDetected = 1213
)

// IsDuplicateKeyErr matches unique-index violations for both supported drivers.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrDuplicateEntry
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate entry")
}

// IsLockErr matches lock-wait timeouts and deadlocks.
func IsLockErr(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrLockWaitTimeout || me.Number == mysqlErrDeadlockDetected
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// ClassifyDBError maps a raw store error into the taxonomy. Errors already
// classified pass through unchanged.
func ClassifyDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrDuplicateNumber), errors.Is(err, ErrJournalImbalance), errors.Is(err, ErrConcurrency),
		errors.Is(err, ErrPersistence), errors.Is(err, ErrDocumentHasVoucher):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case IsLockErr(err):
		return &ConcurrencyError{Op: op, Err: err}
	case IsDuplicateKeyErr(err):
		return &ConcurrencyError{Op: op, Err: err}
	}
	return &PersistenceError{Op: op, Err: err}
}
