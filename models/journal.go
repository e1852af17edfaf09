package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Voucher struct {
	ID            int             `gorm:"primary_key" json:"id"`
	VoucherNumber string          `gorm:"size:50;not null;uniqueIndex" json:"voucher_number"`
	VoucherDate   time.Time       `gorm:"index;not null" json:"voucher_date"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	// source document, empty for manual vouchers
	ReferenceType   string        `gorm:"size:20;index" json:"reference_type"`
	ReferenceId     int           `gorm:"index" json:"reference_id"`
	ReferenceNumber string        `gorm:"size:50" json:"reference_number"`
	Notes           string        `gorm:"type:text" json:"notes"`
	Lines           []VoucherLine `gorm:"foreignKey:VoucherId" json:"lines"`
	CreatedAt       time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type VoucherLine struct {
	ID              int             `gorm:"primary_key" json:"id"`
	VoucherId       int             `gorm:"index;not null" json:"voucher_id"`
	Sequence        int             `gorm:"not null;default:0" json:"sequence"`
	AccountId       int             `gorm:"index;not null" json:"account_id"`
	DetailAccountId *int            `gorm:"index" json:"detail_account_id"`
	Description     string          `gorm:"size:255" json:"description"`
	Debit           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"debit"`
	Credit          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit"`
}

const (
	VoucherReferenceInventoryDocument = "INVENTORY_DOCUMENT"
	// revaluation of an already posted document after a backdated change
	VoucherReferenceCostAdjustment = "COST_ADJUSTMENT"
)

// ListDocumentVouchers returns the original and adjusting vouchers of a document, oldest first.
func ListDocumentVouchers(tx *gorm.DB, documentId int) ([]Voucher, error) {
	var vouchers []Voucher
	err := tx.Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence ASC")
	}).Where("reference_id = ? AND reference_type IN ?", documentId,
		[]string{VoucherReferenceInventoryDocument, VoucherReferenceCostAdjustment}).
		Order("id ASC").Find(&vouchers).Error
	if err != nil {
		return nil, ClassifyDBError("ListDocumentVouchers", err)
	}
	return vouchers, nil
}

// SumVoucherLines returns the debit and credit totals.
func SumVoucherLines(lines []VoucherLine) (debit decimal.Decimal, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// CheckVoucherBalance fails with JournalImbalanceError when Σdebit != Σcredit.
func CheckVoucherBalance(lines []VoucherLine) error {
	debit, credit := SumVoucherLines(lines)
	if !debit.Equal(credit) {
		return &JournalImbalanceError{Debit: debit, Credit: credit}
	}
	return nil
}

// BeforeCreate refuses to persist an unbalanced voucher regardless of the caller.
func (v *Voucher) BeforeCreate(_ *gorm.DB) error {
	if len(v.Lines) == 0 {
		return nil
	}
	return CheckVoucherBalance(v.Lines)
}

// CreateVoucherRecord inserts the header and its lines.
func CreateVoucherRecord(tx *gorm.DB, voucher *Voucher) error {
	if err := CheckVoucherBalance(voucher.Lines); err != nil {
		return err
	}
	for i := range voucher.Lines {
		voucher.Lines[i].Sequence = i + 1
	}
	if err := tx.Create(voucher).Error; err != nil {
		if errors.Is(err, ErrJournalImbalance) {
			return err
		}
		if IsDuplicateKeyErr(err) {
			return &DuplicateNumberError{Number: voucher.VoucherNumber}
		}
		return ClassifyDBError("CreateVoucherRecord", err)
	}
	return nil
}

func GetVoucher(tx *gorm.DB, id int) (*Voucher, error) {
	var voucher Voucher
	err := tx.Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence ASC")
	}).Where("id = ?", id).Take(&voucher).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("voucher", id)
		}
		return nil, ClassifyDBError("GetVoucher", err)
	}
	return &voucher, nil
}
