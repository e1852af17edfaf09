package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChequeRecord is owned by the cheque register; the ledger only writes new rows
// for cheque sales.
type ChequeRecord struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ChequeNumber    string          `gorm:"size:50;not null;index" json:"cheque_number"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	IssueDate       time.Time       `gorm:"not null" json:"issue_date"`
	DueDate         time.Time       `gorm:"index;not null" json:"due_date"`
	BankName        string          `gorm:"size:100" json:"bank_name"`
	DrawerAccountId int             `gorm:"index;not null" json:"drawer_account_id"`
	PayeeAccountId  int             `gorm:"index;not null" json:"payee_account_id"`
	VoucherId       int             `gorm:"index;not null" json:"voucher_id"`
	Status          ChequeStatus    `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
