package workflow

import (
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"gorm.io/gorm"
)

// ChequeWriter records cheques received on sales. It writes through the
// caller's transaction so the cheque commits or rolls back with the voucher.
type ChequeWriter interface {
	CreateCheque(tx *gorm.DB, cheque *models.ChequeRecord) error
}

type GormChequeWriter struct{}

func (GormChequeWriter) CreateCheque(tx *gorm.DB, cheque *models.ChequeRecord) error {
	if cheque.ChequeNumber == "" {
		return models.NewValidationError("cheque_number", "is required")
	}
	if !cheque.Amount.IsPositive() {
		return models.NewValidationError("amount", "cheque amount must be positive")
	}
	if cheque.Status == "" {
		cheque.Status = models.ChequeStatusPending
	}
	if err := tx.Create(cheque).Error; err != nil {
		return models.ClassifyDBError("CreateCheque", err)
	}
	return nil
}
