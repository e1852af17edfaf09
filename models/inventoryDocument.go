package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryDocument is the header of one stock movement.
//
// TotalAmount is the costed value (Σ line_cost of its entries). SaleAmount is
// Σ quantity × sale price and is only set for sales.
type InventoryDocument struct {
	ID                int                `gorm:"primary_key" json:"id"`
	DocumentNumber    string             `gorm:"size:50;not null;uniqueIndex" json:"document_number"`
	DocumentDate      time.Time          `gorm:"index;not null" json:"document_date"`
	TransactionTypeId int                `gorm:"index;not null" json:"transaction_type_id"`
	WarehouseId       int                `gorm:"index;not null" json:"warehouse_id"`
	PersonId          *int               `gorm:"index" json:"person_id"`
	PaymentMethod     *PaymentMethod     `gorm:"size:10" json:"payment_method"`
	TotalQuantity     decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"total_quantity"`
	TotalAmount       decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	SaleAmount        decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"sale_amount"`
	VoucherId         *int               `gorm:"index" json:"voucher_id"`
	Notes             string             `gorm:"type:text" json:"notes"`
	CorrelationId     string             `gorm:"size:64;index" json:"correlation_id"`
	LedgerEntries     []StockLedgerEntry `gorm:"foreignKey:DocumentId" json:"ledger_entries"`
	CreatedAt         time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d InventoryDocument) HasVoucher() bool {
	return d.VoucherId != nil && *d.VoucherId > 0
}

// LockInventoryDocument loads the header FOR UPDATE.
func LockInventoryDocument(tx *gorm.DB, id int) (*InventoryDocument, error) {
	var doc InventoryDocument
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("inventory document", id)
		}
		return nil, ClassifyDBError("LockInventoryDocument", err)
	}
	return &doc, nil
}

func GetInventoryDocument(tx *gorm.DB, id int) (*InventoryDocument, error) {
	var doc InventoryDocument
	err := tx.Preload("LedgerEntries", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("id = ?", id).Take(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("inventory document", id)
		}
		return nil, ClassifyDBError("GetInventoryDocument", err)
	}
	return &doc, nil
}

// CreateInventoryDocument inserts the header. A collision on document_number
// means a number was issued twice and is reported as DuplicateNumberError.
func CreateInventoryDocument(tx *gorm.DB, doc *InventoryDocument) error {
	if err := tx.Omit("LedgerEntries").Create(doc).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return &DuplicateNumberError{Number: doc.DocumentNumber}
		}
		return ClassifyDBError("CreateInventoryDocument", err)
	}
	return nil
}

func LinkDocumentVoucher(tx *gorm.DB, documentId int, voucherId int) error {
	if err := tx.Model(&InventoryDocument{}).Where("id = ?", documentId).Update("voucher_id", voucherId).Error; err != nil {
		return ClassifyDBError("LinkDocumentVoucher", err)
	}
	return nil
}

// DocumentMovementKinds maps each document id to the kind of its transaction type.
func DocumentMovementKinds(tx *gorm.DB, documentIds []int) (map[int]MovementKind, error) {
	kinds := make(map[int]MovementKind, len(documentIds))
	if len(documentIds) == 0 {
		return kinds, nil
	}
	var rows []struct {
		ID   int
		Kind MovementKind
	}
	err := tx.Model(&InventoryDocument{}).
		Select("inventory_documents.id AS id, transaction_types.kind AS kind").
		Joins("JOIN transaction_types ON transaction_types.id = inventory_documents.transaction_type_id").
		Where("inventory_documents.id IN ?", documentIds).
		Scan(&rows).Error
	if err != nil {
		return nil, ClassifyDBError("DocumentMovementKinds", err)
	}
	for _, r := range rows {
		kinds[r.ID] = r.Kind
	}
	return kinds, nil
}
