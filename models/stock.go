package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockLedgerEntry is one kardex row: the movement of one document line and the
// running quantity/value balance of its (product, warehouse) key after it.
//
// Rows are ordered by (transaction_date, id). Only the rebalance pass rewrites the
// computed columns; reversal deletes rows together with their document.
type StockLedgerEntry struct {
	ID              int             `gorm:"primary_key" json:"id"`
	DocumentId      int             `gorm:"index;not null" json:"document_id"`
	ProductId       int             `gorm:"index:idx_ledger_key,priority:1;not null" json:"product_id"`
	WarehouseId     int             `gorm:"index:idx_ledger_key,priority:2;not null" json:"warehouse_id"`
	TransactionDate time.Time       `gorm:"index:idx_ledger_key,priority:3;not null" json:"transaction_date"`
	QuantityIn      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_in"`
	QuantityOut     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_out"`
	// price submitted on the line (purchase price for receipts, sale price for sales)
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_price"`
	// weighted-average valuation of the movement
	UnitCost               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	LineCost               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_cost"`
	RunningBalanceQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"running_balance_quantity"`
	RunningBalanceValue    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"running_balance_value"`
	IsNegative             bool            `gorm:"not null;default:false" json:"is_negative"`
	PersonId               *int            `gorm:"index" json:"person_id"`
	Reference              string          `gorm:"size:100" json:"reference"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e StockLedgerEntry) Key() StockKey {
	return StockKey{ProductId: e.ProductId, WarehouseId: e.WarehouseId}
}

func (e StockLedgerEntry) IsOutgoing() bool {
	return e.QuantityOut.IsPositive()
}

// NetQuantity is the signed quantity effect of the entry.
func (e StockLedgerEntry) NetQuantity() decimal.Decimal {
	return e.QuantityIn.Sub(e.QuantityOut)
}

// BeforeSave keeps the running-balance flag honest for every write path.
func (e *StockLedgerEntry) BeforeSave(_ *gorm.DB) error {
	if e == nil {
		return nil
	}
	if e.QuantityIn.IsPositive() && e.QuantityOut.IsPositive() {
		return NewValidationError("quantity", "ledger entry cannot move in and out at once")
	}
	e.IsNegative = e.RunningBalanceQuantity.IsNegative()
	return nil
}

// LatestLedgerEntryAsOf returns the last entry for key dated at or before asOf,
// locked FOR UPDATE. It returns (nil, nil) when the key has no history yet.
func LatestLedgerEntryAsOf(tx *gorm.DB, key StockKey, asOf time.Time) (*StockLedgerEntry, error) {
	var entry StockLedgerEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ? AND transaction_date <= ?", key.ProductId, key.WarehouseId, asOf).
		Order("transaction_date DESC").Order("id DESC").
		Limit(1).
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, ClassifyDBError("LatestLedgerEntryAsOf", err)
	}
	return &entry, nil
}

// LatestLedgerEntry returns the last entry for key regardless of date.
func LatestLedgerEntry(tx *gorm.DB, key StockKey) (*StockLedgerEntry, error) {
	var entry StockLedgerEntry
	err := tx.Where("product_id = ? AND warehouse_id = ?", key.ProductId, key.WarehouseId).
		Order("transaction_date DESC").Order("id DESC").
		Limit(1).
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, ClassifyDBError("LatestLedgerEntry", err)
	}
	return &entry, nil
}

// CountLedgerEntriesAfter counts entries that sort after a row dated asOf with id afterId.
func CountLedgerEntriesAfter(tx *gorm.DB, key StockKey, asOf time.Time, afterId int) (int64, error) {
	var count int64
	err := tx.Model(&StockLedgerEntry{}).
		Where("product_id = ? AND warehouse_id = ?", key.ProductId, key.WarehouseId).
		Where("(transaction_date > ? OR (transaction_date = ? AND id > ?))", asOf, asOf, afterId).
		Count(&count).Error
	if err != nil {
		return 0, ClassifyDBError("CountLedgerEntriesAfter", err)
	}
	return count, nil
}

// ListLedgerEntries returns the full history for key in ledger order.
func ListLedgerEntries(tx *gorm.DB, key StockKey) ([]StockLedgerEntry, error) {
	var entries []StockLedgerEntry
	err := tx.Where("product_id = ? AND warehouse_id = ?", key.ProductId, key.WarehouseId).
		Order("transaction_date ASC").Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, ClassifyDBError("ListLedgerEntries", err)
	}
	return entries, nil
}

func ListDocumentLedgerEntries(tx *gorm.DB, documentId int) ([]StockLedgerEntry, error) {
	var entries []StockLedgerEntry
	if err := tx.Where("document_id = ?", documentId).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, ClassifyDBError("ListDocumentLedgerEntries", err)
	}
	return entries, nil
}

// SumLedgerQuantity returns Σ(quantity_in - quantity_out) for key.
func SumLedgerQuantity(tx *gorm.DB, key StockKey) (decimal.Decimal, error) {
	var row struct {
		QtyIn  decimal.NullDecimal
		QtyOut decimal.NullDecimal
	}
	err := tx.Model(&StockLedgerEntry{}).
		Select("SUM(quantity_in) AS qty_in, SUM(quantity_out) AS qty_out").
		Where("product_id = ? AND warehouse_id = ?", key.ProductId, key.WarehouseId).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, ClassifyDBError("SumLedgerQuantity", err)
	}
	return row.QtyIn.Decimal.Sub(row.QtyOut.Decimal).Round(4), nil
}

// SumDocumentLineCost returns Σ line_cost over the document's entries.
func SumDocumentLineCost(tx *gorm.DB, documentId int) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := tx.Model(&StockLedgerEntry{}).
		Select("SUM(line_cost)").
		Where("document_id = ?", documentId).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, ClassifyDBError("SumDocumentLineCost", err)
	}
	return total.Decimal.Round(4), nil
}
