package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockKey identifies one running balance.
type StockKey struct {
	ProductId   int `json:"product_id"`
	WarehouseId int `json:"warehouse_id"`
}

func (k StockKey) String() string {
	return fmt.Sprintf("%d:%d", k.ProductId, k.WarehouseId)
}

func (k StockKey) Less(o StockKey) bool {
	if k.ProductId != o.ProductId {
		return k.ProductId < o.ProductId
	}
	return k.WarehouseId < o.WarehouseId
}

// SortedStockKeys de-duplicates keys and orders them so every writer takes row
// locks in the same sequence.
func SortedStockKeys(keys []StockKey) []StockKey {
	seen := make(map[StockKey]struct{}, len(keys))
	out := make([]StockKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// StockItem is the materialized on-hand quantity of a key. It always equals
// Σ(quantity_in - quantity_out) over the key's ledger entries.
type StockItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ProductId   int             `gorm:"uniqueIndex:idx_stock_item_key,priority:1;not null" json:"product_id"`
	WarehouseId int             `gorm:"uniqueIndex:idx_stock_item_key,priority:2;not null" json:"warehouse_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s StockItem) Key() StockKey {
	return StockKey{ProductId: s.ProductId, WarehouseId: s.WarehouseId}
}

// LockStockItem reads the row for key FOR UPDATE. found is false when the key
// has never received stock.
func LockStockItem(tx *gorm.DB, key StockKey) (item *StockItem, found bool, err error) {
	var stockItem StockItem
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ?", key.ProductId, key.WarehouseId).
		Take(&stockItem).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, ClassifyDBError("LockStockItem", err)
	}
	return &stockItem, true, nil
}

// BulkLockStockItems locks every existing row among keys in sorted key order.
func BulkLockStockItems(tx *gorm.DB, keys []StockKey) (map[StockKey]*StockItem, error) {
	out := make(map[StockKey]*StockItem, len(keys))
	for _, k := range SortedStockKeys(keys) {
		item, found, err := LockStockItem(tx, k)
		if err != nil {
			return nil, err
		}
		if found {
			out[k] = item
		}
	}
	return out, nil
}

// UpsertStockItem applies one movement. An increase creates the row on first
// receipt; a decrease requires an existing row.
func UpsertStockItem(tx *gorm.DB, key StockKey, effect MovementEffect, qty decimal.Decimal) (*StockItem, error) {
	if !qty.IsPositive() {
		return nil, NewValidationError("quantity", "must be positive")
	}
	item, found, err := LockStockItem(tx, key)
	if err != nil {
		return nil, err
	}

	switch effect {
	case MovementEffectIncrease:
		if !found {
			item = &StockItem{ProductId: key.ProductId, WarehouseId: key.WarehouseId, Quantity: qty}
			if err := tx.Create(item).Error; err != nil {
				// a concurrent first receipt won the unique index
				return nil, ClassifyDBError("UpsertStockItem", err)
			}
			return item, nil
		}
		return updateStockItemQuantity(tx, item, item.Quantity.Add(qty))
	case MovementEffectDecrease:
		if !found {
			return nil, NewNotFoundError("stock item", key)
		}
		return updateStockItemQuantity(tx, item, item.Quantity.Sub(qty))
	}
	return nil, NewValidationError("effect", "%q is not a valid movement effect", effect)
}

// ApplyStockDelta adds a signed delta to an existing row. Used by reversal.
func ApplyStockDelta(tx *gorm.DB, key StockKey, delta decimal.Decimal) (*StockItem, error) {
	item, found, err := LockStockItem(tx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NewNotFoundError("stock item", key)
	}
	return updateStockItemQuantity(tx, item, item.Quantity.Add(delta))
}

// SetStockItemQuantity overwrites the quantity, creating the row if needed.
// Used by ledger rebuild to realign the aggregate with the replayed history.
func SetStockItemQuantity(tx *gorm.DB, key StockKey, qty decimal.Decimal) (*StockItem, error) {
	item, found, err := LockStockItem(tx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		item = &StockItem{ProductId: key.ProductId, WarehouseId: key.WarehouseId, Quantity: qty}
		if err := tx.Create(item).Error; err != nil {
			return nil, ClassifyDBError("SetStockItemQuantity", err)
		}
		return item, nil
	}
	return updateStockItemQuantity(tx, item, qty)
}

// row must already be locked by the caller
func updateStockItemQuantity(tx *gorm.DB, item *StockItem, qty decimal.Decimal) (*StockItem, error) {
	if err := tx.Model(&StockItem{}).Where("id = ?", item.ID).Update("quantity", qty).Error; err != nil {
		return nil, ClassifyDBError("updateStockItemQuantity", err)
	}
	item.Quantity = qty
	return item, nil
}

func GetStockItem(tx *gorm.DB, key StockKey) (*StockItem, error) {
	var stockItem StockItem
	err := tx.Where("product_id = ? AND warehouse_id = ?", key.ProductId, key.WarehouseId).Take(&stockItem).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("stock item", key)
		}
		return nil, ClassifyDBError("GetStockItem", err)
	}
	return &stockItem, nil
}
