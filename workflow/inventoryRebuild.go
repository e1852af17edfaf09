package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RebuildResult summarizes one key's replay.
type RebuildResult struct {
	Key            models.StockKey `json:"key"`
	EntryCount     int             `json:"entry_count"`
	UpdatedEntries int             `json:"updated_entries"`
	FinalBalance   Balance         `json:"final_balance"`
	// ids of entries whose running quantity is negative after the replay
	NegativeEntryIds []int `json:"negative_entry_ids"`
	// documents with at least one re-costed entry
	RevaluedDocumentIds []int `json:"revalued_document_ids"`

	worsened []worsenedEntry
}

// worsenedEntry is an entry the replay took below zero, or further below it.
type worsenedEntry struct {
	ID          int
	DocumentId  int
	Before      decimal.Decimal
	After       decimal.Decimal
	QuantityOut decimal.Decimal
}

// RebuildStockLedger is the update-balance operation: it replays every entry of
// key in ledger order through ApplyMovement, rewrites the computed columns that
// drifted, revalues the documents whose costs moved and realigns StockItem with
// the final running quantity.
func RebuildStockLedger(tx *gorm.DB, logger *logrus.Logger, prefixes SequencePrefixes, key models.StockKey) (*RebuildResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("rebuild stock ledger: tx is nil")
	}
	if key.ProductId <= 0 || key.WarehouseId <= 0 {
		return nil, models.NewValidationError("key", "invalid stock key %s", key)
	}
	_, found, err := models.LockStockItem(tx, key)
	if err != nil {
		return nil, err
	}
	result, err := rebalanceLedgerEntries(tx, logger, key)
	if err != nil {
		return nil, err
	}
	if _, err := revalueDocuments(tx, logger, prefixes, result.RevaluedDocumentIds); err != nil {
		return nil, err
	}
	if result.EntryCount == 0 && !found {
		return result, nil
	}
	if _, err := models.SetStockItemQuantity(tx, key, result.FinalBalance.Quantity); err != nil {
		config.LogError(logger, "InventoryRebuild.go", "RebuildStockLedger", "Realigning stock item", key, err)
		return nil, err
	}
	return result, nil
}

// rebalanceLedgerEntries recomputes running balances in place without touching
// StockItem or document headers. The stored running quantities are the
// before-image used to tell which entries the replay made worse.
func rebalanceLedgerEntries(tx *gorm.DB, logger *logrus.Logger, key models.StockKey) (*RebuildResult, error) {
	entries, err := models.ListLedgerEntries(tx, key)
	if err != nil {
		config.LogError(logger, "InventoryRebuild.go", "rebalanceLedgerEntries", "Listing ledger entries", key, err)
		return nil, err
	}

	result := &RebuildResult{Key: key, EntryCount: len(entries)}
	revalued := map[int]bool{}
	balance := Balance{Quantity: decimal.Zero, Value: decimal.Zero}
	for i := range entries {
		e := &entries[i]
		effect := models.MovementEffectIncrease
		qty := e.QuantityIn
		if e.IsOutgoing() {
			effect = models.MovementEffectDecrease
			qty = e.QuantityOut
		}
		cost, err := ApplyMovement(balance, effect, qty, e.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("rebuild entry %d: %w", e.ID, err)
		}
		balance = cost.Balance
		if balance.Quantity.IsNegative() {
			result.NegativeEntryIds = append(result.NegativeEntryIds, e.ID)
			if balance.Quantity.LessThan(e.RunningBalanceQuantity) {
				result.worsened = append(result.worsened, worsenedEntry{
					ID:          e.ID,
					DocumentId:  e.DocumentId,
					Before:      e.RunningBalanceQuantity,
					After:       balance.Quantity,
					QuantityOut: e.QuantityOut,
				})
			}
		}
		if !e.LineCost.Equal(cost.LineCost) && !revalued[e.DocumentId] {
			revalued[e.DocumentId] = true
			result.RevaluedDocumentIds = append(result.RevaluedDocumentIds, e.DocumentId)
		}

		if e.UnitCost.Equal(cost.UnitCost) && e.LineCost.Equal(cost.LineCost) &&
			e.RunningBalanceQuantity.Equal(balance.Quantity) && e.RunningBalanceValue.Equal(balance.Value) &&
			e.IsNegative == balance.Quantity.IsNegative() {
			continue
		}
		if err := tx.Model(&models.StockLedgerEntry{}).Where("id = ?", e.ID).Updates(map[string]interface{}{
			"unit_cost":                cost.UnitCost,
			"line_cost":                cost.LineCost,
			"running_balance_quantity": balance.Quantity,
			"running_balance_value":    balance.Value,
			"is_negative":              balance.Quantity.IsNegative(),
		}).Error; err != nil {
			config.LogError(logger, "InventoryRebuild.go", "rebalanceLedgerEntries", "Updating ledger entry", e.ID, err)
			return nil, models.ClassifyDBError("rebalanceLedgerEntries", err)
		}
		result.UpdatedEntries++
	}
	result.FinalBalance = balance

	if logger != nil && result.UpdatedEntries > 0 {
		logger.WithFields(logrus.Fields{
			"field":        "RebuildStockLedger",
			"product_id":   key.ProductId,
			"warehouse_id": key.WarehouseId,
			"entries":      result.EntryCount,
			"updated":      result.UpdatedEntries,
		}).Info("ledger balances recomputed")
	}
	return result, nil
}

// RebuildAllStockLedgers rebuilds every key that has a ledger or a stock item,
// one transaction per key.
func RebuildAllStockLedgers(ctx context.Context, db *gorm.DB, logger *logrus.Logger, prefixes SequencePrefixes) ([]RebuildResult, error) {
	keys, err := listAllStockKeys(db.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	results := make([]RebuildResult, 0, len(keys))
	for _, key := range keys {
		var result *RebuildResult
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			result, err = RebuildStockLedger(tx, logger, prefixes, key)
			return err
		})
		if err != nil {
			return results, err
		}
		results = append(results, *result)
	}
	return results, nil
}

func listAllStockKeys(db *gorm.DB) ([]models.StockKey, error) {
	var fromItems, fromLedger []models.StockKey
	if err := db.Model(&models.StockItem{}).Select("product_id, warehouse_id").Scan(&fromItems).Error; err != nil {
		return nil, models.ClassifyDBError("listAllStockKeys", err)
	}
	if err := db.Model(&models.StockLedgerEntry{}).Distinct("product_id", "warehouse_id").Scan(&fromLedger).Error; err != nil {
		return nil, models.ClassifyDBError("listAllStockKeys", err)
	}
	return models.SortedStockKeys(append(fromItems, fromLedger...)), nil
}
