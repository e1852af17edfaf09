package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StockMismatch is a key whose aggregate disagrees with its ledger.
type StockMismatch struct {
	Key models.StockKey `json:"key"`
	// StockItem.quantity (zero when the row is missing)
	StockQuantity decimal.Decimal `json:"stock_quantity"`
	// Σ(quantity_in - quantity_out)
	LedgerQuantity decimal.Decimal `json:"ledger_quantity"`
	// running_balance_quantity of the last entry
	RunningQuantity decimal.Decimal `json:"running_quantity"`
}

// ReconcileStock checks every key for StockItem.quantity == Σ(in-out) == last running balance.
func ReconcileStock(ctx context.Context, db *gorm.DB, logger *logrus.Logger) ([]StockMismatch, error) {
	tx := db.WithContext(ctx)
	keys, err := listAllStockKeys(tx)
	if err != nil {
		config.LogError(logger, "ReconciliationWorkflow.go", "ReconcileStock", "Listing stock keys", nil, err)
		return nil, err
	}

	var mismatches []StockMismatch
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return mismatches, err
		}
		mismatch, err := reconcileKey(tx, key)
		if err != nil {
			config.LogError(logger, "ReconciliationWorkflow.go", "ReconcileStock", "Reconciling key", key, err)
			return mismatches, err
		}
		if mismatch == nil {
			continue
		}
		mismatches = append(mismatches, *mismatch)
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":            "ReconcileStock",
				"product_id":       key.ProductId,
				"warehouse_id":     key.WarehouseId,
				"stock_quantity":   mismatch.StockQuantity.String(),
				"ledger_quantity":  mismatch.LedgerQuantity.String(),
				"running_quantity": mismatch.RunningQuantity.String(),
			}).Warn("stock aggregate out of line with ledger")
		}
	}
	return mismatches, nil
}

func reconcileKey(tx *gorm.DB, key models.StockKey) (*StockMismatch, error) {
	stockQty := decimal.Zero
	item, err := models.GetStockItem(tx, key)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if item != nil {
		stockQty = item.Quantity
	}

	ledgerQty, err := models.SumLedgerQuantity(tx, key)
	if err != nil {
		return nil, err
	}

	last, err := models.LatestLedgerEntry(tx, key)
	if err != nil {
		return nil, err
	}
	runningQty := BalanceOf(last).Quantity

	if stockQty.Equal(ledgerQty) && ledgerQty.Equal(runningQty) {
		return nil, nil
	}
	return &StockMismatch{
		Key:             key,
		StockQuantity:   stockQty,
		LedgerQuantity:  ledgerQty,
		RunningQuantity: runningQty,
	}, nil
}
