package workflow

import (
	"time"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LedgerInput is one document line as seen by the ledger.
type LedgerInput struct {
	DocumentId int
	Key        models.StockKey
	Date       time.Time
	Kind       models.MovementKind
	Effect     models.MovementEffect
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	PersonId   *int
	Reference  string
}

// AppendLedgerEntry costs one movement against the key's balance as of the
// movement date and persists the resulting entry.
//
// The caller must already hold the StockItem row lock for in.Key; the prior
// entry is additionally read FOR UPDATE. A backdated movement re-balances the
// entries dated after it and returns that replay; the caller revalues the
// documents it lists.
func AppendLedgerEntry(tx *gorm.DB, logger *logrus.Logger, policies StockPolicies, in LedgerInput) (*models.StockLedgerEntry, *RebuildResult, error) {
	policy := policies.For(in.Kind)
	prior, err := models.LatestLedgerEntryAsOf(tx, in.Key, in.Date)
	if err != nil {
		config.LogError(logger, "StockLedger.go", "AppendLedgerEntry", "Reading prior ledger entry", in.Key, err)
		return nil, nil, err
	}
	priorBalance := BalanceOf(prior)

	cost, err := ApplyMovement(priorBalance, in.Effect, in.Quantity, in.UnitPrice)
	if err != nil {
		return nil, nil, err
	}

	if cost.Balance.Quantity.IsNegative() && in.Effect == models.MovementEffectDecrease {
		if policy == NegativeStockStrict {
			return nil, nil, &models.InsufficientStockError{
				ProductId:   in.Key.ProductId,
				WarehouseId: in.Key.WarehouseId,
				Available:   priorBalance.Quantity,
				Requested:   in.Quantity,
			}
		}
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":        "AppendLedgerEntry",
				"product_id":   in.Key.ProductId,
				"warehouse_id": in.Key.WarehouseId,
				"document_id":  in.DocumentId,
				"kind":         in.Kind,
				"balance_qty":  cost.Balance.Quantity.String(),
			}).Warn("stock balance went negative")
		}
	}

	entry := models.StockLedgerEntry{
		DocumentId:             in.DocumentId,
		ProductId:              in.Key.ProductId,
		WarehouseId:            in.Key.WarehouseId,
		TransactionDate:        in.Date,
		UnitPrice:              in.UnitPrice,
		TotalPrice:             in.Quantity.Mul(in.UnitPrice).Round(costPrecision),
		UnitCost:               cost.UnitCost,
		LineCost:               cost.LineCost,
		RunningBalanceQuantity: cost.Balance.Quantity,
		RunningBalanceValue:    cost.Balance.Value,
		PersonId:               in.PersonId,
		Reference:              in.Reference,
	}
	if in.Effect == models.MovementEffectIncrease {
		entry.QuantityIn = in.Quantity
	} else {
		entry.QuantityOut = in.Quantity
	}
	if err := tx.Create(&entry).Error; err != nil {
		config.LogError(logger, "StockLedger.go", "AppendLedgerEntry", "Creating ledger entry", entry, err)
		return nil, nil, models.ClassifyDBError("AppendLedgerEntry", err)
	}

	later, err := models.CountLedgerEntriesAfter(tx, in.Key, in.Date, entry.ID)
	if err != nil {
		return nil, nil, err
	}
	if later == 0 {
		return &entry, nil, nil
	}
	result, err := rebalanceLedgerEntries(tx, logger, in.Key)
	if err != nil {
		return nil, nil, err
	}
	causeStrict := policy == NegativeStockStrict && in.Effect == models.MovementEffectDecrease
	blocking, err := blockingEntries(tx, policies, causeStrict, result)
	if err != nil {
		return nil, nil, err
	}
	if len(blocking) > 0 {
		available := priorBalance.Quantity
		for _, w := range blocking {
			available = decimal.Min(available, w.Before)
		}
		return nil, nil, &models.InsufficientStockError{
			ProductId:   in.Key.ProductId,
			WarehouseId: in.Key.WarehouseId,
			Available:   decimal.Max(available, decimal.Zero),
			Requested:   in.Quantity,
		}
	}
	return &entry, result, nil
}

// blockingEntries picks the worsened entries a change may not cause: any entry
// of a strict-policy document, plus, when the change itself is strict, entries
// it takes from zero or above to below zero.
func blockingEntries(tx *gorm.DB, policies StockPolicies, causeStrict bool, result *RebuildResult) ([]worsenedEntry, error) {
	if len(result.worsened) == 0 {
		return nil, nil
	}
	docIds := make([]int, 0, len(result.worsened))
	for _, w := range result.worsened {
		docIds = append(docIds, w.DocumentId)
	}
	kinds, err := models.DocumentMovementKinds(tx, docIds)
	if err != nil {
		return nil, err
	}
	var blocking []worsenedEntry
	for _, w := range result.worsened {
		if policies.For(kinds[w.DocumentId]) == NegativeStockStrict || (causeStrict && !w.Before.IsNegative()) {
			blocking = append(blocking, w)
		}
	}
	return blocking, nil
}
