package workflow

import (
	"strings"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"github.com/shopspring/decimal"
)

// money and quantity columns are decimal(20,4)
const costPrecision = 4

// Balance is the running quantity and value of one (product, warehouse) key.
type Balance struct {
	Quantity decimal.Decimal `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
}

func BalanceOf(entry *models.StockLedgerEntry) Balance {
	if entry == nil {
		return Balance{Quantity: decimal.Zero, Value: decimal.Zero}
	}
	return Balance{Quantity: entry.RunningBalanceQuantity, Value: entry.RunningBalanceValue}
}

// MovementCost is the outcome of applying one movement to a balance.
type MovementCost struct {
	Balance  Balance
	UnitCost decimal.Decimal
	LineCost decimal.Decimal
}

// ApplyMovement is the weighted-average costing rule.
//
// An increase adds quantity*unitPrice to the value. A decrease is charged at
// value/quantity while quantity is positive and at unitPrice otherwise; when it
// empties the key exactly, the whole remaining value goes out with it.
func ApplyMovement(prior Balance, effect models.MovementEffect, quantity decimal.Decimal, unitPrice decimal.Decimal) (MovementCost, error) {
	if !quantity.IsPositive() {
		return MovementCost{}, models.NewValidationError("quantity", "must be positive")
	}
	if unitPrice.IsNegative() {
		return MovementCost{}, models.NewValidationError("unit_price", "must not be negative")
	}

	switch effect {
	case models.MovementEffectIncrease:
		lineCost := quantity.Mul(unitPrice).Round(costPrecision)
		return MovementCost{
			Balance: Balance{
				Quantity: prior.Quantity.Add(quantity),
				Value:    prior.Value.Add(lineCost),
			},
			UnitCost: unitPrice.Round(costPrecision),
			LineCost: lineCost,
		}, nil

	case models.MovementEffectDecrease:
		unitCost := unitPrice
		if prior.Quantity.IsPositive() {
			unitCost = prior.Value.Div(prior.Quantity)
		}
		newQty := prior.Quantity.Sub(quantity)
		lineCost := quantity.Mul(unitCost).Round(costPrecision)
		if newQty.IsZero() {
			lineCost = prior.Value
		}
		return MovementCost{
			Balance: Balance{
				Quantity: newQty,
				Value:    prior.Value.Sub(lineCost),
			},
			UnitCost: unitCost.Round(costPrecision),
			LineCost: lineCost,
		}, nil
	}
	return MovementCost{}, models.NewValidationError("effect", "%q is not a valid movement effect", effect)
}

type NegativeStockPolicy string

const (
	NegativeStockStrict     NegativeStockPolicy = config.NegativeStockStrict
	NegativeStockPermissive NegativeStockPolicy = config.NegativeStockPermissive
)

// StockPolicies maps a movement kind to what happens when it drives a key below zero.
type StockPolicies map[models.MovementKind]NegativeStockPolicy

// DefaultStockPolicies rejects sales and production consumption that outrun
// stock and lets the other kinds go negative with a flag.
func DefaultStockPolicies() StockPolicies {
	return StockPolicies{
		models.MovementKindReceipt:               NegativeStockPermissive,
		models.MovementKindIssue:                 NegativeStockPermissive,
		models.MovementKindSale:                  NegativeStockStrict,
		models.MovementKindProductionConsumption: NegativeStockStrict,
		models.MovementKindProductionOutput:      NegativeStockPermissive,
	}
}

// NewStockPolicies layers config overrides (kind -> policy) on the defaults.
func NewStockPolicies(overrides map[string]string) StockPolicies {
	p := DefaultStockPolicies()
	for kind, policy := range overrides {
		k := models.MovementKind(strings.ToUpper(kind))
		if !k.IsValid() {
			continue
		}
		switch NegativeStockPolicy(policy) {
		case NegativeStockStrict, NegativeStockPermissive:
			p[k] = NegativeStockPolicy(policy)
		}
	}
	return p
}

func (p StockPolicies) For(kind models.MovementKind) NegativeStockPolicy {
	if policy, ok := p[kind]; ok {
		return policy
	}
	return NegativeStockPermissive
}
