package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is maintained by the catalogue service; the ledger only reads it.
type Product struct {
	ID            int             `gorm:"primary_key" json:"id"`
	Code          string          `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Name          string          `gorm:"size:100;not null" json:"name"`
	PurchasePrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"purchase_price"`
	MinimumStock  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"minimum_stock"`
	MaximumStock  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"maximum_stock"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BelowMinimum reports whether qty has dropped under a configured minimum.
func (p Product) BelowMinimum(qty decimal.Decimal) bool {
	return p.MinimumStock.IsPositive() && qty.LessThan(p.MinimumStock)
}

func GetProduct(tx *gorm.DB, id int) (*Product, error) {
	var product Product
	if err := tx.Where("id = ?", id).Take(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("product", id)
		}
		return nil, ClassifyDBError("GetProduct", err)
	}
	if product.IsActive != nil && !*product.IsActive {
		return nil, NewValidationError("product_id", "product %d is inactive", id)
	}
	return &product, nil
}

// GetProductsByIds loads every id or fails with NotFoundError naming the first missing one.
func GetProductsByIds(tx *gorm.DB, ids []int) (map[int]Product, error) {
	var products []Product
	if err := tx.Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, ClassifyDBError("GetProductsByIds", err)
	}
	out := make(map[int]Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	for _, id := range ids {
		p, ok := out[id]
		if !ok {
			return nil, NewNotFoundError("product", id)
		}
		if p.IsActive != nil && !*p.IsActive {
			return nil, NewValidationError("product_id", "product %d is inactive", id)
		}
	}
	return out, nil
}
