package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Warehouse struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Code      string    `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetWarehouse(tx *gorm.DB, id int) (*Warehouse, error) {
	var warehouse Warehouse
	if err := tx.Where("id = ?", id).Take(&warehouse).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("warehouse", id)
		}
		return nil, ClassifyDBError("GetWarehouse", err)
	}
	if warehouse.IsActive != nil && !*warehouse.IsActive {
		return nil, NewValidationError("warehouse_id", "warehouse %d is inactive", id)
	}
	return &warehouse, nil
}
