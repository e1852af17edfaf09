package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&ChequeRecord{},
		&IdempotencyKey{},
		&InventoryDocument{},
		&OutboxRecord{},
		&Product{},
		&Sequence{},
		&StockItem{}, &StockLedgerEntry{},
		&TransactionType{},
		&Voucher{}, &VoucherLine{},
		&Warehouse{},
	)
}
