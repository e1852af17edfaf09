package workflow

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"bitbucket.org/mmdatafocus/stock_ledger/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var roleAccountNames = map[models.AccountRole]struct {
	name       string
	detailType models.AccountDetailType
}{
	models.AccountRoleInventory:         {"Inventory", models.AccountDetailTypeStock},
	models.AccountRoleRawMaterial:       {"Raw Material Inventory", models.AccountDetailTypeStock},
	models.AccountRoleFinishedGoods:     {"Finished Goods Inventory", models.AccountDetailTypeStock},
	models.AccountRoleWorkInProgress:    {"Work In Progress", models.AccountDetailTypeStock},
	models.AccountRoleProductionCost:    {"Production Cost", models.AccountDetailTypeCostOfGoodsSold},
	models.AccountRoleCustomer:          {"Accounts Receivable", models.AccountDetailTypeAccountsReceivable},
	models.AccountRoleCash:              {"Cash On Hand", models.AccountDetailTypeCash},
	models.AccountRoleChequesReceivable: {"Cheques Receivable", models.AccountDetailTypeOtherCurrentAsset},
	models.AccountRoleSupplier:          {"Accounts Payable", models.AccountDetailTypeAccountsPayable},
	models.AccountRoleConsumption:       {"Stock Consumption", models.AccountDetailTypeExpense},
}

// DefaultTransactionTypes are the types every ledger starts with, one per kind.
func DefaultTransactionTypes() []models.TransactionType {
	return []models.TransactionType{
		{Code: "RECEIPT", Label: "Stock Receipt", Effect: models.MovementEffectIncrease, Kind: models.MovementKindReceipt, RequiresPosting: utils.NewTrue(), SequenceKey: "GRN"},
		{Code: "ISSUE", Label: "Stock Issue", Effect: models.MovementEffectDecrease, Kind: models.MovementKindIssue, RequiresPosting: utils.NewTrue(), SequenceKey: "ISS"},
		{Code: "SALE", Label: "Sale", Effect: models.MovementEffectDecrease, Kind: models.MovementKindSale, RequiresPosting: utils.NewTrue(), SequenceKey: "INV"},
		{Code: "PRODUCTION_CONSUMPTION", Label: "Production Consumption", Effect: models.MovementEffectDecrease, Kind: models.MovementKindProductionConsumption, RequiresPosting: utils.NewTrue(), SequenceKey: "PC"},
		{Code: "PRODUCTION_OUTPUT", Label: "Production Output", Effect: models.MovementEffectIncrease, Kind: models.MovementKindProductionOutput, RequiresPosting: utils.NewTrue(), SequenceKey: "PO"},
	}
}

// SeedDefaults migrates the schema and inserts the default transaction types,
// one account per role and a MAIN warehouse. Existing rows are left alone.
func SeedDefaults(ctx context.Context, db *gorm.DB, roleCodes map[models.AccountRole]string) error {
	if roleCodes == nil {
		roleCodes = DefaultRoleAccountCodes()
	}
	if err := models.MigrateTable(db.WithContext(ctx)); err != nil {
		return models.ClassifyDBError("SeedDefaults", err)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skipExisting := clause.OnConflict{DoNothing: true}

		types := DefaultTransactionTypes()
		for i := range types {
			if err := types[i].Validate(); err != nil {
				return err
			}
		}
		if err := tx.Clauses(skipExisting).Create(&types).Error; err != nil {
			return models.ClassifyDBError("SeedDefaults", err)
		}

		for _, role := range models.AllAccountRole {
			code := strings.TrimSpace(roleCodes[role])
			if code == "" {
				continue
			}
			meta := roleAccountNames[role]
			account := models.Account{
				Code:       code,
				Name:       meta.name,
				DetailType: meta.detailType,
				IsDetail:   utils.NewFalse(),
				IsActive:   utils.NewTrue(),
			}
			if err := tx.Clauses(skipExisting).Create(&account).Error; err != nil {
				return models.ClassifyDBError("SeedDefaults", err)
			}
		}

		warehouse := models.Warehouse{Code: "MAIN", Name: "Main Warehouse", IsActive: utils.NewTrue()}
		if err := tx.Clauses(skipExisting).Create(&warehouse).Error; err != nil {
			return models.ClassifyDBError("SeedDefaults", err)
		}
		return nil
	})
}
