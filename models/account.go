package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

type AccountDetailType string

const (
	AccountDetailTypeStock              AccountDetailType = "Stock"
	AccountDetailTypeCash               AccountDetailType = "Cash"
	AccountDetailTypeBank               AccountDetailType = "Bank"
	AccountDetailTypeAccountsReceivable AccountDetailType = "AccountsReceivable"
	AccountDetailTypeAccountsPayable    AccountDetailType = "AccountsPayable"
	AccountDetailTypeCostOfGoodsSold    AccountDetailType = "CostOfGoodsSold"
	AccountDetailTypeExpense            AccountDetailType = "Expense"
	AccountDetailTypeOtherCurrentAsset  AccountDetailType = "OtherCurrentAsset"
)

// Account is one node of the chart of accounts. Detail accounts are leaves
// posted through their parent (sub-account) with DetailAccountId set on the line.
type Account struct {
	ID              int               `gorm:"primary_key" json:"id"`
	Code            string            `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Name            string            `gorm:"size:100;not null" json:"name"`
	DetailType      AccountDetailType `gorm:"size:50;index;not null;default:'Expense'" json:"detail_type"`
	ParentAccountId int               `gorm:"index;not null;default:0" json:"parent_account_id"`
	IsDetail        *bool             `gorm:"not null;default:false" json:"is_detail"`
	IsActive        *bool             `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a Account) Detail() bool {
	return a.IsDetail != nil && *a.IsDetail
}

func (a Account) Active() bool {
	return a.IsActive == nil || *a.IsActive
}

func GetAccountByCode(tx *gorm.DB, code string) (*Account, error) {
	var account Account
	code = strings.TrimSpace(code)
	if err := tx.Where("code = ?", code).Take(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("account", code)
		}
		return nil, ClassifyDBError("GetAccountByCode", err)
	}
	if !account.Active() {
		return nil, NewNotFoundError("active account", code)
	}
	return &account, nil
}
