package models

import (
	"fmt"
	"strings"
)

type MovementEffect string

const (
	MovementEffectIncrease MovementEffect = "increase"
	MovementEffectDecrease MovementEffect = "decrease"
)

var AllMovementEffect = []MovementEffect{
	MovementEffectIncrease,
	MovementEffectDecrease,
}

func (e MovementEffect) IsValid() bool {
	switch e {
	case MovementEffectIncrease, MovementEffectDecrease:
		return true
	}
	return false
}

func (e MovementEffect) String() string {
	return string(e)
}

func ParseMovementEffect(v string) (MovementEffect, error) {
	e := MovementEffect(strings.ToLower(strings.TrimSpace(v)))
	if !e.IsValid() {
		return "", fmt.Errorf("%s is not a valid MovementEffect", v)
	}
	return e, nil
}

// MovementKind selects the posting template for a transaction type.
type MovementKind string

const (
	MovementKindReceipt               MovementKind = "RECEIPT"
	MovementKindIssue                 MovementKind = "ISSUE"
	MovementKindSale                  MovementKind = "SALE"
	MovementKindProductionConsumption MovementKind = "PRODUCTION_CONSUMPTION"
	MovementKindProductionOutput      MovementKind = "PRODUCTION_OUTPUT"
)

var AllMovementKind = []MovementKind{
	MovementKindReceipt,
	MovementKindIssue,
	MovementKindSale,
	MovementKindProductionConsumption,
	MovementKindProductionOutput,
}

func (e MovementKind) IsValid() bool {
	switch e {
	case MovementKindReceipt, MovementKindIssue, MovementKindSale, MovementKindProductionConsumption, MovementKindProductionOutput:
		return true
	}
	return false
}

func (e MovementKind) String() string {
	return string(e)
}

// NaturalEffect is the only effect a transaction type of this kind may carry.
func (e MovementKind) NaturalEffect() (MovementEffect, bool) {
	switch e {
	case MovementKindIssue, MovementKindSale, MovementKindProductionConsumption:
		return MovementEffectDecrease, true
	case MovementKindReceipt, MovementKindProductionOutput:
		return MovementEffectIncrease, true
	}
	return "", false
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodCheque   PaymentMethod = "CHEQUE"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodCredit   PaymentMethod = "CREDIT"
)

var AllPaymentMethod = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodCheque,
	PaymentMethodTransfer,
	PaymentMethodCredit,
}

func (e PaymentMethod) IsValid() bool {
	switch e {
	case PaymentMethodCash, PaymentMethodCheque, PaymentMethodTransfer, PaymentMethodCredit:
		return true
	}
	return false
}

func (e PaymentMethod) String() string {
	return string(e)
}

// AccountRole is a well-known chart-of-accounts slot. Callers resolve roles, never codes.
type AccountRole string

const (
	AccountRoleInventory         AccountRole = "INVENTORY"
	AccountRoleRawMaterial       AccountRole = "RAW_MATERIAL"
	AccountRoleFinishedGoods     AccountRole = "FINISHED_GOODS"
	AccountRoleWorkInProgress    AccountRole = "WORK_IN_PROGRESS"
	AccountRoleProductionCost    AccountRole = "PRODUCTION_COST"
	AccountRoleCustomer          AccountRole = "CUSTOMER"
	AccountRoleCash              AccountRole = "CASH"
	AccountRoleChequesReceivable AccountRole = "CHEQUES_RECEIVABLE"
	AccountRoleSupplier          AccountRole = "SUPPLIER"
	AccountRoleConsumption       AccountRole = "CONSUMPTION"
)

var AllAccountRole = []AccountRole{
	AccountRoleInventory,
	AccountRoleRawMaterial,
	AccountRoleFinishedGoods,
	AccountRoleWorkInProgress,
	AccountRoleProductionCost,
	AccountRoleCustomer,
	AccountRoleCash,
	AccountRoleChequesReceivable,
	AccountRoleSupplier,
	AccountRoleConsumption,
}

func (e AccountRole) IsValid() bool {
	for _, r := range AllAccountRole {
		if r == e {
			return true
		}
	}
	return false
}

func (e AccountRole) String() string {
	return string(e)
}

type ChequeStatus string

const (
	ChequeStatusPending ChequeStatus = "PENDING"
	ChequeStatusCleared ChequeStatus = "CLEARED"
	ChequeStatusBounced ChequeStatus = "BOUNCED"
)

type DocumentAction string

const (
	DocumentActionCreate DocumentAction = "CREATE"
	DocumentActionDelete DocumentAction = "DELETE"
)
