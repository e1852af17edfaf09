package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"github.com/shopspring/decimal"
)

// AccountSlot names an account position in a posting template. Most slots are
// chart roles; Offset and Bank are supplied per document.
type AccountSlot string

const (
	SlotInventory         = AccountSlot(models.AccountRoleInventory)
	SlotRawMaterial       = AccountSlot(models.AccountRoleRawMaterial)
	SlotFinishedGoods     = AccountSlot(models.AccountRoleFinishedGoods)
	SlotWorkInProgress    = AccountSlot(models.AccountRoleWorkInProgress)
	SlotProductionCost    = AccountSlot(models.AccountRoleProductionCost)
	SlotCustomer          = AccountSlot(models.AccountRoleCustomer)
	SlotCash              = AccountSlot(models.AccountRoleCash)
	SlotChequesReceivable = AccountSlot(models.AccountRoleChequesReceivable)
	SlotOffset            = AccountSlot("OFFSET")
	SlotBank              = AccountSlot("BANK")
)

// Role is the chart role behind the slot, if it has one.
func (s AccountSlot) Role() (models.AccountRole, bool) {
	r := models.AccountRole(s)
	return r, r.IsValid()
}

// PostingAccounts holds the resolved account for each slot a template uses.
type PostingAccounts map[AccountSlot]*AccountRef

// postingLeg is one balanced debit/credit pair.
type postingLeg struct {
	debit       AccountSlot
	credit      AccountSlot
	description string
}

type postingRuleKey struct {
	kind   models.MovementKind
	method models.PaymentMethod
}

// PostingRule is the template for one (kind, method) pair.
type PostingRule struct {
	legs []postingLeg
	// the document also produces a ChequeRecord tied to the voucher
	CreatesCheque bool
}

var saleRecognition = postingLeg{debit: SlotCustomer, credit: SlotInventory, description: "Sale"}

var postingRules = map[postingRuleKey]PostingRule{
	{models.MovementKindReceipt, ""}: {legs: []postingLeg{
		{debit: SlotInventory, credit: SlotOffset, description: "Stock receipt"},
	}},
	{models.MovementKindIssue, ""}: {legs: []postingLeg{
		{debit: SlotOffset, credit: SlotInventory, description: "Stock issue"},
	}},
	{models.MovementKindSale, models.PaymentMethodCash}: {legs: []postingLeg{
		saleRecognition,
		{debit: SlotCash, credit: SlotCustomer, description: "Cash received"},
	}},
	{models.MovementKindSale, models.PaymentMethodCheque}: {legs: []postingLeg{
		saleRecognition,
		{debit: SlotChequesReceivable, credit: SlotCustomer, description: "Cheque received"},
	}, CreatesCheque: true},
	{models.MovementKindSale, models.PaymentMethodTransfer}: {legs: []postingLeg{
		saleRecognition,
		{debit: SlotBank, credit: SlotCustomer, description: "Bank transfer received"},
	}},
	{models.MovementKindSale, models.PaymentMethodCredit}: {legs: []postingLeg{
		saleRecognition,
	}},
	{models.MovementKindProductionConsumption, ""}: {legs: []postingLeg{
		{debit: SlotProductionCost, credit: SlotRawMaterial, description: "Production consumption"},
	}},
	{models.MovementKindProductionOutput, ""}: {legs: []postingLeg{
		{debit: SlotFinishedGoods, credit: SlotWorkInProgress, description: "Production output"},
	}},
}

// LookupPostingRule finds the template. The payment method only matters for sales.
func LookupPostingRule(kind models.MovementKind, method models.PaymentMethod) (PostingRule, error) {
	if kind != models.MovementKindSale {
		method = ""
	} else if !method.IsValid() {
		return PostingRule{}, models.NewValidationError("payment_method", "%q is not a valid payment method", method)
	}
	rule, ok := postingRules[postingRuleKey{kind: kind, method: method}]
	if !ok {
		return PostingRule{}, models.NewValidationError("transaction_type", "no posting rule for %s/%s", kind, method)
	}
	return rule, nil
}

// Slots lists the distinct account slots the rule posts to, in template order.
func (r PostingRule) Slots() []AccountSlot {
	seen := map[AccountSlot]bool{}
	var out []AccountSlot
	for _, leg := range r.legs {
		for _, s := range []AccountSlot{leg.debit, leg.credit} {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// BuildJournal expands the (kind, method) template into voucher lines for amount.
func BuildJournal(kind models.MovementKind, method models.PaymentMethod, accounts PostingAccounts, amount decimal.Decimal) ([]models.VoucherLine, error) {
	rule, err := LookupPostingRule(kind, method)
	if err != nil {
		return nil, err
	}
	return rule.Build(accounts, amount)
}

func (r PostingRule) Build(accounts PostingAccounts, amount decimal.Decimal) ([]models.VoucherLine, error) {
	if !amount.IsPositive() {
		return nil, models.NewValidationError("amount", "posting amount must be positive, got %s", amount.String())
	}
	amount = amount.Round(costPrecision)

	lines := make([]models.VoucherLine, 0, len(r.legs)*2)
	for _, leg := range r.legs {
		debitAcc, err := accounts.get(leg.debit)
		if err != nil {
			return nil, err
		}
		creditAcc, err := accounts.get(leg.credit)
		if err != nil {
			return nil, err
		}
		lines = append(lines,
			voucherLine(debitAcc, leg.description, amount, decimal.Zero),
			voucherLine(creditAcc, leg.description, decimal.Zero, amount),
		)
	}
	if err := models.CheckVoucherBalance(lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (a PostingAccounts) get(slot AccountSlot) (*AccountRef, error) {
	ref, ok := a[slot]
	if !ok || ref == nil || ref.AccountId <= 0 {
		return nil, models.NewNotFoundError("account", fmt.Sprintf("slot %s", slot))
	}
	return ref, nil
}

func voucherLine(ref *AccountRef, description string, debit, credit decimal.Decimal) models.VoucherLine {
	return models.VoucherLine{
		AccountId:       ref.AccountId,
		DetailAccountId: ref.DetailAccountId,
		Description:     description,
		Debit:           debit,
		Credit:          credit,
	}
}

// adjustmentLines re-posts the legs of a posted voucher for delta: a positive
// delta repeats every leg, a negative one reverses it.
func adjustmentLines(posted []models.VoucherLine, delta decimal.Decimal, description string) ([]models.VoucherLine, error) {
	amount := delta.Abs().Round(costPrecision)
	if !amount.IsPositive() {
		return nil, models.NewValidationError("amount", "adjustment amount must be non-zero")
	}
	lines := make([]models.VoucherLine, 0, len(posted))
	for _, p := range posted {
		debit := p.Debit.IsPositive()
		if delta.IsNegative() {
			debit = !debit
		}
		l := models.VoucherLine{
			AccountId:       p.AccountId,
			DetailAccountId: p.DetailAccountId,
			Description:     description,
			Debit:           decimal.Zero,
			Credit:          decimal.Zero,
		}
		if debit {
			l.Debit = amount
		} else {
			l.Credit = amount
		}
		lines = append(lines, l)
	}
	if err := models.CheckVoucherBalance(lines); err != nil {
		return nil, err
	}
	return lines, nil
}
