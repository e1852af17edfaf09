package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPostingAccounts() PostingAccounts {
	detail := 91
	accounts := PostingAccounts{
		SlotOffset: {AccountId: 50, Code: "OFF"},
		SlotBank:   {AccountId: 90, DetailAccountId: &detail, Code: "BANK-1"},
	}
	for i, role := range models.AllAccountRole {
		accounts[AccountSlot(role)] = &AccountRef{AccountId: i + 1, Code: string(role)}
	}
	return accounts
}

func TestBuildJournal_EveryTemplateBalances(t *testing.T) {
	accounts := testPostingAccounts()
	for key, rule := range postingRules {
		lines, err := BuildJournal(key.kind, key.method, accounts, dec("123.45"))
		require.NoError(t, err, "%s/%s", key.kind, key.method)
		assert.Len(t, lines, len(rule.legs)*2)

		debit, credit := models.SumVoucherLines(lines)
		assert.True(t, debit.Equal(credit), "%s/%s", key.kind, key.method)
		assertDecimal(t, "123.45", debit.Div(decimal.NewFromInt(int64(len(rule.legs)))), "debit per leg")
	}
}

func TestBuildJournal_SaleTemplates(t *testing.T) {
	accounts := testPostingAccounts()

	cases := []struct {
		method        models.PaymentMethod
		debits        []AccountSlot
		credits       []AccountSlot
		createsCheque bool
	}{
		{models.PaymentMethodCash, []AccountSlot{SlotCustomer, SlotCash}, []AccountSlot{SlotInventory, SlotCustomer}, false},
		{models.PaymentMethodCheque, []AccountSlot{SlotCustomer, SlotChequesReceivable}, []AccountSlot{SlotInventory, SlotCustomer}, true},
		{models.PaymentMethodTransfer, []AccountSlot{SlotCustomer, SlotBank}, []AccountSlot{SlotInventory, SlotCustomer}, false},
		{models.PaymentMethodCredit, []AccountSlot{SlotCustomer}, []AccountSlot{SlotInventory}, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.method), func(t *testing.T) {
			rule, err := LookupPostingRule(models.MovementKindSale, tc.method)
			require.NoError(t, err)
			assert.Equal(t, tc.createsCheque, rule.CreatesCheque)

			lines, err := rule.Build(accounts, dec("10"))
			require.NoError(t, err)
			var debits, credits []int
			for _, l := range lines {
				if l.Debit.IsPositive() {
					debits = append(debits, l.AccountId)
				} else {
					credits = append(credits, l.AccountId)
				}
			}
			var wantDebits, wantCredits []int
			for _, s := range tc.debits {
				wantDebits = append(wantDebits, accounts[s].AccountId)
			}
			for _, s := range tc.credits {
				wantCredits = append(wantCredits, accounts[s].AccountId)
			}
			assert.Equal(t, wantDebits, debits)
			assert.Equal(t, wantCredits, credits)
		})
	}
}

func TestBuildJournal_BankLineCarriesDetailAccount(t *testing.T) {
	lines, err := BuildJournal(models.MovementKindSale, models.PaymentMethodTransfer, testPostingAccounts(), dec("5"))
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, 90, lines[2].AccountId)
	require.NotNil(t, lines[2].DetailAccountId)
	assert.Equal(t, 91, *lines[2].DetailAccountId)
}

func TestBuildJournal_NonSaleIgnoresMethod(t *testing.T) {
	a, err := LookupPostingRule(models.MovementKindReceipt, models.PaymentMethodCash)
	require.NoError(t, err)
	b, err := LookupPostingRule(models.MovementKindReceipt, "")
	require.NoError(t, err)
	assert.Equal(t, a.Slots(), b.Slots())
	assert.Equal(t, []AccountSlot{SlotInventory, SlotOffset}, a.Slots())

	consumption, err := LookupPostingRule(models.MovementKindProductionConsumption, "")
	require.NoError(t, err)
	assert.Equal(t, []AccountSlot{SlotProductionCost, SlotRawMaterial}, consumption.Slots())

	output, err := LookupPostingRule(models.MovementKindProductionOutput, "")
	require.NoError(t, err)
	assert.Equal(t, []AccountSlot{SlotFinishedGoods, SlotWorkInProgress}, output.Slots())
}

func TestBuildJournal_Errors(t *testing.T) {
	accounts := testPostingAccounts()

	_, err := BuildJournal(models.MovementKindReceipt, "", accounts, dec("0"))
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = BuildJournal(models.MovementKindReceipt, "", accounts, dec("-3"))
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = BuildJournal(models.MovementKindSale, "BARTER", accounts, dec("3"))
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = BuildJournal(models.MovementKind("GIFT"), "", accounts, dec("3"))
	assert.True(t, errors.Is(err, models.ErrValidation))

	delete(accounts, SlotOffset)
	_, err = BuildJournal(models.MovementKindIssue, "", accounts, dec("3"))
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestCheckVoucherBalance_ReportsImbalance(t *testing.T) {
	err := models.CheckVoucherBalance([]models.VoucherLine{
		{AccountId: 1, Debit: dec("10")},
		{AccountId: 2, Credit: dec("9.99")},
	})
	var imbalance *models.JournalImbalanceError
	require.True(t, errors.As(err, &imbalance))
	assertDecimal(t, "10", imbalance.Debit, "debit")
	assertDecimal(t, "9.99", imbalance.Credit, "credit")
}

func TestAdjustmentLines(t *testing.T) {
	detail := 91
	posted := []models.VoucherLine{
		{AccountId: 7, Debit: dec("400"), Credit: decimal.Zero},
		{AccountId: 3, DetailAccountId: &detail, Debit: decimal.Zero, Credit: dec("400")},
	}

	up, err := adjustmentLines(posted, dec("200"), "Cost adjustment")
	require.NoError(t, err)
	require.Len(t, up, 2)
	assert.Equal(t, 7, up[0].AccountId)
	assertDecimal(t, "200", up[0].Debit, "repeated debit")
	assertDecimal(t, "200", up[1].Credit, "repeated credit")
	assert.Equal(t, &detail, up[1].DetailAccountId)
	assert.Equal(t, "Cost adjustment", up[0].Description)

	down, err := adjustmentLines(posted, dec("-25.5"), "Cost adjustment")
	require.NoError(t, err)
	assertDecimal(t, "25.5", down[0].Credit, "reversed debit")
	assertDecimal(t, "25.5", down[1].Debit, "reversed credit")

	_, err = adjustmentLines(posted, decimal.Zero, "Cost adjustment")
	assert.True(t, errors.Is(err, models.ErrValidation))
}
