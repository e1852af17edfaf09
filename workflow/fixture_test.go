package workflow

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"bitbucket.org/mmdatafocus/stock_ledger/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	typeOpening   = "OPENING"
	typeAdjustOut = "ADJUST_OUT"
	bankCode      = "1121"
)

var baseDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return baseDate.AddDate(0, 0, n)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, what string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: want %s, got %s", what, want, got.String())
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDatabase(config.Settings{
		DBDriver:   config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "ledger.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type ledgerFixture struct {
	ctx       context.Context
	db        *gorm.DB
	logger    *logrus.Logger
	accounts  *GormAccountResolver
	flow      *DocumentWorkflow
	warehouse models.Warehouse
	widget    models.Product
	gadget    models.Product
}

// newLedgerFixture seeds the defaults plus two non-posting types, a bank detail
// account and two products.
func newLedgerFixture(t *testing.T, opts ...DocumentWorkflowOption) *ledgerFixture {
	t.Helper()
	ctx := context.Background()
	db := newTestDB(t)
	logger := quietLogger()
	require.NoError(t, SeedDefaults(ctx, db, nil))

	extraTypes := []models.TransactionType{
		{Code: typeOpening, Label: "Opening Stock", Effect: models.MovementEffectIncrease, Kind: models.MovementKindReceipt, RequiresPosting: utils.NewFalse(), SequenceKey: "OPN"},
		{Code: typeAdjustOut, Label: "Adjustment Out", Effect: models.MovementEffectDecrease, Kind: models.MovementKindIssue, RequiresPosting: utils.NewFalse(), SequenceKey: "ADJ"},
	}
	require.NoError(t, db.Create(&extraTypes).Error)

	bank := models.Account{Code: "1120", Name: "Bank", DetailType: models.AccountDetailTypeBank, IsDetail: utils.NewFalse(), IsActive: utils.NewTrue()}
	require.NoError(t, db.Create(&bank).Error)
	bankDetail := models.Account{Code: bankCode, Name: "City Bank Current", DetailType: models.AccountDetailTypeBank, ParentAccountId: bank.ID, IsDetail: utils.NewTrue(), IsActive: utils.NewTrue()}
	require.NoError(t, db.Create(&bankDetail).Error)

	widget := models.Product{Code: "W-1", Name: "Widget", PurchasePrice: dec("8"), MinimumStock: dec("5"), IsActive: utils.NewTrue()}
	gadget := models.Product{Code: "G-1", Name: "Gadget", PurchasePrice: dec("3"), IsActive: utils.NewTrue()}
	require.NoError(t, db.Create(&widget).Error)
	require.NoError(t, db.Create(&gadget).Error)

	var warehouse models.Warehouse
	require.NoError(t, db.Where("code = ?", "MAIN").Take(&warehouse).Error)

	accounts := NewGormAccountResolver(db, logger, nil)
	return &ledgerFixture{
		ctx:       ctx,
		db:        db,
		logger:    logger,
		accounts:  accounts,
		flow:      NewDocumentWorkflow(db, logger, accounts, opts...),
		warehouse: warehouse,
		widget:    widget,
		gadget:    gadget,
	}
}

func (f *ledgerFixture) key(p models.Product) models.StockKey {
	return models.StockKey{ProductId: p.ID, WarehouseId: f.warehouse.ID}
}

func (f *ledgerFixture) doc(typeCode string, date time.Time, lines ...NewDocumentLine) *NewInventoryDocument {
	return &NewInventoryDocument{
		TransactionTypeCode: typeCode,
		WarehouseId:         f.warehouse.ID,
		DocumentDate:        date,
		Lines:               lines,
	}
}

func line(p models.Product, qty string, price string) NewDocumentLine {
	return NewDocumentLine{ProductId: p.ID, Quantity: dec(qty), UnitPrice: dec(price)}
}

func (f *ledgerFixture) create(t *testing.T, input *NewInventoryDocument) *DocumentResult {
	t.Helper()
	res, err := f.flow.CreateDocument(f.ctx, input)
	require.NoError(t, err)
	return res
}

func (f *ledgerFixture) sale(p models.Product, date time.Time, qty string, price string, payment *NewPayment) *NewInventoryDocument {
	in := f.doc("SALE", date, line(p, qty, price))
	in.Payment = payment
	return in
}

func (f *ledgerFixture) stockQuantity(t *testing.T, p models.Product) decimal.Decimal {
	t.Helper()
	item, err := models.GetStockItem(f.db, f.key(p))
	require.NoError(t, err)
	return item.Quantity
}

func (f *ledgerFixture) accountId(t *testing.T, code string) int {
	t.Helper()
	account, err := models.GetAccountByCode(f.db, code)
	require.NoError(t, err)
	return account.ID
}

func (f *ledgerFixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *ledgerFixture) entry(t *testing.T, id int) models.StockLedgerEntry {
	t.Helper()
	var e models.StockLedgerEntry
	require.NoError(t, f.db.Where("id = ?", id).Take(&e).Error)
	return e
}

// assertDocumentTotals checks every header against Σ line_cost of its entries
// and, for vouchered documents posted at cost, against the net of the original
// voucher and its adjustments on the originally debited account.
func (f *ledgerFixture) assertDocumentTotals(t *testing.T) {
	t.Helper()
	var docs []models.InventoryDocument
	require.NoError(t, f.db.Order("id ASC").Find(&docs).Error)
	for _, doc := range docs {
		sum, err := models.SumDocumentLineCost(f.db, doc.ID)
		require.NoError(t, err)
		assertDecimal(t, sum.String(), doc.TotalAmount, doc.DocumentNumber+" total_amount")

		if !doc.HasVoucher() {
			continue
		}
		ttype, err := models.FindTransactionType(f.db, doc.TransactionTypeId, "")
		require.NoError(t, err)
		if ttype.Kind == models.MovementKindSale {
			continue
		}
		vouchers, err := models.ListDocumentVouchers(f.db, doc.ID)
		require.NoError(t, err)
		require.NotEmpty(t, vouchers)
		debited := vouchers[0].Lines[0].AccountId
		net := decimal.Zero
		for _, v := range vouchers {
			for _, l := range v.Lines {
				if l.AccountId == debited {
					net = net.Add(l.Debit).Sub(l.Credit)
				}
			}
		}
		assertDecimal(t, doc.TotalAmount.String(), net, doc.DocumentNumber+" posted amount")
	}
}
