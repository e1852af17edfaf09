package workflow

import (
	"errors"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// spanRecorder installs a recording provider once; the package tracer delegates
// to whichever provider is set first.
var spanRecorder = sync.OnceValue(func() *tracetest.SpanRecorder {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	return recorder
})

func TestCreateVoucher_PostsBalancedLines(t *testing.T) {
	f := newLedgerFixture(t)

	voucher, err := CreateVoucher(f.ctx, f.db, f.logger, f.accounts, nil, &NewVoucher{
		VoucherDate: day(4),
		Notes:       "owner capital banked",
		Lines: []NewVoucherLine{
			{AccountCode: bankCode, Description: "deposit", Debit: dec("250.5")},
			{AccountCode: "1110", Description: "from cash", Credit: dec("250.5")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "JV-202603-0001", voucher.VoucherNumber)
	assertDecimal(t, "250.5", voucher.TotalAmount, "total")

	stored, err := models.GetVoucher(f.db, voucher.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	assert.Equal(t, f.accountId(t, "1120"), stored.Lines[0].AccountId)
	require.NotNil(t, stored.Lines[0].DetailAccountId)
	assert.Equal(t, f.accountId(t, bankCode), *stored.Lines[0].DetailAccountId)
	assertDecimal(t, "250.5", stored.Lines[0].Debit, "debit")
	assert.Equal(t, f.accountId(t, "1110"), stored.Lines[1].AccountId)
	assertDecimal(t, "250.5", stored.Lines[1].Credit, "credit")
	assert.Empty(t, stored.ReferenceType)

	// manual and posted vouchers share one sequence
	res := f.create(t, f.doc("RECEIPT", day(5), line(f.widget, "1", "10")))
	require.NotNil(t, res.VoucherNumber)
	assert.Equal(t, "JV-202603-0002", *res.VoucherNumber)
}

func TestCreateVoucher_RejectsBadInput(t *testing.T) {
	f := newLedgerFixture(t)

	cases := map[string]*NewVoucher{
		"nil":        nil,
		"one line":   {VoucherDate: day(0), Lines: []NewVoucherLine{{AccountCode: "1110", Debit: dec("1")}}},
		"no date":    {Lines: []NewVoucherLine{{AccountCode: "1110", Debit: dec("1")}, {AccountCode: "2110", Credit: dec("1")}}},
		"unbalanced": {VoucherDate: day(0), Lines: []NewVoucherLine{{AccountCode: "1110", Debit: dec("10")}, {AccountCode: "2110", Credit: dec("9")}}},
		"both sides": {VoucherDate: day(0), Lines: []NewVoucherLine{{AccountCode: "1110", Debit: dec("1"), Credit: dec("1")}, {AccountCode: "2110", Credit: dec("0")}}},
		"empty line": {VoucherDate: day(0), Lines: []NewVoucherLine{{AccountCode: "1110"}, {AccountCode: "2110"}}},
		"negative":   {VoucherDate: day(0), Lines: []NewVoucherLine{{AccountCode: "1110", Debit: dec("-1")}, {AccountCode: "2110", Credit: dec("-1")}}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := CreateVoucher(f.ctx, f.db, f.logger, f.accounts, nil, input)
			assert.True(t, errors.Is(err, models.ErrValidation), "got %v", err)
		})
	}

	_, err := CreateVoucher(f.ctx, f.db, f.logger, f.accounts, nil, &NewVoucher{
		VoucherDate: day(0),
		Lines:       []NewVoucherLine{{AccountCode: "0000", Debit: dec("1")}, {AccountCode: "2110", Credit: dec("1")}},
	})
	assert.True(t, errors.Is(err, models.ErrNotFound))

	assert.Zero(t, f.count(t, &models.Voucher{}))
	assert.Zero(t, f.count(t, &models.Sequence{}))
}

func TestCreateVoucher_RecordsErrorOnSpan(t *testing.T) {
	recorder := spanRecorder()
	f := newLedgerFixture(t)

	_, err := CreateVoucher(f.ctx, f.db, f.logger, f.accounts, nil, &NewVoucher{
		VoucherDate: day(0),
		Lines: []NewVoucherLine{
			{AccountCode: "1110", Debit: dec("10")},
			{AccountCode: "2110", Credit: dec("9")},
		},
	})
	require.Error(t, err)

	var failed sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "CreateVoucher" && s.Status().Code == codes.Error {
			failed = s
		}
	}
	require.NotNil(t, failed)
	require.NotEmpty(t, failed.Events())
	assert.Equal(t, "exception", failed.Events()[0].Name)
	assert.Contains(t, failed.Status().Description, "debit")
}
