package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"bitbucket.org/mmdatafocus/stock_ledger/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

type NewVoucherLine struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Description string          `json:"description" validate:"max=255"`
	Debit       decimal.Decimal `json:"debit" validate:"gte=0"`
	Credit      decimal.Decimal `json:"credit" validate:"gte=0"`
}

type NewVoucher struct {
	VoucherDate time.Time        `json:"voucher_date" validate:"required"`
	Notes       string           `json:"notes"`
	Lines       []NewVoucherLine `json:"lines" validate:"required,min=2,dive"`
}

// CreateVoucher posts a manual journal voucher numbered from the JV sequence.
func CreateVoucher(ctx context.Context, db *gorm.DB, logger *logrus.Logger, accounts AccountResolver, prefixes SequencePrefixes, input *NewVoucher) (*models.Voucher, error) {
	ctx, span := tracer.Start(ctx, "CreateVoucher")
	defer span.End()

	voucher, err := createVoucher(ctx, db, accounts, prefixes, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(logger, "VoucherWorkflow.go", "CreateVoucher", "Creating manual voucher", input, err)
		return nil, err
	}
	return voucher, nil
}

func createVoucher(ctx context.Context, db *gorm.DB, accounts AccountResolver, prefixes SequencePrefixes, input *NewVoucher) (*models.Voucher, error) {
	if input == nil {
		return nil, models.NewValidationError("voucher", "is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	lines := make([]models.VoucherLine, 0, len(input.Lines))
	total := decimal.Zero
	for i, l := range input.Lines {
		// exactly one side per line
		if l.Debit.IsPositive() == l.Credit.IsPositive() {
			return nil, models.NewValidationError("lines", "line %d must carry either a debit or a credit", i+1)
		}
		ref, err := accounts.FindAccountByCode(ctx, l.AccountCode)
		if err != nil {
			return nil, err
		}
		debit := l.Debit.Round(costPrecision)
		lines = append(lines, models.VoucherLine{
			AccountId:       ref.AccountId,
			DetailAccountId: ref.DetailAccountId,
			Description:     l.Description,
			Debit:           debit,
			Credit:          l.Credit.Round(costPrecision),
		})
		total = total.Add(debit)
	}
	if err := models.CheckVoucherBalance(lines); err != nil {
		// caller supplied the lines, so this is bad input rather than a defect
		return nil, models.NewValidationError("lines", "%s", err.Error())
	}

	date := input.VoucherDate.UTC()
	voucher := &models.Voucher{
		VoucherDate: date,
		TotalAmount: total,
		Notes:       input.Notes,
		Lines:       lines,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := AllocateNext(tx, models.SequenceKeyVoucher, utils.PeriodOf(date))
		if err != nil {
			return err
		}
		voucher.VoucherNumber = FormatDocumentNumber(prefixes.Prefix(models.SequenceKeyVoucher), date, n)
		return models.CreateVoucherRecord(tx, voucher)
	})
	if err != nil {
		return nil, models.ClassifyDBError("CreateVoucher", err)
	}
	return voucher, nil
}
