package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"bitbucket.org/mmdatafocus/stock_ledger/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("bitbucket.org/mmdatafocus/stock_ledger/workflow")

type NewDocumentLine struct {
	ProductId int             `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	// purchase price for receipts, sale price for sales; zero on a receipt falls back to the product's purchase price
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Reference string          `json:"reference" validate:"max=100"`
}

type NewChequeInfo struct {
	ChequeNumber string    `json:"cheque_number" validate:"required,max=50"`
	DueDate      time.Time `json:"due_date" validate:"required"`
	BankName     string    `json:"bank_name" validate:"max=100"`
}

type NewPayment struct {
	Method models.PaymentMethod `json:"method" validate:"required,oneof=CASH CHEQUE TRANSFER CREDIT"`
	// detail account of the receiving bank, required for TRANSFER
	BankAccountCode string         `json:"bank_account_code" validate:"required_if=Method TRANSFER"`
	Cheque          *NewChequeInfo `json:"cheque" validate:"required_if=Method CHEQUE"`
}

type NewInventoryDocument struct {
	TransactionTypeId   int               `json:"transaction_type_id" validate:"required_without=TransactionTypeCode"`
	TransactionTypeCode string            `json:"transaction_type_code" validate:"required_without=TransactionTypeId"`
	WarehouseId         int               `json:"warehouse_id" validate:"required,gt=0"`
	DocumentDate        time.Time         `json:"document_date" validate:"required"`
	PersonId            *int              `json:"person_id"`
	Notes               string            `json:"notes"`
	Lines               []NewDocumentLine `json:"lines" validate:"required,min=1,dive"`
	Payment             *NewPayment       `json:"payment"`
	// counter account for generic receipts/issues; defaults to the SUPPLIER/CONSUMPTION role
	OffsetAccountCode string `json:"offset_account_code"`
	// optional caller key; a repeated request returns the first document instead of posting twice
	RequestId string `json:"request_id" validate:"max=255"`
}

// StockWarning flags a key that ended below the product's minimum.
type StockWarning struct {
	Key      models.StockKey `json:"key"`
	Quantity decimal.Decimal `json:"quantity"`
	Minimum  decimal.Decimal `json:"minimum"`
}

type DocumentResult struct {
	DocumentId     int                       `json:"document_id"`
	DocumentNumber string                    `json:"document_number"`
	VoucherId      *int                      `json:"voucher_id,omitempty"`
	VoucherNumber  *string                   `json:"voucher_number,omitempty"`
	LedgerEntries  []models.StockLedgerEntry `json:"ledger_entries"`
	TotalQuantity  decimal.Decimal           `json:"total_quantity"`
	CostAmount     decimal.Decimal           `json:"cost_amount"`
	SaleAmount     decimal.Decimal           `json:"sale_amount"`
	Warnings       []StockWarning            `json:"warnings,omitempty"`
	// numbers of vouchers posted to revalue later documents this one re-costed
	AdjustingVouchers []string `json:"adjusting_vouchers,omitempty"`
}

// DocumentWorkflow creates and reverses inventory documents. Every call is one
// database transaction: ledger, stock, header, voucher, cheque and outbox rows
// commit together or not at all.
type DocumentWorkflow struct {
	db       *gorm.DB
	logger   *logrus.Logger
	accounts AccountResolver
	cheques  ChequeWriter
	locker   KeyLocker
	policies StockPolicies
	prefixes SequencePrefixes

	// test seam between the ledger writes and posting
	beforePosting func(tx *gorm.DB, doc *models.InventoryDocument) error
}

type DocumentWorkflowOption func(*DocumentWorkflow)

func WithChequeWriter(w ChequeWriter) DocumentWorkflowOption {
	return func(d *DocumentWorkflow) { d.cheques = w }
}

func WithKeyLocker(l KeyLocker) DocumentWorkflowOption {
	return func(d *DocumentWorkflow) { d.locker = l }
}

func WithStockPolicies(p StockPolicies) DocumentWorkflowOption {
	return func(d *DocumentWorkflow) { d.policies = p }
}

func WithSequencePrefixes(p SequencePrefixes) DocumentWorkflowOption {
	return func(d *DocumentWorkflow) { d.prefixes = p }
}

func NewDocumentWorkflow(db *gorm.DB, logger *logrus.Logger, accounts AccountResolver, opts ...DocumentWorkflowOption) *DocumentWorkflow {
	d := &DocumentWorkflow{
		db:       db,
		logger:   logger,
		accounts: accounts,
		cheques:  GormChequeWriter{},
		locker:   NoopKeyLocker{},
		policies: DefaultStockPolicies(),
		prefixes: SequencePrefixes{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// postingPlan is everything posting needs that can be resolved before the transaction.
type postingPlan struct {
	rule     PostingRule
	method   models.PaymentMethod
	accounts PostingAccounts
}

func (d *DocumentWorkflow) CreateDocument(ctx context.Context, input *NewInventoryDocument) (*DocumentResult, error) {
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	ctx, span := tracer.Start(ctx, "DocumentWorkflow.CreateDocument", trace.WithAttributes(
		attribute.String("correlation_id", correlationId),
	))
	defer span.End()

	result, err := d.createDocument(ctx, input, correlationId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(d.logger, "DocumentWorkflow.go", "CreateDocument", "Creating inventory document", input, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("document_number", result.DocumentNumber))
	for _, w := range result.Warnings {
		d.logger.WithFields(logrus.Fields{
			"field":        "CreateDocument",
			"document":     result.DocumentNumber,
			"product_id":   w.Key.ProductId,
			"warehouse_id": w.Key.WarehouseId,
			"quantity":     w.Quantity.String(),
			"minimum":      w.Minimum.String(),
		}).Warn("stock below minimum")
	}
	return result, nil
}

func (d *DocumentWorkflow) createDocument(ctx context.Context, input *NewInventoryDocument, correlationId string) (*DocumentResult, error) {
	if input == nil {
		return nil, models.NewValidationError("document", "is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.RequestId != "" {
		replayed, ok, err := replayDocument(d.db.WithContext(ctx), input.RequestId)
		if err != nil {
			return nil, err
		}
		if ok {
			return replayed, nil
		}
	}
	docDate := input.DocumentDate.UTC()

	ttype, err := models.FindTransactionType(d.db.WithContext(ctx), input.TransactionTypeId, input.TransactionTypeCode)
	if err != nil {
		return nil, err
	}

	// accounts are resolved before the transaction: lookups go through caches and
	// a separate connection, and must not hold row locks while they run
	var plan *postingPlan
	if ttype.Posts() {
		plan, err = d.resolvePostingPlan(ctx, ttype, input)
		if err != nil {
			return nil, err
		}
	}

	keys := make([]models.StockKey, 0, len(input.Lines))
	productIds := make([]int, 0, len(input.Lines))
	for _, line := range input.Lines {
		keys = append(keys, models.StockKey{ProductId: line.ProductId, WarehouseId: input.WarehouseId})
		productIds = append(productIds, line.ProductId)
	}
	release, err := d.locker.LockKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &DocumentResult{}

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := models.GetWarehouse(tx, input.WarehouseId); err != nil {
			return err
		}
		products, err := models.GetProductsByIds(tx, utils.UniqueSlice(productIds))
		if err != nil {
			return err
		}

		seqKey := ttype.DocumentSequenceKey()
		n, err := AllocateNext(tx, seqKey, utils.PeriodOf(docDate))
		if err != nil {
			return err
		}

		// per-key serialization point, always taken in sorted key order
		stockItems, err := models.BulkLockStockItems(tx, keys)
		if err != nil {
			return err
		}
		if ttype.Effect == models.MovementEffectDecrease {
			for _, k := range keys {
				if _, ok := stockItems[k]; !ok {
					return models.NewNotFoundError("stock item", k)
				}
			}
		}

		doc := &models.InventoryDocument{
			DocumentNumber:    FormatDocumentNumber(d.prefixes.Prefix(seqKey), docDate, n),
			DocumentDate:      docDate,
			TransactionTypeId: ttype.ID,
			WarehouseId:       input.WarehouseId,
			PersonId:          input.PersonId,
			Notes:             input.Notes,
			CorrelationId:     correlationId,
			TotalQuantity:     decimal.Zero,
			TotalAmount:       decimal.Zero,
			SaleAmount:        decimal.Zero,
		}
		if plan != nil {
			method := plan.method
			doc.PaymentMethod = &method
		}
		if err := models.CreateInventoryDocument(tx, doc); err != nil {
			return err
		}

		var revalued []int
		for _, line := range input.Lines {
			key := models.StockKey{ProductId: line.ProductId, WarehouseId: input.WarehouseId}
			product := products[line.ProductId]
			unitPrice := line.UnitPrice
			if ttype.Effect == models.MovementEffectIncrease && unitPrice.IsZero() {
				unitPrice = product.PurchasePrice
			}

			entry, rebalanced, err := AppendLedgerEntry(tx, d.logger, d.policies, LedgerInput{
				DocumentId: doc.ID,
				Key:        key,
				Date:       docDate,
				Kind:       ttype.Kind,
				Effect:     ttype.Effect,
				Quantity:   line.Quantity,
				UnitPrice:  unitPrice,
				PersonId:   input.PersonId,
				Reference:  line.Reference,
			})
			if err != nil {
				return err
			}
			if rebalanced != nil {
				revalued = append(revalued, rebalanced.RevaluedDocumentIds...)
			}
			item, err := models.UpsertStockItem(tx, key, ttype.Effect, line.Quantity)
			if err != nil {
				return err
			}

			doc.TotalQuantity = doc.TotalQuantity.Add(line.Quantity)
			doc.TotalAmount = doc.TotalAmount.Add(entry.LineCost)
			if ttype.Kind == models.MovementKindSale {
				doc.SaleAmount = doc.SaleAmount.Add(entry.TotalPrice)
			}
			result.LedgerEntries = append(result.LedgerEntries, *entry)
			if product.BelowMinimum(item.Quantity) {
				result.Warnings = append(result.Warnings, StockWarning{Key: key, Quantity: item.Quantity, Minimum: product.MinimumStock})
			}
		}

		if err := tx.Model(&models.InventoryDocument{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
			"total_quantity": doc.TotalQuantity,
			"total_amount":   doc.TotalAmount,
			"sale_amount":    doc.SaleAmount,
		}).Error; err != nil {
			return models.ClassifyDBError("CreateDocument", err)
		}

		if d.beforePosting != nil {
			if err := d.beforePosting(tx, doc); err != nil {
				return err
			}
		}

		if plan != nil {
			voucher, err := d.postDocument(tx, plan, ttype, doc, input)
			if err != nil {
				return err
			}
			doc.VoucherId = &voucher.ID
			result.VoucherId = &voucher.ID
			result.VoucherNumber = &voucher.VoucherNumber
		}

		// later documents re-costed by a backdated line; this one is already exact
		later := revalued[:0]
		for _, id := range revalued {
			if id != doc.ID {
				later = append(later, id)
			}
		}
		adjustments, err := revalueDocuments(tx, d.logger, d.prefixes, later)
		if err != nil {
			return err
		}
		for _, v := range adjustments {
			result.AdjustingVouchers = append(result.AdjustingVouchers, v.VoucherNumber)
		}

		if input.RequestId != "" {
			if err := models.CreateIdempotencyKey(tx, createDocumentHandler, input.RequestId, doc.ID); err != nil {
				return err
			}
		}

		doc.LedgerEntries = result.LedgerEntries
		if err := enqueueDocumentEvent(ctx, tx, doc, ttype.Code, models.DocumentActionCreate, correlationId); err != nil {
			return err
		}

		result.DocumentId = doc.ID
		result.DocumentNumber = doc.DocumentNumber
		result.TotalQuantity = doc.TotalQuantity
		result.CostAmount = doc.TotalAmount
		result.SaleAmount = doc.SaleAmount
		return nil
	})
	if err != nil {
		return nil, models.ClassifyDBError("CreateDocument", err)
	}
	return result, nil
}

// resolvePostingPlan picks the template and resolves every account it needs.
func (d *DocumentWorkflow) resolvePostingPlan(ctx context.Context, ttype *models.TransactionType, input *NewInventoryDocument) (*postingPlan, error) {
	var method models.PaymentMethod
	if ttype.Kind == models.MovementKindSale {
		if input.Payment == nil {
			return nil, models.NewValidationError("payment", "is required for %s documents", ttype.Code)
		}
		method = input.Payment.Method
	}
	rule, err := LookupPostingRule(ttype.Kind, method)
	if err != nil {
		return nil, err
	}

	accounts := PostingAccounts{}
	for _, slot := range rule.Slots() {
		var ref *AccountRef
		switch slot {
		case SlotOffset:
			if input.OffsetAccountCode != "" {
				ref, err = d.accounts.FindAccountByCode(ctx, input.OffsetAccountCode)
			} else {
				role := models.AccountRoleSupplier
				if ttype.Effect == models.MovementEffectDecrease {
					role = models.AccountRoleConsumption
				}
				ref, err = d.accounts.FindAccountByRole(ctx, role)
			}
		case SlotBank:
			ref, err = d.accounts.FindAccountByCode(ctx, input.Payment.BankAccountCode)
		default:
			role, _ := slot.Role()
			ref, err = d.accounts.FindAccountByRole(ctx, role)
		}
		if err != nil {
			return nil, err
		}
		accounts[slot] = ref
	}
	return &postingPlan{rule: rule, method: method, accounts: accounts}, nil
}

// postDocument writes the voucher (and cheque) for doc inside tx. Sales post at
// the sale amount; every other kind posts at cost.
func (d *DocumentWorkflow) postDocument(tx *gorm.DB, plan *postingPlan, ttype *models.TransactionType, doc *models.InventoryDocument, input *NewInventoryDocument) (*models.Voucher, error) {
	amount := doc.TotalAmount
	if ttype.Kind == models.MovementKindSale {
		amount = doc.SaleAmount
	}
	lines, err := plan.rule.Build(plan.accounts, amount)
	if err != nil {
		return nil, err
	}

	n, err := AllocateNext(tx, models.SequenceKeyVoucher, utils.PeriodOf(doc.DocumentDate))
	if err != nil {
		return nil, err
	}
	voucher := &models.Voucher{
		VoucherNumber:   FormatDocumentNumber(d.prefixes.Prefix(models.SequenceKeyVoucher), doc.DocumentDate, n),
		VoucherDate:     doc.DocumentDate,
		TotalAmount:     amount.Round(costPrecision),
		ReferenceType:   models.VoucherReferenceInventoryDocument,
		ReferenceId:     doc.ID,
		ReferenceNumber: doc.DocumentNumber,
		Notes:           ttype.Label,
		Lines:           lines,
	}
	if err := models.CreateVoucherRecord(tx, voucher); err != nil {
		return nil, err
	}

	if plan.rule.CreatesCheque {
		cheque := &models.ChequeRecord{
			ChequeNumber:    input.Payment.Cheque.ChequeNumber,
			Amount:          voucher.TotalAmount,
			IssueDate:       doc.DocumentDate,
			DueDate:         input.Payment.Cheque.DueDate.UTC(),
			BankName:        input.Payment.Cheque.BankName,
			DrawerAccountId: plan.accounts[SlotCustomer].AccountId,
			PayeeAccountId:  plan.accounts[SlotChequesReceivable].AccountId,
			VoucherId:       voucher.ID,
			Status:          models.ChequeStatusPending,
		}
		if err := d.cheques.CreateCheque(tx, cheque); err != nil {
			return nil, err
		}
	}

	if err := models.LinkDocumentVoucher(tx, doc.ID, voucher.ID); err != nil {
		return nil, err
	}
	return voucher, nil
}

// DeleteDocument reverses an unvouchered document: its quantities come back off
// StockItem, its entries and header are removed and later entries of the
// touched keys are re-balanced and their documents revalued. The delete is
// refused when it would push a later strict-policy entry below zero or further
// below it.
func (d *DocumentWorkflow) DeleteDocument(ctx context.Context, id int) error {
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	ctx, span := tracer.Start(ctx, "DocumentWorkflow.DeleteDocument", trace.WithAttributes(
		attribute.Int("document_id", id),
		attribute.String("correlation_id", correlationId),
	))
	defer span.End()

	err := d.deleteDocument(ctx, id, correlationId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(d.logger, "DocumentWorkflow.go", "DeleteDocument", "Deleting inventory document", id, err)
	}
	return err
}

func (d *DocumentWorkflow) deleteDocument(ctx context.Context, id int, correlationId string) error {
	if id <= 0 {
		return models.NewValidationError("id", "must be positive")
	}

	// keys for the distributed lock; re-read under row locks below
	entries, err := models.ListDocumentLedgerEntries(d.db.WithContext(ctx), id)
	if err != nil {
		return err
	}
	keys := make([]models.StockKey, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key())
	}
	release, err := d.locker.LockKeys(ctx, keys)
	if err != nil {
		return err
	}
	defer release()

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := models.LockInventoryDocument(tx, id)
		if err != nil {
			return err
		}
		if doc.HasVoucher() {
			return &models.VoucheredDocumentError{DocumentId: doc.ID, VoucherId: *doc.VoucherId}
		}
		ttype, err := models.FindTransactionType(tx, doc.TransactionTypeId, "")
		if err != nil {
			return err
		}

		entries, err := models.ListDocumentLedgerEntries(tx, doc.ID)
		if err != nil {
			return err
		}
		touched := make([]models.StockKey, 0, len(entries))
		for _, e := range entries {
			touched = append(touched, e.Key())
		}
		touched = models.SortedStockKeys(touched)
		if _, err := models.BulkLockStockItems(tx, touched); err != nil {
			return err
		}

		for _, e := range entries {
			if _, err := models.ApplyStockDelta(tx, e.Key(), e.NetQuantity().Neg()); err != nil {
				return err
			}
		}
		if err := tx.Where("document_id = ?", doc.ID).Delete(&models.StockLedgerEntry{}).Error; err != nil {
			return models.ClassifyDBError("DeleteDocument", err)
		}
		if err := tx.Delete(&models.InventoryDocument{}, doc.ID).Error; err != nil {
			return models.ClassifyDBError("DeleteDocument", err)
		}
		if err := models.DeleteDocumentIdempotencyKeys(tx, doc.ID); err != nil {
			return err
		}
		var revalued []int
		for _, k := range touched {
			result, err := rebalanceLedgerEntries(tx, d.logger, k)
			if err != nil {
				return err
			}
			blocking, err := blockingEntries(tx, d.policies, false, result)
			if err != nil {
				return err
			}
			if len(blocking) > 0 {
				w := blocking[0]
				return &models.InsufficientStockError{
					ProductId:   k.ProductId,
					WarehouseId: k.WarehouseId,
					Available:   decimal.Max(w.After.Add(w.QuantityOut), decimal.Zero),
					Requested:   w.QuantityOut,
				}
			}
			revalued = append(revalued, result.RevaluedDocumentIds...)
		}
		if _, err := revalueDocuments(tx, d.logger, d.prefixes, revalued); err != nil {
			return err
		}

		doc.LedgerEntries = entries
		return enqueueDocumentEvent(ctx, tx, doc, ttype.Code, models.DocumentActionDelete, correlationId)
	})
	return models.ClassifyDBError("DeleteDocument", err)
}

// enqueueDocumentEvent writes the outbox row, stamped with the acting user when
// the context carries one.
func enqueueDocumentEvent(ctx context.Context, tx *gorm.DB, doc *models.InventoryDocument, typeCode string, action models.DocumentAction, correlationId string) error {
	rec, err := models.NewDocumentOutboxRecord(doc, typeCode, action, correlationId)
	if err != nil {
		return err
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		rec.UserId = &userId
	}
	if err := tx.Create(rec).Error; err != nil {
		return models.ClassifyDBError("enqueueDocumentEvent", err)
	}
	return nil
}
