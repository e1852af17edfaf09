package workflow

import (
	"sort"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"bitbucket.org/mmdatafocus/stock_ledger/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const costAdjustmentNote = "Cost adjustment"

// revalueDocuments brings each document's total_amount back to Σ line_cost of
// its entries after a replay re-costed them. A vouchered document that posts at
// cost gets an adjusting voucher for the difference; sales post at the sale
// amount and only have their header refreshed.
func revalueDocuments(tx *gorm.DB, logger *logrus.Logger, prefixes SequencePrefixes, documentIds []int) ([]models.Voucher, error) {
	ids := utils.UniqueSlice(documentIds)
	sort.Ints(ids)

	var adjustments []models.Voucher
	for _, id := range ids {
		doc, err := models.LockInventoryDocument(tx, id)
		if err != nil {
			return nil, err
		}
		total, err := models.SumDocumentLineCost(tx, id)
		if err != nil {
			return nil, err
		}
		delta := total.Sub(doc.TotalAmount)
		if delta.IsZero() {
			continue
		}
		if err := tx.Model(&models.InventoryDocument{}).Where("id = ?", id).Update("total_amount", total).Error; err != nil {
			config.LogError(logger, "Revaluation.go", "revalueDocuments", "Updating document total", id, err)
			return nil, models.ClassifyDBError("revalueDocuments", err)
		}
		if !doc.HasVoucher() {
			continue
		}
		ttype, err := models.FindTransactionType(tx, doc.TransactionTypeId, "")
		if err != nil {
			return nil, err
		}
		if ttype.Kind == models.MovementKindSale {
			continue
		}
		voucher, err := postCostAdjustment(tx, prefixes, doc, delta)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, *voucher)
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":    "revalueDocuments",
				"document": doc.DocumentNumber,
				"voucher":  voucher.VoucherNumber,
				"delta":    delta.String(),
			}).Info("cost adjustment posted")
		}
	}
	return adjustments, nil
}

// postCostAdjustment mirrors the document's original voucher for delta. The
// adjustment is dated with the document so it lands in the same period.
func postCostAdjustment(tx *gorm.DB, prefixes SequencePrefixes, doc *models.InventoryDocument, delta decimal.Decimal) (*models.Voucher, error) {
	original, err := models.GetVoucher(tx, *doc.VoucherId)
	if err != nil {
		return nil, err
	}
	lines, err := adjustmentLines(original.Lines, delta, costAdjustmentNote)
	if err != nil {
		return nil, err
	}
	n, err := AllocateNext(tx, models.SequenceKeyVoucher, utils.PeriodOf(doc.DocumentDate))
	if err != nil {
		return nil, err
	}
	voucher := &models.Voucher{
		VoucherNumber:   FormatDocumentNumber(prefixes.Prefix(models.SequenceKeyVoucher), doc.DocumentDate, n),
		VoucherDate:     doc.DocumentDate,
		TotalAmount:     delta.Abs().Round(costPrecision),
		ReferenceType:   models.VoucherReferenceCostAdjustment,
		ReferenceId:     doc.ID,
		ReferenceNumber: doc.DocumentNumber,
		Notes:           costAdjustmentNote,
		Lines:           lines,
	}
	if err := models.CreateVoucherRecord(tx, voucher); err != nil {
		return nil, err
	}
	return voucher, nil
}
