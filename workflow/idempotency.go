package workflow

import (
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"gorm.io/gorm"
)

const createDocumentHandler = "CreateDocument"

// replayDocument rebuilds the result of an earlier CreateDocument that carried the
// same request id. It reports false when the id is new.
func replayDocument(db *gorm.DB, requestId string) (*DocumentResult, bool, error) {
	key, err := models.FindIdempotencyKey(db, createDocumentHandler, requestId)
	if err != nil || key == nil {
		return nil, false, err
	}
	// DeleteDocument drops the key with its document, so a miss here is a defect
	doc, err := models.GetInventoryDocument(db, key.DocumentId)
	if err != nil {
		return nil, false, err
	}

	result := &DocumentResult{
		DocumentId:     doc.ID,
		DocumentNumber: doc.DocumentNumber,
		LedgerEntries:  doc.LedgerEntries,
		TotalQuantity:  doc.TotalQuantity,
		CostAmount:     doc.TotalAmount,
		SaleAmount:     doc.SaleAmount,
	}
	if doc.HasVoucher() {
		voucher, err := models.GetVoucher(db, *doc.VoucherId)
		if err != nil {
			return nil, false, err
		}
		result.VoucherId = &voucher.ID
		result.VoucherNumber = &voucher.VoucherNumber
	}
	return result, true, nil
}
