package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// IdempotencyKey remembers which document a caller's request id produced.
// Rows commit with the document they point at, so a row only exists for a
// request that succeeded.
// Unique constraint: (handler_name, request_id).
type IdempotencyKey struct {
	ID          int       `gorm:"primary_key" json:"id"`
	HandlerName string    `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	RequestId   string    `gorm:"size:255;not null;index:uniq_idem,unique" json:"request_id"`
	DocumentId  int       `gorm:"index;not null" json:"document_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FindIdempotencyKey returns (nil, nil) when the request id was never recorded.
func FindIdempotencyKey(tx *gorm.DB, handlerName string, requestId string) (*IdempotencyKey, error) {
	var key IdempotencyKey
	err := tx.Where("handler_name = ? AND request_id = ?", handlerName, requestId).Take(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, ClassifyDBError("FindIdempotencyKey", err)
	}
	return &key, nil
}

// CreateIdempotencyKey records requestId inside the document's transaction. Losing
// the insert race to a concurrent request with the same id is retryable: the
// retry finds the winner's row.
func CreateIdempotencyKey(tx *gorm.DB, handlerName string, requestId string, documentId int) error {
	key := IdempotencyKey{HandlerName: handlerName, RequestId: requestId, DocumentId: documentId}
	if err := tx.Create(&key).Error; err != nil {
		return ClassifyDBError("CreateIdempotencyKey", err)
	}
	return nil
}

func DeleteDocumentIdempotencyKeys(tx *gorm.DB, documentId int) error {
	if err := tx.Where("document_id = ?", documentId).Delete(&IdempotencyKey{}).Error; err != nil {
		return ClassifyDBError("DeleteDocumentIdempotencyKeys", err)
	}
	return nil
}
