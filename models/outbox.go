package models

import (
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
)

// Outbox publish statuses for OutboxRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// OutboxRecord is written in the same transaction as the document it describes
// and published after commit by the dispatcher.
type OutboxRecord struct {
	ID              int            `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	DocumentId      int            `gorm:"index;not null" json:"document_id"`
	DocumentNumber  string         `gorm:"size:50" json:"document_number"`
	TransactionType string         `gorm:"size:50" json:"transaction_type"`
	Action          DocumentAction `gorm:"size:10;not null" json:"action"`
	DocumentDate    time.Time      `gorm:"not null" json:"document_date"`
	Payload         []byte         `gorm:"type:blob" json:"payload"`
	CorrelationId   string         `gorm:"size:64;index" json:"correlation_id"`
	// acting user, when the caller's context carried one
	UserId *int `gorm:"index" json:"user_id"`
	// publish happens after commit via the dispatcher
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewDocumentOutboxRecord snapshots doc as the event payload.
func NewDocumentOutboxRecord(doc *InventoryDocument, typeCode string, action DocumentAction, correlationId string) (*OutboxRecord, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return &OutboxRecord{
		DocumentId:      doc.ID,
		DocumentNumber:  doc.DocumentNumber,
		TransactionType: typeCode,
		Action:          action,
		DocumentDate:    doc.DocumentDate,
		Payload:         payload,
		CorrelationId:   correlationId,
		PublishStatus:   OutboxPublishStatusPending,
	}, nil
}

func ConvertToPubSubMessage(record OutboxRecord) config.PubSubMessage {
	return config.PubSubMessage{
		ID:              record.ID,
		DocumentId:      record.DocumentId,
		DocumentNumber:  record.DocumentNumber,
		TransactionType: record.TransactionType,
		Action:          string(record.Action),
		DocumentDate:    record.DocumentDate,
		Payload:         record.Payload,
		CorrelationId:   record.CorrelationId,
		UserId:          record.UserId,
	}
}
