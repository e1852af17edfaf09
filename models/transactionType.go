package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// TransactionType drives ledger direction and the posting template of a document.
type TransactionType struct {
	ID              int            `gorm:"primary_key" json:"id"`
	Code            string         `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Label           string         `gorm:"size:100;not null" json:"label"`
	Effect          MovementEffect `gorm:"size:10;not null" json:"effect"`
	Kind            MovementKind   `gorm:"size:30;not null" json:"kind"`
	RequiresPosting *bool          `gorm:"not null;default:false" json:"requires_posting"`
	// sequence key used for document numbers; defaults to Code
	SequenceKey string    `gorm:"size:20" json:"sequence_key"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t TransactionType) Posts() bool {
	return t.RequiresPosting != nil && *t.RequiresPosting
}

func (t TransactionType) DocumentSequenceKey() string {
	if strings.TrimSpace(t.SequenceKey) != "" {
		return strings.ToUpper(t.SequenceKey)
	}
	return strings.ToUpper(t.Code)
}

// Validate rejects types whose effect contradicts their kind.
func (t TransactionType) Validate() error {
	if !t.Effect.IsValid() {
		return NewValidationError("effect", "%q is not a valid movement effect", t.Effect)
	}
	if !t.Kind.IsValid() {
		return NewValidationError("kind", "%q is not a valid movement kind", t.Kind)
	}
	if natural, ok := t.Kind.NaturalEffect(); ok && natural != t.Effect {
		return NewValidationError("effect", "%s movements must be %s", t.Kind, natural)
	}
	return nil
}

// FindTransactionType resolves by id when id > 0, by code otherwise.
func FindTransactionType(tx *gorm.DB, id int, code string) (*TransactionType, error) {
	var tt TransactionType
	q := tx
	key := any(id)
	if id > 0 {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("code = ?", strings.TrimSpace(code))
		key = code
	}
	if err := q.Take(&tt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("transaction type", key)
		}
		return nil, ClassifyDBError("FindTransactionType", err)
	}
	if err := tt.Validate(); err != nil {
		return nil, err
	}
	return &tt, nil
}
