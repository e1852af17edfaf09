package models

import (
	"time"
)

// Sequence is the lockable counter behind document and voucher numbers.
// One row per (key, period); last_value is the last number handed out.
type Sequence struct {
	ID        int       `gorm:"primary_key" json:"id"`
	SeqKey    string    `gorm:"size:20;not null;uniqueIndex:idx_sequence_key_period,priority:1" json:"seq_key"`
	Period    string    `gorm:"size:10;not null;uniqueIndex:idx_sequence_key_period,priority:2" json:"period"`
	LastValue int       `gorm:"not null;default:0" json:"last_value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SequenceKeyVoucher numbers every voucher, posted or manual.
const SequenceKeyVoucher = "JV"
