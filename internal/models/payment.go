package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment records a settled milestone transfer. At most one row ever exists
// per (BidID, MilestoneIndex); the composite unique index enforces it at the
// store level.
type Payment struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BidID           uuid.UUID `gorm:"type:uuid;index:idx_payment_milestone,unique" json:"bid_id"`
	MilestoneIndex  int       `gorm:"index:idx_payment_milestone,unique" json:"milestone_index"`
	TransactionHash string    `gorm:"uniqueIndex" json:"transaction_hash"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	ReleasedAt      time.Time `json:"released_at"`
	CreatedAt       time.Time `json:"created_at"`
}
