package models

import (
	"time"

	"github.com/google/uuid"
)

// Milestone lifecycle statuses.
const (
	StatusOpen             = "open"
	StatusAwaitingReview   = "awaiting_review"
	StatusChangesRequested = "changes_requested"
	StatusCompleted        = "completed"
	StatusPaid             = "paid"
	StatusArchived         = "archived"
)

type Milestone struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BidID          uuid.UUID `gorm:"type:uuid;index:idx_bid_milestone,unique" json:"bid_id"`
	MilestoneIndex int       `gorm:"index:idx_bid_milestone,unique" json:"milestone_index"`
	Name           string    `json:"name"`
	// AmountUSD is a decimal string ("250.00"). Settlement math never goes
	// through floats.
	AmountUSD string    `json:"amount_usd"`
	DueDate   time.Time `json:"due_date"`
	Status    string    `gorm:"index" json:"status"`
	// ArchivedFrom holds the pre-archive status so Unarchive can restore it.
	ArchivedFrom *string    `json:"archived_from,omitempty"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ProofSummary string     `json:"proof_summary"`
	// TransactionHash is the single source of truth for "paid". Immutable once set.
	TransactionHash *string    `gorm:"index" json:"transaction_hash,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	// PendingTxHash records an in-flight transfer whose confirmation outcome is
	// unknown (e.g. a confirmation-wait timeout). The reconciler owns clearing it.
	PendingTxHash *string   `json:"pending_tx_hash,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
