package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audit action kinds.
const (
	ActionBidCreated            = "bid_created"
	ActionAnalysisStored        = "analysis_stored"
	ActionProofSubmitted        = "proof_submitted"
	ActionMilestoneApproved     = "milestone_approved"
	ActionMilestoneArchived     = "milestone_archived"
	ActionMilestoneUnarchived   = "milestone_unarchived"
	ActionChangeRequestOpened   = "change_request_opened"
	ActionChangeResponsePosted  = "change_response_posted"
	ActionChangeRequestResolved = "change_request_resolved"
	ActionChangeRequestClosed   = "change_request_closed"
	ActionPaymentReleased       = "payment_released"
	ActionPaymentFailed         = "payment_failed"
	ActionPaymentReconciled     = "payment_reconciled"
)

// AuditEvent is append-only. Rows are never updated or deleted.
type AuditEvent struct {
	// Seq is assigned by the database and totally orders the ledger; the
	// anchoring cursor advances on it. Timestamps can tie, sequences cannot.
	Seq            uint64         `gorm:"primaryKey;autoIncrement" json:"-"`
	ID             uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"id"`
	Actor          string         `gorm:"index" json:"actor"`
	Action         string         `gorm:"index" json:"action"`
	EntityType     string         `json:"entity_type"`
	EntityID       uuid.UUID      `gorm:"type:uuid;index" json:"entity_id"`
	ProposalID     *uuid.UUID     `gorm:"type:uuid;index" json:"proposal_id,omitempty"`
	MilestoneIndex *int           `json:"milestone_index,omitempty"`
	Changes        datatypes.JSON `json:"changes,omitempty"`
	TxHash         *string        `json:"tx_hash,omitempty"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
}

// AuditAnchor is one link of the batched tamper-evidence chain: a SHA-256 over
// every event appended since the previous anchor, chained through PrevHash.
type AuditAnchor struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `gorm:"uniqueIndex" json:"hash"`
	EventCount int       `json:"event_count"`
	// UpThroughSeq is the Seq of the last event covered by this anchor.
	UpThroughSeq uint64    `json:"up_through_seq"`
	CreatedAt    time.Time `json:"created_at"`
}
