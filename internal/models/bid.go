package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Bid is a vendor's awarded proposal. Its milestone list is fixed at creation
// time; MilestoneIndex is the permanent address of each entry and is never
// reordered or reused.
type Bid struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProposalID   uuid.UUID `gorm:"type:uuid;index" json:"proposal_id"`
	VendorName   string    `json:"vendor_name"`
	VendorWallet string    `gorm:"index" json:"vendor_wallet"`
	Currency     string    `json:"currency"`
	// AnalysisResult is an opaque blob written by the bid-analysis assistant.
	// Stored verbatim, never interpreted here.
	AnalysisResult datatypes.JSON `json:"analysis_result,omitempty"`
	Milestones     []Milestone    `gorm:"foreignKey:BidID" json:"milestones"`
	CreatedAt      time.Time      `json:"created_at"`
}
