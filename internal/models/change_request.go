package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChangeRequest statuses. A request stays open regardless of how many vendor
// responses arrive; only an explicit admin resolve/close moves it on.
const (
	ChangeRequestOpen     = "open"
	ChangeRequestResolved = "resolved"
	ChangeRequestClosed   = "closed"
)

type ChangeRequest struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	BidID          uuid.UUID        `gorm:"type:uuid;index" json:"bid_id"`
	ProposalID     uuid.UUID        `gorm:"type:uuid;index" json:"proposal_id"`
	MilestoneIndex int              `gorm:"index" json:"milestone_index"`
	Status         string           `gorm:"index" json:"status"`
	Comment        string           `json:"comment"`
	Checklist      datatypes.JSON   `json:"checklist,omitempty"`
	Responses      []ChangeResponse `gorm:"foreignKey:ChangeRequestID" json:"responses"`
	CreatedAt      time.Time        `json:"created_at"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
}

type ChangeResponse struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ChangeRequestID uuid.UUID      `gorm:"type:uuid;index" json:"change_request_id"`
	Comment         string         `json:"comment"`
	Files           datatypes.JSON `json:"files,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
