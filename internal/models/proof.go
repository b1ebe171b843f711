package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Proof statuses. Proofs are append-only; archiving hides a revision without
// deleting it.
const (
	ProofStatusSubmitted = "submitted"
	ProofStatusArchived  = "archived"
)

// FileRef is an already-uploaded blob reference returned by the upload
// collaborator.
type FileRef struct {
	ID   string `json:"id,omitempty"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

type Proof struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BidID          uuid.UUID      `gorm:"type:uuid;index" json:"bid_id"`
	MilestoneIndex int            `gorm:"index" json:"milestone_index"`
	Description    string         `json:"description"`
	Files          datatypes.JSON `json:"files"`
	Status         string         `gorm:"index" json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}
