package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"milestone-escrow-backend/internal/models"
)

type ProofRepository struct {
	db *gorm.DB
}

func NewProofRepository(db *gorm.DB) *ProofRepository {
	return &ProofRepository{db: db}
}

// ListByMilestone returns the full revision history, newest first.
func (r *ProofRepository) ListByMilestone(bidID uuid.UUID, index int) ([]models.Proof, error) {
	var proofs []models.Proof
	err := r.db.
		Where("bid_id = ? AND milestone_index = ?", bidID, index).
		Order("created_at DESC").
		Find(&proofs).Error
	return proofs, err
}

// Current returns the most recent non-archived proof, or nil if none exists.
func (r *ProofRepository) Current(bidID uuid.UUID, index int) (*models.Proof, error) {
	var p models.Proof
	err := r.db.
		Where("bid_id = ? AND milestone_index = ? AND status <> ?", bidID, index, models.ProofStatusArchived).
		Order("created_at DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
