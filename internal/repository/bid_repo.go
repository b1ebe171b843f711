package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"milestone-escrow-backend/internal/apperr"
	"milestone-escrow-backend/internal/models"
)

type BidRepository struct {
	db *gorm.DB
}

func NewBidRepository(db *gorm.DB) *BidRepository {
	return &BidRepository{db: db}
}

// Expose DB for cross-aggregate transactions
func (r *BidRepository) DB() *gorm.DB {
	return r.db
}

func (r *BidRepository) GetByID(id uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	err := r.db.
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Order("milestone_index ASC")
		}).
		First(&bid, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: bid %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// GetMilestone fetches a milestone by its permanent (bid, index) address.
func (r *BidRepository) GetMilestone(bidID uuid.UUID, index int) (*models.Milestone, error) {
	var m models.Milestone
	err := r.db.First(&m, "bid_id = ? AND milestone_index = ?", bidID, index).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: bid %s has no milestone %d", apperr.ErrInvalidMilestone, bidID, index)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SetPendingTx records (or clears, with nil) an in-flight transfer hash.
func (r *BidRepository) SetPendingTx(bidID uuid.UUID, index int, txHash *string) error {
	return r.db.Model(&models.Milestone{}).
		Where("bid_id = ? AND milestone_index = ?", bidID, index).
		Update("pending_tx_hash", txHash).
		Error
}

// ListCompletedUnpaid returns milestones the reconciler should inspect:
// approved, never paid, not archived, completed before the cutoff.
func (r *BidRepository) ListCompletedUnpaid(completedBefore time.Time) ([]models.Milestone, error) {
	var ms []models.Milestone
	err := r.db.
		Where("completed = ? AND transaction_hash IS NULL AND status = ?", true, models.StatusCompleted).
		Where("completed_at <= ?", completedBefore).
		Order("completed_at ASC").
		Find(&ms).Error
	return ms, err
}

// SetAnalysis runs inside a caller-owned transaction so the audit event
// commits with the update.
func (r *BidRepository) SetAnalysis(tx *gorm.DB, bidID uuid.UUID, blob datatypes.JSON) error {
	res := tx.Model(&models.Bid{}).
		Where("id = ?", bidID).
		Update("analysis_result", blob)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: bid %s", apperr.ErrNotFound, bidID)
	}
	return nil
}
