package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"milestone-escrow-backend/internal/apperr"
	"milestone-escrow-backend/internal/models"
)

type ChangeRequestRepository struct {
	db *gorm.DB
}

func NewChangeRequestRepository(db *gorm.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

func (r *ChangeRequestRepository) GetByID(id uuid.UUID) (*models.ChangeRequest, error) {
	var cr models.ChangeRequest
	err := r.db.
		Preload("Responses", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&cr, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: change request %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

// SetStatus moves an open request to resolved/closed inside a caller-owned
// transaction. Returns ErrInvalidArgument if the request is not open.
func (r *ChangeRequestRepository) SetStatus(tx *gorm.DB, id uuid.UUID, status string, at time.Time) error {
	res := tx.Model(&models.ChangeRequest{}).
		Where("id = ? AND status = ?", id, models.ChangeRequestOpen).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: change request %s is not open", apperr.ErrInvalidArgument, id)
	}
	return nil
}

// ListOpenByProposal returns open requests with responses nested oldest-first.
func (r *ChangeRequestRepository) ListOpenByProposal(proposalID uuid.UUID) ([]models.ChangeRequest, error) {
	var crs []models.ChangeRequest
	err := r.db.
		Preload("Responses", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("proposal_id = ? AND status = ?", proposalID, models.ChangeRequestOpen).
		Order("created_at ASC").
		Find(&crs).Error
	return crs, err
}
