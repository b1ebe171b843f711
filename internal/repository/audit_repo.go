package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"milestone-escrow-backend/internal/models"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ev *models.AuditEvent) error {
	return r.db.Create(ev).Error
}

func (r *AuditRepository) ListByEntity(entityID uuid.UUID) ([]models.AuditEvent, error) {
	var evs []models.AuditEvent
	err := r.db.
		Where("entity_id = ?", entityID).
		Order("seq ASC").
		Find(&evs).Error
	return evs, err
}

func (r *AuditRepository) ListByProposal(proposalID uuid.UUID) ([]models.AuditEvent, error) {
	var evs []models.AuditEvent
	err := r.db.
		Where("proposal_id = ?", proposalID).
		Order("seq ASC").
		Find(&evs).Error
	return evs, err
}

// ListAfter returns events with a sequence strictly after the given one,
// oldest first, for anchoring.
func (r *AuditRepository) ListAfter(afterSeq uint64) ([]models.AuditEvent, error) {
	var evs []models.AuditEvent
	err := r.db.
		Where("seq > ?", afterSeq).
		Order("seq ASC").
		Find(&evs).Error
	return evs, err
}

func (r *AuditRepository) LatestAnchor() (*models.AuditAnchor, error) {
	var a models.AuditAnchor
	err := r.db.Order("up_through_seq DESC").First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AuditRepository) CreateAnchor(a *models.AuditAnchor) error {
	return r.db.Create(a).Error
}
