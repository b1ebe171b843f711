// Package lifecycle owns milestone state: explicit admin approval, archive and
// unarchive. Completion is never automatic; a milestone with a submitted proof
// stays in awaiting_review until an admin approves it.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"milestone-escrow-backend/internal/apperr"
	"milestone-escrow-backend/internal/models"
	"milestone-escrow-backend/internal/repository"
	"milestone-escrow-backend/internal/services/audit"
	"milestone-escrow-backend/pkg/logger"
)

type Service struct {
	bids   *repository.BidRepository
	proofs *repository.ProofRepository
	db     *gorm.DB
}

func NewService(bids *repository.BidRepository, proofs *repository.ProofRepository) *Service {
	return &Service{
		bids:   bids,
		proofs: proofs,
		db:     bids.DB(),
	}
}

// Approve moves a milestone from awaiting_review to completed. The proof
// summary defaults to the current proof's description when none is given.
func (s *Service) Approve(ctx context.Context, actor string, bidID uuid.UUID, index int, summary string) (*models.Milestone, error) {
	m, err := s.bids.GetMilestone(bidID, index)
	if err != nil {
		return nil, err
	}
	if !CanTransition(m.Status, models.StatusCompleted) {
		return nil, fmt.Errorf("%w: milestone %d is %s, approval requires a proof under review", apperr.ErrInvalidMilestone, index, m.Status)
	}

	if summary == "" {
		current, err := s.proofs.Current(bidID, index)
		if err != nil {
			return nil, err
		}
		if current != nil {
			summary = current.Description
		}
	}

	now := time.Now().UTC()
	prev := m.Status
	m.Status = models.StatusCompleted
	m.Completed = true
	m.CompletedAt = &now
	m.ProofSummary = summary

	bid, err := s.bids.GetByID(bidID)
	if err != nil {
		return nil, err
	}
	ev := audit.NewEvent(actor, models.ActionMilestoneApproved, "milestone", bidID, &bid.ProposalID, &index, map[string]interface{}{
		"status":    map[string]string{"from": prev, "to": m.Status},
		"completed": true,
	}, nil)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(m).Error; err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "milestone approved", "bid_id", bidID, "milestone_index", index)
	return m, nil
}

// Archive soft-removes a milestone from any non-paid state. Data is retained
// and the move is reversible.
func (s *Service) Archive(ctx context.Context, actor string, bidID uuid.UUID, index int) (*models.Milestone, error) {
	m, err := s.bids.GetMilestone(bidID, index)
	if err != nil {
		return nil, err
	}
	if !CanTransition(m.Status, models.StatusArchived) {
		return nil, fmt.Errorf("%w: cannot archive a %s milestone", apperr.ErrInvalidMilestone, m.Status)
	}

	prev := m.Status
	m.ArchivedFrom = &prev
	m.Status = models.StatusArchived

	bid, err := s.bids.GetByID(bidID)
	if err != nil {
		return nil, err
	}
	ev := audit.NewEvent(actor, models.ActionMilestoneArchived, "milestone", bidID, &bid.ProposalID, &index, map[string]interface{}{
		"status": map[string]string{"from": prev, "to": models.StatusArchived},
	}, nil)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(m).Error; err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "milestone archived", "bid_id", bidID, "milestone_index", index)
	return m, nil
}

// Unarchive restores the status the milestone held when archived.
func (s *Service) Unarchive(ctx context.Context, actor string, bidID uuid.UUID, index int) (*models.Milestone, error) {
	m, err := s.bids.GetMilestone(bidID, index)
	if err != nil {
		return nil, err
	}
	if m.Status != models.StatusArchived || m.ArchivedFrom == nil {
		return nil, fmt.Errorf("%w: milestone %d is not archived", apperr.ErrInvalidMilestone, index)
	}

	restored := *m.ArchivedFrom
	m.Status = restored
	m.ArchivedFrom = nil

	bid, err := s.bids.GetByID(bidID)
	if err != nil {
		return nil, err
	}
	ev := audit.NewEvent(actor, models.ActionMilestoneUnarchived, "milestone", bidID, &bid.ProposalID, &index, map[string]interface{}{
		"status": map[string]string{"from": models.StatusArchived, "to": restored},
	}, nil)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Milestone{}).
			Where("id = ?", m.ID).
			Updates(map[string]interface{}{
				"status":        restored,
				"archived_from": nil,
			}).Error; err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "milestone unarchived", "bid_id", bidID, "milestone_index", index, "status", restored)
	return m, nil
}
