// Package proofs accepts vendor evidence for a milestone. Submission is
// append-only and never completes a milestone; it only moves it under review.
package proofs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"milestone-escrow-backend/internal/apperr"
	"milestone-escrow-backend/internal/models"
	"milestone-escrow-backend/internal/repository"
	"milestone-escrow-backend/internal/services/audit"
	"milestone-escrow-backend/internal/services/lifecycle"
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

// Submit records one proof revision. Description may be empty when files are
// present and vice versa; both empty is rejected.
func (s *Service) Submit(ctx context.Context, actor string, bidID uuid.UUID, index int, description string, files []models.FileRef) (*models.Proof, error) {
	if description == "" && len(files) == 0 {
		return nil, fmt.Errorf("%w: proof needs a description or files", apperr.ErrInvalidArgument)
	}

	m, err := s.bids.GetMilestone(bidID, index)
	if err != nil {
		return nil, err
	}
	if m.Completed {
		return nil, fmt.Errorf("%w: milestone %d is already completed", apperr.ErrInvalidMilestone, index)
	}
	if m.Status == models.StatusArchived {
		return nil, fmt.Errorf("%w: milestone %d is archived", apperr.ErrInvalidMilestone, index)
	}

	var fileJSON datatypes.JSON
	if len(files) > 0 {
		raw, err := json.Marshal(files)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
		}
		fileJSON = datatypes.JSON(raw)
	}

	proof := &models.Proof{
		ID:             uuid.New(),
		BidID:          bidID,
		MilestoneIndex: index,
		Description:    description,
		Files:          fileJSON,
		Status:         models.ProofStatusSubmitted,
		CreatedAt:      time.Now().UTC(),
	}

	bid, err := s.bids.GetByID(bidID)
	if err != nil {
		return nil, err
	}
	ev := audit.NewEvent(actor, models.ActionProofSubmitted, "proof", bidID, &bid.ProposalID, &index, map[string]interface{}{
		"proof_id":   proof.ID.String(),
		"file_count": len(files),
	}, nil)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// A new revision supersedes earlier ones; they stay in the history but
		// drop out of Current.
		if err := tx.Model(&models.Proof{}).
			Where("bid_id = ? AND milestone_index = ? AND status = ?", bidID, index, models.ProofStatusSubmitted).
			Update("status", models.ProofStatusArchived).Error; err != nil {
			return err
		}
		if err := tx.Create(proof).Error; err != nil {
			return err
		}
		// A new proof puts the milestone (back) under review. The completed
		// flag is never touched here.
		if lifecycle.CanTransition(m.Status, models.StatusAwaitingReview) {
			if err := tx.Model(&models.Milestone{}).
				Where("id = ?", m.ID).
				Update("status", models.StatusAwaitingReview).Error; err != nil {
				return err
			}
		}
		return tx.Create(ev).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "proof submitted", "bid_id", bidID, "milestone_index", index, "proof_id", proof.ID)
	return proof, nil
}

// List returns the milestone's proof revision history, newest first.
func (s *Service) List(bidID uuid.UUID, index int) ([]models.Proof, error) {
	if _, err := s.bids.GetMilestone(bidID, index); err != nil {
		return nil, err
	}
	return s.proofs.ListByMilestone(bidID, index)
}
