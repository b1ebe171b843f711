// Package changerequests runs the admin/vendor negotiation loop. A request
// stays open however many replies arrive; only an explicit admin resolve or
// close ends it, since the admin may need to re-inspect evidence first.
package changerequests

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
	bids     *repository.BidRepository
	requests *repository.ChangeRequestRepository
	db       *gorm.DB
}

func NewService(bids *repository.BidRepository, requests *repository.ChangeRequestRepository) *Service {
	return &Service{
		bids:     bids,
		requests: requests,
		db:       bids.DB(),
	}
}

// Open starts a correction thread against one milestone.
func (s *Service) Open(ctx context.Context, actor string, bidID uuid.UUID, index int, comment string, checklist []string) (*models.ChangeRequest, error) {
	if comment == "" {
		return nil, fmt.Errorf("%w: change request needs a comment", apperr.ErrInvalidArgument)
	}

	m, err := s.bids.GetMilestone(bidID, index)
	if err != nil {
		return nil, err
	}
	if !lifecycle.CanTransition(m.Status, models.StatusChangesRequested) {
		return nil, fmt.Errorf("%w: milestone %d is %s, changes can only be requested on a proof under review", apperr.ErrInvalidMilestone, index, m.Status)
	}

	bid, err := s.bids.GetByID(bidID)
	if err != nil {
		return nil, err
	}

	cr := &models.ChangeRequest{
		ID:             uuid.New(),
		BidID:          bidID,
		ProposalID:     bid.ProposalID,
		MilestoneIndex: index,
		Status:         models.ChangeRequestOpen,
		Comment:        comment,
		CreatedAt:      time.Now().UTC(),
	}
	if len(checklist) > 0 {
		raw, err := json.Marshal(checklist)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
		}
		cr.Checklist = datatypes.JSON(raw)
	}

	ev := audit.NewEvent(actor, models.ActionChangeRequestOpened, "change_request", bidID, &bid.ProposalID, &index, map[string]interface{}{
		"change_request_id": cr.ID.String(),
	}, nil)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cr).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Milestone{}).
			Where("id = ?", m.ID).
			Update("status", models.StatusChangesRequested).Error; err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "change request opened", "bid_id", bidID, "milestone_index", index, "request_id", cr.ID)
	return cr, nil
}

// Respond appends a vendor reply. The request stays open; the milestone moves
// back under review.
func (s *Service) Respond(ctx context.Context, actor string, requestID uuid.UUID, comment string, files []models.FileRef) (*models.ChangeResponse, error) {
	if comment == "" && len(files) == 0 {
		return nil, fmt.Errorf("%w: response needs a comment or files", apperr.ErrInvalidArgument)
	}

	cr, err := s.requests.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if cr.Status != models.ChangeRequestOpen {
		return nil, fmt.Errorf("%w: change request %s is %s", apperr.ErrInvalidArgument, requestID, cr.Status)
	}

	resp := &models.ChangeResponse{
		ID:              uuid.New(),
		ChangeRequestID: requestID,
		Comment:         comment,
		CreatedAt:       time.Now().UTC(),
	}
	if len(files) > 0 {
		raw, err := json.Marshal(files)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
		}
		resp.Files = datatypes.JSON(raw)
	}

	m, err := s.bids.GetMilestone(cr.BidID, cr.MilestoneIndex)
	if err != nil {
		return nil, err
	}

	ev := audit.NewEvent(actor, models.ActionChangeResponsePosted, "change_request", cr.BidID, &cr.ProposalID, &cr.MilestoneIndex, map[string]interface{}{
		"change_request_id": requestID.String(),
		"response_id":       resp.ID.String(),
	}, nil)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(resp).Error; err != nil {
			return err
		}
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

	logger.Info(ctx, "change response posted", "request_id", requestID, "response_id", resp.ID)
	return resp, nil
}

// Resolve ends a request as satisfied; Close ends it without satisfaction.
func (s *Service) Resolve(ctx context.Context, actor string, requestID uuid.UUID) error {
	return s.finish(ctx, actor, requestID, models.ChangeRequestResolved, models.ActionChangeRequestResolved)
}

func (s *Service) Close(ctx context.Context, actor string, requestID uuid.UUID) error {
	return s.finish(ctx, actor, requestID, models.ChangeRequestClosed, models.ActionChangeRequestClosed)
}

func (s *Service) finish(ctx context.Context, actor string, requestID uuid.UUID, status, action string) error {
	cr, err := s.requests.GetByID(requestID)
	if err != nil {
		return err
	}

	ev := audit.NewEvent(actor, action, "change_request", cr.BidID, &cr.ProposalID, &cr.MilestoneIndex, map[string]interface{}{
		"change_request_id": requestID.String(),
		"status":            status,
	}, nil)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.requests.SetStatus(tx, requestID, status, time.Now().UTC()); err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "change request finished", "request_id", requestID, "status", status)
	return nil
}

// ListOpenByProposal returns open requests with their responses oldest-first.
func (s *Service) ListOpenByProposal(proposalID uuid.UUID) ([]models.ChangeRequest, error) {
	return s.requests.ListOpenByProposal(proposalID)
}
