// Package bids owns the durable record of a bid and its ordered milestone
// list. The list is fixed at creation; positions are permanent addresses.
package bids

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
	"milestone-escrow-backend/internal/token"
	"milestone-escrow-backend/pkg/logger"
)

type Service struct {
	bids *repository.BidRepository
	db   *gorm.DB
}

func NewService(bids *repository.BidRepository) *Service {
	return &Service{bids: bids, db: bids.DB()}
}

// MilestoneInput is one entry of the fixed milestone list.
type MilestoneInput struct {
	Name      string    `json:"name"`
	AmountUSD string    `json:"amount_usd"`
	DueDate   time.Time `json:"due_date"`
}

// Create persists an awarded bid with its milestone list. Indexes are assigned
// by position and never change afterwards.
func (s *Service) Create(ctx context.Context, actor string, proposalID uuid.UUID, vendorName, vendorWallet, currency string, milestones []MilestoneInput) (*models.Bid, error) {
	if !token.ValidAddress(vendorWallet) {
		return nil, fmt.Errorf("%w: malformed wallet address %q", apperr.ErrInvalidArgument, vendorWallet)
	}
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", apperr.ErrInvalidArgument)
	}
	if len(milestones) == 0 {
		return nil, fmt.Errorf("%w: a bid needs at least one milestone", apperr.ErrInvalidArgument)
	}

	now := time.Now().UTC()
	bid := &models.Bid{
		ID:           uuid.New(),
		ProposalID:   proposalID,
		VendorName:   vendorName,
		VendorWallet: vendorWallet,
		Currency:     currency,
		CreatedAt:    now,
	}
	for i, in := range milestones {
		if in.Name == "" {
			return nil, fmt.Errorf("%w: milestone %d has no name", apperr.ErrInvalidArgument, i)
		}
		// 18 decimals covers every supported stablecoin; this just rejects
		// amounts that are not valid decimals at all.
		if _, err := token.ToSmallestUnit(in.AmountUSD, 18); err != nil {
			return nil, err
		}
		bid.Milestones = append(bid.Milestones, models.Milestone{
			ID:             uuid.New(),
			BidID:          bid.ID,
			MilestoneIndex: i,
			Name:           in.Name,
			AmountUSD:      in.AmountUSD,
			DueDate:        in.DueDate,
			Status:         models.StatusOpen,
			CreatedAt:      now,
		})
	}

	ev := audit.NewEvent(actor, models.ActionBidCreated, "bid", bid.ID, &proposalID, nil, map[string]interface{}{
		"milestone_count": len(milestones),
		"currency":        currency,
	}, nil)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bid).Error; err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "bid created", "bid_id", bid.ID, "proposal_id", proposalID, "milestones", len(milestones))
	return bid, nil
}

func (s *Service) Get(bidID uuid.UUID) (*models.Bid, error) {
	return s.bids.GetByID(bidID)
}

// StoreAnalysis saves the assistant's output verbatim. The blob is opaque to
// this service; it only has to be valid JSON.
func (s *Service) StoreAnalysis(ctx context.Context, actor string, bidID uuid.UUID, blob json.RawMessage) error {
	if len(blob) == 0 || !json.Valid(blob) {
		return fmt.Errorf("%w: analysis blob must be valid JSON", apperr.ErrInvalidArgument)
	}
	bid, err := s.bids.GetByID(bidID)
	if err != nil {
		return err
	}
	ev := audit.NewEvent(actor, models.ActionAnalysisStored, "bid", bidID, &bid.ProposalID, nil, nil, nil)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.bids.SetAnalysis(tx, bidID, datatypes.JSON(blob)); err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "analysis stored", "bid_id", bidID)
	return nil
}
