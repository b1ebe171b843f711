// Package audit owns the append-only ledger every mutating operation writes
// to, plus the read-side projections and the batched anchoring loop.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"milestone-escrow-backend/internal/models"
	"milestone-escrow-backend/internal/repository"
	"milestone-escrow-backend/pkg/logger"
)

type Service struct {
	repo *repository.AuditRepository
}

func NewService(repo *repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

// NewEvent builds an audit event row. Changes is marshalled verbatim.
func NewEvent(actor, action, entityType string, entityID uuid.UUID, proposalID *uuid.UUID, milestoneIndex *int, changes map[string]interface{}, txHash *string) *models.AuditEvent {
	ev := &models.AuditEvent{
		ID:             uuid.New(),
		Actor:          actor,
		Action:         action,
		EntityType:     entityType,
		EntityID:       entityID,
		ProposalID:     proposalID,
		MilestoneIndex: milestoneIndex,
		TxHash:         txHash,
		CreatedAt:      time.Now().UTC(),
	}
	if changes != nil {
		raw, err := json.Marshal(changes)
		if err == nil {
			ev.Changes = datatypes.JSON(raw)
		}
	}
	return ev
}

func (s *Service) Append(ev *models.AuditEvent) error {
	return s.repo.Append(ev)
}

func (s *Service) ListByEntity(entityID uuid.UUID) ([]models.AuditEvent, error) {
	return s.repo.ListByEntity(entityID)
}

// PublicEvent is the redacted projection exposed to oversight/public views:
// what happened and when, with the settlement hash, but no actor identity and
// no field-level diff.
type PublicEvent struct {
	Action         string    `json:"action"`
	EntityType     string    `json:"entity_type"`
	MilestoneIndex *int      `json:"milestone_index,omitempty"`
	TxHash         *string   `json:"tx_hash,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Service) PublicByProposal(proposalID uuid.UUID) ([]PublicEvent, error) {
	evs, err := s.repo.ListByProposal(proposalID)
	if err != nil {
		return nil, err
	}
	out := make([]PublicEvent, 0, len(evs))
	for _, ev := range evs {
		out = append(out, PublicEvent{
			Action:         ev.Action,
			EntityType:     ev.EntityType,
			MilestoneIndex: ev.MilestoneIndex,
			TxHash:         ev.TxHash,
			CreatedAt:      ev.CreatedAt,
		})
	}
	return out, nil
}

// AnchorOnce folds every event appended since the previous anchor into one
// chained SHA-256 and persists it. Returns nil when there is nothing new.
func (s *Service) AnchorOnce() (*models.AuditAnchor, error) {
	prev, err := s.repo.LatestAnchor()
	if err != nil {
		return nil, err
	}
	var afterSeq uint64
	prevHash := ""
	if prev != nil {
		afterSeq = prev.UpThroughSeq
		prevHash = prev.Hash
	}

	evs, err := s.repo.ListAfter(afterSeq)
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, nil
	}

	h := sha256.New()
	h.Write([]byte(prevHash))
	for _, ev := range evs {
		fmt.Fprintf(h, "%s|%s|%s|%s|%d", ev.ID, ev.Actor, ev.Action, ev.EntityID, ev.CreatedAt.UnixNano())
		if ev.TxHash != nil {
			h.Write([]byte(*ev.TxHash))
		}
		h.Write(ev.Changes)
	}

	anchor := &models.AuditAnchor{
		ID:           uuid.New(),
		PrevHash:     prevHash,
		Hash:         hex.EncodeToString(h.Sum(nil)),
		EventCount:   len(evs),
		UpThroughSeq: evs[len(evs)-1].Seq,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateAnchor(anchor); err != nil {
		return nil, err
	}
	return anchor, nil
}

// RunAnchorLoop anchors on a fixed interval until ctx is cancelled.
func (s *Service) RunAnchorLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			anchor, err := s.AnchorOnce()
			if err != nil {
				logger.Error(ctx, "audit anchor failed", "error", err)
				continue
			}
			if anchor != nil {
				logger.Info(ctx, "audit anchor written", "hash", anchor.Hash, "events", anchor.EventCount)
			}
		}
	}
}
