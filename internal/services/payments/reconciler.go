package payments

import (
	"context"
	"errors"
	"time"

	"milestone-escrow-backend/internal/apperr"
	"milestone-escrow-backend/internal/models"
	"milestone-escrow-backend/internal/token"
	"milestone-escrow-backend/pkg/logger"
)

// reconciliation actor recorded on healed payments
const reconcilerActor = "reconciler"

// ReconcileOnce heals the crash window between on-chain confirmation and
// persistence: for each approved, unpaid milestone it scans confirmed
// transfers from the custody signer to the vendor wallet and claims any whose
// value equals the milestone's exact smallest-unit amount within the window
// after approval. At-least-once settlement, eventually-consistent bookkeeping.
func (s *Service) ReconcileOnce(ctx context.Context) (int, error) {
	milestones, err := s.bids.ListCompletedUnpaid(time.Now().Add(-s.reconcileGrace))
	if err != nil {
		return 0, err
	}

	healed := 0
	decimalsByContract := make(map[string]uint8)

	for i := range milestones {
		m := &milestones[i]
		if m.CompletedAt == nil {
			continue
		}

		bid, err := s.bids.GetByID(m.BidID)
		if err != nil {
			logger.Error(ctx, "reconciler: load bid failed", "bid_id", m.BidID, "error", err)
			continue
		}
		contract, err := token.ContractAddress(bid.Currency, s.network)
		if err != nil {
			logger.Error(ctx, "reconciler: no contract", "currency", bid.Currency, "error", err)
			continue
		}

		decimals, ok := decimalsByContract[contract]
		if !ok {
			decimals, err = s.chain.Decimals(ctx, contract)
			if err != nil {
				logger.Warn(ctx, "reconciler: decimals read failed", "contract", contract, "error", err)
				continue
			}
			decimalsByContract[contract] = decimals
		}

		units, err := token.ToSmallestUnit(m.AmountUSD, decimals)
		if err != nil {
			logger.Error(ctx, "reconciler: bad amount", "bid_id", m.BidID, "milestone_index", m.MilestoneIndex, "error", err)
			continue
		}

		events, err := s.chain.TransfersFromSigner(ctx, contract, bid.VendorWallet, *m.CompletedAt)
		if err != nil {
			logger.Warn(ctx, "reconciler: transfer scan failed", "wallet", bid.VendorWallet, "error", err)
			continue
		}

		deadline := m.CompletedAt.Add(s.reconcileWindow)
		for _, ev := range events {
			if ev.Value.Cmp(units) != 0 {
				continue
			}
			if ev.Time.After(deadline) {
				continue
			}
			// Prefer the hash we recorded before the crash when it matches.
			txHash := ev.TxHash
			if m.PendingTxHash != nil && *m.PendingTxHash != txHash {
				// A different confirmed transfer with the right amount still
				// settles the milestone; the pending hash never confirmed.
				logger.Warn(ctx, "reconciler: pending hash superseded",
					"pending", *m.PendingTxHash, "confirmed", txHash)
			}

			err := s.commit(reconcilerActor, models.ActionPaymentReconciled, bid, m, txHash, ev.Time)
			if errors.Is(err, apperr.ErrDuplicatePayment) {
				break // someone else healed it first
			}
			if err != nil {
				logger.Error(ctx, "reconciler: commit failed", "tx_hash", txHash, "error", err)
				break
			}
			healed++
			logger.Info(ctx, "reconciler: milestone healed",
				"bid_id", m.BidID, "milestone_index", m.MilestoneIndex, "tx_hash", txHash)
			break
		}
	}
	return healed, nil
}

// RunReconciler sweeps on a fixed interval until ctx is cancelled.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReconcileOnce(ctx); err != nil {
				logger.Error(ctx, "reconciler sweep failed", "error", err)
			}
		}
	}
}
