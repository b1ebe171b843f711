// Package payments turns an approved milestone into exactly one on-chain
// stablecoin transfer. Release is serialized per milestone by an advisory
// lock, and the commit uses a conditional update so a hash can never be
// written twice even across processes.
package payments

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"milestone-escrow-backend/internal/apperr"
	"milestone-escrow-backend/internal/models"
	"milestone-escrow-backend/internal/repository"
	"milestone-escrow-backend/internal/retry"
	"milestone-escrow-backend/internal/services/audit"
	"milestone-escrow-backend/internal/token"
	"milestone-escrow-backend/pkg/logger"
)

const maxRetries = 4

type Service struct {
	bids     *repository.BidRepository
	payments *repository.PaymentRepository
	audit    *audit.Service
	chain    token.Client
	network  string

	// reconcileWindow bounds how long after approval the reconciler will
	// attribute an on-chain transfer to a milestone.
	reconcileWindow time.Duration
	// reconcileGrace is how old an unpaid approval must be before the sweep
	// looks at it, so normal releases are not raced.
	reconcileGrace time.Duration

	locks sync.Map // "bidID:index" -> *sync.Mutex
}

func NewService(bids *repository.BidRepository, payments *repository.PaymentRepository, auditSvc *audit.Service, chain token.Client, network string, reconcileWindow time.Duration) *Service {
	return &Service{
		bids:            bids,
		payments:        payments,
		audit:           auditSvc,
		chain:           chain,
		network:         network,
		reconcileWindow: reconcileWindow,
		reconcileGrace:  time.Minute,
	}
}

// Release executes the transfer for one approved milestone and persists the
// result. Exactly one caller ever obtains a transaction hash for a milestone;
// every other caller gets ErrDuplicatePayment.
func (s *Service) Release(ctx context.Context, actor string, bidID uuid.UUID, index int) (string, error) {
	mu := s.milestoneLock(bidID, index)
	mu.Lock()
	defer mu.Unlock()

	m, err := s.bids.GetMilestone(bidID, index)
	if err != nil {
		return "", err
	}
	if m.TransactionHash != nil {
		return "", fmt.Errorf("%w: milestone %d already paid in %s", apperr.ErrDuplicatePayment, index, *m.TransactionHash)
	}
	if m.PendingTxHash != nil {
		// An earlier transfer is still in flight and may yet confirm. The
		// reconciler settles or clears it; releasing again risks paying twice.
		return "", fmt.Errorf("%w: transfer %s for milestone %d is awaiting confirmation", apperr.ErrDuplicatePayment, *m.PendingTxHash, index)
	}
	if !m.Completed || m.Status != models.StatusCompleted {
		return "", fmt.Errorf("%w: milestone %d is %s, release requires approval", apperr.ErrInvalidMilestone, index, m.Status)
	}

	bid, err := s.bids.GetByID(bidID)
	if err != nil {
		return "", err
	}

	contract, err := token.ContractAddress(bid.Currency, s.network)
	if err != nil {
		return "", err
	}

	var decimals uint8
	if err := retry.Do(ctx, maxRetries, func() error {
		var derr error
		decimals, derr = s.chain.Decimals(ctx, contract)
		return derr
	}); err != nil {
		return "", err
	}

	units, err := token.ToSmallestUnit(m.AmountUSD, decimals)
	if err != nil {
		return "", err
	}

	var balance *big.Int
	if err := retry.Do(ctx, maxRetries, func() error {
		var berr error
		balance, berr = s.chain.BalanceOf(ctx, contract, s.chain.SignerAddress())
		return berr
	}); err != nil {
		return "", err
	}
	if balance.Cmp(units) < 0 {
		return "", fmt.Errorf("%w: need %s, have %s", apperr.ErrInsufficientFunds,
			units.String(), balance.String())
	}

	// Submission is not idempotent: a node rejection (rate limit) is retried,
	// anything else is final for this call.
	var txHash string
	if err := retry.Submit(ctx, maxRetries, func() error {
		var terr error
		txHash, terr = s.chain.Transfer(ctx, contract, bid.VendorWallet, units)
		return terr
	}); err != nil {
		if txHash != "" {
			// The submission outcome is unknown and the transfer may still land.
			// Record it as in flight and leave settlement to the reconciler.
			if perr := s.bids.SetPendingTx(bidID, index, &txHash); perr != nil {
				logger.Error(ctx, "failed to record pending transfer", "tx_hash", txHash, "error", perr)
			}
		}
		return "", err
	}

	// Record the in-flight hash before waiting so a crash or timeout leaves a
	// trail the reconciler can pick up.
	if err := s.bids.SetPendingTx(bidID, index, &txHash); err != nil {
		logger.Error(ctx, "failed to record pending transfer", "tx_hash", txHash, "error", err)
	}

	receipt, err := s.chain.WaitConfirmed(ctx, txHash)
	if err != nil {
		// The transfer cannot be retracted; its outcome is unknown, not
		// failed. Leave the pending hash in place for the reconciler.
		logger.Warn(ctx, "transfer confirmation not observed", "tx_hash", txHash, "error", err)
		return "", err
	}
	if receipt.Reverted {
		if perr := s.bids.SetPendingTx(bidID, index, nil); perr != nil {
			logger.Error(ctx, "failed to clear pending transfer", "tx_hash", txHash, "error", perr)
		}
		ev := audit.NewEvent(actor, models.ActionPaymentFailed, "payment", bidID, &bid.ProposalID, &index, map[string]interface{}{
			"reason": "reverted",
		}, &txHash)
		if aerr := s.audit.Append(ev); aerr != nil {
			logger.Error(ctx, "failed to record failed payment", "tx_hash", txHash, "error", aerr)
		}
		return "", fmt.Errorf("%w: %s", apperr.ErrTransactionReverted, txHash)
	}

	if err := s.commit(actor, models.ActionPaymentReleased, bid, m, txHash, time.Now().UTC()); err != nil {
		return "", err
	}

	logger.Info(ctx, "payment released",
		"bid_id", bidID,
		"milestone_index", index,
		"tx_hash", txHash,
		"amount", m.AmountUSD,
		"currency", bid.Currency)
	return txHash, nil
}

// commit persists the Payment row, claims the milestone hash, and appends the
// audit event in one transaction. Runs only after on-chain confirmation.
func (s *Service) commit(actor, action string, bid *models.Bid, m *models.Milestone, txHash string, releasedAt time.Time) error {
	payment := &models.Payment{
		ID:              uuid.New(),
		BidID:           m.BidID,
		MilestoneIndex:  m.MilestoneIndex,
		TransactionHash: txHash,
		Amount:          m.AmountUSD,
		Currency:        bid.Currency,
		ReleasedAt:      releasedAt,
		CreatedAt:       time.Now().UTC(),
	}
	idx := m.MilestoneIndex
	ev := audit.NewEvent(actor, action, "payment", m.BidID, &bid.ProposalID, &idx, map[string]interface{}{
		"amount":   m.AmountUSD,
		"currency": bid.Currency,
	}, &txHash)
	return s.payments.ClaimAndRecord(payment, ev)
}

func (s *Service) milestoneLock(bidID uuid.UUID, index int) *sync.Mutex {
	key := fmt.Sprintf("%s:%d", bidID, index)
	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
