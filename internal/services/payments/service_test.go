package payments

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"milestone-escrow-backend/internal/apperr"
	"milestone-escrow-backend/internal/models"
	"milestone-escrow-backend/internal/repository"
	"milestone-escrow-backend/internal/services/audit"
	"milestone-escrow-backend/internal/token"
)

const signerAddr = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

// fakeChain implements token.Client against in-memory state.
type fakeChain struct {
	mu        sync.Mutex
	decimals  uint8
	balance   *big.Int
	revert    bool
	timeout   bool
	transfers []token.TransferEvent
	submitted int

	// rejectSends makes that many submissions fail with a rate limit before
	// the node accepts anything. ambiguousSends makes that many submissions
	// broadcast but report an unknown outcome.
	rejectSends    int
	ambiguousSends int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		decimals: 6,
		balance:  big.NewInt(1_000_000_000), // 1000 units of a 6-decimal token
	}
}

func (f *fakeChain) SignerAddress() string { return signerAddr }

func (f *fakeChain) Decimals(ctx context.Context, contract string) (uint8, error) {
	return f.decimals, nil
}

func (f *fakeChain) BalanceOf(ctx context.Context, contract, owner string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeChain) Transfer(ctx context.Context, contract, to string, amount *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectSends > 0 {
		f.rejectSends--
		return "", fmt.Errorf("%w: send transfer: 429 too many requests", apperr.ErrRateLimited)
	}
	f.submitted++
	hash := fmt.Sprintf("0x%064d", f.submitted)
	f.transfers = append(f.transfers, token.TransferEvent{
		TxHash: hash,
		From:   signerAddr,
		To:     to,
		Value:  new(big.Int).Set(amount),
		Time:   time.Now().UTC(),
	})
	if f.ambiguousSends > 0 {
		f.ambiguousSends--
		return hash, fmt.Errorf("%w: send transfer: connection reset", apperr.ErrUpstreamUnavailable)
	}
	return hash, nil
}

func (f *fakeChain) WaitConfirmed(ctx context.Context, txHash string) (*token.Receipt, error) {
	if f.timeout {
		return nil, fmt.Errorf("%w: %s", apperr.ErrTransactionTimeout, txHash)
	}
	return &token.Receipt{TxHash: txHash, Reverted: f.revert, BlockNumber: 1}, nil
}

func (f *fakeChain) TransfersFromSigner(ctx context.Context, contract, to string, since time.Time) ([]token.TransferEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []token.TransferEvent
	for _, ev := range f.transfers {
		if ev.To == to && !ev.Time.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Bid{}, &models.Milestone{}, &models.Proof{},
		&models.ChangeRequest{}, &models.ChangeResponse{},
		&models.Payment{}, &models.AuditEvent{}, &models.AuditAnchor{},
	))
	return db
}

func seedBid(t *testing.T, db *gorm.DB, statuses ...string) *models.Bid {
	t.Helper()
	bid := &models.Bid{
		ID:           uuid.New(),
		ProposalID:   uuid.New(),
		VendorName:   "Acme Paving",
		VendorWallet: "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		Currency:     "USDC",
		CreatedAt:    time.Now().UTC(),
	}
	for i, status := range statuses {
		m := models.Milestone{
			ID:             uuid.New(),
			BidID:          bid.ID,
			MilestoneIndex: i,
			Name:           "phase",
			AmountUSD:      "250.00",
			Status:         status,
			CreatedAt:      time.Now().UTC(),
		}
		if status == models.StatusCompleted || status == models.StatusPaid {
			// old enough for the reconciler's grace period
			completed := time.Now().UTC().Add(-5 * time.Minute)
			m.Completed = true
			m.CompletedAt = &completed
		}
		bid.Milestones = append(bid.Milestones, m)
	}
	require.NoError(t, db.Create(bid).Error)
	return bid
}

func newService(db *gorm.DB, chain token.Client) *Service {
	auditSvc := audit.NewService(repository.NewAuditRepository(db))
	return NewService(
		repository.NewBidRepository(db),
		repository.NewPaymentRepository(db),
		auditSvc,
		chain,
		"mainnet",
		72*time.Hour,
	)
}

func TestReleaseSuccess(t *testing.T) {
	db := newTestDB(t)
	chain := newFakeChain()
	bid := seedBid(t, db, models.StatusCompleted)
	svc := newService(db, chain)

	txHash, err := svc.Release(context.Background(), "admin", bid.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, txHash)

	// 250.00 of a 6-decimal token is exactly 250000000 smallest units
	require.Len(t, chain.transfers, 1)
	assert.Equal(t, "250000000", chain.transfers[0].Value.String())
	assert.Equal(t, bid.VendorWallet, chain.transfers[0].To)

	var m models.Milestone
	require.NoError(t, db.First(&m, "bid_id = ? AND milestone_index = ?", bid.ID, 0).Error)
	require.NotNil(t, m.TransactionHash)
	assert.Equal(t, txHash, *m.TransactionHash)
	assert.Equal(t, models.StatusPaid, m.Status)
	assert.True(t, m.Completed)
	assert.NotNil(t, m.PaidAt)
	assert.Nil(t, m.PendingTxHash)

	var p models.Payment
	require.NoError(t, db.First(&p, "bid_id = ? AND milestone_index = ?", bid.ID, 0).Error)
	assert.Equal(t, txHash, p.TransactionHash)
	assert.Equal(t, "250.00", p.Amount)
	assert.Equal(t, "USDC", p.Currency)

	var ev models.AuditEvent
	require.NoError(t, db.First(&ev, "action = ?", models.ActionPaymentReleased).Error)
	require.NotNil(t, ev.TxHash)
	assert.Equal(t, txHash, *ev.TxHash)
}

func TestReleaseRequiresApproval(t *testing.T) {
	db := newTestDB(t)
	chain := newFakeChain()
	bid := seedBid(t, db, models.StatusAwaitingReview)
	svc := newService(db, chain)

	_, err := svc.Release(context.Background(), "admin", bid.ID, 0)
	require.ErrorIs(t, err, apperr.ErrInvalidMilestone)
	assert.Zero(t, chain.submitted)
}

func TestReleaseInsufficientFunds(t *testing.T) {
	db := newTestDB(t)
	chain := newFakeChain()
	chain.balance = big.NewInt(100) // far below 250000000
	bid := seedBid(t, db, models.StatusCompleted)
	svc := newService(db, chain)

	_, err := svc.Release(context.Background(), "admin", bid.ID, 0)
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	// no transfer attempted, milestone stays completed and unpaid
	assert.Zero(t, chain.submitted)

	var m models.Milestone
	require.NoError(t, db.First(&m, "bid_id = ? AND milestone_index = ?", bid.ID, 0).Error)
	assert.True(t, m.Completed)
	assert.Nil(t, m.TransactionHash)
	assert.Equal(t, models.StatusCompleted, m.Status)

	var count int64
	db.Model(&models.Payment{}).Count(&count)
	assert.Zero(t, count)
}

func TestReleaseRevertedIsRetryable(t *testing.T) {
	db := newTestDB(t)
	chain := newFakeChain()
	chain.revert = true
	bid := seedBid(t, db, models.StatusCompleted)
	svc := newService(db, chain)

	_, err := svc.Release(context.Background(), "admin", bid.ID, 0)
	require.ErrorIs(t, err, apperr.ErrTransactionReverted)

	var count int64
	db.Model(&models.Payment{}).Count(&count)
	assert.Zero(t, count)

	var m models.Milestone
	require.NoError(t, db.First(&m, "bid_id = ? AND milestone_index = ?", bid.ID, 0).Error)
	assert.Nil(t, m.TransactionHash)
	assert.Equal(t, models.StatusCompleted, m.Status)

	// the milestone is safe to retry once the revert cause is fixed
	chain.revert = false
	chain.transfers = nil
	txHash, err := svc.Release(context.Background(), "admin", bid.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)
}

func TestReleaseDuplicateRejected(t *testing.T) {
	db := newTestDB(t)
	chain := newFakeChain()
	bid := seedBid(t, db, models.StatusCompleted)
	svc := newService(db, chain)

	_, err := svc.Release(context.Background(), "admin", bid.ID, 0)
	require.NoError(t, err)

	_, err = svc.Release(context.Background(), "admin", bid.ID, 0)
	require.ErrorIs(t, err, apperr.ErrDuplicatePayment)
	assert.Equal(t, 1, chain.submitted)
}

// Two simultaneous release calls for the same milestone: exactly one obtains a
// transaction hash, the other observes the claim and aborts without a second
// transfer.
func TestConcurrentReleaseSingleTransfer(t *testing.T) {
	db := newTestDB(t)
	chain := newFakeChain()
	bid := seedBid(t, db, models.StatusCompleted, models.StatusCompleted, models.StatusCompleted)
	svc := newService(db, chain)

	var wg sync.WaitGroup
	results := make([]error, 2)
	hashes := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hashes[i], results[i] = svc.Release(context.Background(), "admin", bid.ID, 2)
		}(i)
	}
	wg.Wait()

	var okCount, dupCount int
	for i := 0; i < 2; i++ {
		switch {
		case results[i] == nil:
			okCount++
			assert.NotEmpty(t, hashes[i])
		case assert.ErrorIs(t, results[i], apperr.ErrDuplicatePayment):
			dupCount++
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, dupCount)
	assert.Equal(t, 1, chain.submitted)

	var count int64
	db.Model(&models.Payment{}).Where("bid_id = ? AND milestone_index = ?", bid.ID, 2).Count(&count)
	assert.EqualValues(t, 1, count)
}

// A submission whose outcome is unknown is never resubmitted: the first
// broadcast may already sit in the mempool, and a replay would pay twice.
func TestAmbiguousSubmissionNotResubmitted(t *testing.T) {
	db := newTestDB(t)
	chain := newFakeChain()
	chain.ambiguousSends = 1
	bid := seedBid(t, db, models.StatusCompleted)
	svc := newService(db, chain)

	_, err := svc.Release(context.Background(), "admin", bid.ID, 0)
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.Equal(t, 1, chain.submitted)

	// the broadcast is tracked as in flight, no payment is claimed
	var m models.Milestone
	require.NoError(t, db.First(&m, "bid_id = ? AND milestone_index = ?", bid.ID, 0).Error)
	assert.Nil(t, m.TransactionHash)
	require.NotNil(t, m.PendingTxHash)
	assert.Equal(t, chain.transfers[0].TxHash, *m.PendingTxHash)

	var count int64
	db.Model(&models.Payment{}).Count(&count)
	assert.Zero(t, count)

	// the reconciler settles the transfer that did land
	healed, err := svc.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, healed)
	assert.Equal(t, 1, chain.submitted)

	require.NoError(t, db.First(&m, "bid_id = ? AND milestone_index = ?", bid.ID, 0).Error)
	require.NotNil(t, m.TransactionHash)
	assert.Equal(t, chain.transfers[0].TxHash, *m.TransactionHash)
}

// An explicit node rejection never reaches the mempool, so it is safe to
// retry the submission.
func TestRejectedSubmissionRetried(t *testing.T) {
	db := newTestDB(t)
	chain := newFakeChain()
	chain.rejectSends = 1
	bid := seedBid(t, db, models.StatusCompleted)
	svc := newService(db, chain)

	txHash, err := svc.Release(context.Background(), "admin", bid.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)
	assert.Equal(t, 1, chain.submitted)
}

// While an earlier transfer is in flight a new release is refused; only the
// reconciler may settle or clear it.
func TestReleaseRefusedWhileTransferInFlight(t *testing.T) {
	db := newTestDB(t)
	chain := newFakeChain()
	chain.timeout = true
	bid := seedBid(t, db, models.StatusCompleted)
	svc := newService(db, chain)

	_, err := svc.Release(context.Background(), "admin", bid.ID, 0)
	require.ErrorIs(t, err, apperr.ErrTransactionTimeout)
	assert.Equal(t, 1, chain.submitted)

	chain.timeout = false
	_, err = svc.Release(context.Background(), "admin", bid.ID, 0)
	require.ErrorIs(t, err, apperr.ErrDuplicatePayment)
	assert.Equal(t, 1, chain.submitted)
}

func TestReleaseTimeoutLeavesPending(t *testing.T) {
	db := newTestDB(t)
	chain := newFakeChain()
	chain.timeout = true
	bid := seedBid(t, db, models.StatusCompleted)
	svc := newService(db, chain)

	_, err := svc.Release(context.Background(), "admin", bid.ID, 0)
	require.ErrorIs(t, err, apperr.ErrTransactionTimeout)

	// outcome is unknown, not failed: no payment row, but the in-flight hash
	// is recorded for the reconciler
	var count int64
	db.Model(&models.Payment{}).Count(&count)
	assert.Zero(t, count)

	var m models.Milestone
	require.NoError(t, db.First(&m, "bid_id = ? AND milestone_index = ?", bid.ID, 0).Error)
	assert.Nil(t, m.TransactionHash)
	require.NotNil(t, m.PendingTxHash)
	assert.Equal(t, chain.transfers[0].TxHash, *m.PendingTxHash)
}
