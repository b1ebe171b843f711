package changerequests

import (
	"context"
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
)

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
		bid.Milestones = append(bid.Milestones, models.Milestone{
			ID:             uuid.New(),
			BidID:          bid.ID,
			MilestoneIndex: i,
			Name:           "phase",
			AmountUSD:      "250.00",
			Status:         status,
			CreatedAt:      time.Now().UTC(),
		})
	}
	require.NoError(t, db.Create(bid).Error)
	return bid
}

func newService(db *gorm.DB) *Service {
	return NewService(repository.NewBidRepository(db), repository.NewChangeRequestRepository(db))
}

func TestOpenMarksMilestone(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusAwaitingReview, models.StatusAwaitingReview)
	svc := newService(db)

	cr, err := svc.Open(context.Background(), "admin", bid.ID, 1, "invoice missing from evidence", []string{"attach signed invoice", "retake photo 3"})
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestOpen, cr.Status)
	assert.Equal(t, 1, cr.MilestoneIndex)

	var m models.Milestone
	require.NoError(t, db.First(&m, "bid_id = ? AND milestone_index = ?", bid.ID, 1).Error)
	assert.Equal(t, models.StatusChangesRequested, m.Status)
}

func TestOpenRequiresComment(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusAwaitingReview)
	svc := newService(db)

	_, err := svc.Open(context.Background(), "admin", bid.ID, 0, "", nil)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestOpenRequiresReview(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusOpen)
	svc := newService(db)

	_, err := svc.Open(context.Background(), "admin", bid.ID, 0, "please fix", nil)
	require.ErrorIs(t, err, apperr.ErrInvalidMilestone)
}

// The request stays open however many replies arrive; only an explicit
// resolve ends it.
func TestRequestStaysOpenAcrossResponses(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusAwaitingReview, models.StatusAwaitingReview)
	svc := newService(db)

	cr, err := svc.Open(context.Background(), "admin", bid.ID, 1, "quantities do not match the bid", nil)
	require.NoError(t, err)

	_, err = svc.Respond(context.Background(), "vendor", cr.ID, "corrected the quantities", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = svc.Respond(context.Background(), "vendor", cr.ID, "attached the delivery notes", []models.FileRef{
		{URL: "https://blobs.example/x/notes.pdf", Name: "notes.pdf"},
	})
	require.NoError(t, err)

	open, err := svc.ListOpenByProposal(bid.ProposalID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Len(t, open[0].Responses, 2)
	// oldest first
	assert.Equal(t, "corrected the quantities", open[0].Responses[0].Comment)

	// a reply puts the milestone back under review
	var m models.Milestone
	require.NoError(t, db.First(&m, "bid_id = ? AND milestone_index = ?", bid.ID, 1).Error)
	assert.Equal(t, models.StatusAwaitingReview, m.Status)

	require.NoError(t, svc.Resolve(context.Background(), "admin", cr.ID))

	open, err = svc.ListOpenByProposal(bid.ProposalID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRespondEmptyRejected(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusAwaitingReview)
	svc := newService(db)

	cr, err := svc.Open(context.Background(), "admin", bid.ID, 0, "needs work", nil)
	require.NoError(t, err)

	_, err = svc.Respond(context.Background(), "vendor", cr.ID, "", nil)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestRespondToResolvedRejected(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusAwaitingReview)
	svc := newService(db)

	cr, err := svc.Open(context.Background(), "admin", bid.ID, 0, "needs work", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Resolve(context.Background(), "admin", cr.ID))

	_, err = svc.Respond(context.Background(), "vendor", cr.ID, "too late", nil)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestResolveTwiceRejected(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusAwaitingReview)
	svc := newService(db)

	cr, err := svc.Open(context.Background(), "admin", bid.ID, 0, "needs work", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Resolve(context.Background(), "admin", cr.ID))
	require.ErrorIs(t, svc.Resolve(context.Background(), "admin", cr.ID), apperr.ErrInvalidArgument)
}

// Resolve and its audit event commit together or not at all.
func TestResolveRollsBackWhenAuditAppendFails(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusAwaitingReview)
	svc := newService(db)

	cr, err := svc.Open(context.Background(), "admin", bid.ID, 0, "needs work", nil)
	require.NoError(t, err)

	require.NoError(t, db.Migrator().DropTable(&models.AuditEvent{}))
	require.Error(t, svc.Resolve(context.Background(), "admin", cr.ID))

	var got models.ChangeRequest
	require.NoError(t, db.First(&got, "id = ?", cr.ID).Error)
	assert.Equal(t, models.ChangeRequestOpen, got.Status)
}

func TestAuditTrail(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusAwaitingReview)
	svc := newService(db)

	cr, err := svc.Open(context.Background(), "admin", bid.ID, 0, "needs work", nil)
	require.NoError(t, err)
	_, err = svc.Respond(context.Background(), "vendor", cr.ID, "done", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Close(context.Background(), "admin", cr.ID))

	var actions []string
	require.NoError(t, db.Model(&models.AuditEvent{}).Order("seq ASC").Pluck("action", &actions).Error)
	assert.Equal(t, []string{
		models.ActionChangeRequestOpened,
		models.ActionChangeResponsePosted,
		models.ActionChangeRequestClosed,
	}, actions)
}
