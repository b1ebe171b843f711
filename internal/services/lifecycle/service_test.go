package lifecycle

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
		m := models.Milestone{
			ID:             uuid.New(),
			BidID:          bid.ID,
			MilestoneIndex: i,
			Name:           "phase",
			AmountUSD:      "250.00",
			DueDate:        time.Now().Add(30 * 24 * time.Hour),
			Status:         status,
			CreatedAt:      time.Now().UTC(),
		}
		if status == models.StatusCompleted || status == models.StatusPaid {
			now := time.Now().UTC()
			m.Completed = true
			m.CompletedAt = &now
		}
		bid.Milestones = append(bid.Milestones, m)
	}
	require.NoError(t, db.Create(bid).Error)
	return bid
}

func newService(db *gorm.DB) *Service {
	return NewService(repository.NewBidRepository(db), repository.NewProofRepository(db))
}

func TestApprove(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusAwaitingReview)
	svc := newService(db)

	m, err := svc.Approve(context.Background(), "admin", bid.ID, 0, "work verified on site")
	require.NoError(t, err)
	assert.True(t, m.Completed)
	assert.NotNil(t, m.CompletedAt)
	assert.Equal(t, models.StatusCompleted, m.Status)
	assert.Equal(t, "work verified on site", m.ProofSummary)

	var ev models.AuditEvent
	require.NoError(t, db.First(&ev, "action = ?", models.ActionMilestoneApproved).Error)
	assert.Equal(t, "admin", ev.Actor)
}

func TestApproveRequiresReview(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusOpen, models.StatusChangesRequested, models.StatusCompleted)
	svc := newService(db)

	for index := 0; index < 3; index++ {
		_, err := svc.Approve(context.Background(), "admin", bid.ID, index, "")
		assert.ErrorIs(t, err, apperr.ErrInvalidMilestone, "index %d", index)
	}
}

func TestApproveUnknownIndex(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusAwaitingReview)
	svc := newService(db)

	_, err := svc.Approve(context.Background(), "admin", bid.ID, 5, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidMilestone)
}

func TestApproveDefaultsSummaryToCurrentProof(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusAwaitingReview)
	require.NoError(t, db.Create(&models.Proof{
		ID:             uuid.New(),
		BidID:          bid.ID,
		MilestoneIndex: 0,
		Description:    "photos of the finished lot",
		Status:         models.ProofStatusSubmitted,
		CreatedAt:      time.Now().UTC(),
	}).Error)
	svc := newService(db)

	m, err := svc.Approve(context.Background(), "admin", bid.ID, 0, "")
	require.NoError(t, err)
	assert.Equal(t, "photos of the finished lot", m.ProofSummary)
}

func TestArchiveUnarchive(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusChangesRequested)
	svc := newService(db)

	m, err := svc.Archive(context.Background(), "vendor", bid.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, m.Status)
	require.NotNil(t, m.ArchivedFrom)
	assert.Equal(t, models.StatusChangesRequested, *m.ArchivedFrom)

	m, err = svc.Unarchive(context.Background(), "vendor", bid.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusChangesRequested, m.Status)
	assert.Nil(t, m.ArchivedFrom)

	var count int64
	db.Model(&models.AuditEvent{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestArchivePaidRejected(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusPaid)
	svc := newService(db)

	_, err := svc.Archive(context.Background(), "admin", bid.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidMilestone)
}

func TestUnarchiveRequiresArchived(t *testing.T) {
	db := newTestDB(t)
	bid := seedBid(t, db, models.StatusOpen)
	svc := newService(db)

	_, err := svc.Unarchive(context.Background(), "admin", bid.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidMilestone)
}
