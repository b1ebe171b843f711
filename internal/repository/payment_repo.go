package repository

import (
	"gorm.io/gorm"

	"milestone-escrow-backend/internal/apperr"
	"milestone-escrow-backend/internal/models"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// ClaimAndRecord is the commit step of a release: in one transaction it sets
// the milestone's transaction hash only if still unset, inserts the Payment
// row, and appends the audit event. A concurrent release that already claimed
// the milestone makes the conditional update touch zero rows, which surfaces
// as ErrDuplicatePayment without writing anything.
func (r *PaymentRepository) ClaimAndRecord(p *models.Payment, ev *models.AuditEvent) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Milestone{}).
			Where("bid_id = ? AND milestone_index = ? AND transaction_hash IS NULL", p.BidID, p.MilestoneIndex).
			Updates(map[string]interface{}{
				"transaction_hash": p.TransactionHash,
				"paid_at":          p.ReleasedAt,
				"status":           models.StatusPaid,
				"pending_tx_hash":  nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrDuplicatePayment
		}
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
}
