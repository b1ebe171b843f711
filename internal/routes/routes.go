package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	handler "milestone-escrow-backend/internal/handlers"
	"milestone-escrow-backend/internal/repository"
	"milestone-escrow-backend/internal/services/audit"
	"milestone-escrow-backend/internal/services/bids"
	"milestone-escrow-backend/internal/services/changerequests"
	"milestone-escrow-backend/internal/services/lifecycle"
	"milestone-escrow-backend/internal/services/payments"
	"milestone-escrow-backend/internal/services/proofs"
	"milestone-escrow-backend/internal/storage"
	"milestone-escrow-backend/internal/token"
)

// Services exposes the pieces main needs for background loops.
type Services struct {
	Payments *payments.Service
	Audit    *audit.Service
}

func RegisterRoutes(r *gin.Engine, db *gorm.DB, chain token.Client, blobs *storage.BlobStore, network string, reconcileWindow time.Duration) *Services {
	bidRepo := repository.NewBidRepository(db)
	proofRepo := repository.NewProofRepository(db)
	requestRepo := repository.NewChangeRequestRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	auditService := audit.NewService(auditRepo)
	bidService := bids.NewService(bidRepo)
	lifecycleService := lifecycle.NewService(bidRepo, proofRepo)
	proofService := proofs.NewService(bidRepo, proofRepo)
	requestService := changerequests.NewService(bidRepo, requestRepo)
	paymentService := payments.NewService(bidRepo, paymentRepo, auditService, chain, network, reconcileWindow)

	bidHandler := handler.NewBidHandler(bidService)
	milestoneHandler := handler.NewMilestoneHandler(lifecycleService, proofService, paymentService)
	requestHandler := handler.NewChangeRequestHandler(requestService)
	auditHandler := handler.NewAuditHandler(auditService)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Bid routes
	bid := api.Group("/bids")
	bid.POST("", bidHandler.Create)
	bid.GET("/:bidId", bidHandler.Get)
	bid.PUT("/:bidId/analysis", bidHandler.StoreAnalysis)
	bid.GET("/:bidId/audit", auditHandler.ListByBid)

	// Milestone routes, addressed by permanent (bid, index)
	ms := bid.Group("/:bidId/milestones/:index")
	ms.POST("/proofs", milestoneHandler.SubmitProof)
	ms.GET("/proofs", milestoneHandler.ListProofs)
	ms.POST("/approve", milestoneHandler.Approve)
	ms.POST("/release", milestoneHandler.Release)
	ms.POST("/archive", milestoneHandler.Archive)
	ms.POST("/unarchive", milestoneHandler.Unarchive)

	// Change-request loop
	cr := api.Group("/change-requests")
	cr.POST("", requestHandler.Open)
	cr.POST("/:id/responses", requestHandler.Respond)
	cr.POST("/:id/resolve", requestHandler.Resolve)
	cr.POST("/:id/close", requestHandler.Close)

	// Proposal-scoped reads
	proposals := api.Group("/proposals")
	proposals.GET("/:proposalId/change-requests", requestHandler.ListOpen)
	proposals.GET("/:proposalId/audit", auditHandler.PublicByProposal)

	// Blob collaborator
	if blobs != nil {
		uploadHandler := handler.NewUploadHandler(blobs)
		api.POST("/files/upload", uploadHandler.Upload)
	}

	return &Services{
		Payments: paymentService,
		Audit:    auditService,
	}
}
