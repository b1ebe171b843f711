package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"milestone-escrow-backend/internal/services/audit"
)

type AuditHandler struct {
	service *audit.Service
}

func NewAuditHandler(service *audit.Service) *AuditHandler {
	return &AuditHandler{service: service}
}

// ListByBid is the full trail for oversight views.
func (h *AuditHandler) ListByBid(c *gin.Context) {
	bidID, err := uuid.Parse(c.Param("bidId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid ID"})
		return
	}
	events, err := h.service.ListByEntity(bidID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// PublicByProposal is the redacted projection for public views.
func (h *AuditHandler) PublicByProposal(c *gin.Context) {
	proposalID, err := uuid.Parse(c.Param("proposalId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal ID"})
		return
	}
	events, err := h.service.PublicByProposal(proposalID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
