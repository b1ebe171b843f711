package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"milestone-escrow-backend/internal/services/bids"
)

type BidHandler struct {
	service *bids.Service
}

func NewBidHandler(service *bids.Service) *BidHandler {
	return &BidHandler{service: service}
}

func (h *BidHandler) Create(c *gin.Context) {
	var payload struct {
		ProposalID   string                `json:"proposal_id"`
		VendorName   string                `json:"vendor_name"`
		VendorWallet string                `json:"vendor_wallet"`
		Currency     string                `json:"currency"`
		Milestones   []bids.MilestoneInput `json:"milestones"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	proposalID, err := uuid.Parse(payload.ProposalID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal ID"})
		return
	}

	bid, err := h.service.Create(reqContext(c), actor(c), proposalID,
		payload.VendorName, payload.VendorWallet, payload.Currency, payload.Milestones)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bid": bid})
}

func (h *BidHandler) Get(c *gin.Context) {
	bidID, err := uuid.Parse(c.Param("bidId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid ID"})
		return
	}
	bid, err := h.service.Get(bidID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bid": bid})
}

func (h *BidHandler) StoreAnalysis(c *gin.Context) {
	bidID, err := uuid.Parse(c.Param("bidId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid ID"})
		return
	}
	var blob json.RawMessage
	if err := c.BindJSON(&blob); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.service.StoreAnalysis(reqContext(c), actor(c), bidID, blob); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "analysis stored"})
}
