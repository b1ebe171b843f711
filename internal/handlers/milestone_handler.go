package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"milestone-escrow-backend/internal/models"
	"milestone-escrow-backend/internal/services/lifecycle"
	"milestone-escrow-backend/internal/services/payments"
	"milestone-escrow-backend/internal/services/proofs"
)

type MilestoneHandler struct {
	lifecycle *lifecycle.Service
	proofs    *proofs.Service
	payments  *payments.Service
}

func NewMilestoneHandler(lc *lifecycle.Service, pr *proofs.Service, pay *payments.Service) *MilestoneHandler {
	return &MilestoneHandler{
		lifecycle: lc,
		proofs:    pr,
		payments:  pay,
	}
}

func milestoneAddress(c *gin.Context) (uuid.UUID, int, bool) {
	bidID, err := uuid.Parse(c.Param("bidId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid ID"})
		return uuid.Nil, 0, false
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone index"})
		return uuid.Nil, 0, false
	}
	return bidID, index, true
}

func (h *MilestoneHandler) SubmitProof(c *gin.Context) {
	bidID, index, ok := milestoneAddress(c)
	if !ok {
		return
	}
	var payload struct {
		Description string           `json:"description"`
		Files       []models.FileRef `json:"files"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	proof, err := h.proofs.Submit(reqContext(c), actor(c), bidID, index, payload.Description, payload.Files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"proof": proof})
}

func (h *MilestoneHandler) ListProofs(c *gin.Context) {
	bidID, index, ok := milestoneAddress(c)
	if !ok {
		return
	}
	list, err := h.proofs.List(bidID, index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proofs": list})
}

func (h *MilestoneHandler) Approve(c *gin.Context) {
	bidID, index, ok := milestoneAddress(c)
	if !ok {
		return
	}
	var payload struct {
		Summary string `json:"summary"`
	}
	// body is optional
	_ = c.ShouldBindJSON(&payload)

	m, err := h.lifecycle.Approve(reqContext(c), actor(c), bidID, index, payload.Summary)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestone": m})
}

func (h *MilestoneHandler) Release(c *gin.Context) {
	bidID, index, ok := milestoneAddress(c)
	if !ok {
		return
	}
	txHash, err := h.payments.Release(reqContext(c), actor(c), bidID, index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_hash": txHash})
}

func (h *MilestoneHandler) Archive(c *gin.Context) {
	bidID, index, ok := milestoneAddress(c)
	if !ok {
		return
	}
	m, err := h.lifecycle.Archive(reqContext(c), actor(c), bidID, index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestone": m})
}

func (h *MilestoneHandler) Unarchive(c *gin.Context) {
	bidID, index, ok := milestoneAddress(c)
	if !ok {
		return
	}
	m, err := h.lifecycle.Unarchive(reqContext(c), actor(c), bidID, index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestone": m})
}
