package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"milestone-escrow-backend/internal/models"
	"milestone-escrow-backend/internal/services/changerequests"
)

type ChangeRequestHandler struct {
	service *changerequests.Service
}

func NewChangeRequestHandler(service *changerequests.Service) *ChangeRequestHandler {
	return &ChangeRequestHandler{service: service}
}

func (h *ChangeRequestHandler) Open(c *gin.Context) {
	var payload struct {
		BidID          string   `json:"bid_id"`
		MilestoneIndex int      `json:"milestone_index"`
		Comment        string   `json:"comment"`
		Checklist      []string `json:"checklist"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	bidID, err := uuid.Parse(payload.BidID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid ID"})
		return
	}

	cr, err := h.service.Open(reqContext(c), actor(c), bidID, payload.MilestoneIndex, payload.Comment, payload.Checklist)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"change_request": cr})
}

func (h *ChangeRequestHandler) Respond(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid change request ID"})
		return
	}
	var payload struct {
		Comment string           `json:"comment"`
		Files   []models.FileRef `json:"files"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	resp, err := h.service.Respond(reqContext(c), actor(c), requestID, payload.Comment, payload.Files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"response": resp})
}

func (h *ChangeRequestHandler) Resolve(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid change request ID"})
		return
	}
	if err := h.service.Resolve(reqContext(c), actor(c), requestID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "change request resolved"})
}

func (h *ChangeRequestHandler) Close(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid change request ID"})
		return
	}
	if err := h.service.Close(reqContext(c), actor(c), requestID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "change request closed"})
}

func (h *ChangeRequestHandler) ListOpen(c *gin.Context) {
	proposalID, err := uuid.Parse(c.Param("proposalId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal ID"})
		return
	}
	list, err := h.service.ListOpenByProposal(proposalID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"change_requests": list})
}
