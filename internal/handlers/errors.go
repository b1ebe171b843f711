package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"milestone-escrow-backend/internal/apperr"
	"milestone-escrow-backend/pkg/logger"
)

// respondError maps the shared error taxonomy to HTTP statuses. Settlement
// failures always carry an explicit reason: the caller expects either a
// transaction hash or the reason there isn't one.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrInvalidArgument), errors.Is(err, apperr.ErrInvalidMilestone):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrDuplicatePayment):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrRateLimited),
		errors.Is(err, apperr.ErrUpstreamUnavailable),
		errors.Is(err, apperr.ErrTransactionReverted),
		errors.Is(err, apperr.ErrTransactionTimeout):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// actor identifies the caller for audit purposes. Authentication is handled
// upstream; the trusted gateway forwards the identity in a header.
func actor(c *gin.Context) string {
	if a := c.GetHeader("X-Actor"); a != "" {
		return a
	}
	return "unknown"
}

// reqContext threads the actor into the request context for log correlation.
func reqContext(c *gin.Context) context.Context {
	return context.WithValue(c.Request.Context(), logger.ActorKey, actor(c))
}
