package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/dripyard/internal/faucet"
	"github.com/zulandar/dripyard/internal/orchestrator"
	"github.com/zulandar/dripyard/internal/withdrawal"
)

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	var verr *faucet.ValidationError
	switch {
	case errors.As(err, &verr):
		if verr.Duplicate {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case errors.Is(err, faucet.ErrNotFound),
		errors.Is(err, orchestrator.ErrSessionNotFound),
		errors.Is(err, withdrawal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, withdrawal.ErrInvalidRequest),
		errors.Is(err, withdrawal.ErrInsufficientBalance),
		errors.Is(err, orchestrator.ErrInvalidFaucets):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, orchestrator.ErrShuttingDown):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// abortWith writes err as {"detail": ...}. Internal errors are logged by
// the request logger and not echoed back.
func abortWith(c *gin.Context, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "internal error"
	}
	c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func badRequest(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": detail})
}
