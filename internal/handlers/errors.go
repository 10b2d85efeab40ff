package handlers

import (
	"errors"
	"net/http"

	"device_tuner/internal/history"
	"device_tuner/internal/property"
	"device_tuner/internal/scan"
	"device_tuner/internal/service"

	"github.com/gin-gonic/gin"
)

// statusFor maps service errors to HTTP codes. Unknown errors are internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, property.ErrUnknownProperty),
		errors.Is(err, property.ErrUnknownSequence),
		errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, property.ErrNoSequence),
		errors.Is(err, history.ErrScanInProgress),
		errors.Is(err, history.ErrNotEnoughEnabled):
		return http.StatusConflict
	case errors.Is(err, scan.ErrInvalidDimension),
		errors.Is(err, scan.ErrNoDimensions),
		errors.Is(err, scan.ErrCapacityExceeded):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrOverheat),
		errors.Is(err, service.ErrInvalidModelInput),
		errors.Is(err, history.ErrUnorderedSeries):
		return http.StatusUnprocessableEntity
	}
	var oracleErr *history.OracleError
	if errors.As(err, &oracleErr) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. Internal errors are logged
// under logKey and hidden behind userMsg.
func (h *Handler) respondError(c *gin.Context, err error, userMsg, logKey string, kv ...any) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.log.Errorw(logKey, append([]any{"err", err}, kv...)...)
		c.JSON(code, gin.H{"error": userMsg})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
