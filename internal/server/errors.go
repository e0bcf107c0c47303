package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/shipyard/internal/profiles"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeProfileError maps profile service failures onto HTTP responses. Storage details are logged
// and never echoed to the caller.
func (h *httpHandler) writeProfileError(c *gin.Context, operation string, err error) {
	var validationErr *profiles.ValidationError
	switch {
	case errors.As(err, &validationErr):
		status := http.StatusBadRequest
		if validationErr.Kind == profiles.KindHandleTaken || validationErr.Kind == profiles.KindProfileAlreadyExists {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": string(validationErr.Kind), "message": validationErr.Message})
	case errors.Is(err, profiles.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, profiles.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		fields := []zap.Field{zap.String("operation", operation), zap.Error(err)}
		var serviceErr *profiles.ServiceError
		if errors.As(err, &serviceErr) {
			fields = append(fields, zap.String("code", serviceErr.Code()))
		}
		h.logger.Error("profile request failed", fields...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_unavailable"})
	}
}
