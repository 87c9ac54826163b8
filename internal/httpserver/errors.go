package httpserver

import (
	"errors"
	"net/http"

	"consent-bridge/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInputShape),
		errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrUnsupportedProperty),
		errors.Is(err, domain.ErrInvalidValue),
		errors.Is(err, domain.ErrMissingParameter),
		errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMissingCredential):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrCustomerNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders client errors as {message} and server errors as
// {message, error}.
func (h *handlers) writeError(c *gin.Context, err error) {
	status := statusFor(err)

	var derr *domain.Error
	if !errors.As(err, &derr) {
		h.logger.Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error.", "error": err.Error()})
		return
	}
	if status < http.StatusInternalServerError {
		c.JSON(status, gin.H{"message": derr.Message})
		return
	}
	c.JSON(status, gin.H{"message": derr.Message, "error": derr.Detail()})
}
