package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/store"
	"github.com/rovshanmuradov/tipstark/internal/tipping"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRequestRejected):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrConnection):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation), errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSubmission):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrNotFound), errors.Is(err, tipping.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
