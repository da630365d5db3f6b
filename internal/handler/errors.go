package handler

import (
	"context"
	"errors"
	"net/http"

	"energy-billing/internal/billing"
	"energy-billing/internal/logger"
	"energy-billing/internal/service"
	"energy-billing/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps service and billing errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidation), errors.Is(err, billing.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrConflict), errors.Is(err, billing.ErrConcurrentRun):
		return http.StatusConflict
	case errors.Is(err, billing.ErrPersistence), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, response.Error(status, err.Error()))
}
