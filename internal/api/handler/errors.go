package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart_parkai/internal/repository"
	"smart_parkai/internal/service"
)

// statusFor maps service and repository sentinels onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidSelection),
		errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrInvalidAudio),
		errors.Is(err, service.ErrInvalidWebhook):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPreferenceRequired), errors.Is(err, service.ErrPromoRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrDuplicateEntry), errors.Is(err, service.ErrCheckoutInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrPaymentsDisabled),
		errors.Is(err, service.ErrSpeechDisabled),
		errors.Is(err, service.ErrDetectionDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error, message string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}
