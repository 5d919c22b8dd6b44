package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/smartlamp/lamplink/internal/lamp"
	"github.com/smartlamp/lamplink/internal/services"
	"github.com/smartlamp/lamplink/pkg/websocket/connection"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse wraps payloads of mutating endpoints.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		apiErr        *lamp.APIError
		validationErr validator.ValidationErrors
	)
	switch {
	case errors.Is(err, services.ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, connection.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrUnknownPreset), errors.Is(err, services.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), ErrorResponse{
		Error:   http.StatusText(statusFor(err)),
		Message: err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request",
		Message: err.Error(),
	})
}
