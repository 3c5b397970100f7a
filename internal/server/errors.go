package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	enforcementdomain "github.com/testbedhq/balance/internal/enforcement/domain"
	"go.uber.org/zap"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusInternalServerError {
			zap.L().Error("enforcement request failed",
				zap.String("path", c.Request.URL.Path),
				zap.Error(lastErr.Err))
		}
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// mapError turns domain error kinds into wire responses. Policy and billing
// denials are 403s with a machine-distinguishable type.
func mapError(err error) (int, errorPayload) {
	var billing *enforcementdomain.BillingError
	if errors.As(err, &billing) {
		return http.StatusForbidden, errorPayload{
			Type:    string(billing.Code),
			Message: billing.Error(),
		}
	}

	var pastExpiration *enforcementdomain.LeasePastExpirationError
	if errors.As(err, &pastExpiration) {
		return http.StatusForbidden, errorPayload{
			Type:    "lease_past_expiration",
			Message: pastExpiration.Error(),
		}
	}

	var maxDuration *enforcementdomain.MaxLeaseDurationError
	if errors.As(err, &maxDuration) {
		return http.StatusForbidden, errorPayload{
			Type:    "max_lease_duration",
			Message: maxDuration.Error(),
		}
	}

	var updateWindow *enforcementdomain.MaxLeaseUpdateWindowError
	if errors.As(err, &updateWindow) {
		return http.StatusForbidden, errorPayload{
			Type:    "max_lease_update_window",
			Message: updateWindow.Error(),
		}
	}

	switch {
	case errors.Is(err, enforcementdomain.ErrInvalidLeaseDate),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
