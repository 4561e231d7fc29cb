package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/scheduler"
	"github.com/tayfa-dev/tayfa/pkg/services"
	"github.com/tayfa-dev/tayfa/pkg/store"
)

// mapServiceError maps service and scheduler errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if errors.Is(err, services.ErrInvalidStatus) ||
		errors.Is(err, scheduler.ErrAlreadyRunning) ||
		errors.Is(err, scheduler.ErrBlocked) ||
		errors.Is(err, scheduler.ErrNoExecutor) ||
		errors.Is(err, scheduler.ErrCancelled) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if errors.Is(err, store.ErrLockTimeout) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "state file is locked, retry shortly")
	}

	var runErr *scheduler.RunError
	if errors.As(err, &runErr) {
		return echo.NewHTTPError(statusForErrorType(runErr.ErrorType), runErr.Error())
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// statusForErrorType maps a terminal agent failure class onto the HTTP
// status the synchronous trigger response carries.
func statusForErrorType(t models.ErrorType) int {
	switch t {
	case models.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case models.ErrorTypeOverloaded, models.ErrorTypeRateLimit:
		return http.StatusServiceUnavailable
	case models.ErrorTypeNetwork:
		return http.StatusBadGateway
	case models.ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case models.ErrorTypeBudget:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
