package api

import (
	"fmt"
	"net/http"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/scheduler"
	"github.com/tayfa-dev/tayfa/pkg/services"
	"github.com/tayfa-dev/tayfa/pkg/store"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "validation error maps to 400",
			err:        services.NewValidationError("title", "title is required"),
			expectCode: http.StatusBadRequest,
			expectMsg:  "title is required",
		},
		{
			name:       "not found maps to 404",
			err:        fmt.Errorf("task T404: %w", services.ErrNotFound),
			expectCode: http.StatusNotFound,
			expectMsg:  "entity not found",
		},
		{
			name:       "invalid status maps to 409",
			err:        fmt.Errorf("task T001 is done, only new tasks run: %w", services.ErrInvalidStatus),
			expectCode: http.StatusConflict,
			expectMsg:  "only new tasks run",
		},
		{
			name:       "already running maps to 409",
			err:        scheduler.ErrAlreadyRunning,
			expectCode: http.StatusConflict,
			expectMsg:  "already running",
		},
		{
			name:       "blocked maps to 409",
			err:        fmt.Errorf("task T002: %w", scheduler.ErrBlocked),
			expectCode: http.StatusConflict,
			expectMsg:  "blocked on dependencies",
		},
		{
			name:       "no executor maps to 409",
			err:        fmt.Errorf("task T003: %w", scheduler.ErrNoExecutor),
			expectCode: http.StatusConflict,
			expectMsg:  "no executor",
		},
		{
			name:       "cancelled maps to 409",
			err:        fmt.Errorf("task T004: %w", scheduler.ErrCancelled),
			expectCode: http.StatusConflict,
			expectMsg:  "cancelled while running",
		},
		{
			name:       "lock timeout maps to 503",
			err:        fmt.Errorf("lock tasks.json: %w", store.ErrLockTimeout),
			expectCode: http.StatusServiceUnavailable,
			expectMsg:  "state file is locked",
		},
		{
			name:       "unknown error maps to 500",
			err:        fmt.Errorf("something unexpected happened"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapServiceError(tt.err)
			assert.IsType(t, &echo.HTTPError{}, he)
			assert.Equal(t, tt.expectCode, he.Code)
			assert.Contains(t, he.Error(), tt.expectMsg)
		})
	}
}

func TestMapRunError(t *testing.T) {
	tests := []struct {
		errorType  models.ErrorType
		expectCode int
	}{
		{models.ErrorTypeTimeout, http.StatusGatewayTimeout},
		{models.ErrorTypeOverloaded, http.StatusServiceUnavailable},
		{models.ErrorTypeRateLimit, http.StatusServiceUnavailable},
		{models.ErrorTypeNetwork, http.StatusBadGateway},
		{models.ErrorTypeAuthentication, http.StatusUnauthorized},
		{models.ErrorTypeBudget, http.StatusPaymentRequired},
		{models.ErrorTypeUnknown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			runErr := &scheduler.RunError{
				TaskID:    "T001",
				Agent:     "alice",
				ErrorType: tt.errorType,
				Message:   "upstream said no",
				Attempts:  2,
			}
			he := mapServiceError(fmt.Errorf("trigger: %w", runErr))
			assert.Equal(t, tt.expectCode, he.Code)
			assert.Contains(t, he.Error(), "upstream said no")
		})
	}
}
