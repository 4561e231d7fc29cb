package agent

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/tayfa-dev/tayfa/pkg/models"
)

// statusOverloaded is the non-standard code the gateway relays when the
// upstream model reports overload.
const statusOverloaded = 529

// ClassifyStatus maps an HTTP status from the gateway onto an error type.
func ClassifyStatus(code int) models.ErrorType {
	switch code {
	case statusOverloaded:
		return models.ErrorTypeOverloaded
	case http.StatusTooManyRequests:
		return models.ErrorTypeRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.ErrorTypeAuthentication
	case http.StatusPaymentRequired:
		return models.ErrorTypeBudget
	case http.StatusGatewayTimeout:
		return models.ErrorTypeTimeout
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return models.ErrorTypeNetwork
	default:
		return models.ErrorTypeUnknown
	}
}

// ClassifyOutput maps subprocess stderr (or a relayed error body) onto an
// error type. First match wins; overload phrasing is checked before the
// generic rate-limit match because the CLIs print "rate limit exceeded due
// to load" for overload.
func ClassifyOutput(text string) models.ErrorType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "overloaded"),
		strings.Contains(lower, "rate limit exceeded due to load"):
		return models.ErrorTypeOverloaded
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"):
		return models.ErrorTypeRateLimit
	case strings.Contains(lower, "timed out"),
		strings.Contains(lower, "timeout"):
		return models.ErrorTypeTimeout
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "network"):
		return models.ErrorTypeNetwork
	case strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "authentication"),
		strings.Contains(lower, "expired"),
		strings.Contains(lower, "invalid api key"):
		return models.ErrorTypeAuthentication
	case strings.Contains(lower, "budget"),
		strings.Contains(lower, "credit balance"):
		return models.ErrorTypeBudget
	default:
		return models.ErrorTypeUnknown
	}
}

// ClassifyErr maps a Go transport error onto an error type.
func ClassifyErr(err error) models.ErrorType {
	if err == nil {
		return models.ErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return models.ErrorTypeTimeout
		}
		return models.ErrorTypeNetwork
	}
	return ClassifyOutput(err.Error())
}
