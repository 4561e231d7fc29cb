package models

import "time"

// ErrorType classifies why an agent invocation failed.
type ErrorType string

const (
	// ErrorTypeTimeout means the per-invocation deadline was hit
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeOverloaded means the upstream reported overload (HTTP 529)
	ErrorTypeOverloaded ErrorType = "overloaded"
	// ErrorTypeRateLimit means an explicit rate-limit rejection
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeNetwork means a transport-level failure (refused, DNS, reset)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeAuthentication means an expired or rejected credential
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeBudget means the agent exceeded its max_budget_usd
	ErrorTypeBudget ErrorType = "budget"
	// ErrorTypeUnknown is everything else
	ErrorTypeUnknown ErrorType = "unknown"
)

// IsValid checks if the error type is valid.
func (e ErrorType) IsValid() bool {
	switch e {
	case ErrorTypeTimeout, ErrorTypeOverloaded, ErrorTypeRateLimit,
		ErrorTypeNetwork, ErrorTypeAuthentication, ErrorTypeBudget,
		ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether the scheduler may re-attempt the invocation.
// Authentication, budget and unknown failures always need operator action.
func (e ErrorType) IsRetryable() bool {
	switch e {
	case ErrorTypeTimeout, ErrorTypeOverloaded, ErrorTypeRateLimit, ErrorTypeNetwork:
		return true
	default:
		return false
	}
}

// AgentFailure is one terminal failed attempt, persisted for the operator.
type AgentFailure struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Agent     string    `json:"agent"`
	ErrorType ErrorType `json:"error_type"`
	Message   string    `json:"message"`
	Traceback string    `json:"traceback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}
