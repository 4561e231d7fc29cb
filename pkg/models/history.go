package models

import "time"

// ChatHistoryEntry records one agent invocation, appended on every
// termination whether it succeeded, failed or timed out.
type ChatHistoryEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Prompt      string    `json:"prompt"`
	Result      string    `json:"result,omitempty"`
	Model       string    `json:"model"`
	CostUSD     float64   `json:"cost_usd"`
	DurationSec float64   `json:"duration_sec"`
	NumTurns    int       `json:"num_turns"`
	TaskID      string    `json:"task_id,omitempty"`
	Success     bool      `json:"success"`
	ErrorType   ErrorType `json:"error_type,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
}
