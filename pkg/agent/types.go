// Package agent invokes coding agents and streams their output.
//
// Two invocation paths exist behind the Invoker interface: the gateway path
// (POST /run against the local LLM gateway, newline-delimited `data: <json>`
// frames) and the alternate CLI path (cursor-agent spawned via the shell,
// one JSON document on stdout). The Runner wraps an Invoker with the
// cross-cutting pieces every invocation needs: stream publication, memory
// injection, chat history, session persistence.
package agent

import (
	"context"

	"github.com/tayfa-dev/tayfa/pkg/models"
)

// Invocation is one fully resolved agent run request.
type Invocation struct {
	Agent          string
	Prompt         string
	Model          string
	Workdir        string
	SessionID      string
	Tools          []string
	PermissionMode string
	TaskID         string
}

// Outcome is the terminal result of one invocation attempt.
type Outcome struct {
	Success bool
	// Result is the final text the agent produced. On timeout it holds
	// whatever partial text was drained before the kill.
	Result      string
	ErrorType   models.ErrorType
	Message     string
	SessionID   string
	CostUSD     float64
	NumTurns    int
	DurationSec float64
}

// Invoker executes one attempt and reports parsed events through emit as
// they arrive. Invoke never returns a Go error for agent-level failures;
// those are classified into the Outcome. An error return means the attempt
// could not even be described (marshal failure or similar).
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation, emit func(models.StreamEvent)) (Outcome, error)
}
