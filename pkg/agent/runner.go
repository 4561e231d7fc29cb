package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tayfa-dev/tayfa/pkg/events"
	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/services"
)

// memorySummaryMax bounds the result excerpt stored in agent memory.
const memorySummaryMax = 500

// Runner executes one agent attempt end to end: session lookup, memory
// postscript injection, stream lifecycle on the bus, the invocation itself,
// then chat history, session persistence and the memory update. The
// scheduler owns retries; the Runner never retries.
type Runner struct {
	bus      *events.Bus
	history  *services.HistoryService
	sessions *services.SessionService
	memory   *Memory
	gateway  Invoker
	cursor   Invoker
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(bus *events.Bus, history *services.HistoryService, sessions *services.SessionService, memory *Memory, gateway, cursor Invoker) *Runner {
	return &Runner{
		bus:      bus,
		history:  history,
		sessions: sessions,
		memory:   memory,
		gateway:  gateway,
		cursor:   cursor,
	}
}

// Run executes one attempt on the given runtime path and returns its
// classified outcome. Every termination, success or not, leaves a chat
// history record and a memory section behind.
func (r *Runner) Run(ctx context.Context, runtime models.Runtime, inv Invocation) Outcome {
	if inv.SessionID == "" {
		stored, err := r.sessions.Get(inv.Agent, inv.Model)
		if err != nil {
			slog.Warn("Could not read stored session", "agent", inv.Agent, "error", err)
		} else {
			inv.SessionID = stored
		}
	}

	if inv.Workdir != "" {
		mem, err := r.memory.Load(inv.Workdir, inv.Agent)
		if err != nil {
			slog.Warn("Could not read agent memory", "agent", inv.Agent, "error", err)
		} else if mem != "" {
			inv.Prompt = inv.Prompt + "\n\n---\n\nYour memory from previous runs:\n\n" + mem
		}
	}

	invoker := r.gateway
	if runtime == models.RuntimeCursor {
		invoker = r.cursor
	}

	slog.Info("Agent run starting",
		"agent", inv.Agent,
		"task_id", inv.TaskID,
		"model", inv.Model,
		"runtime", runtime,
		"resume", inv.SessionID != "")

	r.bus.BeginStream(inv.Agent)
	out, err := invoker.Invoke(ctx, inv, func(ev models.StreamEvent) {
		r.bus.PublishStream(inv.Agent, ev)
	})
	if err != nil {
		out = Outcome{
			ErrorType: models.ErrorTypeUnknown,
			Message:   err.Error(),
			SessionID: inv.SessionID,
		}
	}
	if !out.Success {
		r.bus.PublishStream(inv.Agent, models.StreamEvent{
			Type:      models.StreamEventError,
			ErrorType: out.ErrorType,
			Message:   out.Message,
		})
	}
	r.bus.EndStream(inv.Agent)

	r.finish(inv, out)

	slog.Info("Agent run finished",
		"agent", inv.Agent,
		"task_id", inv.TaskID,
		"success", out.Success,
		"error_type", out.ErrorType,
		"cost_usd", out.CostUSD,
		"duration_sec", out.DurationSec)
	return out
}

// finish persists the attempt's artifacts. Persistence problems are logged,
// never escalated: the outcome already happened.
func (r *Runner) finish(inv Invocation, out Outcome) {
	if out.SessionID != "" {
		if err := r.sessions.Set(inv.Agent, inv.Model, out.SessionID); err != nil {
			slog.Warn("Could not persist session", "agent", inv.Agent, "error", err)
		}
	}

	entry := models.ChatHistoryEntry{
		Timestamp:   time.Now().UTC(),
		Prompt:      inv.Prompt,
		Result:      out.Result,
		Model:       inv.Model,
		CostUSD:     out.CostUSD,
		DurationSec: out.DurationSec,
		NumTurns:    out.NumTurns,
		TaskID:      inv.TaskID,
		Success:     out.Success,
		SessionID:   out.SessionID,
	}
	if !out.Success {
		entry.ErrorType = out.ErrorType
	}
	if err := r.history.Append(inv.Agent, entry); err != nil {
		slog.Warn("Could not append chat history", "agent", inv.Agent, "error", err)
	}

	if inv.Workdir == "" {
		return
	}
	var memErr error
	if out.Success {
		note := fmt.Sprintf("Model %s", inv.Model)
		if inv.TaskID != "" {
			note = fmt.Sprintf("Task %s, model %s", inv.TaskID, inv.Model)
		}
		memErr = r.memory.RecordSummary(inv.Workdir, inv.Agent, truncate(out.Result, memorySummaryMax), note)
	} else {
		memErr = r.memory.RecordInterrupted(inv.Workdir, inv.Agent, fmt.Sprintf("%s: %s", out.ErrorType, out.Message), "")
	}
	if memErr != nil {
		slog.Warn("Could not update agent memory", "agent", inv.Agent, "error", memErr)
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
