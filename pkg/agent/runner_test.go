package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayfa-dev/tayfa/pkg/events"
	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/services"
	"github.com/tayfa-dev/tayfa/pkg/store"
)

// scriptedInvoker replays pre-programmed outcomes, one per call.
type scriptedInvoker struct {
	outcomes []Outcome
	events   [][]models.StreamEvent
	err      error
	calls    []Invocation
}

func (s *scriptedInvoker) Invoke(_ context.Context, inv Invocation, emit func(models.StreamEvent)) (Outcome, error) {
	i := len(s.calls)
	s.calls = append(s.calls, inv)
	if s.err != nil {
		return Outcome{}, s.err
	}
	if i < len(s.events) {
		for _, ev := range s.events[i] {
			emit(ev)
		}
	}
	if i >= len(s.outcomes) {
		return s.outcomes[len(s.outcomes)-1], nil
	}
	return s.outcomes[i], nil
}

type runnerFixture struct {
	runner   *Runner
	bus      *events.Bus
	history  *services.HistoryService
	sessions *services.SessionService
	memory   *Memory
	gateway  *scriptedInvoker
	cursor   *scriptedInvoker
	workdir  string
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	st := store.New(store.Options{})
	dir := t.TempDir()

	bus := events.NewBus(events.Options{})
	history := services.NewHistoryService(st, func(agent string) string {
		return filepath.Join(dir, "chat_history", agent+".json")
	}, 1000)
	sessions := services.NewSessionService(st, filepath.Join(dir, "chat_sessions.json"))
	memory := NewMemory(st, 5)
	gateway := &scriptedInvoker{}
	cursor := &scriptedInvoker{}

	return &runnerFixture{
		runner:   NewRunner(bus, history, sessions, memory, gateway, cursor),
		bus:      bus,
		history:  history,
		sessions: sessions,
		memory:   memory,
		gateway:  gateway,
		cursor:   cursor,
		workdir:  dir,
	}
}

func TestRunnerSuccessfulRun(t *testing.T) {
	f := newRunnerFixture(t)
	f.gateway.outcomes = []Outcome{{
		Success:   true,
		Result:    "done",
		SessionID: "sess-1",
		CostUSD:   0.10,
		NumTurns:  2,
	}}
	f.gateway.events = [][]models.StreamEvent{{
		{Type: models.StreamEventAssistant, Text: "working"},
		{Type: models.StreamEventResult, Result: "done"},
	}}

	out := f.runner.Run(context.Background(), models.RuntimeClaude, Invocation{
		Agent:   "alice",
		Prompt:  "do it",
		Model:   "sonnet",
		Workdir: f.workdir,
		TaskID:  "T001",
	})

	assert.True(t, out.Success)
	require.Len(t, f.gateway.calls, 1)
	assert.Empty(t, f.cursor.calls)

	// The whole run is replayable, terminated by stream_end.
	replay, live, sub := f.bus.SubscribeAgent("alice")
	defer sub.Close()
	assert.False(t, live)
	require.Len(t, replay, 3)
	assert.Equal(t, models.StreamEventAssistant, replay[0].Type)
	assert.Equal(t, models.StreamEventResult, replay[1].Type)
	assert.Equal(t, models.StreamEventEnd, replay[2].Type)

	// Chat history recorded the invocation.
	entries, err := f.history.List("alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "done", entries[0].Result)
	assert.Equal(t, "T001", entries[0].TaskID)
	assert.Equal(t, "sess-1", entries[0].SessionID)

	// Session persisted per (agent, model).
	sess, err := f.sessions.Get("alice", "sonnet")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess)

	// Memory got a Summary section.
	mem, err := f.memory.Load(f.workdir, "alice")
	require.NoError(t, err)
	assert.Contains(t, mem, "### Summary")
	assert.Contains(t, mem, "done")
	assert.Contains(t, mem, "Task T001")
}

func TestRunnerFailedRunPublishesErrorEvent(t *testing.T) {
	f := newRunnerFixture(t)
	f.gateway.outcomes = []Outcome{{
		ErrorType: models.ErrorTypeOverloaded,
		Message:   "gateway returned 529: Overloaded",
	}}

	out := f.runner.Run(context.Background(), models.RuntimeClaude, Invocation{
		Agent:   "alice",
		Prompt:  "do it",
		Model:   "sonnet",
		Workdir: f.workdir,
	})

	assert.False(t, out.Success)

	replay, _, sub := f.bus.SubscribeAgent("alice")
	defer sub.Close()
	require.Len(t, replay, 2)
	assert.Equal(t, models.StreamEventError, replay[0].Type)
	assert.Equal(t, models.ErrorTypeOverloaded, replay[0].ErrorType)
	assert.Equal(t, models.StreamEventEnd, replay[1].Type)

	entries, err := f.history.List("alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, models.ErrorTypeOverloaded, entries[0].ErrorType)

	mem, err := f.memory.Load(f.workdir, "alice")
	require.NoError(t, err)
	assert.Contains(t, mem, "INTERRUPTED")
	assert.Contains(t, mem, "overloaded")
}

func TestRunnerInjectsStoredSession(t *testing.T) {
	f := newRunnerFixture(t)
	require.NoError(t, f.sessions.Set("alice", "sonnet", "sess-stored"))
	f.gateway.outcomes = []Outcome{{Success: true, Result: "ok", SessionID: "sess-stored"}}

	f.runner.Run(context.Background(), models.RuntimeClaude, Invocation{
		Agent: "alice",
		Model: "sonnet",
	})

	require.Len(t, f.gateway.calls, 1)
	assert.Equal(t, "sess-stored", f.gateway.calls[0].SessionID)
}

func TestRunnerExplicitSessionWins(t *testing.T) {
	f := newRunnerFixture(t)
	require.NoError(t, f.sessions.Set("alice", "sonnet", "sess-stored"))
	f.gateway.outcomes = []Outcome{{Success: true}}

	f.runner.Run(context.Background(), models.RuntimeClaude, Invocation{
		Agent:     "alice",
		Model:     "sonnet",
		SessionID: "sess-explicit",
	})

	require.Len(t, f.gateway.calls, 1)
	assert.Equal(t, "sess-explicit", f.gateway.calls[0].SessionID)
}

func TestRunnerInjectsMemoryPostscript(t *testing.T) {
	f := newRunnerFixture(t)
	require.NoError(t, f.memory.RecordSummary(f.workdir, "alice", "shipped the parser", "Task T009"))
	f.gateway.outcomes = []Outcome{{Success: true}}

	f.runner.Run(context.Background(), models.RuntimeClaude, Invocation{
		Agent:   "alice",
		Prompt:  "next task",
		Model:   "sonnet",
		Workdir: f.workdir,
	})

	require.Len(t, f.gateway.calls, 1)
	prompt := f.gateway.calls[0].Prompt
	assert.True(t, len(prompt) > len("next task"))
	assert.Contains(t, prompt, "next task")
	assert.Contains(t, prompt, "shipped the parser")
}

func TestRunnerRoutesCursorRuntime(t *testing.T) {
	f := newRunnerFixture(t)
	f.cursor.outcomes = []Outcome{{Success: true, Result: "ok"}}

	out := f.runner.Run(context.Background(), models.RuntimeCursor, Invocation{
		Agent: "bob",
		Model: "composer-1",
	})

	assert.True(t, out.Success)
	assert.Empty(t, f.gateway.calls)
	require.Len(t, f.cursor.calls, 1)
}

func TestRunnerInvokerErrorBecomesUnknownOutcome(t *testing.T) {
	f := newRunnerFixture(t)
	f.gateway.err = errors.New("cannot marshal request")

	out := f.runner.Run(context.Background(), models.RuntimeClaude, Invocation{
		Agent: "alice",
		Model: "sonnet",
	})

	assert.False(t, out.Success)
	assert.Equal(t, models.ErrorTypeUnknown, out.ErrorType)

	entries, err := f.history.List("alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ErrorTypeUnknown, entries[0].ErrorType)
}
