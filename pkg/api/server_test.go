package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tayfa-dev/tayfa/pkg/agent"
	"github.com/tayfa-dev/tayfa/pkg/config"
	"github.com/tayfa-dev/tayfa/pkg/events"
	"github.com/tayfa-dev/tayfa/pkg/metrics"
	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/scheduler"
	"github.com/tayfa-dev/tayfa/pkg/services"
	"github.com/tayfa-dev/tayfa/pkg/store"
)

// scriptedInvoker replays pre-programmed outcomes, one per call. onCall runs
// before the outcome is returned so tests can mutate the board the way a
// real agent would. When block is set, Invoke waits for it to close or for
// the context to die.
type scriptedInvoker struct {
	mu       sync.Mutex
	outcomes []agent.Outcome
	onCall   func(i int, inv agent.Invocation)
	block    chan struct{}
	calls    []agent.Invocation
}

func (s *scriptedInvoker) Invoke(ctx context.Context, inv agent.Invocation, _ func(models.StreamEvent)) (agent.Outcome, error) {
	s.mu.Lock()
	i := len(s.calls)
	s.calls = append(s.calls, inv)
	block := s.block
	onCall := s.onCall
	s.mu.Unlock()

	if onCall != nil {
		onCall(i, inv)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return agent.Outcome{ErrorType: models.ErrorTypeUnknown, Message: "invocation cancelled"}, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) == 0 {
		return agent.Outcome{Success: true, Result: "ok"}, nil
	}
	if i >= len(s.outcomes) {
		return s.outcomes[len(s.outcomes)-1], nil
	}
	return s.outcomes[i], nil
}

func (s *scriptedInvoker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type apiFixture struct {
	srv      *Server
	board    *services.BoardService
	failures *services.FailureService
	history  *services.HistoryService
	bus      *events.Bus
	sched    *scheduler.Scheduler
	invoker  *scriptedInvoker
	cfg      *config.Config
}

// newTestServer wires a Server over real services in a temp project, with
// a scripted invoker standing in for both runtimes.
func newTestServer(t *testing.T) *apiFixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Project.Root = dir
	cfg.Scheduler.RetryDelay = 10 * time.Millisecond
	cfg.Events.KeepaliveInterval = 25 * time.Millisecond

	project := cfg.Project
	st := store.New(store.Options{})
	bus := events.NewBus(events.Options{})

	writeEmployees(t, project, map[string]models.Employee{
		"alice": {Role: "developer", Model: "sonnet", Workdir: dir},
	})

	board := services.NewBoardService(st, project.TasksFile(), bus)
	employees := services.NewEmployeeService(st, project.EmployeesFile())
	failures := services.NewFailureService(st, project.FailuresFile(), 500)
	history := services.NewHistoryService(st, project.ChatHistoryFile, 1000)
	sessions := services.NewSessionService(st, project.SessionsFile())
	memory := agent.NewMemory(st, 5)

	invoker := &scriptedInvoker{}
	runner := agent.NewRunner(bus, history, sessions, memory, invoker, invoker)
	sched := scheduler.New(cfg.Scheduler, project, st, board, employees, failures, runner, bus, nil)

	return &apiFixture{
		srv:      NewServer(cfg, board, employees, failures, history, sched, bus, metrics.New()),
		board:    board,
		failures: failures,
		history:  history,
		bus:      bus,
		sched:    sched,
		invoker:  invoker,
		cfg:      cfg,
	}
}

func writeEmployees(t *testing.T, project config.ProjectConfig, reg map[string]models.Employee) {
	t.Helper()
	data, err := json.Marshal(reg)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(project.CommonDir(), 0o755))
	require.NoError(t, os.WriteFile(project.EmployeesFile(), data, 0o644))
}

// do performs one request against the routed server.
func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}
