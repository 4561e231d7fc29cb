// Package e2e exercises the orchestrator end to end: the real HTTP server
// over real services and a real project directory, with a scripted gateway
// standing in for the agent runtime.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tayfa-dev/tayfa/pkg/agent"
	"github.com/tayfa-dev/tayfa/pkg/api"
	"github.com/tayfa-dev/tayfa/pkg/config"
	"github.com/tayfa-dev/tayfa/pkg/events"
	"github.com/tayfa-dev/tayfa/pkg/metrics"
	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/scheduler"
	"github.com/tayfa-dev/tayfa/pkg/services"
	"github.com/tayfa-dev/tayfa/pkg/store"
	"github.com/tayfa-dev/tayfa/pkg/watch"
)

// TestApp boots a complete orchestrator instance for e2e testing.
type TestApp struct {
	Config   *config.Config
	Store    *store.Store
	Bus      *events.Bus
	Board    *services.BoardService
	Failures *services.FailureService
	History  *services.HistoryService
	Sessions *services.SessionService
	Sched    *scheduler.Scheduler
	Gateway  *ScriptedGateway
	Server   *api.Server

	// BaseURL is the server address, e.g. "http://127.0.0.1:54321".
	BaseURL string

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	agentTimeout  time.Duration
	retryDelay    time.Duration
	maxAttempts   int
	maxConcurrent int
	employees     map[string]models.Employee
	startWatcher  bool
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithAgentTimeout sets the per-invocation deadline.
func WithAgentTimeout(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.agentTimeout = d }
}

// WithMaxAttempts sets the invocation budget per trigger.
func WithMaxAttempts(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxAttempts = n }
}

// WithMaxConcurrent sets the run slot count.
func WithMaxConcurrent(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxConcurrent = n }
}

// WithEmployees replaces the default single-agent registry.
func WithEmployees(reg map[string]models.Employee) TestAppOption {
	return func(c *testAppConfig) { c.employees = reg }
}

// WithWatcher starts the board file watcher, as the daemon does.
func WithWatcher() TestAppOption {
	return func(c *testAppConfig) { c.startWatcher = true }
}

// NewTestApp creates and starts a full orchestrator test instance over a
// temp project directory. Shutdown is registered via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		agentTimeout:  10 * time.Second,
		retryDelay:    25 * time.Millisecond,
		maxAttempts:   3,
		maxConcurrent: 3,
	}
	for _, opt := range opts {
		opt(tc)
	}

	dir := t.TempDir()
	if tc.employees == nil {
		tc.employees = map[string]models.Employee{
			"alice": {Role: "developer", Model: "sonnet", Workdir: dir},
		}
	}

	gateway := NewScriptedGateway(t)

	cfg := config.DefaultConfig()
	cfg.Project.Root = dir
	cfg.Gateway.URL = gateway.URL()
	cfg.Scheduler.MaxConcurrentTasks = tc.maxConcurrent
	cfg.Scheduler.MaxAttempts = tc.maxAttempts
	cfg.Scheduler.RetryDelay = tc.retryDelay
	cfg.Agent.Timeout = tc.agentTimeout
	// The client deadline must fire on its own in timeout tests.
	cfg.Agent.GatewayExtraTimeout = 0
	cfg.Events.KeepaliveInterval = 25 * time.Millisecond

	project := cfg.Project
	st := store.New(store.Options{})
	bus := events.NewBus(events.Options{})

	writeRegistry(t, project, tc.employees)

	board := services.NewBoardService(st, project.TasksFile(), bus)
	employees := services.NewEmployeeService(st, project.EmployeesFile())
	failures := services.NewFailureService(st, project.FailuresFile(), 500)
	history := services.NewHistoryService(st, project.ChatHistoryFile, cfg.Agent.HistoryCap)
	sessions := services.NewSessionService(st, project.SessionsFile())
	memory := agent.NewMemory(st, cfg.Agent.MemoryEntries)

	gwClient := agent.NewGatewayClient(cfg.Gateway, cfg.Agent)
	cursor := agent.NewCursorCLI(cfg.Gateway, cfg.Agent)
	runner := agent.NewRunner(bus, history, sessions, memory, gwClient, cursor)

	m := metrics.New()
	sched := scheduler.New(cfg.Scheduler, project, st, board, employees, failures, runner, bus, m)

	if tc.startWatcher {
		watchCtx, watchCancel := context.WithCancel(context.Background())
		watcher := watch.New(project.TasksFile(), bus)
		require.NoError(t, watcher.Start(watchCtx))
		t.Cleanup(func() {
			watchCancel()
			_ = watcher.Close()
		})
	}

	server := api.NewServer(cfg, board, employees, failures, history, sched, bus, m)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = server.StartWithListener(ln)
	}()

	app := &TestApp{
		Config:   cfg,
		Store:    st,
		Bus:      bus,
		Board:    board,
		Failures: failures,
		History:  history,
		Sessions: sessions,
		Sched:    sched,
		Gateway:  gateway,
		Server:   server,
		BaseURL:  fmt.Sprintf("http://%s", ln.Addr().String()),
		t:        t,
	}

	t.Cleanup(func() {
		sched.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	return app
}

// AgentBoard returns a board handle backed by its own store and bus, the
// way a separate agent process would open the shared file.
func (app *TestApp) AgentBoard() *services.BoardService {
	return services.NewBoardService(
		store.New(store.Options{}),
		app.Config.Project.TasksFile(),
		events.NewBus(events.Options{}),
	)
}

func writeRegistry(t *testing.T, project config.ProjectConfig, reg map[string]models.Employee) {
	t.Helper()
	data, err := json.Marshal(reg)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(project.CommonDir(), 0o755))
	require.NoError(t, os.WriteFile(project.EmployeesFile(), data, 0o644))
}
