// Package scheduler drives task runs end to end: admission, prompt
// composition, agent invocation with retry, and terminal bookkeeping.
//
// Trigger is the single entry point. It is synchronous; HTTP handlers call
// it and block until the run reaches a terminal state. The single-flight
// registry lives in memory only, so a restart starts with a clean slate.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tayfa-dev/tayfa/pkg/agent"
	"github.com/tayfa-dev/tayfa/pkg/config"
	"github.com/tayfa-dev/tayfa/pkg/events"
	"github.com/tayfa-dev/tayfa/pkg/metrics"
	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/services"
	"github.com/tayfa-dev/tayfa/pkg/store"
)

type runningEntry struct {
	info   models.RunningTask
	cancel context.CancelFunc
}

// Scheduler owns the trigger pipeline and the in-memory running registry.
type Scheduler struct {
	cfg       config.SchedulerConfig
	project   config.ProjectConfig
	store     *store.Store
	board     *services.BoardService
	employees *services.EmployeeService
	failures  *services.FailureService
	runner    *agent.Runner
	bus       *events.Bus
	metrics   *metrics.Metrics

	// slots bounds concurrent runs; triggers wait here, bounded by ctx.
	slots *semaphore.Weighted

	mu sync.Mutex
	// inflight holds ids admitted by the single-flight gate, including
	// those still waiting for a slot.
	inflight map[string]struct{}
	// running holds committed run records, keyed by task id.
	running map[string]runningEntry
}

// New wires a Scheduler. The metrics handle may be nil.
func New(
	cfg config.SchedulerConfig,
	project config.ProjectConfig,
	st *store.Store,
	board *services.BoardService,
	employees *services.EmployeeService,
	failures *services.FailureService,
	runner *agent.Runner,
	bus *events.Bus,
	m *metrics.Metrics,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		project:   project,
		store:     st,
		board:     board,
		employees: employees,
		failures:  failures,
		runner:    runner,
		bus:       bus,
		metrics:   m,
		slots:     semaphore.NewWeighted(int64(cfg.MaxConcurrentTasks)),
		inflight:  make(map[string]struct{}),
		running:   make(map[string]runningEntry),
	}
}

// reserve admits a task id through the single-flight gate. It returns false
// when a trigger for the same id is already in flight.
func (s *Scheduler) reserve(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[taskID]; ok {
		return false
	}
	s.inflight[taskID] = struct{}{}
	return true
}

// commit records the run once a slot is held. Published after the map
// update so subscribers that refetch see the new running set.
func (s *Scheduler) commit(taskID string, exec services.Executor, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[taskID] = runningEntry{
		info: models.RunningTask{
			Agent:     exec.Agent,
			Role:      exec.Role,
			Runtime:   exec.Runtime,
			StartedAt: time.Now().Unix(),
		},
		cancel: cancel,
	}
	s.metrics.SetRunningTasks(len(s.running))
	s.mu.Unlock()

	s.bus.PublishBoardChanged()
}

// teardown releases the single-flight reservation and, when a run record
// was committed, removes it and notifies the board. Safe to call twice.
func (s *Scheduler) teardown(taskID string) {
	s.mu.Lock()
	delete(s.inflight, taskID)
	_, wasRunning := s.running[taskID]
	delete(s.running, taskID)
	s.metrics.SetRunningTasks(len(s.running))
	s.mu.Unlock()

	if wasRunning {
		s.bus.PublishBoardChanged()
	}
}

// RunningSnapshot returns the current run records with elapsed time
// computed at call time.
func (s *Scheduler) RunningSnapshot() map[string]models.RunningTaskInfo {
	now := time.Now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[string]models.RunningTaskInfo, len(s.running))
	for id, e := range s.running {
		snap[id] = models.RunningTaskInfo{
			Agent:          e.info.Agent,
			Role:           e.info.Role,
			Runtime:        e.info.Runtime,
			StartedAt:      e.info.StartedAt,
			ElapsedSeconds: now - e.info.StartedAt,
		}
	}
	return snap
}

// CancelTask aborts the in-flight invocation for a task, if any. The status
// transition itself is the caller's job; this only stops the subprocess and
// lets the trigger observe the cancelled status at the next boundary.
func (s *Scheduler) CancelTask(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.running[taskID]; ok {
		e.cancel()
		return true
	}
	return false
}

// Shutdown aborts every in-flight run. Triggers unwind through their normal
// teardown paths, so callers should keep serving until handlers return.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.running))
	for _, e := range s.running {
		cancels = append(cancels, e.cancel)
	}
	s.mu.Unlock()

	if len(cancels) > 0 {
		slog.Info("Cancelling in-flight runs for shutdown", "count", len(cancels))
	}
	for _, cancel := range cancels {
		cancel()
	}
}
