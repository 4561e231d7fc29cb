package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tayfa-dev/tayfa/pkg/agent"
	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/services"
	"github.com/tayfa-dev/tayfa/pkg/store"
)

var (
	// ErrAlreadyRunning rejects a second trigger while one is in flight.
	ErrAlreadyRunning = errors.New("task is already running")
	// ErrBlocked rejects a trigger while dependencies are still open.
	ErrBlocked = errors.New("task is blocked on dependencies")
	// ErrNoExecutor rejects a trigger whose executor is not in the registry.
	ErrNoExecutor = errors.New("no executor for task")
	// ErrCancelled ends the retry loop when the operator cancels the task
	// between attempts.
	ErrCancelled = errors.New("task cancelled while running")
)

// resumeTaskPrefix bounds how much of the original prompt the resume prompt
// carries.
const resumeTaskPrefix = 500

// RunError is a terminal agent failure surfaced to the synchronous caller.
type RunError struct {
	TaskID    string
	Agent     string
	ErrorType models.ErrorType
	Message   string
	Attempts  int
}

func (e *RunError) Error() string {
	return fmt.Sprintf("task %s failed (%s): %s", e.TaskID, e.ErrorType, e.Message)
}

// Trigger runs one task to a terminal state and reports the outcome.
//
// The pipeline: validate, single-flight admission, dependency check,
// executor resolution, slot wait, prompt composition, invocation with
// retry, terminal bookkeeping. The single-flight reservation and the
// running record are released on every path.
func (s *Scheduler) Trigger(ctx context.Context, taskID string, runtimeOverride models.Runtime) (models.TriggerResult, error) {
	task, err := s.board.GetTask(taskID)
	if err != nil {
		return models.TriggerResult{}, err
	}
	if st := task.EffectiveStatus(); st != models.TaskStatusNew {
		return models.TriggerResult{}, fmt.Errorf("task %s is %s, only new tasks run: %w", taskID, st, services.ErrInvalidStatus)
	}

	if !s.reserve(taskID) {
		return models.TriggerResult{}, fmt.Errorf("task %s: %w", taskID, ErrAlreadyRunning)
	}
	defer s.teardown(taskID)

	board, err := s.board.Snapshot()
	if err != nil {
		return models.TriggerResult{}, err
	}
	if !services.IsRunnable(&board, &task) {
		return models.TriggerResult{}, fmt.Errorf("task %s has unmet dependencies: %w", taskID, ErrBlocked)
	}

	exec, err := s.employees.Resolve(task, runtimeOverride)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return models.TriggerResult{}, fmt.Errorf("task %s executor %q: %w", taskID, task.Executor, ErrNoExecutor)
		}
		return models.TriggerResult{}, err
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return models.TriggerResult{}, fmt.Errorf("waiting for a run slot: %w", err)
	}
	defer s.slots.Release(1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.commit(taskID, exec, cancel)

	s.metrics.RecordTrigger()
	started := time.Now()
	defer func() { s.metrics.ObserveTriggerDuration(time.Since(started)) }()

	// An explicit operator trigger also clears earlier failure records.
	if err := s.failures.ResolveForTask(taskID); err != nil {
		slog.Warn("Could not resolve prior failures", "task_id", taskID, "error", err)
	}

	prompt, err := s.composePrompt(task)
	if err != nil {
		return models.TriggerResult{}, err
	}

	slog.Info("Triggering task",
		"task_id", taskID,
		"agent", exec.Agent,
		"role", exec.Role,
		"runtime", exec.Runtime,
		"model", exec.Model,
		"workdir", exec.Workdir)

	ro, err := s.runWithRetry(runCtx, taskID, exec, prompt)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			slog.Info("Trigger aborted, task cancelled", "task_id", taskID, "attempts", ro.attempts)
			return models.TriggerResult{}, err
		}
		var runErr *RunError
		if errors.As(err, &runErr) {
			s.metrics.RecordFailure(string(runErr.ErrorType))
			if _, ferr := s.failures.Record(taskID, exec.Agent, runErr.ErrorType, runErr.Message, ""); ferr != nil {
				slog.Warn("Could not persist agent failure", "task_id", taskID, "error", ferr)
			}
			slog.Error("Trigger failed",
				"task_id", taskID,
				"agent", exec.Agent,
				"error_type", runErr.ErrorType,
				"attempts", runErr.Attempts,
				"message", runErr.Message)
			return models.TriggerResult{}, runErr
		}
		// The run context died waiting out a backoff.
		return models.TriggerResult{}, fmt.Errorf("trigger aborted: %w", err)
	}

	res := models.TriggerResult{
		TaskID:  taskID,
		Agent:   exec.Agent,
		Role:    exec.Role,
		Runtime: exec.Runtime,
		Success: true,
		Result:  ro.out.Result,
	}
	if ro.suppressed {
		res.Result = ro.result
		res.Note = "Completed despite stream error"
		s.metrics.RecordSuppressed()
		slog.Warn("Completed despite stream error",
			"task_id", taskID, "error_type", ro.out.ErrorType, "message", ro.out.Message)
	} else if cur, err := s.board.GetTask(taskID); err == nil && cur.Result != "" {
		res.Result = cur.Result
	}

	slog.Info("Trigger finished",
		"task_id", taskID,
		"agent", exec.Agent,
		"attempts", ro.attempts,
		"duration", time.Since(started).Round(time.Millisecond))
	return res, nil
}

type runOutcome struct {
	out agent.Outcome
	// suppressed means the task reached a terminal status even though the
	// last attempt reported a failure; result holds the persisted result.
	suppressed bool
	result     string
	attempts   int
}

// runWithRetry drives attempts until success, a non-retryable failure, the
// attempt budget, or an operator cancel. Retryable failures wait out a
// constant delay between attempts.
func (s *Scheduler) runWithRetry(ctx context.Context, taskID string, exec services.Executor, prompt string) (runOutcome, error) {
	var ro runOutcome

	base := agent.Invocation{
		Agent:          exec.Agent,
		Prompt:         prompt,
		Model:          exec.Model,
		Workdir:        exec.Workdir,
		Tools:          exec.AllowedTools,
		PermissionMode: exec.PermissionMode,
		TaskID:         taskID,
	}

	op := func() error {
		if ro.attempts > 0 {
			// The operator may have cancelled the task after the last
			// attempt's re-read.
			if cur, err := s.board.GetTask(taskID); err == nil && cur.EffectiveStatus() == models.TaskStatusCancelled {
				return backoff.Permanent(fmt.Errorf("task %s: %w", taskID, ErrCancelled))
			}
			s.metrics.RecordRetry()
			slog.Info("Retrying task",
				"task_id", taskID, "attempt", ro.attempts+1, "max_attempts", s.cfg.MaxAttempts)
		}
		ro.attempts++
		s.metrics.RecordAttempt()

		inv := base
		if ro.out.ErrorType == models.ErrorTypeTimeout && ro.out.SessionID != "" {
			inv.Prompt = resumePrompt(prompt)
			inv.SessionID = ro.out.SessionID
		}

		ro.out = s.runner.Run(ctx, exec.Runtime, inv)
		if ro.out.Success {
			return nil
		}

		// The agent may have committed a terminal status before the stream
		// error surfaced. The persisted status wins over the transport
		// verdict.
		if cur, err := s.board.GetTask(taskID); err == nil && cur.EffectiveStatus().IsTerminal() {
			ro.suppressed = true
			ro.result = cur.Result
			return nil
		}

		slog.Warn("Attempt failed",
			"task_id", taskID,
			"attempt", ro.attempts,
			"error_type", ro.out.ErrorType,
			"message", ro.out.Message)

		rerr := &RunError{
			TaskID:    taskID,
			Agent:     exec.Agent,
			ErrorType: ro.out.ErrorType,
			Message:   ro.out.Message,
			Attempts:  ro.attempts,
		}
		if !ro.out.ErrorType.IsRetryable() {
			return backoff.Permanent(rerr)
		}
		return rerr
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.RetryDelay), uint64(s.cfg.MaxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(op, policy)
	return ro, err
}

// composePrompt assembles the seed prompt for a task: the discussion log
// content plus the standing instructions. A missing discussion file is
// created with a header so agents always have a place to hand off.
func (s *Scheduler) composePrompt(task models.Task) (string, error) {
	doc := store.NewRawFile(s.store, s.project.DiscussionFile(task.ID))
	discussion, err := doc.Read()
	if err != nil {
		return "", fmt.Errorf("reading discussion for %s: %w", task.ID, err)
	}
	if len(discussion) == 0 {
		err = doc.Update(func(cur []byte) ([]byte, error) {
			if len(cur) > 0 {
				discussion = cur
				return cur, nil
			}
			discussion = []byte(discussionSeed(task))
			return discussion, nil
		})
		if err != nil {
			return "", fmt.Errorf("seeding discussion for %s: %w", task.ID, err)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are working on task %s: %s.\n\n", task.ID, task.Title)
	fmt.Fprintf(&b, "## Discussion log (%s)\n\n%s\n\n", doc.Path(), strings.TrimSpace(string(discussion)))
	b.WriteString("## Instructions\n\n")
	b.WriteString("1. Read the discussion log above; it holds the task description and prior handoffs.\n")
	b.WriteString("2. Do the work in your working directory.\n")
	fmt.Fprintf(&b, "3. Append a handoff section describing what you did to %s.\n", doc.Path())
	fmt.Fprintf(&b, "4. In %s, set this task's \"result\" to a short summary and its \"status\" to \"done\", or to \"questions\" if you need operator input.\n", s.project.TasksFile())
	return b.String(), nil
}

func discussionSeed(task models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n", task.ID, task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	return b.String()
}

// resumePrompt replaces the original prompt after a timeout when a session
// was recovered; the resumed session already holds the full context.
func resumePrompt(original string) string {
	prefix := original
	if runes := []rune(prefix); len(runes) > resumeTaskPrefix {
		prefix = string(runes[:resumeTaskPrefix]) + "…"
	}
	return "You hit a timeout. If you already did part of the work, continue; otherwise restart. Original task: " + prefix
}
