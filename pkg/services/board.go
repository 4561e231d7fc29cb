package services

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tayfa-dev/tayfa/pkg/events"
	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/store"
)

// BoardService owns every read and mutation of the board document
// (tasks.json). Each mutating operation is one locked update on the file,
// followed by a board_changed broadcast, so concurrent processes compose
// serially and UI clients always refetch at least the committed state.
type BoardService struct {
	file *store.File[models.Board]
	bus  *events.Bus
}

// NewBoardService creates a BoardService over the given board file.
func NewBoardService(st *store.Store, path string, bus *events.Bus) *BoardService {
	return &BoardService{
		file: store.NewFile(st, path, models.EmptyBoard),
		bus:  bus,
	}
}

// CreateTask appends a new task, assigning the next task id. When the task
// joins a sprint with a finalize task, the finalize task's dependencies are
// recomputed to include it.
func (s *BoardService) CreateTask(req models.CreateTaskRequest) (models.Task, error) {
	if req.Title == "" {
		return models.Task{}, NewValidationError("title", "must not be empty")
	}
	if req.Executor == "" {
		return models.Task{}, NewValidationError("executor", "must not be empty")
	}

	var created models.Task
	_, err := s.file.Update(func(b *models.Board) error {
		if req.SprintID != "" && b.FindSprint(req.SprintID) == nil {
			return fmt.Errorf("sprint %s: %w", req.SprintID, ErrNotFound)
		}
		now := time.Now()
		created = models.Task{
			ID:          models.TaskID(b.NextID),
			Title:       req.Title,
			Description: req.Description,
			TaskType:    models.TaskTypeTask,
			Status:      models.TaskStatusNew,
			Author:      req.Author,
			Executor:    req.Executor,
			SprintID:    req.SprintID,
			DependsOn:   append([]string(nil), req.DependsOn...),
			ProjectPath: req.ProjectPath,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		b.NextID++
		b.Tasks = append(b.Tasks, created)
		recomputeFinalizeDeps(b, req.SprintID)
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	slog.Info("Task created", "task_id", created.ID, "executor", created.Executor, "sprint_id", created.SprintID)
	s.bus.PublishBoardChanged()
	return created, nil
}

// CreateTasks appends a batch of tasks in one critical section, assigning
// ids in request order. Validation runs before the first append, so either
// every task is created or none. Finalize dependencies are recomputed once
// per touched sprint.
func (s *BoardService) CreateTasks(reqs []models.CreateTaskRequest) ([]models.Task, error) {
	if len(reqs) == 0 {
		return nil, NewValidationError("tasks", "must not be empty")
	}
	for _, req := range reqs {
		if req.Title == "" {
			return nil, NewValidationError("title", "must not be empty")
		}
		if req.Executor == "" {
			return nil, NewValidationError("executor", "must not be empty")
		}
	}

	created := make([]models.Task, 0, len(reqs))
	_, err := s.file.Update(func(b *models.Board) error {
		for _, req := range reqs {
			if req.SprintID != "" && b.FindSprint(req.SprintID) == nil {
				return fmt.Errorf("sprint %s: %w", req.SprintID, ErrNotFound)
			}
		}

		now := time.Now()
		touched := map[string]struct{}{}
		for _, req := range reqs {
			t := models.Task{
				ID:          models.TaskID(b.NextID),
				Title:       req.Title,
				Description: req.Description,
				TaskType:    models.TaskTypeTask,
				Status:      models.TaskStatusNew,
				Author:      req.Author,
				Executor:    req.Executor,
				SprintID:    req.SprintID,
				DependsOn:   append([]string(nil), req.DependsOn...),
				ProjectPath: req.ProjectPath,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			b.NextID++
			b.Tasks = append(b.Tasks, t)
			created = append(created, t)
			if req.SprintID != "" {
				touched[req.SprintID] = struct{}{}
			}
		}
		for sprintID := range touched {
			recomputeFinalizeDeps(b, sprintID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Tasks created", "count", len(created), "first_id", created[0].ID)
	s.bus.PublishBoardChanged()
	return created, nil
}

// CreateBug appends a new bug, assigning the next bug id. Finalize linking
// matches CreateTask.
func (s *BoardService) CreateBug(req models.CreateBugRequest) (models.Task, error) {
	if req.Title == "" {
		return models.Task{}, NewValidationError("title", "must not be empty")
	}
	if req.Executor == "" {
		return models.Task{}, NewValidationError("executor", "must not be empty")
	}

	var created models.Task
	_, err := s.file.Update(func(b *models.Board) error {
		if req.SprintID != "" && b.FindSprint(req.SprintID) == nil {
			return fmt.Errorf("sprint %s: %w", req.SprintID, ErrNotFound)
		}
		now := time.Now()
		created = models.Task{
			ID:          models.BugID(b.NextBugID),
			Title:       req.Title,
			Description: req.Description,
			TaskType:    models.TaskTypeBug,
			RelatedTask: req.RelatedTask,
			Status:      models.TaskStatusNew,
			Author:      req.Author,
			Executor:    req.Executor,
			SprintID:    req.SprintID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		b.NextBugID++
		b.Tasks = append(b.Tasks, created)
		recomputeFinalizeDeps(b, req.SprintID)
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	slog.Info("Bug created", "task_id", created.ID, "related_task", created.RelatedTask)
	s.bus.PublishBoardChanged()
	return created, nil
}

// CreateSprint appends a new sprint together with its finalize task. Both
// records commit in the same critical section.
func (s *BoardService) CreateSprint(req models.CreateSprintRequest) (models.Sprint, models.Task, error) {
	if req.Title == "" {
		return models.Sprint{}, models.Task{}, NewValidationError("title", "must not be empty")
	}

	var (
		created  models.Sprint
		finalize models.Task
	)
	_, err := s.file.Update(func(b *models.Board) error {
		now := time.Now()
		created = models.Sprint{
			ID:             models.SprintID(b.NextSprintID),
			Title:          req.Title,
			Description:    req.Description,
			CreatedBy:      req.CreatedBy,
			Status:         models.SprintStatusActive,
			ReadyToExecute: req.ReadyToExecute,
			CreatedAt:      now,
		}
		b.NextSprintID++
		b.Sprints = append(b.Sprints, created)

		finalize = models.Task{
			ID:          models.TaskID(b.NextID),
			Title:       fmt.Sprintf("Finalize sprint %s", created.ID),
			Description: "Review the sprint's tasks and wrap up the sprint.",
			TaskType:    models.TaskTypeTask,
			Status:      models.TaskStatusNew,
			Author:      req.CreatedBy,
			Executor:    req.CreatedBy,
			SprintID:    created.ID,
			DependsOn:   []string{},
			IsFinalize:  true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		b.NextID++
		b.Tasks = append(b.Tasks, finalize)
		return nil
	})
	if err != nil {
		return models.Sprint{}, models.Task{}, err
	}

	slog.Info("Sprint created", "sprint_id", created.ID, "finalize_task", finalize.ID)
	s.bus.PublishBoardChanged()
	return created, finalize, nil
}

// GetTask returns one task by id.
func (s *BoardService) GetTask(id string) (models.Task, error) {
	b, err := s.file.Read()
	if err != nil {
		return models.Task{}, err
	}
	t := b.FindTask(id)
	if t == nil {
		return models.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return *t, nil
}

// GetTasks lists tasks matching the filters, ordered by id.
func (s *BoardService) GetTasks(f models.TaskFilters) ([]models.Task, error) {
	b, err := s.file.Read()
	if err != nil {
		return nil, err
	}
	out := make([]models.Task, 0, len(b.Tasks))
	for _, t := range b.Tasks {
		if f.Status != "" && t.EffectiveStatus() != f.Status {
			continue
		}
		if f.SprintID != "" && t.SprintID != f.SprintID {
			continue
		}
		if f.TaskType != "" && t.TaskType != f.TaskType {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListSprints returns every sprint, ordered by id.
func (s *BoardService) ListSprints() ([]models.Sprint, error) {
	b, err := s.file.Read()
	if err != nil {
		return nil, err
	}
	out := append([]models.Sprint(nil), b.Sprints...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateTaskStatus applies an operator or agent transition. Setting a
// finalize task to done while every sibling is terminal completes the
// sprint in the same commit.
func (s *BoardService) UpdateTaskStatus(id string, status models.TaskStatus) (models.Task, error) {
	if !status.IsValid() {
		return models.Task{}, fmt.Errorf("status %q: %w", status, ErrInvalidStatus)
	}

	var updated models.Task
	_, err := s.file.Update(func(b *models.Board) error {
		t := b.FindTask(id)
		if t == nil {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		t.Status = status
		t.UpdatedAt = time.Now()

		if status == models.TaskStatusDone && t.IsFinalize && t.SprintID != "" {
			if siblingsTerminal(b, t.SprintID, t.ID) {
				if sp := b.FindSprint(t.SprintID); sp != nil && sp.Status == models.SprintStatusActive {
					sp.Status = models.SprintStatusCompleted
					slog.Info("Sprint completed", "sprint_id", sp.ID)
				}
			}
		}
		updated = *t
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	slog.Info("Task status updated", "task_id", id, "status", status)
	s.bus.PublishBoardChanged()
	return updated, nil
}

// SetTaskResult persists the agent-written outcome text.
func (s *BoardService) SetTaskResult(id, result string) (models.Task, error) {
	var updated models.Task
	_, err := s.file.Update(func(b *models.Board) error {
		t := b.FindTask(id)
		if t == nil {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		t.Result = result
		t.UpdatedAt = time.Now()
		updated = *t
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	s.bus.PublishBoardChanged()
	return updated, nil
}

// DeleteTask removes a task and recomputes its sprint's finalize
// dependencies. Id counters are never rewound. Finalize tasks cannot be
// deleted directly.
func (s *BoardService) DeleteTask(id string) error {
	_, err := s.file.Update(func(b *models.Board) error {
		idx := -1
		for i := range b.Tasks {
			if b.Tasks[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		if b.Tasks[idx].IsFinalize {
			return NewValidationError("id", "finalize tasks cannot be deleted")
		}
		sprintID := b.Tasks[idx].SprintID
		b.Tasks = append(b.Tasks[:idx], b.Tasks[idx+1:]...)
		recomputeFinalizeDeps(b, sprintID)
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("Task deleted", "task_id", id)
	s.bus.PublishBoardChanged()
	return nil
}

// UpdateSprint applies operator changes to status, ready flag or version.
func (s *BoardService) UpdateSprint(id string, req models.UpdateSprintRequest) (models.Sprint, error) {
	if req.Status != nil && !req.Status.IsValid() {
		return models.Sprint{}, fmt.Errorf("sprint status %q: %w", *req.Status, ErrInvalidStatus)
	}

	var updated models.Sprint
	_, err := s.file.Update(func(b *models.Board) error {
		sp := b.FindSprint(id)
		if sp == nil {
			return fmt.Errorf("sprint %s: %w", id, ErrNotFound)
		}
		if req.Status != nil {
			sp.Status = *req.Status
		}
		if req.ReadyToExecute != nil {
			sp.ReadyToExecute = *req.ReadyToExecute
		}
		if req.Version != nil {
			sp.Version = *req.Version
		}
		updated = *sp
		return nil
	})
	if err != nil {
		return models.Sprint{}, err
	}

	slog.Info("Sprint updated", "sprint_id", id)
	s.bus.PublishBoardChanged()
	return updated, nil
}

// IsRunnable reports whether the task can start: status new and every
// dependency terminal. A dependency id that resolves to no task blocks.
func IsRunnable(b *models.Board, t *models.Task) bool {
	if t.EffectiveStatus() != models.TaskStatusNew {
		return false
	}
	for _, depID := range t.DependsOn {
		dep := b.FindTask(depID)
		if dep == nil || !dep.EffectiveStatus().IsTerminal() {
			return false
		}
	}
	return true
}

// Snapshot returns the full board for callers that need a consistent view.
func (s *BoardService) Snapshot() (models.Board, error) {
	return s.file.Read()
}

// recomputeFinalizeDeps rewrites the finalize task's depends_on to exactly
// the ids of its non-finalize siblings. Called inside board mutations after
// every sibling add or remove; no-op for orphan tasks and sprints without a
// finalize task.
func recomputeFinalizeDeps(b *models.Board, sprintID string) {
	if sprintID == "" {
		return
	}
	fin := b.FinalizeTask(sprintID)
	if fin == nil {
		return
	}
	deps := []string{}
	for _, t := range b.Tasks {
		if t.SprintID == sprintID && !t.IsFinalize {
			deps = append(deps, t.ID)
		}
	}
	sort.Strings(deps)
	fin.DependsOn = deps
	fin.UpdatedAt = time.Now()
}

// siblingsTerminal reports whether every non-finalize task of the sprint is
// done or cancelled.
func siblingsTerminal(b *models.Board, sprintID, finalizeID string) bool {
	for _, t := range b.Tasks {
		if t.SprintID != sprintID || t.ID == finalizeID || t.IsFinalize {
			continue
		}
		if !t.EffectiveStatus().IsTerminal() {
			return false
		}
	}
	return true
}
