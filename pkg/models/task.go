package models

import (
	"fmt"
	"time"
)

// TaskStatus defines the canonical task lifecycle states.
type TaskStatus string

const (
	// TaskStatusNew means the task is waiting to run (or was reset by the operator)
	TaskStatusNew TaskStatus = "new"
	// TaskStatusDone means the executing agent finished the work
	TaskStatusDone TaskStatus = "done"
	// TaskStatusQuestions means the agent needs operator input before continuing
	TaskStatusQuestions TaskStatus = "questions"
	// TaskStatusCancelled means the operator abandoned the task
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsValid checks if the status is one of the four canonical values.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusNew, TaskStatusDone, TaskStatusQuestions, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends the task's lifecycle.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusCancelled
}

// Normalize maps legacy statuses found in persisted data onto the canonical
// set. Boards written by earlier versions may contain pending, in_progress
// or in_review; the engine treats all three as new and only ever writes the
// canonical four.
func (s TaskStatus) Normalize() TaskStatus {
	switch s {
	case "pending", "in_progress", "in_review":
		return TaskStatusNew
	default:
		return s
	}
}

// TaskType distinguishes regular tasks from bugs.
type TaskType string

const (
	TaskTypeTask TaskType = "task"
	TaskTypeBug  TaskType = "bug"
)

// IsValid checks if the task type is valid.
func (t TaskType) IsValid() bool {
	return t == TaskTypeTask || t == TaskTypeBug
}

// Task is a unit of work assigned to one executor, optionally gated on
// other tasks through DependsOn.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	TaskType    TaskType   `json:"task_type"`
	RelatedTask string     `json:"related_task,omitempty"` // bugs only
	Status      TaskStatus `json:"status"`
	Author      string     `json:"author,omitempty"`
	Executor    string     `json:"executor"`
	SprintID    string     `json:"sprint_id,omitempty"` // empty means orphan
	DependsOn   []string   `json:"depends_on,omitempty"`
	IsFinalize  bool       `json:"is_finalize,omitempty"`
	Result      string     `json:"result,omitempty"`
	ProjectPath string     `json:"project_path,omitempty"` // overrides the executor's workdir
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EffectiveStatus returns the task status with legacy values normalized.
func (t *Task) EffectiveStatus() TaskStatus {
	return t.Status.Normalize()
}

// TaskID formats a regular task id from a counter value.
func TaskID(n int) string { return fmt.Sprintf("T%03d", n) }

// BugID formats a bug id from a counter value.
func BugID(n int) string { return fmt.Sprintf("B%03d", n) }

// CreateTaskRequest contains fields for creating a new task.
type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Executor    string   `json:"executor"`
	SprintID    string   `json:"sprint_id,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	ProjectPath string   `json:"project_path,omitempty"`
}

// CreateBugRequest contains fields for creating a new bug.
type CreateBugRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Executor    string `json:"executor"`
	SprintID    string `json:"sprint_id,omitempty"`
	RelatedTask string `json:"related_task,omitempty"`
}

// TaskFilters contains filtering options for listing tasks.
type TaskFilters struct {
	Status   TaskStatus `json:"status,omitempty"`
	SprintID string     `json:"sprint_id,omitempty"`
	TaskType TaskType   `json:"task_type,omitempty"`
}
