package services

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/store"
)

// FailureService persists terminal agent failures (agent_failures.json) so
// an operator can inspect and resolve them out of band.
type FailureService struct {
	file *store.File[[]models.AgentFailure]
	cap  int
}

// NewFailureService creates a FailureService over the failures file. cap
// bounds the file; older entries are trimmed first.
func NewFailureService(st *store.Store, path string, cap int) *FailureService {
	return &FailureService{
		file: store.NewFile(st, path, func() []models.AgentFailure {
			return []models.AgentFailure{}
		}),
		cap: cap,
	}
}

// Record appends a failure and returns it with its assigned ID.
func (s *FailureService) Record(taskID, agent string, errorType models.ErrorType, message, traceback string) (models.AgentFailure, error) {
	failure := models.AgentFailure{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Agent:     agent,
		ErrorType: errorType,
		Message:   message,
		Traceback: traceback,
		Timestamp: time.Now().UTC(),
	}

	_, err := s.file.Update(func(list *[]models.AgentFailure) error {
		*list = append(*list, failure)
		if over := len(*list) - s.cap; over > 0 {
			*list = (*list)[over:]
		}
		return nil
	})
	if err != nil {
		return models.AgentFailure{}, err
	}

	slog.Warn("Recorded agent failure",
		"task_id", taskID,
		"agent", agent,
		"error_type", errorType)
	return failure, nil
}

// List returns failures, optionally filtered by resolved state.
func (s *FailureService) List(resolved *bool) ([]models.AgentFailure, error) {
	list, err := s.file.Read()
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return list, nil
	}
	filtered := make([]models.AgentFailure, 0, len(list))
	for _, f := range list {
		if f.Resolved == *resolved {
			filtered = append(filtered, f)
		}
	}
	return filtered, nil
}

// Resolve marks a single failure resolved.
func (s *FailureService) Resolve(id string) error {
	_, err := s.file.Update(func(list *[]models.AgentFailure) error {
		for i := range *list {
			if (*list)[i].ID == id {
				(*list)[i].Resolved = true
				return nil
			}
		}
		return fmt.Errorf("failure %s: %w", id, ErrNotFound)
	})
	return err
}

// ResolveForTask marks every unresolved failure for a task resolved. The
// scheduler calls this when the task is triggered again, so the operator
// view only shows failures that still need attention.
func (s *FailureService) ResolveForTask(taskID string) error {
	_, err := s.file.Update(func(list *[]models.AgentFailure) error {
		for i := range *list {
			if (*list)[i].TaskID == taskID && !(*list)[i].Resolved {
				(*list)[i].Resolved = true
			}
		}
		return nil
	})
	return err
}
