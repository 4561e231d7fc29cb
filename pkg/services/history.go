package services

import (
	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/store"
)

// HistoryService persists per-agent chat history, one JSON file per agent.
type HistoryService struct {
	store   *store.Store
	pathFor func(agent string) string
	cap     int
}

// NewHistoryService creates a HistoryService. pathFor maps an agent name to
// its history file; cap bounds each file, trimming oldest entries first.
func NewHistoryService(st *store.Store, pathFor func(agent string) string, cap int) *HistoryService {
	return &HistoryService{store: st, pathFor: pathFor, cap: cap}
}

func (s *HistoryService) file(agent string) *store.File[[]models.ChatHistoryEntry] {
	return store.NewFile(s.store, s.pathFor(agent), func() []models.ChatHistoryEntry {
		return []models.ChatHistoryEntry{}
	})
}

// Append records one invocation in the agent's history.
func (s *HistoryService) Append(agent string, entry models.ChatHistoryEntry) error {
	_, err := s.file(agent).Update(func(list *[]models.ChatHistoryEntry) error {
		*list = append(*list, entry)
		if over := len(*list) - s.cap; over > 0 {
			*list = (*list)[over:]
		}
		return nil
	})
	return err
}

// List returns the most recent entries for an agent, newest last. limit <= 0
// returns everything.
func (s *HistoryService) List(agent string, limit int) ([]models.ChatHistoryEntry, error) {
	list, err := s.file(agent).Read()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list, nil
}
