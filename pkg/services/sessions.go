package services

import (
	"fmt"

	"github.com/tayfa-dev/tayfa/pkg/store"
)

// SessionService persists gateway session ids per (agent, model) pair
// (chat_sessions.json) so a later invocation can resume a conversation,
// including across engine restarts.
type SessionService struct {
	file *store.File[map[string]string]
}

// NewSessionService creates a SessionService over the sessions file.
func NewSessionService(st *store.Store, path string) *SessionService {
	return &SessionService{
		file: store.NewFile(st, path, func() map[string]string {
			return map[string]string{}
		}),
	}
}

func sessionKey(agent, model string) string {
	return fmt.Sprintf("%s|%s", agent, model)
}

// Get returns the stored session id for an (agent, model) pair, or "" when
// none was recorded.
func (s *SessionService) Get(agent, model string) (string, error) {
	sessions, err := s.file.Read()
	if err != nil {
		return "", err
	}
	return sessions[sessionKey(agent, model)], nil
}

// Set records the session id for an (agent, model) pair. An empty id clears
// the stored session.
func (s *SessionService) Set(agent, model, sessionID string) error {
	_, err := s.file.Update(func(sessions *map[string]string) error {
		key := sessionKey(agent, model)
		if sessionID == "" {
			delete(*sessions, key)
			return nil
		}
		(*sessions)[key] = sessionID
		return nil
	})
	return err
}
