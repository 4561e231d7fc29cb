package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLockTimeout is returned when a lock could not be acquired before
	// the configured deadline. Callers may retry.
	ErrLockTimeout = errors.New("could not acquire lock")
)

// lockInfo is written into the lock file for debugging and ownership checks.
type lockInfo struct {
	PID        int       `json:"pid"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// fileLock is one held sidecar lock. Release removes the lock file only if
// it still carries this holder's token, so a holder whose stale lock was
// broken cannot remove the breaker's fresh lock.
type fileLock struct {
	path  string
	token string
}

// acquireLock takes the sidecar lock for path (path + ".lock") using
// exclusive-create semantics. Contenders poll until the deadline, breaking
// locks older than the staleness threshold.
func (s *Store) acquireLock(path string) (*fileLock, error) {
	lockPath := path + ".lock"
	token := uuid.New().String()
	deadline := time.Now().Add(s.opts.AcquireTimeout)

	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			info := lockInfo{PID: os.Getpid(), Token: token, AcquiredAt: time.Now()}
			data, _ := json.Marshal(info)
			_, _ = f.Write(data)
			_ = f.Close()
			return &fileLock{path: lockPath, token: token}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock %s: %w", lockPath, err)
		}

		if st, statErr := os.Stat(lockPath); statErr == nil {
			if age := time.Since(st.ModTime()); age > s.opts.StaleAfter {
				slog.Warn("Breaking stale lock", "path", lockPath, "age", age)
				_ = os.Remove(lockPath)
				continue // retry create immediately; O_EXCL arbitrates racing breakers
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s after %s: %w", lockPath, s.opts.AcquireTimeout, ErrLockTimeout)
		}
		time.Sleep(s.opts.PollInterval)
	}
}

// release removes the lock file if this holder still owns it.
func (l *fileLock) release() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return // already broken or removed
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err == nil && info.Token != l.token {
		slog.Warn("Lock was broken by another holder, leaving it", "path", l.path)
		return
	}
	_ = os.Remove(l.path)
}
