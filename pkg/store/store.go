// Package store implements the cross-process-safe JSON file store.
//
// Every shared state file (tasks, failures, chat history, sessions) is a
// plain JSON document on disk, shared between orchestrator processes and
// external collaborators. Safety comes from two mechanisms:
//
//   - A sidecar lock file (<path>.lock) created with O_CREATE|O_EXCL.
//     Contenders poll at a short interval until a deadline and then fail
//     with ErrLockTimeout. Locks older than a staleness threshold are
//     assumed to belong to a crashed holder and are broken.
//
//   - Atomic replacement: writers marshal to <path>.tmp in the same
//     directory, fsync best-effort, then rename over the destination so no
//     reader in any process ever observes a torn file.
//
// All read-modify-write cycles go through Update, which holds the lock for
// the whole critical section. Concurrent updates from any number of
// processes compose serially with no lost writes.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Options tunes lock acquisition. Zero fields fall back to defaults.
type Options struct {
	// AcquireTimeout bounds how long a contender polls for the lock.
	AcquireTimeout time.Duration
	// PollInterval is the time between acquisition attempts.
	PollInterval time.Duration
	// StaleAfter is the age past which a lock file may be broken.
	StaleAfter time.Duration
}

const (
	defaultAcquireTimeout = 10 * time.Second
	defaultPollInterval   = 50 * time.Millisecond
	defaultStaleAfter     = 60 * time.Second
)

// Store hands out locked access to JSON files.
type Store struct {
	opts Options
}

// New creates a Store, filling unset options with defaults.
func New(opts Options) *Store {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = defaultAcquireTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	return &Store{opts: opts}
}

// File is a typed handle to one JSON document. The default constructor is
// called whenever the file is missing or unparsable, so readers always get
// a usable value.
type File[T any] struct {
	store *Store
	path  string
	def   func() T
}

// NewFile binds a document type to a path on the given store.
func NewFile[T any](s *Store, path string, def func() T) *File[T] {
	return &File[T]{store: s, path: path, def: def}
}

// Path returns the file's location on disk.
func (f *File[T]) Path() string { return f.path }

// Read returns the parsed document, or the default when the file is missing
// or corrupt. The lock is held for the duration of the read.
func (f *File[T]) Read() (T, error) {
	lock, err := f.store.acquireLock(f.path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer lock.release()
	return f.readCurrent(), nil
}

// Write atomically replaces the document under the lock.
func (f *File[T]) Write(v T) error {
	lock, err := f.store.acquireLock(f.path)
	if err != nil {
		return err
	}
	defer lock.release()
	return writeAtomic(f.path, v)
}

// Update runs one read-modify-write cycle as a single critical section:
// lock, read current (or default), mutate in place, atomic write, unlock.
// A mutator error aborts the update and nothing is written.
func (f *File[T]) Update(mutate func(*T) error) (T, error) {
	lock, err := f.store.acquireLock(f.path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer lock.release()

	v := f.readCurrent()
	if err := mutate(&v); err != nil {
		var zero T
		return zero, err
	}
	if err := writeAtomic(f.path, v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// readCurrent parses the file, falling back to the default on any problem.
// Corrupt JSON is deliberately not an error: the caller decides whether to
// repair by writing back.
func (f *File[T]) readCurrent() T {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return f.def()
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return f.def()
	}
	return v
}

// writeAtomic marshals v and replaces path atomically.
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return writeAtomicBytes(path, data)
}

// writeAtomicBytes writes data to <path>.tmp and renames it over path. The
// rename makes the replacement atomic; on rename failure the destination is
// unlinked once and the rename retried (Windows keeps open files locked).
func writeAtomicBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	_ = f.Sync() // best-effort
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(path)
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("replace %s: %w", path, err)
		}
	}
	return nil
}
