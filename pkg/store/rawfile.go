package store

import "os"

// RawFile is an untyped handle for non-JSON documents that still need the
// lock protocol and atomic replacement (the agent memory markdown).
type RawFile struct {
	store *Store
	path  string
}

// NewRawFile binds a raw document to a path on the given store.
func NewRawFile(s *Store, path string) *RawFile {
	return &RawFile{store: s, path: path}
}

// Path returns the file's location on disk.
func (f *RawFile) Path() string { return f.path }

// Read returns the file's content, or nil when it does not exist.
func (f *RawFile) Read() ([]byte, error) {
	lock, err := f.store.acquireLock(f.path)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// Update runs one read-modify-write cycle under the lock. The mutator gets
// the current content (nil when missing) and returns the replacement.
func (f *RawFile) Update(mutate func([]byte) ([]byte, error)) error {
	lock, err := f.store.acquireLock(f.path)
	if err != nil {
		return err
	}
	defer lock.release()

	data, err := os.ReadFile(f.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	next, err := mutate(data)
	if err != nil {
		return err
	}
	return writeAtomicBytes(f.path, next)
}
