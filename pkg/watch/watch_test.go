package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayfa-dev/tayfa/pkg/events"
)

func newTestWatcher(t *testing.T) (string, *events.BoardSubscription) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "common", "tasks.json")

	bus := events.NewBus(events.Options{})
	sub := bus.SubscribeBoard()
	t.Cleanup(sub.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	w := New(path, bus)
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { w.Close() })

	return path, sub
}

func waitForEvent(t *testing.T, sub *events.BoardSubscription) events.BoardEvent {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no board event arrived")
		return events.BoardEvent{}
	}
}

func expectQuiet(t *testing.T, sub *events.BoardSubscription, d time.Duration) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected board event: %+v", ev)
	case <-time.After(d):
	}
}

func TestPublishesOnDirectWrite(t *testing.T) {
	path, sub := newTestWatcher(t)

	require.NoError(t, os.WriteFile(path, []byte(`{"tasks":[]}`), 0o644))

	ev := waitForEvent(t, sub)
	assert.Equal(t, events.BoardEventType, ev.Type)
	assert.NotZero(t, ev.TS)
}

func TestPublishesOnAtomicReplace(t *testing.T) {
	path, sub := newTestWatcher(t)

	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(`{"tasks":[]}`), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	waitForEvent(t, sub)
}

func TestIgnoresSiblingFiles(t *testing.T) {
	path, sub := newTestWatcher(t)

	dir := filepath.Dir(path)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks.json.lock"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "employees.json"), []byte("{}"), 0o644))

	expectQuiet(t, sub, 300*time.Millisecond)
}

func TestCoalescesBursts(t *testing.T) {
	path, sub := newTestWatcher(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{"tasks":[]}`), 0o644))
	}

	waitForEvent(t, sub)
	// A burst inside the debounce window collapses to one notification.
	expectQuiet(t, sub, 300*time.Millisecond)
}

func TestCloseStopsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	bus := events.NewBus(events.Options{})
	sub := bus.SubscribeBoard()
	defer sub.Close()

	w := New(path, bus)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Close())

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	expectQuiet(t, sub, 300*time.Millisecond)
}

func TestStartAfterCloseFails(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "tasks.json"), events.NewBus(events.Options{}))
	require.NoError(t, w.Close())
	assert.Error(t, w.Start(context.Background()))
}
