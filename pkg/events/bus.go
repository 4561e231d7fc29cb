package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tayfa-dev/tayfa/pkg/models"
)

// Options tunes the bus buffers. Zero fields fall back to defaults.
type Options struct {
	// ReplaySize caps the retained events per agent stream.
	ReplaySize int
	// StreamBuffer is the per-subscriber FIFO depth on agent streams.
	StreamBuffer int
	// BoardBuffer is the per-subscriber FIFO depth on the board bus.
	BoardBuffer int
}

const (
	defaultReplaySize   = 500
	defaultStreamBuffer = 256
	defaultBoardBuffer  = 16
)

// Bus carries the per-agent stream topics and the board-change topic.
type Bus struct {
	opts Options

	// Stream and board state are guarded separately so a slow board
	// broadcast never contends with stream publishes.
	streamMu sync.Mutex
	streams  map[string]*agentStream

	boardMu   sync.Mutex
	boardSubs map[string]chan BoardEvent
}

// agentStream is the per-agent topic state.
type agentStream struct {
	subs   map[string]chan models.StreamEvent
	replay []models.StreamEvent
	live   bool // a run is currently publishing
}

// NewBus creates a Bus, filling unset options with defaults.
func NewBus(opts Options) *Bus {
	if opts.ReplaySize <= 0 {
		opts.ReplaySize = defaultReplaySize
	}
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = defaultStreamBuffer
	}
	if opts.BoardBuffer <= 0 {
		opts.BoardBuffer = defaultBoardBuffer
	}
	return &Bus{
		opts:      opts,
		streams:   make(map[string]*agentStream),
		boardSubs: make(map[string]chan BoardEvent),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Per-agent streams
// ─────────────────────────────────────────────────────────────────────────────

// StreamSubscription is one attached stream reader.
type StreamSubscription struct {
	id    string
	agent string
	bus   *Bus
	// C delivers the live tail. It is closed by Close, never by the bus.
	C chan models.StreamEvent
}

// Close detaches the subscription. Safe to call more than once.
func (s *StreamSubscription) Close() {
	s.bus.streamMu.Lock()
	defer s.bus.streamMu.Unlock()
	if st, ok := s.bus.streams[s.agent]; ok {
		delete(st.subs, s.id)
	}
}

// SubscribeAgent attaches to an agent's stream. It returns a snapshot of
// the replay buffer (the current or last run so far), whether a run is
// live, and the subscription delivering everything published afterwards.
// The snapshot and the registration happen atomically, so no event falls
// between them.
func (b *Bus) SubscribeAgent(agent string) ([]models.StreamEvent, bool, *StreamSubscription) {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()

	st := b.stream(agent)
	sub := &StreamSubscription{
		id:    uuid.New().String(),
		agent: agent,
		bus:   b,
		C:     make(chan models.StreamEvent, b.opts.StreamBuffer),
	}
	st.subs[sub.id] = sub.C

	snapshot := make([]models.StreamEvent, len(st.replay))
	copy(snapshot, st.replay)
	return snapshot, st.live, sub
}

// BeginStream starts a new run for an agent: the replay buffer resets so it
// holds exactly this run.
func (b *Bus) BeginStream(agent string) {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()
	st := b.stream(agent)
	st.replay = st.replay[:0]
	st.live = true
}

// PublishStream appends an event to the agent's replay buffer and fans it
// out to all subscribers without blocking.
func (b *Bus) PublishStream(agent string, ev models.StreamEvent) {
	b.streamMu.Lock()
	st := b.stream(agent)

	st.replay = append(st.replay, ev)
	if over := len(st.replay) - b.opts.ReplaySize; over > 0 {
		st.replay = st.replay[over:]
	}
	if ev.Type == models.StreamEventEnd {
		st.live = false
	}

	// Snapshot receivers so no send happens under the lock.
	chans := make([]chan models.StreamEvent, 0, len(st.subs))
	for _, ch := range st.subs {
		chans = append(chans, ch)
	}
	b.streamMu.Unlock()

	for _, ch := range chans {
		sendDropOldest(ch, ev)
	}
}

// EndStream publishes the terminating sentinel for the agent's run.
func (b *Bus) EndStream(agent string) {
	b.PublishStream(agent, models.StreamEnd())
}

// stream returns the topic state for an agent, creating it on first use.
// Caller holds streamMu.
func (b *Bus) stream(agent string) *agentStream {
	st, ok := b.streams[agent]
	if !ok {
		st = &agentStream{subs: make(map[string]chan models.StreamEvent)}
		b.streams[agent] = st
	}
	return st
}

// ─────────────────────────────────────────────────────────────────────────────
// Board bus
// ─────────────────────────────────────────────────────────────────────────────

// BoardSubscription is one attached board listener.
type BoardSubscription struct {
	id  string
	bus *Bus
	C   chan BoardEvent
}

// Close detaches the subscription. Safe to call more than once.
func (s *BoardSubscription) Close() {
	s.bus.boardMu.Lock()
	defer s.bus.boardMu.Unlock()
	delete(s.bus.boardSubs, s.id)
}

// SubscribeBoard attaches a board-change listener.
func (b *Bus) SubscribeBoard() *BoardSubscription {
	b.boardMu.Lock()
	defer b.boardMu.Unlock()

	sub := &BoardSubscription{
		id:  uuid.New().String(),
		bus: b,
		C:   make(chan BoardEvent, b.opts.BoardBuffer),
	}
	b.boardSubs[sub.id] = sub.C
	return sub
}

// PublishBoardChanged broadcasts a board_changed event to every listener.
func (b *Bus) PublishBoardChanged() {
	ev := BoardEvent{Type: BoardEventType, TS: time.Now().Unix()}

	b.boardMu.Lock()
	chans := make([]chan BoardEvent, 0, len(b.boardSubs))
	for _, ch := range b.boardSubs {
		chans = append(chans, ch)
	}
	b.boardMu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
			// Full buffer: the pending events already mean "refetch", so
			// dropping this one loses nothing.
			slog.Debug("Board subscriber lagging, coalescing event")
		}
	}
}

// sendDropOldest delivers ev without blocking: when the buffer is full the
// oldest queued event is evicted first, then the send is retried once.
func sendDropOldest(ch chan models.StreamEvent, ev models.StreamEvent) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
