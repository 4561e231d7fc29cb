// Package events implements the in-process pub/sub buses.
//
// Two topics exist with different delivery semantics:
//
// PER-AGENT STREAMS (live LLM output):
//   - The agent runner opens a stream for an agent, publishes the run's
//     events in order and closes the stream with a stream_end sentinel.
//   - Subscribers receive events through a bounded FIFO. When a subscriber
//     lags, the oldest buffered event is dropped; the UI is best-effort and
//     no backpressure ever reaches the agent.
//   - A replay buffer keeps the last K events of the current or most recent
//     stream, so a subscriber attaching mid-run (or just after) still sees
//     the run from the start, up to truncation.
//
// BOARD CHANGES (UI refresh):
//   - Every state mutation broadcasts {type:"board_changed", ts}. The
//     payload carries no detail: the semantic is "something changed,
//     refetch", which makes events coalescible. A subscriber that missed
//     three broadcasts and sees one refreshes to the same view.
//
// Publishes never block beyond a short mutex. Subscribe and unsubscribe are
// safe against concurrent publishes.
package events

// BoardEventType is the type tag of every board bus event.
const BoardEventType = "board_changed"

// BoardEvent tells subscribers the board state changed and they should
// refetch.
type BoardEvent struct {
	Type string `json:"type"` // always "board_changed"
	TS   int64  `json:"ts"`   // epoch seconds of the mutation
}
