// Package events carries per-run progress events from the orchestrator to
// subscribers. Delivery within one run is strictly ordered; the bus keeps a
// bounded replay buffer per run so a subscriber that reconnects receives the
// full ordered history before live events.
package events

import (
	"sync"
	"time"
)

// Event names published by the pipeline.
const (
	EventToolUpdate        = "tool_update"
	EventDecisionFinalized = "decision_finalized"
)

// maxHistory bounds the per-run replay buffer. A run publishes at most a
// handful of events, so this is generous.
const maxHistory = 64

// Publisher is the narrow interface the orchestrator publishes through.
// Payloads are redacted before they reach this interface.
type Publisher interface {
	Publish(runID, name string, payload map[string]any)
}

// Event is one published progress record. Seq is assigned per run in
// publish order so clients can detect out-of-order arrival.
type Event struct {
	RunID     string         `json:"run_id"`
	Seq       int            `json:"seq"`
	Name      string         `json:"name"`
	Timestamp string         `json:"ts"`
	Payload   map[string]any `json:"payload"`
}

// Bus is an in-process publish/subscribe hub keyed by run id.
type Bus struct {
	mu   sync.Mutex
	runs map[string]*runStream
}

type runStream struct {
	history []Event
	subs    map[chan Event]struct{}
	done    bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{runs: make(map[string]*runStream)}
}

// Publish appends the event to the run's history and fans it out to live
// subscribers. After the terminal decision_finalized event, subscriber
// channels are closed and later subscribers get replay only.
func (b *Bus) Publish(runID, name string, payload map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs := b.stream(runID)
	if rs.done {
		return
	}

	ev := Event{
		RunID:     runID,
		Seq:       len(rs.history) + 1,
		Name:      name,
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Payload:   payload,
	}
	if len(rs.history) < maxHistory {
		rs.history = append(rs.history, ev)
	}

	for ch := range rs.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: skip, replay covers it on reconnect.
		}
	}

	if name == EventDecisionFinalized {
		rs.done = true
		for ch := range rs.subs {
			close(ch)
		}
		rs.subs = make(map[chan Event]struct{})
	}
}

// Subscribe returns a channel that first replays the run's history and then
// receives live events. The channel is closed after the terminal event. The
// returned cancel func detaches the subscriber; the pipeline itself is
// unaware of subscribers and never stops for them.
func (b *Bus) Subscribe(runID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs := b.stream(runID)
	ch := make(chan Event, maxHistory+16)
	for _, ev := range rs.history {
		ch <- ev
	}

	if rs.done {
		close(ch)
		return ch, func() {}
	}

	rs.subs[ch] = struct{}{}
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, live := rs.subs[ch]; live {
			delete(rs.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// History returns a copy of the events published so far for a run.
func (b *Bus) History(runID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs := b.stream(runID)
	out := make([]Event, len(rs.history))
	copy(out, rs.history)
	return out
}

// Finished reports whether the run's terminal event has been published.
func (b *Bus) Finished(runID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stream(runID).done
}

func (b *Bus) stream(runID string) *runStream {
	rs, ok := b.runs[runID]
	if !ok {
		rs = &runStream{subs: make(map[chan Event]struct{})}
		b.runs[runID] = rs
	}
	return rs
}
