package trace

import (
	"sync"
	"time"
)

// Memory is an in-process Recorder used by tests, the MCP server, and the
// serving layer's trace read endpoint. Entries are kept per run in append
// order.
type Memory struct {
	mu   sync.RWMutex
	runs map[string][]Entry
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string][]Entry)}
}

// Append records one entry for the given run.
func (m *Memory) Append(runID string, seq int, step string, ok bool, durationMs int64, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[runID] = append(m.runs[runID], Entry{
		Timestamp:  time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		RunID:      runID,
		Seq:        seq,
		Step:       step,
		OK:         ok,
		DurationMs: durationMs,
		Detail:     detail,
	})
	return nil
}

// Entries returns a copy of the entries recorded for a run, in append order.
func (m *Memory) Entries(runID string) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.runs[runID]
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// Multi fans one append out to several recorders, stopping at the first
// error. Used to keep the durable log and the in-process view in step.
type Multi []Recorder

// Append records the entry on every underlying recorder.
func (m Multi) Append(runID string, seq int, step string, ok bool, durationMs int64, detail map[string]any) error {
	for _, r := range m {
		if err := r.Append(runID, seq, step, ok, durationMs, detail); err != nil {
			return err
		}
	}
	return nil
}
