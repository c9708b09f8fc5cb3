package trace

// Entry is one per-stage audit record in the hash-chained JSONL trace log.
// Sequence numbers are contiguous and strictly increasing within a run,
// starting at 1, and are never reused. Detail is redacted before it reaches
// this package.
type Entry struct {
	Timestamp  string         `json:"ts"`
	RunID      string         `json:"run_id"`
	Seq        int            `json:"seq"`
	Step       string         `json:"step"`
	OK         bool           `json:"ok"`
	DurationMs int64          `json:"duration_ms"`
	Detail     map[string]any `json:"detail,omitempty"`
	PrevHash   string         `json:"prev_hash"`
}

// Recorder persists per-stage trace entries. Implementations must tolerate
// concurrent appends from independent runs; sequence correctness within a
// run is the caller's responsibility.
type Recorder interface {
	Append(runID string, seq int, step string, ok bool, durationMs int64, detail map[string]any) error
}
