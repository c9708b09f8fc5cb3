package model

import "time"

// RunState is the orchestrator's position in the pipeline. Transitions are
// linear and never move backward; Failed is reachable from any non-terminal
// state on an unhandled error.
type RunState string

const (
	StateCreated       RunState = "created"
	StateContextLoaded RunState = "context_loaded"
	StateRiskScored    RunState = "risk_scored"
	StateKBSearched    RunState = "kb_searched"
	StateDecided       RunState = "decided"
	StateFinalized     RunState = "finalized"
	StateFailed        RunState = "failed"
)

// TriageRun is the persisted summary of one pipeline execution.
// EndedAt is set exactly once, at finalize, success or failure.
type TriageRun struct {
	ID           string     `json:"id"`
	AlertID      string     `json:"alert_id"`
	State        RunState   `json:"state"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Risk         RiskScore  `json:"risk,omitempty"`
	Reasons      []string   `json:"reasons,omitempty"`
	FallbackUsed bool       `json:"fallback_used"`
	LatencyMs    int64      `json:"latency_ms"`
	Error        string     `json:"error,omitempty"`
}
