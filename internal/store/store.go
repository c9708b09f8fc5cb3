// Package store persists finalized triage run summaries. The trace log is
// the durable audit record; this store exists for quick lookup of past runs
// by desk tooling.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cardsentry/cardsentry/internal/model"
)

// Store is the run summary persistence surface.
type Store interface {
	Save(run model.TriageRun) error
	Get(id string) (model.TriageRun, error)
	List(limit int) ([]model.TriageRun, error)
	Close() error
}

// ErrNotFound is returned by Get for unknown run ids.
var ErrNotFound = fmt.Errorf("store: run not found")

// Memory is the in-process store used by tests and ephemeral runs.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]model.TriageRun
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]model.TriageRun)}
}

// Save upserts a run summary.
func (m *Memory) Save(run model.TriageRun) error {
	if run.ID == "" {
		return fmt.Errorf("store: run id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

// Get returns the run with the given id.
func (m *Memory) Get(id string) (model.TriageRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return model.TriageRun{}, ErrNotFound
	}
	return run, nil
}

// List returns up to limit runs, most recently started first.
func (m *Memory) List(limit int) ([]model.TriageRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.TriageRun, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
