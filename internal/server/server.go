// Package server exposes the triage pipeline over HTTP. Run creation and
// event delivery are split in two phases: a POST parks the alert context in
// a handoff table and returns the run id immediately; the pipeline starts
// only when the first event subscriber attaches, so no progress event is
// ever emitted into the void. Parked entries self-expire.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cardsentry/cardsentry/internal/events"
	"github.com/cardsentry/cardsentry/internal/fraud"
	"github.com/cardsentry/cardsentry/internal/model"
	"github.com/cardsentry/cardsentry/internal/store"
	"github.com/cardsentry/cardsentry/internal/triage"
)

// defaultHandoffTTL is how long a created run waits for its first
// subscriber before the parked context is discarded.
const defaultHandoffTTL = 30 * time.Second

// Config holds HTTP server configuration.
type Config struct {
	Addr        string
	ScoringPath string
	HandoffTTL  time.Duration
}

// Server is the HTTP boundary over the orchestrator.
type Server struct {
	orch *triage.Orchestrator
	bus  *events.Bus
	runs store.Store
	cfg  Config

	mu       sync.Mutex
	handoffs map[string]*handoff

	httpServer *http.Server
}

// handoff is one parked run waiting for its first subscriber.
type handoff struct {
	context model.TriageContext
	expiry  *time.Timer
}

// New creates the HTTP server. The run store is optional; without it the
// run-summary endpoint returns 404 for everything.
func New(cfg Config, orch *triage.Orchestrator, bus *events.Bus, runs store.Store) *Server {
	if cfg.HandoffTTL <= 0 {
		cfg.HandoffTTL = defaultHandoffTTL
	}
	s := &Server{
		orch:     orch,
		bus:      bus,
		runs:     runs,
		cfg:      cfg,
		handoffs: make(map[string]*handoff),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/runs", s.handleCreateRun)
	mux.HandleFunc("GET /v1/runs/{id}/events", s.handleRunEvents)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	return s
}

// Handler returns the HTTP handler. For testing.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Serve starts the HTTP server on the configured address. Blocks until
// shutdown.
func (s *Server) Serve() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ReloadScoring atomically swaps the scoring config from disk.
// Called by the hot-reloader on file change.
func (s *Server) ReloadScoring() error {
	cfg, hash, err := fraud.LoadConfigWithHash(s.cfg.ScoringPath)
	if err != nil {
		return fmt.Errorf("server: reload scoring config: %w", err)
	}
	s.orch.SetScoring(cfg, hash)
	return nil
}

// handleCreateRun parks the posted alert context and answers with the run
// id. The pipeline does not start yet.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var tc model.TriageContext
	if err := json.NewDecoder(r.Body).Decode(&tc); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid triage context: %v", err))
		return
	}
	if tc.Alert.ID == "" {
		writeError(w, http.StatusBadRequest, "alert.id is required")
		return
	}

	runID := triage.NewRunID()
	h := &handoff{context: tc}
	h.expiry = time.AfterFunc(s.cfg.HandoffTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.handoffs[runID] == h {
			delete(s.handoffs, runID)
		}
	})

	s.mu.Lock()
	s.handoffs[runID] = h
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"run_id": runID,
		"state":  string(model.StateCreated),
		"events": "/v1/runs/" + runID + "/events",
	})
}

// takeHandoff claims a parked run for its first subscriber. Returns false
// when the run was already claimed or never existed.
func (s *Server) takeHandoff(runID string) (model.TriageContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handoffs[runID]
	if !ok {
		return model.TriageContext{}, false
	}
	delete(s.handoffs, runID)
	h.expiry.Stop()
	return h.context, true
}

// handleRunEvents streams the run's events over SSE. The first subscriber
// starts the pipeline; later subscribers (or reconnects) get the replay
// buffer followed by whatever is still live.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if tc, claimed := s.takeHandoff(runID); claimed {
		go func() {
			if _, err := s.orch.StartRun(context.Background(), runID, tc); err != nil {
				fmt.Fprintf(os.Stderr, "run %s failed: %v\n", runID, err)
			}
		}()
	} else if len(s.bus.History(runID)) == 0 {
		// Never created, or the handoff expired before anyone attached.
		writeError(w, http.StatusNotFound, "unknown or expired run")
		return
	}

	ch, cancel := s.bus.Subscribe(runID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				fmt.Fprintf(os.Stderr, "encode event for %s: %v\n", runID, err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
			flusher.Flush()
		}
	}
}

// handleGetRun returns the persisted run summary.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run summaries not persisted")
		return
	}
	run, err := s.runs.Get(r.PathValue("id"))
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, hash := s.orch.Scoring()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"scoring_hash": hash,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "write response: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
