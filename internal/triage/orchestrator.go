// Package triage drives the four-stage alert pipeline: context trace, fraud
// scoring, knowledge lookup, decision synthesis. Stages run strictly in
// order within a run; independent runs share nothing but the injected
// collaborators. A run, once started, always reaches finalize exactly once,
// whether it succeeds or fails.
package triage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cardsentry/cardsentry/internal/events"
	"github.com/cardsentry/cardsentry/internal/fraud"
	"github.com/cardsentry/cardsentry/internal/guard"
	"github.com/cardsentry/cardsentry/internal/kb"
	"github.com/cardsentry/cardsentry/internal/model"
	"github.com/cardsentry/cardsentry/internal/redact"
	"github.com/cardsentry/cardsentry/internal/trace"
)

// stageTimeout is the per-stage budget for guarded external calls. Timeout
// is scoped per stage, never per run.
const stageTimeout = time.Second

// Fixed knowledge-lookup queries for the conditional stage-3 searches.
const (
	preAuthQuery = "pre-authorization capture duplicate charge"
	disputeQuery = "how to open a dispute for a charge"
)

// ScoreFunc computes a fraud report. Injectable for tests; defaults to the
// real engine.
type ScoreFunc func(ctx context.Context, cfg *fraud.Config, in fraud.Input) model.FraudReport

// RunStore persists finalized run summaries. Writes are best-effort from the
// pipeline's perspective.
type RunStore interface {
	Save(run model.TriageRun) error
}

// Config wires an Orchestrator.
type Config struct {
	Scoring     *fraud.Config  // nil => built-in defaults
	ScoringHash string         // provenance, recorded on terminal events
	KB          kb.Lookup      // required
	Trace       trace.Recorder // required
	Events      events.Publisher
	Redact      guard.RedactFunc // nil => internal/redact.Payload
	Runs        RunStore         // optional
	Compliance  Compliance       // nil => AllowAll
	Score       ScoreFunc        // nil => fraud.Analyze
	Now         func() time.Time // nil => time.Now
}

// Orchestrator executes triage runs. Safe for concurrent StartRun calls;
// per-run state lives entirely in the State value owned by each call.
type Orchestrator struct {
	mu          sync.RWMutex
	scoring     *fraud.Config
	scoringHash string

	kb         kb.Lookup
	recorder   trace.Recorder
	publisher  events.Publisher
	redact     guard.RedactFunc
	runs       RunStore
	compliance Compliance
	score      ScoreFunc
	now        func() time.Time
}

// State is the working state of a single run. Owned exclusively by the one
// task executing the run; never shared or mutated concurrently.
type State struct {
	Run        model.TriageRun
	Context    model.TriageContext
	Subject    *model.Transaction
	Report     model.FraudReport
	Hits       []model.KBHit
	Duplicates []model.Transaction
	Decision   model.Decision
}

// New creates an Orchestrator from wiring config.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.KB == nil {
		return nil, fmt.Errorf("triage: knowledge lookup is required")
	}
	if cfg.Trace == nil {
		return nil, fmt.Errorf("triage: trace recorder is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("triage: event publisher is required")
	}

	o := &Orchestrator{
		scoring:     cfg.Scoring,
		scoringHash: cfg.ScoringHash,
		kb:          cfg.KB,
		recorder:    cfg.Trace,
		publisher:   cfg.Events,
		redact:      cfg.Redact,
		runs:        cfg.Runs,
		compliance:  cfg.Compliance,
		score:       cfg.Score,
		now:         cfg.Now,
	}
	if o.scoring == nil {
		o.scoring = fraud.DefaultConfig()
		o.scoringHash = "builtin"
	}
	if o.redact == nil {
		o.redact = redact.Payload
	}
	if o.compliance == nil {
		o.compliance = AllowAll{}
	}
	if o.score == nil {
		o.score = fraud.Analyze
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// SetScoring swaps the scoring config. Used by hot-reload; in-flight runs
// keep the config they started with.
func (o *Orchestrator) SetScoring(cfg *fraud.Config, hash string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scoring = cfg
	o.scoringHash = hash
}

// Scoring returns the current scoring config and its provenance hash.
func (o *Orchestrator) Scoring() (*fraud.Config, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.scoring, o.scoringHash
}

// StartRun executes the full pipeline for one alert context. It returns when
// the run is finalized; the returned error is non-nil only for unhandled
// defects, and even then finalize side effects have already run. Degraded
// outcomes (timeouts, rejections, validation failures, missing data) are
// absorbed and reported only through the sticky fallback flag and reasons.
func (o *Orchestrator) StartRun(ctx context.Context, runID string, tc model.TriageContext) (st *State, err error) {
	if runID == "" {
		runID = NewRunID()
	}
	scoring, scoringHash := o.Scoring()

	st = &State{
		Run: model.TriageRun{
			ID:        runID,
			AlertID:   tc.Alert.ID,
			State:     model.StateCreated,
			StartedAt: o.now(),
		},
		Context: tc,
	}
	runner := guard.NewRunner(runID, o.recorder, o.publisher, o.redact)

	// Finalize is the only way a run terminates. It runs exactly once,
	// success, failure, or panic, and a panic surfaces as the returned
	// error after the terminal event is out.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("triage: run %s: %v", runID, p)
		}
		o.finalize(ctx, st, runner, scoringHash, err)
	}()

	// Stage 1: context trace. Cannot fail; it only echoes inputs the
	// caller already validated.
	stageStart := time.Now()
	runner.Record("load_context", true, time.Since(stageStart), map[string]any{
		"customer_id":            tc.Customer.ID,
		"alert_id":               tc.Alert.ID,
		"subject_transaction_id": tc.Alert.TransactionID,
		"window_size":            len(tc.Transactions),
	})
	st.Run.State = model.StateContextLoaded

	// Stage 2: fraud scoring, guarded.
	st.Subject = selectSubject(tc)
	if st.Subject == nil {
		st.Report = model.FraudReport{
			Score:             model.RiskLow,
			Reasons:           []string{"no transaction available to analyze"},
			RecommendedAction: model.ActionNone,
			FallbackUsed:      true,
		}
		runner.MarkFallback()
		runner.Record("fraud_score", false, 0, map[string]any{
			"fallback": string(guard.CauseMissing),
		})
	} else {
		subject := *st.Subject
		report := guard.RunStage(runner, ctx, "fraud_score", stageTimeout,
			func(c context.Context) (model.FraudReport, error) {
				return o.score(c, scoring, fraud.Input{
					Subject:  subject,
					Recent:   tc.Transactions,
					Customer: tc.Customer,
					Disputes: tc.Disputes,
				}), nil
			},
			unavailableReport(),
			func(r model.FraudReport) map[string]any {
				return map[string]any{
					"score":              string(r.Score),
					"tally":              r.Tally,
					"recommended_action": string(r.RecommendedAction),
				}
			})

		if verr := model.ValidateReport(&report); verr != nil {
			// Independent fallback path from the timeout one.
			report = model.FraudReport{
				Score:             model.RiskMedium,
				Reasons:           []string{"risk report failed validation"},
				RecommendedAction: model.ActionNone,
				FallbackUsed:      true,
			}
			runner.MarkFallback()
			runner.Record("validate_report", false, 0, map[string]any{
				"fallback": string(guard.CauseValidation),
				"error":    verr.Error(),
			})
		}
		st.Report = report
	}
	st.Run.State = model.StateRiskScored

	// Stage 3: knowledge lookups, each guarded independently with an
	// empty-list fallback. Hits are concatenated, never deduplicated.
	hits := []model.KBHit{}
	hitDetail := func(h []model.KBHit) map[string]any {
		return map[string]any{"hits": len(h)}
	}
	if st.Subject != nil && st.Subject.Merchant != "" {
		merchant := st.Subject.Merchant
		hits = append(hits, guard.RunStage(runner, ctx, "kb_merchant", stageTimeout,
			func(c context.Context) ([]model.KBHit, error) { return o.kb.Search(c, merchant) },
			[]model.KBHit{}, hitDetail)...)
	}
	if st.Subject != nil {
		st.Duplicates = fraud.NearDuplicates(*st.Subject, tc.Transactions, scoring.Limits.DuplicateToleranceCents)
	}
	if len(st.Duplicates) > 0 {
		hits = append(hits, guard.RunStage(runner, ctx, "kb_preauth", stageTimeout,
			func(c context.Context) ([]model.KBHit, error) { return o.kb.Search(c, preAuthQuery) },
			[]model.KBHit{}, hitDetail)...)
	}
	if st.Report.RecommendedAction == model.ActionOpenDispute {
		hits = append(hits, guard.RunStage(runner, ctx, "kb_dispute", stageTimeout,
			func(c context.Context) ([]model.KBHit, error) { return o.kb.Search(c, disputeQuery) },
			[]model.KBHit{}, hitDetail)...)
	}
	if verr := model.ValidateHits(hits); verr != nil {
		hits = []model.KBHit{}
		runner.MarkFallback()
		runner.Record("validate_hits", false, 0, map[string]any{
			"fallback": string(guard.CauseValidation),
			"error":    verr.Error(),
		})
	}
	st.Hits = hits
	st.Run.State = model.StateKBSearched

	// Stage 4: decision synthesis. Pure combination of fetched data.
	stageStart = time.Now()
	st.Decision = Synthesize(st.Report, st.Hits, st.Duplicates, st.Subject)
	st.Run.State = model.StateDecided
	runner.Record("synthesize_decision", true, time.Since(stageStart), map[string]any{
		"action":      string(st.Decision.Action),
		"reason_code": st.Decision.ReasonCode,
		"citations":   len(st.Decision.Citations),
	})

	return st, nil
}

// unavailableReport is the stage-2 fallback when the scoring engine times
// out or rejects: a conservative MEDIUM that routes the desk toward a
// dispute rather than silently passing the alert.
func unavailableReport() model.FraudReport {
	return model.FraudReport{
		Score:             model.RiskMedium,
		Reasons:           []string{"risk service unavailable"},
		RecommendedAction: model.ActionOpenDispute,
		FallbackUsed:      true,
	}
}

// selectSubject picks the transaction under review: the alert's linked
// transaction if it is in the window, else the most recent window
// transaction, else nothing.
func selectSubject(tc model.TriageContext) *model.Transaction {
	if tc.Alert.TransactionID != "" {
		for i := range tc.Transactions {
			if tc.Transactions[i].ID == tc.Alert.TransactionID {
				txn := tc.Transactions[i]
				return &txn
			}
		}
	}
	var latest *model.Transaction
	for i := range tc.Transactions {
		if latest == nil || tc.Transactions[i].Timestamp.After(latest.Timestamp) {
			latest = &tc.Transactions[i]
		}
	}
	if latest == nil {
		return nil
	}
	txn := *latest
	return &txn
}

// finalize closes the run: sets ended_at exactly once, persists the summary,
// and publishes the terminal event, the last event for the run, published
// exactly once.
func (o *Orchestrator) finalize(ctx context.Context, st *State, runner *guard.Runner, scoringHash string, failure error) {
	ended := o.now()
	st.Run.EndedAt = &ended
	st.Run.LatencyMs = ended.Sub(st.Run.StartedAt).Milliseconds()
	st.Run.FallbackUsed = runner.FallbackUsed()

	var payload map[string]any
	if failure != nil {
		st.Run.State = model.StateFailed
		st.Run.Error = failure.Error()
		payload = map[string]any{
			"run_id":        st.Run.ID,
			"error":         "triage run failed",
			"fallback_used": st.Run.FallbackUsed,
			"latency_ms":    st.Run.LatencyMs,
		}
	} else {
		st.Run.State = model.StateFinalized
		st.Run.Risk = st.Report.Score
		if reasons, ok := o.redact(st.Report.Reasons).([]string); ok {
			st.Run.Reasons = reasons
		} else {
			st.Run.Reasons = st.Report.Reasons
		}

		citations := make([]any, 0, len(st.Decision.Citations))
		for _, c := range st.Decision.Citations {
			citations = append(citations, map[string]any{
				"doc_id": c.DocID,
				"title":  c.Title,
				"anchor": c.Anchor,
			})
		}
		related := make([]any, 0, len(st.Decision.RelatedTransactions))
		for _, txn := range st.Decision.RelatedTransactions {
			related = append(related, txn.ID)
		}
		payload = map[string]any{
			"run_id":        st.Run.ID,
			"risk":          string(st.Run.Risk),
			"action":        string(st.Decision.Action),
			"reason":        st.Decision.Reason,
			"reason_code":   st.Decision.ReasonCode,
			"citations":     citations,
			"related":       related,
			"fallback_used": st.Run.FallbackUsed,
			"latency_ms":    st.Run.LatencyMs,
			"scoring_hash":  scoringHash,
			"compliance":    string(o.compliance.Review(ctx, st.Run, st.Decision)),
		}
	}

	if o.runs != nil {
		if err := o.runs.Save(st.Run); err != nil {
			// Summary persistence is best-effort; the trace log remains the
			// durable record.
			payload["summary_persisted"] = false
		}
	}

	if redacted, ok := o.redact(payload).(map[string]any); ok {
		payload = redacted
	}
	o.publisher.Publish(st.Run.ID, events.EventDecisionFinalized, payload)
}
