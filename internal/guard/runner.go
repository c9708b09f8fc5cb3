package guard

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cardsentry/cardsentry/internal/events"
	"github.com/cardsentry/cardsentry/internal/trace"
)

// RedactFunc is the consumed value-to-value PII transform. It must be
// idempotent and must not mutate its input.
type RedactFunc func(any) any

// Runner carries the per-run observability state: the contiguous trace
// sequence counter and the sticky fallback flag. It is owned by the single
// task executing one run and is never shared, so no locking is needed.
type Runner struct {
	runID        string
	recorder     trace.Recorder
	publisher    events.Publisher
	redact       RedactFunc
	seq          int
	fallbackUsed bool
}

// NewRunner creates the per-run stage runner.
func NewRunner(runID string, recorder trace.Recorder, publisher events.Publisher, redact RedactFunc) *Runner {
	return &Runner{
		runID:     runID,
		recorder:  recorder,
		publisher: publisher,
		redact:    redact,
	}
}

// RunID returns the owning run's id.
func (r *Runner) RunID() string { return r.runID }

// Seq returns the last issued trace sequence number.
func (r *Runner) Seq() int { return r.seq }

// FallbackUsed reports the sticky flag: true once any stage degraded.
func (r *Runner) FallbackUsed() bool { return r.fallbackUsed }

// MarkFallback sets the sticky flag. Used for degraded paths that happen
// outside a guarded call, like output-validation substitution.
func (r *Runner) MarkFallback() { r.fallbackUsed = true }

// Record persists one trace entry and publishes the matching tool_update
// event for an unguarded stage invocation. Detail is redacted before either
// emission; the published detail is null when the stage was not ok.
func (r *Runner) Record(step string, ok bool, duration time.Duration, detail map[string]any) {
	r.emit(step, ok, duration, detail, detail)
}

func (r *Runner) emit(step string, ok bool, duration time.Duration, traceDetail, eventDetail map[string]any) {
	r.seq++
	durationMs := duration.Milliseconds()

	redactedTrace := redactMap(r.redact, traceDetail)
	if err := r.recorder.Append(r.runID, r.seq, step, ok, durationMs, redactedTrace); err != nil {
		// Trace persistence is best-effort from the pipeline's perspective.
		fmt.Fprintf(os.Stderr, "trace append failed for %s seq %d: %v\n", r.runID, r.seq, err)
	}

	payload := map[string]any{
		"step":        step,
		"ok":          ok,
		"duration_ms": durationMs,
		"detail":      nil,
	}
	if ok {
		payload["detail"] = redactMap(r.redact, eventDetail)
	}
	r.publisher.Publish(r.runID, events.EventToolUpdate, payload)
}

func redactMap(redact RedactFunc, m map[string]any) map[string]any {
	if m == nil || redact == nil {
		return m
	}
	out, ok := redact(m).(map[string]any)
	if !ok {
		return nil
	}
	return out
}

// RunStage executes one guarded stage: races fn against the timeout, marks
// the sticky fallback flag when the fallback was substituted, persists the
// trace entry, and publishes the tool_update event. The stage is ok iff the
// returned value is the stage's own result rather than the fallback.
func RunStage[T any](r *Runner, ctx context.Context, step string, timeout time.Duration, fn StageFunc[T], fallback T, detail func(T) map[string]any) T {
	start := time.Now()
	val, cause, err := WithTimeout(ctx, timeout, fn, fallback)
	elapsed := time.Since(start)

	ok := cause == CauseNone
	var traceDetail map[string]any
	if ok {
		if detail != nil {
			traceDetail = detail(val)
		}
	} else {
		r.fallbackUsed = true
		traceDetail = map[string]any{"fallback": string(cause)}
		if err != nil {
			traceDetail["error"] = err.Error()
		}
	}

	r.emit(step, ok, elapsed, traceDetail, traceDetail)
	return val
}
