package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cardsentry/cardsentry/internal/events"
	"github.com/cardsentry/cardsentry/internal/redact"
	"github.com/cardsentry/cardsentry/internal/trace"
)

func TestWithTimeoutStageWins(t *testing.T) {
	val, cause, err := WithTimeout(context.Background(), time.Second,
		func(ctx context.Context) (string, error) { return "result", nil }, "fallback")
	if val != "result" || cause != CauseNone || err != nil {
		t.Errorf("got (%q, %q, %v), want stage result", val, cause, err)
	}
}

func TestWithTimeoutTimerWins(t *testing.T) {
	val, cause, err := WithTimeout(context.Background(), 20*time.Millisecond,
		func(ctx context.Context) (string, error) {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			return "late", nil
		}, "fallback")
	if val != "fallback" || cause != CauseTimeout || err != nil {
		t.Errorf("got (%q, %q, %v), want timeout fallback", val, cause, err)
	}
}

func TestWithTimeoutRejectionFallsBack(t *testing.T) {
	boom := errors.New("boom")
	val, cause, err := WithTimeout(context.Background(), time.Second,
		func(ctx context.Context) (string, error) { return "", boom }, "fallback")
	if val != "fallback" || cause != CauseError {
		t.Errorf("got (%q, %q), want error fallback", val, cause)
	}
	if !errors.Is(err, boom) {
		t.Errorf("rejection error should be preserved for the trace, got %v", err)
	}
}

func newTestRunner() (*Runner, *trace.Memory, *events.Bus) {
	rec := trace.NewMemory()
	bus := events.NewBus()
	r := NewRunner("run-1", rec, bus, redact.Payload)
	return r, rec, bus
}

func TestRunStageSuccess(t *testing.T) {
	r, rec, bus := newTestRunner()

	val := RunStage(r, context.Background(), "fraud_score", time.Second,
		func(ctx context.Context) (int, error) { return 42, nil },
		-1,
		func(v int) map[string]any { return map[string]any{"tally": v} })

	if val != 42 {
		t.Fatalf("val = %d, want 42", val)
	}
	if r.FallbackUsed() {
		t.Error("fallback flag must stay clear on success")
	}

	entries := rec.Entries("run-1")
	if len(entries) != 1 || entries[0].Seq != 1 || !entries[0].OK {
		t.Fatalf("unexpected trace entries: %+v", entries)
	}
	if entries[0].Detail["tally"] != 42 {
		t.Errorf("trace detail = %v", entries[0].Detail)
	}

	hist := bus.History("run-1")
	if len(hist) != 1 || hist[0].Name != events.EventToolUpdate {
		t.Fatalf("unexpected events: %+v", hist)
	}
	if hist[0].Payload["ok"] != true || hist[0].Payload["step"] != "fraud_score" {
		t.Errorf("event payload = %v", hist[0].Payload)
	}
}

func TestRunStageTimeoutMarksStickyFallback(t *testing.T) {
	r, rec, bus := newTestRunner()

	val := RunStage(r, context.Background(), "fraud_score", 20*time.Millisecond,
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "late", nil
		},
		"fallback",
		func(v string) map[string]any { return map[string]any{"value": v} })

	if val != "fallback" {
		t.Fatalf("val = %q, want fallback", val)
	}
	if !r.FallbackUsed() {
		t.Error("fallback flag must be set after timeout")
	}

	entries := rec.Entries("run-1")
	if len(entries) != 1 || entries[0].OK {
		t.Fatalf("trace should record a not-ok entry: %+v", entries)
	}
	if entries[0].Detail["fallback"] != "timeout" {
		t.Errorf("trace detail should name the cause: %v", entries[0].Detail)
	}

	hist := bus.History("run-1")
	if hist[0].Payload["detail"] != nil {
		t.Errorf("published detail must be null when not ok, got %v", hist[0].Payload["detail"])
	}

	// A later success does not clear the sticky flag.
	RunStage(r, context.Background(), "kb_merchant", time.Second,
		func(ctx context.Context) (string, error) { return "ok", nil }, "fb", nil)
	if !r.FallbackUsed() {
		t.Error("fallback flag is sticky across stages")
	}
}

func TestRunStageRejectionKeepsCauseInTrace(t *testing.T) {
	r, rec, _ := newTestRunner()

	RunStage(r, context.Background(), "kb_dispute", time.Second,
		func(ctx context.Context) ([]string, error) { return nil, errors.New("search backend down") },
		[]string{},
		nil)

	entries := rec.Entries("run-1")
	if entries[0].Detail["fallback"] != "error" {
		t.Errorf("cause = %v, want error", entries[0].Detail["fallback"])
	}
	if entries[0].Detail["error"] != "search backend down" {
		t.Errorf("rejection text missing from trace detail: %v", entries[0].Detail)
	}
}

func TestSequenceNumbersAreContiguous(t *testing.T) {
	r, rec, _ := newTestRunner()

	r.Record("load_context", true, 0, map[string]any{"alert_id": "al-1"})
	RunStage(r, context.Background(), "fraud_score", time.Second,
		func(ctx context.Context) (int, error) { return 1, nil }, 0, nil)
	r.Record("synthesize_decision", true, time.Millisecond, nil)

	entries := rec.Entries("run-1")
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != i+1 {
			t.Errorf("entry %d has seq %d, want %d", i, e.Seq, i+1)
		}
	}
	if r.Seq() != 3 {
		t.Errorf("runner seq = %d, want 3", r.Seq())
	}
}

func TestDetailIsRedactedBeforeEmission(t *testing.T) {
	r, rec, bus := newTestRunner()

	r.Record("load_context", true, 0, map[string]any{
		"customer": map[string]any{"name": "Dana Smith", "id": "cust-1"},
	})

	entry := rec.Entries("run-1")[0]
	cust := entry.Detail["customer"].(map[string]any)
	if cust["name"] != "***" {
		t.Errorf("trace detail not redacted: %v", cust)
	}

	payload := bus.History("run-1")[0].Payload
	evCust := payload["detail"].(map[string]any)["customer"].(map[string]any)
	if evCust["name"] != "***" {
		t.Errorf("event payload not redacted: %v", evCust)
	}
}

func TestMarkFallbackIsSticky(t *testing.T) {
	r, _, _ := newTestRunner()
	if r.FallbackUsed() {
		t.Fatal("flag should start clear")
	}
	r.MarkFallback()
	if !r.FallbackUsed() {
		t.Fatal("flag should be set")
	}
}
