package triage

import (
	"context"

	"github.com/cardsentry/cardsentry/internal/model"
)

// Verdict is a compliance capability's answer for a finalized decision.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictFlagged  Verdict = "flagged"
)

// Compliance is the consumed policy-check capability. The pipeline only
// records its verdict on the terminal event for downstream routing; the
// decision itself is never altered by it.
type Compliance interface {
	Review(ctx context.Context, run model.TriageRun, decision model.Decision) Verdict
}

// AllowAll is the default compliance implementation: every decision passes.
type AllowAll struct{}

// Review approves unconditionally.
func (AllowAll) Review(context.Context, model.TriageRun, model.Decision) Verdict {
	return VerdictApproved
}
