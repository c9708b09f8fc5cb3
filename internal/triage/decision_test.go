package triage

import (
	"strings"
	"testing"

	"github.com/cardsentry/cardsentry/internal/kb"
	"github.com/cardsentry/cardsentry/internal/model"
)

func preAuthHit() model.KBHit {
	return model.KBHit{
		DocID:  "kb-001",
		Title:  "Pre-authorization holds and capture pairs",
		Anchor: kb.PreAuthAnchor,
	}
}

func TestSynthesizePreAuthOverride(t *testing.T) {
	subject := model.Transaction{ID: "txn-1", Merchant: "HOTEL CORTEZ", AmountCents: 21450}
	dup := model.Transaction{ID: "txn-2", Merchant: "HOTEL CORTEZ", AmountCents: 21500}

	report := model.FraudReport{
		Score:             model.RiskHigh,
		RecommendedAction: model.ActionFreezeCard,
		Reasons:           []string{"high transaction amount"},
	}
	hits := []model.KBHit{
		{DocID: "kb-004", Title: "Card freeze policy", Anchor: "freeze:policy"},
		preAuthHit(),
	}

	d := Synthesize(report, hits, []model.Transaction{dup}, &subject)

	if d.Action != model.ActionNone {
		t.Fatalf("action = %s, want %s", d.Action, model.ActionNone)
	}
	if len(d.Citations) != 1 || d.Citations[0].Anchor != kb.PreAuthAnchor {
		t.Fatalf("citations = %+v, want single pre-auth citation", d.Citations)
	}
	if !strings.Contains(d.Reason, "HOTEL CORTEZ") {
		t.Errorf("reason %q does not name the merchant", d.Reason)
	}
	if len(d.RelatedTransactions) != 2 || d.RelatedTransactions[0].ID != "txn-1" || d.RelatedTransactions[1].ID != "txn-2" {
		t.Errorf("related = %+v, want subject first then duplicate", d.RelatedTransactions)
	}
}

func TestSynthesizePreAuthRideShareWording(t *testing.T) {
	subject := model.Transaction{ID: "txn-1", Merchant: "CITYRIDE", MCC: "4121"}
	dup := model.Transaction{ID: "txn-2", Merchant: "CITYRIDE"}

	d := Synthesize(model.FraudReport{RecommendedAction: model.ActionNone},
		[]model.KBHit{preAuthHit()}, []model.Transaction{dup}, &subject)

	if !strings.Contains(d.Reason, "ride-share") {
		t.Errorf("reason %q lacks ride-share phrasing", d.Reason)
	}
}

func TestSynthesizeDuplicatesWithoutPreAuthCitation(t *testing.T) {
	// Duplicates alone do not trigger the override; the pre-auth citation
	// must also be present.
	subject := model.Transaction{ID: "txn-1", Merchant: "HOTEL CORTEZ"}
	dup := model.Transaction{ID: "txn-2", Merchant: "HOTEL CORTEZ"}
	report := model.FraudReport{
		Score:             model.RiskMedium,
		RecommendedAction: model.ActionFreezeCard,
		ReasonCode:        model.ReasonCodeCardAbsentFraud,
		Reasons:           []string{"rapid transaction velocity"},
	}

	d := Synthesize(report, nil, []model.Transaction{dup}, &subject)

	if d.Action != model.ActionFreezeCard {
		t.Fatalf("action = %s, want %s", d.Action, model.ActionFreezeCard)
	}
}

func TestSynthesizeDisputeCitations(t *testing.T) {
	report := model.FraudReport{
		Score:             model.RiskMedium,
		RecommendedAction: model.ActionOpenDispute,
		ReasonCode:        model.ReasonCodeCardAbsentFraud,
		Reasons:           []string{"high transaction amount"},
	}
	hits := []model.KBHit{
		{DocID: "kb-006", Title: "Merchant descriptor lookup", Anchor: "descriptors:lookup"},
		{DocID: "kb-002", Title: "Filing a dispute", Anchor: "disputes:filing"},
		{DocID: "kb-003", Title: "Cancelled recurring charges and disputes", Anchor: "recurring:cancel"},
	}

	d := Synthesize(report, hits, nil, nil)

	if d.Action != model.ActionOpenDispute {
		t.Fatalf("action = %s, want %s", d.Action, model.ActionOpenDispute)
	}
	if d.ReasonCode != model.ReasonCodeCardAbsentFraud {
		t.Errorf("reason code = %q, want %q", d.ReasonCode, model.ReasonCodeCardAbsentFraud)
	}
	// kb-002 matches on anchor prefix, kb-003 on title; kb-006 on neither.
	if len(d.Citations) != 2 {
		t.Fatalf("citations = %+v, want the two dispute docs", d.Citations)
	}
	for _, c := range d.Citations {
		if c.DocID == "kb-006" {
			t.Errorf("unrelated doc cited: %+v", c)
		}
	}
}

func TestSynthesizeFreezeAppendsOTPCaveat(t *testing.T) {
	report := model.FraudReport{
		Score:             model.RiskHigh,
		RecommendedAction: model.ActionFreezeCard,
		Reasons:           []string{"rapid transaction velocity", "high-risk merchant category"},
	}

	d := Synthesize(report, nil, nil, nil)

	if !strings.HasSuffix(d.Reason, "OTP verification.") {
		t.Errorf("reason %q does not end with OTP caveat", d.Reason)
	}
	if !strings.HasPrefix(d.Reason, "rapid transaction velocity; high-risk merchant category") {
		t.Errorf("reason %q does not start with joined report reasons", d.Reason)
	}
}

func TestSynthesizeCarryThrough(t *testing.T) {
	report := model.FraudReport{
		Score:             model.RiskLow,
		RecommendedAction: model.ActionNone,
		Reasons:           []string{model.NoIssuesReason},
	}

	d := Synthesize(report, nil, nil, nil)

	if d.Action != model.ActionNone {
		t.Fatalf("action = %s, want %s", d.Action, model.ActionNone)
	}
	if d.Reason != model.NoIssuesReason {
		t.Errorf("reason = %q, want %q", d.Reason, model.NoIssuesReason)
	}
	if len(d.Citations) != 0 {
		t.Errorf("citations = %+v, want none", d.Citations)
	}
}

func TestSynthesizeEmptyActionDefaultsToNone(t *testing.T) {
	d := Synthesize(model.FraudReport{}, nil, nil, nil)
	if d.Action != model.ActionNone {
		t.Fatalf("action = %s, want %s", d.Action, model.ActionNone)
	}
}

func TestNewRunIDFormat(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		id := NewRunID()
		if !strings.HasPrefix(id, "run-") {
			t.Fatalf("id %q missing run- prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
