package fraud

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cardsentry/cardsentry/internal/model"
)

var baseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func subjectTxn() model.Transaction {
	return model.Transaction{
		ID:          "txn-subject",
		CardID:      "card-1",
		AmountCents: 4500,
		Currency:    "EUR",
		Merchant:    "ACME COFFEE",
		MCC:         "5812",
		Country:     "NL",
		DeviceID:    "dev-1",
		Timestamp:   baseTime,
	}
}

func customer() model.Customer {
	return model.Customer{ID: "cust-1", Name: "Dana Smith", Email: "dana@example.com", HomeCountry: "NL"}
}

// priorAt builds a prior transaction offset backwards from the subject time.
func priorAt(id string, ago time.Duration, mutate func(*model.Transaction)) model.Transaction {
	txn := model.Transaction{
		ID:          id,
		CardID:      "card-1",
		AmountCents: 2000,
		Currency:    "EUR",
		Merchant:    "GROCERY MART",
		MCC:         "5411",
		Country:     "NL",
		DeviceID:    "dev-1",
		Timestamp:   baseTime.Add(-ago),
	}
	if mutate != nil {
		mutate(&txn)
	}
	return txn
}

func analyze(t *testing.T, in Input) model.FraudReport {
	t.Helper()
	report := Analyze(context.Background(), DefaultConfig(), in)
	if err := model.ValidateReport(&report); err != nil {
		t.Fatalf("engine produced invalid report: %v", err)
	}
	return report
}

func TestNoSignalsYieldsSentinel(t *testing.T) {
	report := analyze(t, Input{Subject: subjectTxn(), Customer: customer()})

	if report.Tally != 0 {
		t.Errorf("tally = %d, want 0", report.Tally)
	}
	if report.Score != model.RiskLow {
		t.Errorf("score = %s, want LOW", report.Score)
	}
	if report.RecommendedAction != model.ActionNone {
		t.Errorf("action = %s, want NONE", report.RecommendedAction)
	}
	if len(report.Reasons) != 1 || report.Reasons[0] != model.NoIssuesReason {
		t.Errorf("reasons = %v, want the no-issues sentinel alone", report.Reasons)
	}
}

// Scenario: amount 150000 cents, no other signals. The amount rule alone
// lands the tally exactly on the MEDIUM boundary, and the amount exceeds the
// high-amount threshold, so the action is OPEN_DISPUTE with code 10.4.
func TestHighAmountAloneIsMediumDispute(t *testing.T) {
	subject := subjectTxn()
	subject.AmountCents = 150000

	report := analyze(t, Input{Subject: subject, Customer: customer()})

	if report.Tally != 30 {
		t.Errorf("tally = %d, want 30", report.Tally)
	}
	if report.Score != model.RiskMedium {
		t.Errorf("score = %s, want MEDIUM", report.Score)
	}
	if report.RecommendedAction != model.ActionOpenDispute {
		t.Errorf("action = %s, want OPEN_DISPUTE", report.RecommendedAction)
	}
	if report.ReasonCode != model.ReasonCodeCardAbsentFraud {
		t.Errorf("reason code = %q, want %q", report.ReasonCode, model.ReasonCodeCardAbsentFraud)
	}
}

func TestMediumBandPrefersFreezeBelowDisputeThreshold(t *testing.T) {
	// Geo spread alone: tally 30, amount small => FREEZE_CARD.
	subject := subjectTxn()
	recent := []model.Transaction{
		priorAt("txn-1", 2*time.Hour, func(x *model.Transaction) { x.Country = "DE" }),
		priorAt("txn-2", 5*time.Hour, func(x *model.Transaction) { x.Country = "FR" }),
		// Keep NL modal so the cross-border rule stays quiet.
		priorAt("txn-3", 8*time.Hour, nil),
		priorAt("txn-4", 30*time.Hour, nil),
	}

	report := analyze(t, Input{Subject: subject, Recent: recent, Customer: customer()})

	if report.Tally != 30 {
		t.Fatalf("tally = %d, want 30 (geo spread only); reasons: %v", report.Tally, report.Reasons)
	}
	if report.RecommendedAction != model.ActionFreezeCard {
		t.Errorf("action = %s, want FREEZE_CARD below the dispute threshold", report.RecommendedAction)
	}
}

// Scenario: six transactions in the five minutes before the subject. The
// 5m and 1h windows both trigger (50 + 15), pushing the tally past HIGH on
// velocity alone.
func TestVelocityBurstIsHighFreeze(t *testing.T) {
	subject := subjectTxn()
	var recent []model.Transaction
	for i := 0; i < 6; i++ {
		recent = append(recent, priorAt(fmt.Sprintf("txn-%d", i), time.Duration(i+1)*40*time.Second, nil))
	}

	report := analyze(t, Input{Subject: subject, Recent: recent, Customer: customer()})

	if report.Tally != 65 {
		t.Errorf("tally = %d, want 65 (velocity 5m + 1h)", report.Tally)
	}
	if report.Score != model.RiskHigh {
		t.Errorf("score = %s, want HIGH", report.Score)
	}
	if report.RecommendedAction != model.ActionFreezeCard {
		t.Errorf("action = %s, want FREEZE_CARD", report.RecommendedAction)
	}
}

func TestDeviceChangeNeedsUniformRun(t *testing.T) {
	subject := subjectTxn()
	subject.DeviceID = "dev-new"

	// No prior history: rule is vacuously false.
	report := analyze(t, Input{Subject: subject, Customer: customer()})
	if report.Tally != 0 {
		t.Errorf("no-history tally = %d, want 0", report.Tally)
	}

	// Three consistent prior uses of another device: rule fires.
	recent := []model.Transaction{
		priorAt("txn-1", 1*time.Hour, nil),
		priorAt("txn-2", 2*time.Hour, nil),
		priorAt("txn-3", 3*time.Hour, nil),
	}
	report = analyze(t, Input{Subject: subject, Recent: recent, Customer: customer()})
	if report.Tally != DefaultConfig().Weights.DeviceChange {
		t.Errorf("uniform-run tally = %d, want %d; reasons: %v", report.Tally, DefaultConfig().Weights.DeviceChange, report.Reasons)
	}

	// A mixed run breaks the uniformity requirement.
	recent[1].DeviceID = "dev-other"
	report = analyze(t, Input{Subject: subject, Recent: recent, Customer: customer()})
	if report.Tally != 0 {
		t.Errorf("mixed-run tally = %d, want 0; reasons: %v", report.Tally, report.Reasons)
	}
}

func TestHighRiskMCC(t *testing.T) {
	subject := subjectTxn()
	subject.MCC = "7995"

	report := analyze(t, Input{Subject: subject, Customer: customer()})
	if report.Tally != DefaultConfig().Weights.HighRiskMCC {
		t.Errorf("tally = %d, want %d", report.Tally, DefaultConfig().Weights.HighRiskMCC)
	}
}

func TestCrossBorderUsesModalCountry(t *testing.T) {
	subject := subjectTxn()
	subject.Country = "US"
	recent := []model.Transaction{
		priorAt("txn-1", 48*time.Hour, nil),
		priorAt("txn-2", 72*time.Hour, nil),
		priorAt("txn-3", 96*time.Hour, func(x *model.Transaction) { x.Country = "DE" }),
	}

	report := analyze(t, Input{Subject: subject, Recent: recent, Customer: customer()})
	if report.Tally != DefaultConfig().Weights.CrossBorder {
		t.Errorf("tally = %d, want %d; reasons: %v", report.Tally, DefaultConfig().Weights.CrossBorder, report.Reasons)
	}

	var found bool
	for _, r := range report.Reasons {
		if strings.Contains(r, "usually transacts in NL") {
			found = true
		}
	}
	if !found {
		t.Errorf("cross-border reason should name the modal country: %v", report.Reasons)
	}
}

func TestModalCountryTieBreaksFirstSeen(t *testing.T) {
	prior := []model.Transaction{
		priorAt("txn-1", 1*time.Hour, func(x *model.Transaction) { x.Country = "DE" }),
		priorAt("txn-2", 2*time.Hour, func(x *model.Transaction) { x.Country = "NL" }),
	}
	// NL was seen first chronologically (older timestamp), so the tie goes to NL.
	if got := modalCountry(priorTransactions(subjectTxn(), prior)); got != "NL" {
		t.Errorf("modal country = %q, want NL on first-seen tie-break", got)
	}
}

func TestDisputeHistoryTiers(t *testing.T) {
	subject := subjectTxn()
	old := baseTime.Add(-200 * 24 * time.Hour)
	fresh := baseTime.Add(-10 * 24 * time.Hour)

	tests := []struct {
		name     string
		disputes []model.CaseRecord
		want     int
	}{
		{"none", nil, 0},
		{"one old dispute", []model.CaseRecord{{ID: "c1", OpenedAt: old}}, DefaultConfig().Weights.DisputeAny},
		{"one recent dispute", []model.CaseRecord{{ID: "c1", OpenedAt: fresh}}, DefaultConfig().Weights.DisputeAny},
		{"three recent disputes", []model.CaseRecord{
			{ID: "c1", OpenedAt: fresh},
			{ID: "c2", OpenedAt: fresh.Add(time.Hour)},
			{ID: "c3", OpenedAt: fresh.Add(2 * time.Hour)},
		}, DefaultConfig().Weights.DisputeHeavy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := analyze(t, Input{Subject: subject, Customer: customer(), Disputes: tt.disputes})
			if report.Tally != tt.want {
				t.Errorf("tally = %d, want %d", report.Tally, tt.want)
			}
		})
	}
}

func TestRecurringChargeFlagsWithoutScoring(t *testing.T) {
	subject := subjectTxn()
	subject.AmountCents = 999
	recent := []model.Transaction{
		priorAt("txn-1", 30*24*time.Hour, func(x *model.Transaction) { x.Merchant = subject.Merchant; x.AmountCents = 999 }),
		priorAt("txn-2", 60*24*time.Hour, func(x *model.Transaction) { x.Merchant = subject.Merchant; x.AmountCents = 999 }),
		priorAt("txn-3", 90*24*time.Hour, func(x *model.Transaction) { x.Merchant = subject.Merchant; x.AmountCents = 1049 }),
	}

	report := analyze(t, Input{Subject: subject, Recent: recent, Customer: customer()})

	if report.Tally != 0 {
		t.Errorf("recurring rule must not contribute points, tally = %d", report.Tally)
	}
	if !report.RecurringCharge {
		t.Error("recurring flag should be set")
	}
	if report.Score != model.RiskLow || report.RecommendedAction != model.ActionOpenDispute {
		t.Errorf("recurring LOW path should recommend OPEN_DISPUTE, got %s/%s", report.Score, report.RecommendedAction)
	}
	if report.ReasonCode != model.ReasonCodeCancelledRecurring {
		t.Errorf("reason code = %q, want %q", report.ReasonCode, model.ReasonCodeCancelledRecurring)
	}
}

func TestRecurringRejectsWideSpread(t *testing.T) {
	subject := subjectTxn()
	recent := []model.Transaction{
		priorAt("txn-1", 30*24*time.Hour, func(x *model.Transaction) { x.Merchant = subject.Merchant; x.AmountCents = 500 }),
		priorAt("txn-2", 60*24*time.Hour, func(x *model.Transaction) { x.Merchant = subject.Merchant; x.AmountCents = 5000 }),
		priorAt("txn-3", 90*24*time.Hour, func(x *model.Transaction) { x.Merchant = subject.Merchant; x.AmountCents = 50000 }),
	}

	report := analyze(t, Input{Subject: subject, Recent: recent, Customer: customer()})
	if report.RecurringCharge {
		t.Error("wildly varying amounts are not a subscription")
	}
}

func TestAmbiguousMerchantDescriptor(t *testing.T) {
	subject := subjectTxn()
	subject.Merchant = "PAYPAL *UNKNOWNSELLER"

	report := analyze(t, Input{Subject: subject, Customer: customer()})
	if report.Tally != DefaultConfig().Weights.AmbiguousMerchant {
		t.Errorf("tally = %d, want %d", report.Tally, DefaultConfig().Weights.AmbiguousMerchant)
	}
}

// Adding a trigger on top of any input never lowers the score tier.
func TestScoreTierIsMonotone(t *testing.T) {
	base := Input{Subject: subjectTxn(), Customer: customer()}

	escalations := []func(Input) Input{
		func(in Input) Input { in.Subject.AmountCents = 150000; return in },
		func(in Input) Input { in.Subject.MCC = "7995"; return in },
		func(in Input) Input { in.Subject.Merchant = "PAYPAL *X"; return in },
		func(in Input) Input {
			in.Disputes = []model.CaseRecord{
				{ID: "c1", OpenedAt: baseTime.Add(-24 * time.Hour)},
				{ID: "c2", OpenedAt: baseTime.Add(-48 * time.Hour)},
				{ID: "c3", OpenedAt: baseTime.Add(-72 * time.Hour)},
			}
			return in
		},
	}

	in := base
	prev := analyze(t, in).Score.Rank()
	for i, escalate := range escalations {
		in = escalate(in)
		rank := analyze(t, in).Score.Rank()
		if rank < prev {
			t.Fatalf("escalation %d lowered tier: %d -> %d", i, prev, rank)
		}
		prev = rank
	}
}

func TestSimulateTimeoutRespectsContext(t *testing.T) {
	subject := subjectTxn()
	subject.SimulateTimeout = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	Analyze(ctx, DefaultConfig(), Input{Subject: subject, Customer: customer()})
	elapsed := time.Since(start)

	if elapsed < 40*time.Millisecond {
		t.Errorf("engine returned in %s, should hang until the context expires", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("engine hung %s past context cancellation", elapsed)
	}
}

func TestNearDuplicates(t *testing.T) {
	subject := subjectTxn()
	subject.AmountCents = 2350
	window := []model.Transaction{
		subject,
		priorAt("txn-dup", 3*time.Hour, func(x *model.Transaction) { x.Merchant = subject.Merchant; x.AmountCents = 2300 }),
		priorAt("txn-far", 4*time.Hour, func(x *model.Transaction) { x.Merchant = subject.Merchant; x.AmountCents = 9000 }),
		priorAt("txn-other", 5*time.Hour, func(x *model.Transaction) { x.AmountCents = 2350 }),
	}

	dups := NearDuplicates(subject, window, 100)
	if len(dups) != 1 || dups[0].ID != "txn-dup" {
		t.Errorf("duplicates = %v, want exactly txn-dup", dups)
	}
}
