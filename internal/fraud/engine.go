// Package fraud scores a flagged transaction against its surrounding
// context: the customer's recent transaction window and dispute history.
// Scoring is a pure integer-tally function: every rule is deterministic and
// the tally-to-tier mapping is monotone. The only effectful construct is the
// simulated hang behind the SimulateTimeout test flag.
package fraud

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cardsentry/cardsentry/internal/model"
)

// simulatedHang is how long the engine blocks when the subject transaction
// carries the SimulateTimeout flag. Chosen to exceed any sane stage budget so
// the caller's guardrail, not the engine, produces the fallback.
const simulatedHang = 5 * time.Second

// Input carries everything Analyze needs. Recent may include the subject
// itself; it is excluded from prior-transaction rules by id.
type Input struct {
	Subject  model.Transaction
	Recent   []model.Transaction
	Customer model.Customer
	Disputes []model.CaseRecord
}

// Analyze computes a FraudReport for the subject transaction. Rules are
// evaluated in a fixed order and each appends one reason when triggered, so
// the reasons list doubles as an explanation of the tally.
func Analyze(ctx context.Context, cfg *Config, in Input) model.FraudReport {
	if in.Subject.SimulateTimeout {
		// Behave exactly like an unresponsive external dependency: block
		// well past the guardrail budget, then proceed normally. The caller
		// will have substituted its fallback long before this returns.
		select {
		case <-time.After(simulatedHang):
		case <-ctx.Done():
		}
	}

	prior := priorTransactions(in.Subject, in.Recent)

	tally := 0
	var reasons []string
	trigger := func(points int, reason string) {
		tally += points
		reasons = append(reasons, reason)
	}

	// Rule 1: high absolute amount.
	if in.Subject.AmountCents > cfg.Limits.HighAmountCents {
		trigger(cfg.Weights.HighAmount,
			fmt.Sprintf("high transaction amount: %d cents exceeds %d cents", in.Subject.AmountCents, cfg.Limits.HighAmountCents))
	}

	// Rule 2: velocity at three window granularities. The thresholds are
	// independent; each triggered window contributes on its own.
	velocityWindows := []struct {
		window time.Duration
		min    int
		weight int
		label  string
	}{
		{5 * time.Minute, cfg.Limits.Velocity5mCount, cfg.Weights.Velocity5m, "5 minutes"},
		{time.Hour, cfg.Limits.Velocity1hCount, cfg.Weights.Velocity1h, "1 hour"},
		{24 * time.Hour, cfg.Limits.Velocity24hCount, cfg.Weights.Velocity24h, "24 hours"},
	}
	for _, vw := range velocityWindows {
		if n := countWithin(prior, in.Subject.Timestamp, vw.window); n >= vw.min {
			trigger(vw.weight, fmt.Sprintf("velocity: %d transactions in the last %s", n, vw.label))
		}
	}

	// Rule 3: device fingerprint change after a uniform run of one device.
	if dev, run := latestDeviceRun(prior); run >= cfg.Limits.DeviceRunLength &&
		in.Subject.DeviceID != "" && dev != in.Subject.DeviceID {
		trigger(cfg.Weights.DeviceChange,
			fmt.Sprintf("device changed from %s after %d consistent uses: possible account takeover", dev, run))
	}

	// Rule 4: geographic spread in the trailing 24h, subject included.
	if countries := distinctCountries(prior, in.Subject, 24*time.Hour); len(countries) >= cfg.Limits.GeoCountryCount {
		trigger(cfg.Weights.GeoSpread,
			fmt.Sprintf("transactions across %d countries in 24 hours: %s", len(countries), strings.Join(countries, ", ")))
	}

	// Rule 5: high-risk merchant category.
	for _, mcc := range cfg.HighRiskMCCs {
		if in.Subject.MCC == mcc {
			trigger(cfg.Weights.HighRiskMCC, fmt.Sprintf("high-risk merchant category %s", mcc))
			break
		}
	}

	// Rule 6: cross-border relative to the customer's usual country.
	if home := modalCountry(prior); home != "" && in.Subject.Country != "" && in.Subject.Country != home {
		trigger(cfg.Weights.CrossBorder,
			fmt.Sprintf("cross-border: transaction in %s, customer usually transacts in %s", in.Subject.Country, home))
	}

	// Rule 7: dispute/chargeback history, tiered.
	recent := disputesWithin(in.Disputes, in.Subject.Timestamp, cfg.Limits.DisputeWindowDays)
	if recent >= cfg.Limits.DisputeHeavyCount {
		trigger(cfg.Weights.DisputeHeavy,
			fmt.Sprintf("%d disputes in the last %d days", recent, cfg.Limits.DisputeWindowDays))
	} else if len(in.Disputes) > 0 {
		trigger(cfg.Weights.DisputeAny, "customer has prior dispute history")
	}

	// Rule 8: recurring-charge heuristic. No tally contribution; consulted
	// only by final-action selection.
	recurring := isRecurring(prior, in.Subject, cfg)
	if recurring {
		reasons = append(reasons, fmt.Sprintf("looks like a recurring charge at %s", in.Subject.Merchant))
	}

	// Rule 9: ambiguous payment-intermediary merchant name.
	lowerMerchant := strings.ToLower(in.Subject.Merchant)
	for _, frag := range cfg.AmbiguousMerchants {
		if strings.Contains(lowerMerchant, frag) {
			trigger(cfg.Weights.AmbiguousMerchant,
				fmt.Sprintf("ambiguous merchant descriptor %q", in.Subject.Merchant))
			break
		}
	}

	if len(reasons) == 0 {
		reasons = []string{model.NoIssuesReason}
	}

	report := model.FraudReport{
		Tally:           tally,
		Reasons:         reasons,
		RecurringCharge: recurring,
	}

	switch {
	case tally >= cfg.Thresholds.High:
		report.Score = model.RiskHigh
		report.RecommendedAction = model.ActionFreezeCard
	case tally >= cfg.Thresholds.Medium:
		report.Score = model.RiskMedium
		if in.Subject.AmountCents > cfg.Limits.HighAmountCents || tally >= cfg.Thresholds.MediumDispute {
			report.RecommendedAction = model.ActionOpenDispute
		} else {
			report.RecommendedAction = model.ActionFreezeCard
		}
		report.ReasonCode = model.ReasonCodeCardAbsentFraud
	default:
		report.Score = model.RiskLow
		if recurring {
			report.RecommendedAction = model.ActionOpenDispute
			report.ReasonCode = model.ReasonCodeCancelledRecurring
		} else {
			report.RecommendedAction = model.ActionNone
		}
	}

	return report
}

// priorTransactions returns every window transaction except the subject,
// sorted newest first.
func priorTransactions(subject model.Transaction, recent []model.Transaction) []model.Transaction {
	prior := make([]model.Transaction, 0, len(recent))
	for _, txn := range recent {
		if txn.ID != subject.ID {
			prior = append(prior, txn)
		}
	}
	sort.SliceStable(prior, func(i, j int) bool {
		return prior[i].Timestamp.After(prior[j].Timestamp)
	})
	return prior
}

// countWithin counts prior transactions inside the window ending at the
// subject timestamp.
func countWithin(prior []model.Transaction, end time.Time, window time.Duration) int {
	start := end.Add(-window)
	n := 0
	for _, txn := range prior {
		if !txn.Timestamp.After(end) && txn.Timestamp.After(start) {
			n++
		}
	}
	return n
}

// latestDeviceRun returns the device id of the most recent prior transaction
// and the length of the uniform run it begins. Transactions without a device
// id end the run.
func latestDeviceRun(prior []model.Transaction) (string, int) {
	if len(prior) == 0 || prior[0].DeviceID == "" {
		return "", 0
	}
	dev := prior[0].DeviceID
	run := 0
	for _, txn := range prior {
		if txn.DeviceID != dev {
			break
		}
		run++
	}
	return dev, run
}

// distinctCountries lists the countries seen in the trailing window
// including the subject, in first-seen order.
func distinctCountries(prior []model.Transaction, subject model.Transaction, window time.Duration) []string {
	seen := map[string]bool{}
	var countries []string
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			countries = append(countries, c)
		}
	}
	add(subject.Country)
	start := subject.Timestamp.Add(-window)
	for _, txn := range prior {
		if !txn.Timestamp.After(subject.Timestamp) && txn.Timestamp.After(start) {
			add(txn.Country)
		}
	}
	return countries
}

// modalCountry computes the customer's most frequent country across the
// whole window. Ties break toward the country seen first in time.
func modalCountry(prior []model.Transaction) string {
	counts := map[string]int{}
	var firstSeen []string

	// prior is newest-first; walk backwards for chronological first-seen.
	for i := len(prior) - 1; i >= 0; i-- {
		c := prior[i].Country
		if c == "" {
			continue
		}
		if counts[c] == 0 {
			firstSeen = append(firstSeen, c)
		}
		counts[c]++
	}

	best := ""
	bestCount := 0
	for _, c := range firstSeen {
		if counts[c] > bestCount {
			best = c
			bestCount = counts[c]
		}
	}
	return best
}

// disputesWithin counts disputes opened in the trailing window ending at ts.
func disputesWithin(disputes []model.CaseRecord, ts time.Time, days int) int {
	start := ts.Add(-time.Duration(days) * 24 * time.Hour)
	n := 0
	for _, d := range disputes {
		if !d.OpenedAt.After(ts) && d.OpenedAt.After(start) {
			n++
		}
	}
	return n
}

// isRecurring reports whether the subject looks like a subscription charge:
// enough prior transactions at the same merchant, all within the configured
// spread of their mean amount.
func isRecurring(prior []model.Transaction, subject model.Transaction, cfg *Config) bool {
	if subject.Merchant == "" {
		return false
	}
	var amounts []int64
	for _, txn := range prior {
		if txn.Merchant == subject.Merchant {
			amounts = append(amounts, txn.AmountCents)
		}
	}
	if len(amounts) < cfg.Limits.RecurringCount {
		return false
	}
	var sum int64
	for _, a := range amounts {
		sum += a
	}
	mean := sum / int64(len(amounts))
	if mean == 0 {
		return false
	}
	for _, a := range amounts {
		delta := a - mean
		if delta < 0 {
			delta = -delta
		}
		if delta*100 > mean*cfg.Limits.RecurringSpreadPct {
			return false
		}
	}
	return true
}
