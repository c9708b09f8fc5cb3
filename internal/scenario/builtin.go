package scenario

import (
	"fmt"
	"time"

	"github.com/cardsentry/cardsentry/internal/model"
)

// Builtin returns the compiled-in demo scenarios used by the simulate
// command. Fixed timestamps keep every case deterministic.
func Builtin() []Scenario {
	base := time.Date(2026, 5, 12, 14, 0, 0, 0, time.UTC)

	return []Scenario{
		{
			Name: "card fraud triage demo",
			Cases: []Case{
				largeAmountCase(base),
				preAuthPairCase(base),
				velocityBurstCase(base),
				newDeviceCase(base),
				emptyContextCase(base),
				scoringOutageCase(base),
			},
		},
	}
}

func demoContext(alertID, txnID string, created time.Time) model.TriageContext {
	return model.TriageContext{
		Alert: model.Alert{
			ID:            alertID,
			CustomerID:    "cust-demo",
			TransactionID: txnID,
			Source:        "rules",
			Summary:       "flagged by issuing rules engine",
			CreatedAt:     created,
		},
		Customer: model.Customer{
			ID:          "cust-demo",
			Name:        "Dana Whitfield",
			Email:       "dana.whitfield@example.com",
			HomeCountry: "US",
		},
	}
}

// A single much-larger-than-usual purchase. The amount rule alone lands in
// the medium band and the amount pushes the action to a dispute.
func largeAmountCase(base time.Time) Case {
	tc := demoContext("alert-demo-1", "txn-demo-1", base)
	tc.Transactions = []model.Transaction{{
		ID: "txn-demo-1", CardID: "card-demo", AmountCents: 184_500, Currency: "USD",
		Merchant: "LUXE TIMEPIECES LTD", MCC: "5944", Country: "US",
		DeviceID: "dev-phone", Timestamp: base,
	}}
	return Case{
		Name:    "large single purchase",
		Context: tc,
		Expect: Expect{
			Risk:         string(model.RiskMedium),
			Action:       string(model.ActionOpenDispute),
			ReasonCode:   model.ReasonCodeCardAbsentFraud,
			MinCitations: 1,
		},
	}
}

// A hotel pre-authorization hold and its capture. The near-duplicate plus
// the pre-auth knowledge article stand the alert down.
func preAuthPairCase(base time.Time) Case {
	tc := demoContext("alert-demo-2", "txn-demo-2b", base)
	tc.Transactions = []model.Transaction{
		{
			ID: "txn-demo-2a", CardID: "card-demo", AmountCents: 21_450, Currency: "USD",
			Merchant: "HOTEL MERIDIAN", MCC: "7011", Country: "US",
			DeviceID: "dev-phone", Timestamp: base.Add(-26 * time.Hour),
		},
		{
			ID: "txn-demo-2b", CardID: "card-demo", AmountCents: 21_450, Currency: "USD",
			Merchant: "HOTEL MERIDIAN", MCC: "7011", Country: "US",
			DeviceID: "dev-phone", Timestamp: base,
		},
	}
	return Case{
		Name:    "hotel pre-auth and capture pair",
		Context: tc,
		Expect: Expect{
			Action:         string(model.ActionNone),
			ReasonContains: "pre-authorization",
			MinCitations:   1,
		},
	}
}

// Six card-testing charges inside five minutes. Both the 5-minute and the
// 1-hour velocity windows trigger, clearing the high threshold.
func velocityBurstCase(base time.Time) Case {
	tc := demoContext("alert-demo-3", "txn-demo-3", base)
	merchants := []string{
		"WEBSTORE ALPHA", "WEBSTORE BRAVO", "WEBSTORE CHARLIE",
		"WEBSTORE DELTA", "WEBSTORE ECHO", "WEBSTORE FOXTROT",
	}
	for i, m := range merchants {
		tc.Transactions = append(tc.Transactions, model.Transaction{
			ID: fmt.Sprintf("txn-demo-3-%d", i+1), CardID: "card-demo",
			AmountCents: int64(900 + i*37), Currency: "USD",
			Merchant: m, MCC: "5999", Country: "US",
			DeviceID: "dev-phone", Timestamp: base.Add(-time.Duration(i+1) * 40 * time.Second),
		})
	}
	tc.Transactions = append(tc.Transactions, model.Transaction{
		ID: "txn-demo-3", CardID: "card-demo", AmountCents: 1_099, Currency: "USD",
		Merchant: "WEBSTORE GOLF", MCC: "5999", Country: "US",
		DeviceID: "dev-phone", Timestamp: base,
	})
	return Case{
		Name:    "card-testing velocity burst",
		Context: tc,
		Expect: Expect{
			Risk:           string(model.RiskHigh),
			Action:         string(model.ActionFreezeCard),
			ReasonContains: "OTP",
		},
	}
}

// A new device after a consistent run of one fingerprint. Suspicious but
// not enough on its own to escalate past low.
func newDeviceCase(base time.Time) Case {
	tc := demoContext("alert-demo-4", "txn-demo-4", base)
	for i, m := range []string{"GROCERY MART", "GAS N GO", "CINEMA PLEX"} {
		tc.Transactions = append(tc.Transactions, model.Transaction{
			ID: "txn-demo-4-" + string(rune('a'+i)), CardID: "card-demo",
			AmountCents: int64(2_000 + i*1_500), Currency: "USD",
			Merchant: m, MCC: "5411", Country: "US",
			DeviceID: "dev-phone", Timestamp: base.Add(-time.Duration(i+1) * 3 * time.Hour),
		})
	}
	tc.Transactions = append(tc.Transactions, model.Transaction{
		ID: "txn-demo-4", CardID: "card-demo", AmountCents: 5_600, Currency: "USD",
		Merchant: "ELECTRONICS OUTLET", MCC: "5732", Country: "US",
		DeviceID: "dev-unknown", Timestamp: base,
	})
	fallback := false
	return Case{
		Name:    "new device fingerprint",
		Context: tc,
		Expect: Expect{
			Risk:     string(model.RiskLow),
			Action:   string(model.ActionNone),
			Fallback: &fallback,
		},
	}
}

// An alert with no transaction window at all. The pipeline degrades to a
// low-risk no-action outcome with the fallback flag raised.
func emptyContextCase(base time.Time) Case {
	tc := demoContext("alert-demo-5", "", base)
	fallback := true
	return Case{
		Name:    "alert without transactions",
		Context: tc,
		Expect: Expect{
			Risk:     string(model.RiskLow),
			Action:   string(model.ActionNone),
			Fallback: &fallback,
		},
	}
}

// The scoring engine hangs past the stage budget. The guardrail substitutes
// the conservative report instead of stalling the run.
func scoringOutageCase(base time.Time) Case {
	tc := demoContext("alert-demo-6", "txn-demo-6", base)
	tc.Transactions = []model.Transaction{{
		ID: "txn-demo-6", CardID: "card-demo", AmountCents: 7_800, Currency: "USD",
		Merchant: "CORNER BAKERY", MCC: "5812", Country: "US",
		DeviceID: "dev-phone", Timestamp: base, SimulateTimeout: true,
	}}
	fallback := true
	return Case{
		Name:    "scoring engine outage",
		Context: tc,
		Expect: Expect{
			Risk:           string(model.RiskMedium),
			Action:         string(model.ActionOpenDispute),
			ReasonContains: "risk service unavailable",
			Fallback:       &fallback,
		},
	}
}
