package model

import "time"

// RiskScore is the aggregate fraud verdict tier.
type RiskScore string

const (
	RiskLow    RiskScore = "LOW"
	RiskMedium RiskScore = "MEDIUM"
	RiskHigh   RiskScore = "HIGH"
)

// validScores is the set of recognized risk tiers.
var validScores = map[RiskScore]bool{
	RiskLow:    true,
	RiskMedium: true,
	RiskHigh:   true,
}

// IsValidScore returns true if s is a recognized risk tier.
func IsValidScore(s RiskScore) bool {
	return validScores[s]
}

// Rank maps a risk tier to a comparable integer for monotonic escalation.
func (s RiskScore) Rank() int {
	switch s {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return -1
	}
}

// RecommendedAction is what the desk should do with the card or charge.
type RecommendedAction string

const (
	ActionFreezeCard  RecommendedAction = "FREEZE_CARD"
	ActionOpenDispute RecommendedAction = "OPEN_DISPUTE"
	ActionNone        RecommendedAction = "NONE"
)

// validActions is the set of recognized actions.
var validActions = map[RecommendedAction]bool{
	ActionFreezeCard:  true,
	ActionOpenDispute: true,
	ActionNone:        true,
}

// IsValidAction returns true if a is a recognized action.
func IsValidAction(a RecommendedAction) bool {
	return validActions[a]
}

// Card-network dispute reason codes attached to certain decisions.
const (
	ReasonCodeCardAbsentFraud    = "10.4"
	ReasonCodeCancelledRecurring = "13.2"
)

// Transaction is one card transaction as supplied by the context loader.
// Amounts are integer cents, never floats.
type Transaction struct {
	ID          string    `json:"id"               yaml:"id"`
	CardID      string    `json:"card_id"          yaml:"card_id"`
	AmountCents int64     `json:"amount_cents"     yaml:"amount_cents"`
	Currency    string    `json:"currency"         yaml:"currency"`
	Merchant    string    `json:"merchant"         yaml:"merchant"`
	MCC         string    `json:"mcc"              yaml:"mcc"`
	Country     string    `json:"country"          yaml:"country"`
	DeviceID    string    `json:"device_id"        yaml:"device_id"`
	Timestamp   time.Time `json:"timestamp"        yaml:"timestamp"`

	// SimulateTimeout makes the scoring engine hang past its stage budget.
	// Test/simulation hook only; never set on production transactions.
	SimulateTimeout bool `json:"simulate_timeout,omitempty" yaml:"simulate_timeout,omitempty"`
}

// Customer is the cardholder the alert refers to.
type Customer struct {
	ID          string `json:"id"           yaml:"id"`
	Name        string `json:"name"         yaml:"name"`
	Email       string `json:"email"        yaml:"email"`
	HomeCountry string `json:"home_country" yaml:"home_country"`
}

// Alert is a flagged event referencing a customer and optionally a
// specific suspect transaction.
type Alert struct {
	ID            string    `json:"id"                       yaml:"id"`
	CustomerID    string    `json:"customer_id"              yaml:"customer_id"`
	TransactionID string    `json:"transaction_id,omitempty" yaml:"transaction_id,omitempty"`
	Source        string    `json:"source"                   yaml:"source"`
	Summary       string    `json:"summary"                  yaml:"summary"`
	CreatedAt     time.Time `json:"created_at"               yaml:"created_at"`
}

// CaseRecord is one prior dispute or chargeback case for a customer.
type CaseRecord struct {
	ID         string    `json:"id"          yaml:"id"`
	CustomerID string    `json:"customer_id" yaml:"customer_id"`
	Kind       string    `json:"kind"        yaml:"kind"` // "dispute", "chargeback"
	OpenedAt   time.Time `json:"opened_at"   yaml:"opened_at"`
}

// TriageContext is the read-only input a caller supplies when starting a run:
// the alert, the cardholder, a bounded recent-transaction window, and prior
// dispute history. The orchestrator never mutates it.
type TriageContext struct {
	Alert        Alert         `json:"alert"        yaml:"alert"`
	Customer     Customer      `json:"customer"     yaml:"customer"`
	Transactions []Transaction `json:"transactions" yaml:"transactions"`
	Disputes     []CaseRecord  `json:"disputes"     yaml:"disputes"`
}
