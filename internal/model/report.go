package model

// NoIssuesReason is the sentinel reason when no scoring rule fired.
const NoIssuesReason = "no significant fraud indicators found"

// FraudReport is the output of the scoring engine. Reasons are appended in
// rule evaluation order and the list is never empty; a zero tally carries
// the NoIssuesReason sentinel.
type FraudReport struct {
	Score             RiskScore         `json:"score"`
	Tally             int               `json:"tally"`
	Reasons           []string          `json:"reasons"`
	RecommendedAction RecommendedAction `json:"recommended_action,omitempty"`
	ReasonCode        string            `json:"reason_code,omitempty"`
	RecurringCharge   bool              `json:"recurring_charge,omitempty"`
	FallbackUsed      bool              `json:"fallback_used,omitempty"`
}

// KBHit is one knowledge-base citation. Anchors are stable section
// identifiers; multiple hits may share an anchor and the pipeline does not
// deduplicate them.
type KBHit struct {
	DocID   string `json:"doc_id"`
	Title   string `json:"title"`
	Anchor  string `json:"anchor"`
	Extract string `json:"extract"`
}

// Decision is the final synthesized output of a triage run.
type Decision struct {
	Action              RecommendedAction `json:"action"`
	Reason              string            `json:"reason"`
	ReasonCode          string            `json:"reason_code,omitempty"`
	Citations           []KBHit           `json:"citations"`
	RelatedTransactions []Transaction     `json:"related_transactions,omitempty"`
}
