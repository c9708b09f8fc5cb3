// Package scenario runs end-to-end triage fixtures with expected-outcome
// assertions. Scenarios come from yaml files or the compiled-in demo set and
// drive the simulate command.
package scenario

import "github.com/cardsentry/cardsentry/internal/model"

// Expect lists the assertions for one case. Empty fields are not checked.
type Expect struct {
	Risk           string `yaml:"risk,omitempty"`
	Action         string `yaml:"action,omitempty"`
	ReasonCode     string `yaml:"reason_code,omitempty"`
	ReasonContains string `yaml:"reason_contains,omitempty"`
	MinCitations   int    `yaml:"min_citations,omitempty"`
	Fallback       *bool  `yaml:"fallback,omitempty"`
}

// Case is one alert context plus the outcome it must produce.
type Case struct {
	Name    string              `yaml:"name"`
	Context model.TriageContext `yaml:"context"`
	Expect  Expect              `yaml:"expect"`
}

// Scenario is a named collection of triage cases.
type Scenario struct {
	Name  string `yaml:"name"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of running one case.
type CaseResult struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Risk   string `json:"risk"`
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario.
type RunResult struct {
	File   string       `json:"file,omitempty"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
