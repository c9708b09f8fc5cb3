package model

import (
	"fmt"
	"strings"
)

// ValidationError collects all shape-check failures for a stage output.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

// add appends an error message.
func (e *ValidationError) add(msg string) {
	e.Errors = append(e.Errors, msg)
}

// ValidateReport checks a FraudReport for the shape the pipeline depends on.
// Returns nil if valid, or a *ValidationError listing all problems.
func ValidateReport(r *FraudReport) error {
	ve := &ValidationError{}

	if !IsValidScore(r.Score) {
		ve.add(fmt.Sprintf("unknown score %q", r.Score))
	}
	if len(r.Reasons) == 0 {
		ve.add("reasons must not be empty")
	}
	for i, reason := range r.Reasons {
		if reason == "" {
			ve.add(fmt.Sprintf("reasons[%d] is empty", i))
		}
	}
	if r.RecommendedAction != "" && !IsValidAction(r.RecommendedAction) {
		ve.add(fmt.Sprintf("unknown recommended_action %q", r.RecommendedAction))
	}
	if r.Tally < 0 {
		ve.add(fmt.Sprintf("tally %d is negative", r.Tally))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// ValidateHits checks accumulated KB hits as a whole.
func ValidateHits(hits []KBHit) error {
	ve := &ValidationError{}

	for i, h := range hits {
		prefix := fmt.Sprintf("hits[%d]", i)
		if h.DocID == "" {
			ve.add(prefix + ": doc_id is required")
		}
		if h.Anchor == "" {
			ve.add(prefix + ": anchor is required")
		}
		if h.Title == "" {
			ve.add(prefix + ": title is required")
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}
