package scenario

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cardsentry/cardsentry/internal/triage"
)

// Run evaluates all cases in a scenario against the given orchestrator.
// Each case gets a fresh run id (cases are independent).
func Run(ctx context.Context, orch *triage.Orchestrator, s *Scenario) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		cr := CaseResult{Index: i + 1, Name: c.Name}

		st, err := orch.StartRun(ctx, "", c.Context)
		if err != nil {
			cr.Reason = fmt.Sprintf("run failed: %v", err)
			result.Cases = append(result.Cases, cr)
			result.Failed++
			continue
		}

		cr.Risk = string(st.Report.Score)
		cr.Action = string(st.Decision.Action)
		cr.Reason = check(c.Expect, st)
		cr.Passed = cr.Reason == ""

		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

// check compares a finished run against the case expectations and returns
// an empty string on match, or the first mismatch description.
func check(e Expect, st *triage.State) string {
	if e.Risk != "" && string(st.Report.Score) != e.Risk {
		return fmt.Sprintf("risk %s, expected %s", st.Report.Score, e.Risk)
	}
	if e.Action != "" && string(st.Decision.Action) != e.Action {
		return fmt.Sprintf("action %s, expected %s", st.Decision.Action, e.Action)
	}
	if e.ReasonCode != "" && st.Decision.ReasonCode != e.ReasonCode {
		return fmt.Sprintf("reason code %q, expected %q", st.Decision.ReasonCode, e.ReasonCode)
	}
	if e.ReasonContains != "" && !strings.Contains(st.Decision.Reason, e.ReasonContains) {
		return fmt.Sprintf("reason %q does not contain %q", st.Decision.Reason, e.ReasonContains)
	}
	if len(st.Decision.Citations) < e.MinCitations {
		return fmt.Sprintf("%d citations, expected at least %d", len(st.Decision.Citations), e.MinCitations)
	}
	if e.Fallback != nil && st.Run.FallbackUsed != *e.Fallback {
		return fmt.Sprintf("fallback_used %v, expected %v", st.Run.FallbackUsed, *e.Fallback)
	}
	return ""
}

// RunFile loads a scenario yaml file and runs it.
func RunFile(ctx context.Context, orch *triage.Orchestrator, path string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	result := Run(ctx, orch, &s)
	result.File = path
	return result, nil
}
