package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cardsentry/cardsentry/internal/fraud"
	"github.com/cardsentry/cardsentry/internal/model"
)

// --- Input/Output types ---

// TriageInput defines parameters for the cardsentry_triage tool.
type TriageInput struct {
	Context model.TriageContext `json:"context" jsonschema:"alert context: alert, customer, transaction window, dispute history"`
}

// Citation is one cited knowledge article in a triage decision.
type Citation struct {
	DocID   string `json:"doc_id"`
	Title   string `json:"title"`
	Anchor  string `json:"anchor"`
	Extract string `json:"extract,omitempty"`
}

// TriageOutput contains the final decision for a triage run.
type TriageOutput struct {
	RunID        string     `json:"run_id"`
	Risk         string     `json:"risk"`
	Action       string     `json:"action"`
	Reason       string     `json:"reason"`
	ReasonCode   string     `json:"reason_code,omitempty"`
	Citations    []Citation `json:"citations,omitempty"`
	Related      []string   `json:"related_transactions,omitempty"`
	FallbackUsed bool       `json:"fallback_used"`
	LatencyMs    int64      `json:"latency_ms"`
}

// CheckInput defines parameters for the cardsentry_check tool.
type CheckInput struct {
	Transaction model.Transaction   `json:"transaction" jsonschema:"transaction to score"`
	Recent      []model.Transaction `json:"recent,omitempty" jsonschema:"recent transaction window for the same card"`
	Disputes    []model.CaseRecord  `json:"disputes,omitempty" jsonschema:"customer dispute history"`
}

// CheckOutput contains the dry-run risk score.
type CheckOutput struct {
	Risk              string   `json:"risk"`
	Tally             int      `json:"tally"`
	Reasons           []string `json:"reasons"`
	RecommendedAction string   `json:"recommended_action"`
	ReasonCode        string   `json:"reason_code,omitempty"`
	RecurringCharge   bool     `json:"recurring_charge,omitempty"`
}

// KBSearchInput defines parameters for the cardsentry_kb_search tool.
type KBSearchInput struct {
	Query string `json:"query" jsonschema:"search query"`
}

// KBSearchOutput lists the matching knowledge articles.
type KBSearchOutput struct {
	Hits []Citation `json:"hits"`
}

// TraceInput defines parameters for the cardsentry_trace tool.
type TraceInput struct {
	RunID string `json:"run_id" jsonschema:"run id returned by cardsentry_triage"`
}

// TraceStep is one recorded stage execution.
type TraceStep struct {
	Seq        int            `json:"seq"`
	Step       string         `json:"step"`
	OK         bool           `json:"ok"`
	DurationMs int64          `json:"duration_ms"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// TraceOutput contains the stage trace of one run.
type TraceOutput struct {
	RunID string      `json:"run_id"`
	Steps []TraceStep `json:"steps"`
}

// --- Handlers ---

func (s *Server) handleTriage(ctx context.Context, req *mcpsdk.CallToolRequest, input TriageInput) (*mcpsdk.CallToolResult, TriageOutput, error) {
	if input.Context.Alert.ID == "" {
		return &mcpsdk.CallToolResult{IsError: true}, TriageOutput{}, fmt.Errorf("context.alert.id is required")
	}

	st, err := s.orch.StartRun(ctx, "", input.Context)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, TriageOutput{}, err
	}

	out := TriageOutput{
		RunID:        st.Run.ID,
		Risk:         string(st.Report.Score),
		Action:       string(st.Decision.Action),
		Reason:       st.Decision.Reason,
		ReasonCode:   st.Decision.ReasonCode,
		FallbackUsed: st.Run.FallbackUsed,
		LatencyMs:    st.Run.LatencyMs,
	}
	for _, c := range st.Decision.Citations {
		out.Citations = append(out.Citations, Citation{
			DocID: c.DocID, Title: c.Title, Anchor: c.Anchor, Extract: c.Extract,
		})
	}
	for _, txn := range st.Decision.RelatedTransactions {
		out.Related = append(out.Related, txn.ID)
	}
	return nil, out, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if input.Transaction.ID == "" {
		return &mcpsdk.CallToolResult{IsError: true}, CheckOutput{}, fmt.Errorf("transaction.id is required")
	}

	scoring, _ := s.orch.Scoring()
	report := fraud.Analyze(ctx, scoring, fraud.Input{
		Subject:  input.Transaction,
		Recent:   input.Recent,
		Disputes: input.Disputes,
	})

	return nil, CheckOutput{
		Risk:              string(report.Score),
		Tally:             report.Tally,
		Reasons:           report.Reasons,
		RecommendedAction: string(report.RecommendedAction),
		ReasonCode:        report.ReasonCode,
		RecurringCharge:   report.RecurringCharge,
	}, nil
}

func (s *Server) handleKBSearch(ctx context.Context, req *mcpsdk.CallToolRequest, input KBSearchInput) (*mcpsdk.CallToolResult, KBSearchOutput, error) {
	hits, err := s.kb.Search(ctx, input.Query)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, KBSearchOutput{}, err
	}

	out := KBSearchOutput{Hits: []Citation{}}
	for _, h := range hits {
		out.Hits = append(out.Hits, Citation{
			DocID: h.DocID, Title: h.Title, Anchor: h.Anchor, Extract: h.Extract,
		})
	}
	return nil, out, nil
}

func (s *Server) handleTrace(ctx context.Context, req *mcpsdk.CallToolRequest, input TraceInput) (*mcpsdk.CallToolResult, TraceOutput, error) {
	if input.RunID == "" {
		return &mcpsdk.CallToolResult{IsError: true}, TraceOutput{}, fmt.Errorf("run_id is required")
	}

	entries := s.recorder.Entries(input.RunID)
	if len(entries) == 0 {
		return &mcpsdk.CallToolResult{IsError: true}, TraceOutput{}, fmt.Errorf("no trace recorded for run %s", input.RunID)
	}

	out := TraceOutput{RunID: input.RunID}
	for _, e := range entries {
		out.Steps = append(out.Steps, TraceStep{
			Seq:        e.Seq,
			Step:       e.Step,
			OK:         e.OK,
			DurationMs: e.DurationMs,
			Detail:     e.Detail,
		})
	}
	return nil, out, nil
}
