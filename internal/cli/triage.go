package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardsentry/cardsentry/internal/events"
	"github.com/cardsentry/cardsentry/internal/model"
)

var (
	triageScoring  string
	triageKB       string
	triageTraceLog string
	triageRunDB    string
	triageFormat   string
	triageQuiet    bool
)

func init() {
	rootCmd.AddCommand(triageCmd)
	triageCmd.Flags().StringVar(&triageScoring, "scoring", "", "Path to scoring config YAML (defaults builtin)")
	triageCmd.Flags().StringVar(&triageKB, "kb", "", "Path to knowledge corpus YAML (defaults builtin)")
	triageCmd.Flags().StringVar(&triageTraceLog, "trace-log", "", "Path to hash-chained trace JSONL file")
	triageCmd.Flags().StringVar(&triageRunDB, "run-db", "", "Path to run summary SQLite database")
	triageCmd.Flags().StringVarP(&triageFormat, "format", "f", "text", "Output format (text|json)")
	triageCmd.Flags().BoolVarP(&triageQuiet, "quiet", "q", false, "Suppress stage progress on stderr")
}

var triageCmd = &cobra.Command{
	Use:   "triage <context.yaml>",
	Short: "Run one alert through the triage pipeline",
	Long:  "Loads an alert context fixture (alert, customer, transaction window,\ndispute history) from YAML, runs the full pipeline, and prints the decision.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTriage,
}

func runTriage(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read context: %w", err)
	}
	var tc model.TriageContext
	if err := yaml.Unmarshal(data, &tc); err != nil {
		return fmt.Errorf("parse context %s: %w", args[0], err)
	}
	if tc.Alert.ID == "" {
		return fmt.Errorf("context %s: alert.id is required", args[0])
	}

	p, err := buildPipeline(pipelineOpts{
		scoringPath:  triageScoring,
		kbPath:       triageKB,
		traceLogPath: triageTraceLog,
		runDBPath:    triageRunDB,
	})
	if err != nil {
		return err
	}
	defer p.close()

	st, err := p.orch.StartRun(cmd.Context(), "", tc)
	if err != nil {
		return fmt.Errorf("triage run: %w", err)
	}

	if !triageQuiet {
		printProgress(p.bus, st.Run.ID)
	}

	switch triageFormat {
	case "json":
		out, err := json.MarshalIndent(map[string]any{
			"run_id":        st.Run.ID,
			"risk":          st.Report.Score,
			"decision":      st.Decision,
			"fallback_used": st.Run.FallbackUsed,
			"latency_ms":    st.Run.LatencyMs,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		printDecision(st.Run.ID, st.Report, st.Decision, st.Run.FallbackUsed)
	}
	return nil
}

func printProgress(bus *events.Bus, runID string) {
	for _, ev := range bus.History(runID) {
		if ev.Name != events.EventToolUpdate {
			continue
		}
		step, _ := ev.Payload["step"].(string)
		ok, _ := ev.Payload["ok"].(bool)
		status := "ok"
		if !ok {
			status = "FALLBACK"
		}
		fmt.Fprintf(os.Stderr, "  [%d] %-20s %s\n", ev.Seq, step, status)
	}
}

func printDecision(runID string, report model.FraudReport, d model.Decision, fallback bool) {
	fmt.Printf("Run:      %s\n", runID)
	fmt.Printf("Risk:     %s (tally %d)\n", report.Score, report.Tally)
	fmt.Printf("Action:   %s\n", d.Action)
	if d.ReasonCode != "" {
		fmt.Printf("Code:     %s\n", d.ReasonCode)
	}
	fmt.Printf("Reason:   %s\n", d.Reason)
	if len(d.Citations) > 0 {
		cites := make([]string, 0, len(d.Citations))
		for _, c := range d.Citations {
			cites = append(cites, fmt.Sprintf("%s (%s)", c.DocID, c.Anchor))
		}
		fmt.Printf("Cites:    %s\n", strings.Join(cites, ", "))
	}
	if len(d.RelatedTransactions) > 0 {
		ids := make([]string, 0, len(d.RelatedTransactions))
		for _, txn := range d.RelatedTransactions {
			ids = append(ids, txn.ID)
		}
		fmt.Printf("Related:  %s\n", strings.Join(ids, ", "))
	}
	if fallback {
		fmt.Println("Note:     one or more stages degraded to a fallback")
	}
}
