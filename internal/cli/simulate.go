package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardsentry/cardsentry/internal/scenario"
)

var (
	simScoring string
	simKB      string
	simFormat  string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simScoring, "scoring", "", "Path to scoring config YAML")
	simulateCmd.Flags().StringVar(&simKB, "kb", "", "Path to knowledge corpus YAML")
	simulateCmd.Flags().StringVarP(&simFormat, "format", "f", "text", "Output format (text|json)")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate [scenario.yaml...]",
	Short: "Run triage scenarios and check expected outcomes",
	Long: "Runs scenario files through the full pipeline and compares each case\n" +
		"against its expected risk, action, and reason code.\n\n" +
		"Without arguments, runs the compiled-in demo scenarios.",
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(pipelineOpts{
		scoringPath: simScoring,
		kbPath:      simKB,
	})
	if err != nil {
		return err
	}
	defer p.close()

	var results []*scenario.RunResult
	if len(args) == 0 {
		for _, s := range scenario.Builtin() {
			s := s
			results = append(results, scenario.Run(cmd.Context(), p.orch, &s))
		}
	} else {
		for _, path := range args {
			result, err := scenario.RunFile(cmd.Context(), p.orch, path)
			if err != nil {
				return err
			}
			results = append(results, result)
		}
	}

	switch simFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(scenario.FormatText(results))
	}

	for _, r := range results {
		if r.Failed > 0 {
			os.Exit(1)
		}
	}
	return nil
}
