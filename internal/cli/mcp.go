package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	sentrymcp "github.com/cardsentry/cardsentry/internal/mcp"
)

var (
	mcpScoring  string
	mcpKB       string
	mcpTraceLog string
	mcpRunDB    string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpScoring, "scoring", "", "Path to scoring config YAML")
	mcpCmd.Flags().StringVar(&mcpKB, "kb", "", "Path to knowledge corpus YAML")
	mcpCmd.Flags().StringVar(&mcpTraceLog, "trace-log", "", "Path to hash-chained trace JSONL file")
	mcpCmd.Flags().StringVar(&mcpRunDB, "run-db", "", "Path to run summary SQLite database")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for assistant integration",
	Long:  "Runs cardsentry as an MCP (Model Context Protocol) server over stdio.\nExposes the triage tools: triage, check, kb_search, trace.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv, err := sentrymcp.New(sentrymcp.Config{
		ScoringPath:  mcpScoring,
		KBPath:       mcpKB,
		TraceLogPath: mcpTraceLog,
		RunDBPath:    mcpRunDB,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "cardsentry MCP server running on stdio")
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
