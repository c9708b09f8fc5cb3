package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardsentry/cardsentry/internal/server"
)

var (
	serveAddr     string
	serveScoring  string
	serveKB       string
	serveTraceLog string
	serveRunDB    string
	serveWebhook  string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8460", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveScoring, "scoring", "", "Path to scoring config YAML")
	serveCmd.Flags().StringVar(&serveKB, "kb", "", "Path to knowledge corpus YAML")
	serveCmd.Flags().StringVar(&serveTraceLog, "trace-log", "", "Path to hash-chained trace JSONL file")
	serveCmd.Flags().StringVar(&serveRunDB, "run-db", "", "Path to run summary SQLite database")
	serveCmd.Flags().StringVar(&serveWebhook, "webhook", "", "URL to POST finalized decisions to")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the triage HTTP server",
	Long:  "Serves run creation and SSE event streams over HTTP.\nA POSTed alert context parks until the first subscriber attaches,\nthen the pipeline runs and streams its progress.\nSupports hot-reload of the scoring config file.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// Resolve here so the reloader and the health endpoint see the same
	// path the pipeline loaded.
	envFallback(&serveScoring, "CARDSENTRY_SCORING")

	p, err := buildPipeline(pipelineOpts{
		scoringPath:  serveScoring,
		kbPath:       serveKB,
		traceLogPath: serveTraceLog,
		runDBPath:    serveRunDB,
		webhookURL:   serveWebhook,
	})
	if err != nil {
		return err
	}
	defer p.close()

	srv := server.New(server.Config{
		Addr:        serveAddr,
		ScoringPath: serveScoring,
	}, p.orch, p.bus, p.runs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start hot-reload watcher for the scoring config file
	reloader, err := server.NewReloader(srv, []string{serveScoring})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}
	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down triage server...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "cardsentry triage server listening on %s\n", serveAddr)
	if serveScoring != "" {
		fmt.Fprintf(os.Stderr, "Scoring: %s (hot-reload enabled)\n", serveScoring)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Serve()
}
