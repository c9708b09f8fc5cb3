// Package mcp exposes the triage pipeline to support-desk assistant agents
// as MCP tools over stdio.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cardsentry/cardsentry/internal/events"
	"github.com/cardsentry/cardsentry/internal/fraud"
	"github.com/cardsentry/cardsentry/internal/kb"
	"github.com/cardsentry/cardsentry/internal/store"
	"github.com/cardsentry/cardsentry/internal/trace"
	"github.com/cardsentry/cardsentry/internal/triage"
)

// Config holds MCP server configuration.
type Config struct {
	ScoringPath  string
	KBPath       string
	TraceLogPath string
	RunDBPath    string
}

// Server wraps the MCP SDK server around the triage orchestrator. Tool
// calls share one orchestrator; each triage call is its own run.
type Server struct {
	mcpServer *mcpsdk.Server
	orch      *triage.Orchestrator
	kb        kb.Lookup
	recorder  *trace.Memory
	traceLog  *trace.Log
	runs      store.Store
	cfg       Config
}

// New creates an MCP server with loaded scoring config and knowledge corpus.
func New(cfg Config) (*Server, error) {
	scoring, scoringHash, err := fraud.LoadConfigWithHash(cfg.ScoringPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scoring config: %w", err)
	}

	docs := kb.Builtin()
	if cfg.KBPath != "" {
		docs, err = kb.LoadCorpus(cfg.KBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load knowledge corpus: %w", err)
		}
	}

	s := &Server{
		kb:       kb.NewStore(docs),
		recorder: trace.NewMemory(),
		cfg:      cfg,
	}

	recorder := trace.Recorder(s.recorder)
	if cfg.TraceLogPath != "" {
		s.traceLog, err = trace.Open(cfg.TraceLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace log: %w", err)
		}
		recorder = trace.Multi{s.recorder, s.traceLog}
	}

	var runs store.Store
	if cfg.RunDBPath != "" {
		runs, err = store.OpenSQLite(cfg.RunDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open run database: %w", err)
		}
		s.runs = runs
	}

	orchCfg := triage.Config{
		Scoring:     scoring,
		ScoringHash: scoringHash,
		KB:          s.kb,
		Trace:       recorder,
		Events:      events.NewBus(),
	}
	if runs != nil {
		orchCfg.Runs = runs
	}
	s.orch, err = triage.New(orchCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "cardsentry",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the trace log and run database if configured.
func (s *Server) Close() error {
	var firstErr error
	if s.traceLog != nil {
		firstErr = s.traceLog.Close()
	}
	if s.runs != nil {
		if err := s.runs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// registerTools adds all cardsentry tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "cardsentry_triage",
		Description: "Run a full fraud-alert triage: score the flagged transaction, search the knowledge base, and return the final decision with citations.",
	}, s.handleTriage)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "cardsentry_check",
		Description: "Score a transaction against its context without running the full pipeline (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "cardsentry_kb_search",
		Description: "Search the support knowledge base and return cited extracts.",
	}, s.handleKBSearch)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "cardsentry_trace",
		Description: "Return the recorded stage trace for a previous triage run.",
	}, s.handleTrace)
}
