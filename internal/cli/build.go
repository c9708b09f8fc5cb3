package cli

import (
	"fmt"
	"os"

	"github.com/cardsentry/cardsentry/internal/events"
	"github.com/cardsentry/cardsentry/internal/fraud"
	"github.com/cardsentry/cardsentry/internal/kb"
	"github.com/cardsentry/cardsentry/internal/store"
	"github.com/cardsentry/cardsentry/internal/trace"
	"github.com/cardsentry/cardsentry/internal/triage"
)

// pipeline bundles everything a command needs to run triage.
type pipeline struct {
	orch *triage.Orchestrator
	bus  *events.Bus
	runs store.Store

	traceLog *trace.Log
}

// pipelineOpts are the shared path flags of the triage-running commands.
type pipelineOpts struct {
	scoringPath  string
	kbPath       string
	traceLogPath string
	runDBPath    string
	webhookURL   string
}

// envFallback fills unset path flags from the environment so wrapper
// scripts and MCP launchers do not have to thread flags through.
func envFallback(flag *string, env string) {
	if *flag == "" {
		*flag = os.Getenv(env)
	}
}

func buildPipeline(opts pipelineOpts) (*pipeline, error) {
	envFallback(&opts.scoringPath, "CARDSENTRY_SCORING")
	envFallback(&opts.kbPath, "CARDSENTRY_KB")
	envFallback(&opts.traceLogPath, "CARDSENTRY_TRACE_LOG")
	envFallback(&opts.runDBPath, "CARDSENTRY_RUN_DB")

	scoring, scoringHash, err := fraud.LoadConfigWithHash(opts.scoringPath)
	if err != nil {
		return nil, fmt.Errorf("load scoring config: %w", err)
	}

	docs := kb.Builtin()
	if opts.kbPath != "" {
		docs, err = kb.LoadCorpus(opts.kbPath)
		if err != nil {
			return nil, fmt.Errorf("load knowledge corpus: %w", err)
		}
	}

	p := &pipeline{bus: events.NewBus()}

	recorder := trace.Recorder(trace.NewMemory())
	if opts.traceLogPath != "" {
		p.traceLog, err = trace.Open(opts.traceLogPath)
		if err != nil {
			return nil, fmt.Errorf("open trace log: %w", err)
		}
		recorder = p.traceLog
	}

	if opts.runDBPath != "" {
		p.runs, err = store.OpenSQLite(opts.runDBPath)
		if err != nil {
			p.close()
			return nil, fmt.Errorf("open run database: %w", err)
		}
	} else {
		p.runs = store.NewMemory()
	}

	var publisher events.Publisher = p.bus
	if opts.webhookURL != "" {
		publisher = events.NewDispatcher([]events.WebhookConfig{{
			URL:    opts.webhookURL,
			Events: []string{events.EventDecisionFinalized},
		}}, p.bus)
	}

	p.orch, err = triage.New(triage.Config{
		Scoring:     scoring,
		ScoringHash: scoringHash,
		KB:          kb.NewStore(docs),
		Trace:       recorder,
		Events:      publisher,
		Runs:        p.runs,
	})
	if err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

func (p *pipeline) close() {
	if p.traceLog != nil {
		p.traceLog.Close()
	}
	if p.runs != nil {
		p.runs.Close()
	}
}
