// sp-mcp exposes read-only queries over Sampling Paradigm event logs as an
// MCP stdio server.
//
// Environment variables:
//
//	SP_DB_PATH   SQLite catalog path (default: the sp data directory)
//
// Usage:
//
//	go install github.com/octomike/sp-experiment/cmd/sp-mcp
//	sp-mcp
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/octomike/sp-experiment/internal/config"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/model"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/replay"
	"github.com/octomike/sp-experiment/internal/stats"
	"github.com/octomike/sp-experiment/internal/store"
)

func main() {
	dbPath := os.Getenv("SP_DB_PATH")
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, dbPath); err != nil {
		sperrors.Print(os.Stderr, err)
		stop()
		os.Exit(sperrors.ExitCode(err))
	}
}

func run(ctx context.Context, dbPath string) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return sperrors.Wrap(sperrors.EIO, "failed to open db", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "failed to close db: %v\n", cerr)
		}
	}()

	server := newServer(st)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("sp-mcp: %w", err)
	}
	return nil
}

func newServer(src stats.Source) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "sp-mcp",
		Version: model.Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "final_choice_outcomes",
		Description: "List the outcome of the final choice of every trial in an event log.",
	}, finalChoiceOutcomesHandler)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "payoff_setting",
		Description: "Return the payoff setting shown in a trial as columns and as a one-row matrix, with the expected value of each option.",
	}, payoffSettingHandler)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "passive_action",
		Description: "Return the response side and response time of a sampling step.",
	}, passiveActionHandler)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "passive_outcome",
		Description: "Return the outcome seen at a sampling step.",
	}, passiveOutcomeHandler)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "summary",
		Description: "Summarize an event log: trials, samples, resets, reward and per-trial choices.",
	}, summaryHandler)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List sessions imported into the stats catalog, oldest first.",
	}, listSessionsHandler(src))

	return server
}

// --- Input types ---

type logInput struct {
	LogPath string `json:"log_path" jsonschema:"Path of a finalized event log (TSV)"`
}

type trialInput struct {
	LogPath string `json:"log_path" jsonschema:"Path of a finalized event log (TSV)"`
	Trial   int    `json:"trial"    jsonschema:"Zero-based trial index"`
}

type stepInput struct {
	LogPath string `json:"log_path" jsonschema:"Path of a finalized event log (TSV)"`
	Trial   int    `json:"trial"    jsonschema:"Zero-based trial index"`
	Sample  int    `json:"sample"   jsonschema:"Zero-based sampling step within the trial"`
}

type listSessionsInput struct {
	Subject string `json:"subject,omitempty" jsonschema:"Only sessions of this subject"`
	Since   string `json:"since,omitempty"   jsonschema:"Only sessions imported on or after this date (YYYY-MM-DD)"`
	Last    int    `json:"last,omitempty"    jsonschema:"Only the last N sessions"`
}

// --- Handlers ---

func finalChoiceOutcomesHandler(_ context.Context, _ *mcp.CallToolRequest, input logInput) (*mcp.CallToolResult, any, error) {
	log, err := replay.Open(input.LogPath)
	if err != nil {
		return errorResult(err), nil, nil
	}
	outcomes, err := log.FinalChoiceOutcomes()
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(jsonString(map[string]any{
		"trials":   len(outcomes),
		"outcomes": outcomes,
	})), nil, nil
}

func payoffSettingHandler(_ context.Context, _ *mcp.CallToolRequest, input trialInput) (*mcp.CallToolResult, any, error) {
	log, err := replay.Open(input.LogPath)
	if err != nil {
		return errorResult(err), nil, nil
	}
	setting, err := log.PayoffSettingAt(input.Trial)
	if err != nil {
		return errorResult(err), nil, nil
	}
	cols := setting.Columns()
	columns := make(map[string]float64, len(cols))
	for i, name := range payoff.ColumnNames {
		columns[name] = cols[i]
	}
	return textResult(jsonString(map[string]any{
		"trial":          input.Trial,
		"columns":        columns,
		"matrix":         setting.Matrix(),
		"expected_value": []float64{setting.ExpectedValue(0), setting.ExpectedValue(1)},
	})), nil, nil
}

func passiveActionHandler(_ context.Context, _ *mcp.CallToolRequest, input stepInput) (*mcp.CallToolResult, any, error) {
	log, err := replay.Open(input.LogPath)
	if err != nil {
		return errorResult(err), nil, nil
	}
	side, rt, err := log.PassiveAction(input.Trial, input.Sample)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(jsonString(map[string]any{
		"side":          side,
		"response_time": rt,
	})), nil, nil
}

func passiveOutcomeHandler(_ context.Context, _ *mcp.CallToolRequest, input stepInput) (*mcp.CallToolResult, any, error) {
	log, err := replay.Open(input.LogPath)
	if err != nil {
		return errorResult(err), nil, nil
	}
	v, err := log.PassiveOutcome(input.Trial, input.Sample)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(jsonString(map[string]any{"outcome": v})), nil, nil
}

func summaryHandler(_ context.Context, _ *mcp.CallToolRequest, input logInput) (*mcp.CallToolResult, any, error) {
	log, err := replay.Open(input.LogPath)
	if err != nil {
		return errorResult(err), nil, nil
	}
	sum, trials, err := stats.Summarize(log.Records())
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(jsonString(map[string]any{
		"session": sum,
		"trials":  trials,
	})), nil, nil
}

func listSessionsHandler(src stats.Source) func(context.Context, *mcp.CallToolRequest, listSessionsInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input listSessionsInput) (*mcp.CallToolResult, any, error) {
		cfg := model.StatsConfig{Subject: input.Subject, Last: input.Last}
		if input.Since != "" {
			t, err := time.ParseInLocation("2006-01-02", input.Since, time.Local)
			if err != nil {
				return textResult(fmt.Sprintf("invalid 'since' date: %v", err)), nil, nil
			}
			cfg.Since = &t
		}
		sessions, err := src.ListSessions(ctx, cfg)
		if err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(jsonString(sessions)), nil, nil
	}
}

// --- Helpers ---

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	res := textResult(fmt.Sprintf("error: %v", err))
	res.IsError = true
	return res
}

func jsonString(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal: %v"}`, err)
	}
	return string(b)
}
