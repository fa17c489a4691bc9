package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/octomike/sp-experiment/internal/config"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/eventlog"
	"github.com/octomike/sp-experiment/internal/model"
	"github.com/octomike/sp-experiment/internal/stats"
	"github.com/octomike/sp-experiment/internal/statsui"
	"github.com/octomike/sp-experiment/internal/store"
)

const defaultCurveWindow = 5

var (
	importSubject    string
	statsSubject     string
	statsSince       string
	statsLast        int
	statsCurveWindow int
	statsPlain       bool
)

func openStore() (*store.Store, error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, sperrors.Wrap(sperrors.EIO, "failed to open db", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		logErrf("failed to close db: %v\n", err)
	}
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <log>...",
		Short: "Import finalized event logs into the stats catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImportCmd,
	}
	cmd.Flags().StringVar(&importSubject, "subject", "", "subject id (default: from file name)")
	return cmd
}

func runImportCmd(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	for _, path := range args {
		id, err := importLog(ctx, st, path)
		if errors.Is(err, store.ErrAlreadyImported) {
			logErrf("skipping %s: already imported\n", path)
			continue
		}
		if err != nil {
			return err
		}
		logErrf("imported %s as %s\n", path, id)
	}
	return nil
}

func importLog(ctx context.Context, st *store.Store, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", sperrors.Wrap(sperrors.EIO, "failed to resolve log path", err)
	}
	recs, err := eventlog.ReadFile(abs)
	if err != nil {
		return "", err
	}
	sum, trials, err := stats.Summarize(recs)
	if err != nil {
		return "", err
	}
	subject := strings.TrimSpace(importSubject)
	if subject == "" {
		var ok bool
		subject, ok = config.SubjectFromLogName(abs)
		if !ok {
			return "", sperrors.Newf(sperrors.EUsage, "cannot infer subject from %s, pass --subject", filepath.Base(abs))
		}
	}
	sum.Subject = subject
	sum.Path = abs
	sum.ImportedAt = time.Now()

	id, err := st.ImportSession(ctx, sum, trials, recs)
	if errors.Is(err, store.ErrAlreadyImported) {
		return "", err
	}
	if err != nil {
		return "", sperrors.Wrap(sperrors.EIO, "failed to import "+path, err)
	}
	return id, nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stats",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsSubject, "subject", "", "subject filter")
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N sessions")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().BoolVar(&statsPlain, "plain", false, "print tables instead of the interactive view")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	var sinceTime *time.Time
	if statsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", statsSince, time.Local)
		if err != nil {
			return sperrors.Wrap(sperrors.EUsage, "invalid --since value", err)
		}
		sinceTime = &parsed
	}
	if statsLast < 0 {
		return sperrors.New(sperrors.EUsage, "--last must be >= 0")
	}
	if statsCurveWindow <= 0 {
		return sperrors.New(sperrors.EUsage, "--curve-window must be > 0")
	}

	cfg := model.StatsConfig{
		Subject:     strings.TrimSpace(statsSubject),
		Since:       sinceTime,
		Last:        statsLast,
		CurveWindow: statsCurveWindow,
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	if statsPlain {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return printStats(ctx, st, cfg)
	}

	ui := statsui.NewModel(st, cfg)
	program := tea.NewProgram(ui, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run stats TUI: %w", err)
	}
	return nil
}

func printStats(ctx context.Context, st stats.Source, cfg model.StatsConfig) error {
	report, err := stats.BuildReport(ctx, st, cfg)
	if err != nil {
		return sperrors.Wrap(sperrors.EIO, "failed to load stats", err)
	}
	if len(report.Sessions) == 0 {
		logErrln("no sessions imported yet; run `sp import <log>` first")
		return nil
	}
	out := os.Stdout
	if err := stats.RenderSummary(out, report.Sessions, report.Trials); err != nil {
		return err
	}
	if err := stats.RenderSessionTable(out, report.Sessions); err != nil {
		return err
	}
	return stats.RenderCurvesWithSize(out, report.Sessions, report.Trials, cfg.CurveWindow, 0, 0, false)
}
