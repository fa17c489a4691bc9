// Package main provides the CLI entrypoint for the Sampling Paradigm
// experiment.
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/octomike/sp-experiment/internal/config"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/eventlog"
	"github.com/octomike/sp-experiment/internal/model"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/session"
	"github.com/octomike/sp-experiment/internal/trial"
	"github.com/octomike/sp-experiment/internal/trigger"
	"github.com/octomike/sp-experiment/internal/tui"
)

var (
	expSubject         string
	expDataDir         string
	expFPS             int
	expMaxOverall      int
	expMaxPerTrial     int
	expTriggerPort     string
	expTriggerBaud     int
	expSeed            int64
	expResponseTimeout time.Duration
	expMessageFrames   int
	expMaskMinMs       int
	expMaskMaxMs       int
	expOutcomeFrames   int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		sperrors.Print(os.Stderr, err)
		os.Exit(sperrors.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sp",
		Short:         "Sampling Paradigm EEG experiment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newOutcomesCmd())
	rootCmd.AddCommand(newSettingCmd())
	rootCmd.AddCommand(newActionCmd())
	rootCmd.AddCommand(newOutcomeCmd())
	rootCmd.AddCommand(newTriggersCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

// addExperimentFlags registers the flags shared by run and replay.
func addExperimentFlags(cmd *cobra.Command) {
	defaults := session.DefaultConfig()
	cmd.Flags().StringVar(&expSubject, "sub", "", "subject id (required)")
	cmd.Flags().StringVar(&expDataDir, "data-dir", config.DefaultDataDir(), "directory for event logs")
	cmd.Flags().IntVar(&expFPS, "fps", defaults.FPS, "display frame rate")
	cmd.Flags().IntVar(&expMaxOverall, "max-samples-overall", defaults.Limits.MaxSamplesOverall, "sample budget of the session")
	cmd.Flags().IntVar(&expMaxPerTrial, "max-samples-per-trial", defaults.Limits.MaxSamplesPerTrial, "samples before a forced stop")
	cmd.Flags().StringVar(&expTriggerPort, "trigger-port", "", "serial port for EEG triggers (empty disables)")
	cmd.Flags().IntVar(&expTriggerBaud, "trigger-baud", trigger.DefaultBaudRate, "trigger port baud rate")
	cmd.Flags().Int64Var(&expSeed, "seed", 0, "payoff generator seed (0 picks one)")
	cmd.Flags().DurationVar(&expResponseTimeout, "response-timeout", 0, "response deadline, 0 waits forever")
	cmd.Flags().IntVar(&expMessageFrames, "message-frames", defaults.MessageFrames, "frames a message stays up")
	cmd.Flags().IntVar(&expMaskMinMs, "mask-min-ms", defaults.MaskMinMs, "shortest mask before an outcome")
	cmd.Flags().IntVar(&expMaskMaxMs, "mask-max-ms", defaults.MaskMaxMs, "longest mask before an outcome")
	cmd.Flags().IntVar(&expOutcomeFrames, "outcome-frames", defaults.OutcomeFrames, "frames an outcome stays up")
}

// resolveExperimentConfig merges the config file into flags that were not
// set explicitly.
func resolveExperimentConfig(cmd *cobra.Command) (model.ExperimentConfig, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return model.ExperimentConfig{}, sperrors.Wrap(sperrors.EConfiguration, "failed to load config", err)
	}
	exp := fileCfg.Experiment
	applyIntConfig(cmd, "fps", &expFPS, exp.FPS)
	applyIntConfig(cmd, "max-samples-overall", &expMaxOverall, exp.MaxSamplesOverall)
	applyIntConfig(cmd, "max-samples-per-trial", &expMaxPerTrial, exp.MaxSamplesPerTrial)
	applyStringConfig(cmd, "data-dir", &expDataDir, exp.DataDir)
	applyStringConfig(cmd, "trigger-port", &expTriggerPort, exp.TriggerPort)
	applyIntConfig(cmd, "trigger-baud", &expTriggerBaud, exp.TriggerBaud)
	applyInt64Config(cmd, "seed", &expSeed, exp.Seed)
	applyIntConfig(cmd, "message-frames", &expMessageFrames, exp.MessageFrames)
	applyIntConfig(cmd, "mask-min-ms", &expMaskMinMs, exp.MaskMinMs)
	applyIntConfig(cmd, "mask-max-ms", &expMaskMaxMs, exp.MaskMaxMs)
	applyIntConfig(cmd, "outcome-frames", &expOutcomeFrames, exp.OutcomeFrames)
	if exp.ResponseTimeout != nil && !cmd.Flags().Changed("response-timeout") {
		parsed, err := time.ParseDuration(*exp.ResponseTimeout)
		if err != nil {
			return model.ExperimentConfig{}, sperrors.Wrap(sperrors.EConfiguration, "invalid response-timeout in config", err)
		}
		expResponseTimeout = parsed
	}

	cfg := model.ExperimentConfig{
		Subject:            strings.TrimSpace(expSubject),
		DataDir:            expDataDir,
		FPS:                expFPS,
		MaxSamplesOverall:  expMaxOverall,
		MaxSamplesPerTrial: expMaxPerTrial,
		TriggerPort:        expTriggerPort,
		TriggerBaud:        expTriggerBaud,
		Seed:               expSeed,
		ResponseTimeout:    expResponseTimeout,
		MessageFrames:      expMessageFrames,
		MaskMinMs:          expMaskMinMs,
		MaskMaxMs:          expMaskMaxMs,
		OutcomeFrames:      expOutcomeFrames,
	}
	if err := validateExperimentConfig(cfg); err != nil {
		return model.ExperimentConfig{}, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return cfg, nil
}

func validateExperimentConfig(cfg model.ExperimentConfig) error {
	if cfg.Subject == "" {
		return sperrors.New(sperrors.EUsage, "--sub is required")
	}
	if strings.ContainsAny(cfg.Subject, `/\`) || strings.ContainsAny(cfg.Subject, " \t") {
		return sperrors.Newf(sperrors.EUsage, "invalid subject id %q", cfg.Subject)
	}
	if cfg.DataDir == "" {
		return sperrors.New(sperrors.EUsage, "--data-dir must not be empty")
	}
	if cfg.ResponseTimeout < 0 {
		return sperrors.New(sperrors.EUsage, "--response-timeout must be >= 0")
	}
	if cfg.MessageFrames < 0 || cfg.OutcomeFrames < 0 {
		return sperrors.New(sperrors.EUsage, "frame counts must be >= 0")
	}
	return nil
}

func sessionConfig(cfg model.ExperimentConfig) session.Config {
	return session.Config{
		Limits: trial.Limits{
			MaxSamplesPerTrial: cfg.MaxSamplesPerTrial,
			MaxSamplesOverall:  cfg.MaxSamplesOverall,
		},
		FPS:             cfg.FPS,
		ResponseTimeout: cfg.ResponseTimeout,
		MessageFrames:   cfg.MessageFrames,
		MaskMinMs:       cfg.MaskMinMs,
		MaskMaxMs:       cfg.MaskMaxMs,
		OutcomeFrames:   cfg.OutcomeFrames,
	}
}

// createLog opens a fresh event log for the subject in the data directory.
func createLog(cfg model.ExperimentConfig) (*eventlog.Writer, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, sperrors.Wrap(sperrors.EIO, "failed to create data directory", err)
	}
	path := filepath.Join(cfg.DataDir, config.LogFileName(cfg.Subject))
	return eventlog.Create(path, eventlog.Options{FPS: cfg.FPS, Version: model.Version})
}

func closeLog(w *eventlog.Writer) {
	if err := w.Close(); err != nil {
		logErrf("failed to close log %s: %v\n", w.Path(), err)
	}
}

func closeSink(sink trigger.Sink) {
	c, ok := sink.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logErrf("failed to close trigger port: %v\n", err)
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a live session in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runRunCmd,
	}
	addExperimentFlags(cmd)
	return cmd
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveExperimentConfig(cmd)
	if err != nil {
		return err
	}
	w, err := createLog(cfg)
	if err != nil {
		return err
	}
	defer closeLog(w)

	sink := trigger.Open(cfg.TriggerPort, cfg.TriggerBaud, os.Stderr)
	defer closeSink(sink)

	gen := payoff.NewGenerator(cfg.Seed)
	m, err := tui.NewModel(sessionConfig(cfg), session.Deps{
		Log:   w,
		Sink:  sink,
		Clock: session.NewWallClock(),
		Env:   session.NewLiveEnvironment(gen),
		Rand:  gen.Rand(),
	})
	if err != nil {
		return err
	}
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	if err := m.Err(); err != nil {
		return err
	}
	if m.Aborted() {
		logErrf("session aborted, partial log kept at %s\n", w.Path())
		return nil
	}
	rewards := m.Session().Rewards()
	total := 0.0
	for _, r := range rewards {
		total += r
	}
	logErrf("session complete: %d trials, reward %s, log %s\n", len(rewards), payoff.Format(total), w.Path())
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
