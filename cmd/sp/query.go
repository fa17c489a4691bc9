package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/replay"
	"github.com/octomike/sp-experiment/internal/session"
	"github.com/octomike/sp-experiment/internal/trigger"
)

var (
	queryTrial  int
	querySample int
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <log>",
		Short: "Replay a recorded session into a new log",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplayCmd,
	}
	addExperimentFlags(cmd)
	return cmd
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	cfg, err := resolveExperimentConfig(cmd)
	if err != nil {
		return err
	}
	src, err := replay.Open(args[0])
	if err != nil {
		return err
	}
	player := replay.NewPlayer(src)
	if player.Trials() == 0 {
		return sperrors.Newf(sperrors.EReplayData, "%s has no trials to replay", args[0])
	}
	limits, err := player.Limits()
	if err != nil {
		return err
	}
	sessCfg := sessionConfig(cfg)
	if sessCfg.Limits != limits && (cmd.Flags().Changed("max-samples-overall") || cmd.Flags().Changed("max-samples-per-trial")) {
		logErrf("replay uses the recorded limits: %d per trial, %d overall\n", limits.MaxSamplesPerTrial, limits.MaxSamplesOverall)
	}
	sessCfg.Limits = limits
	sessCfg.ResponseTimeout = 0

	w, err := createLog(cfg)
	if err != nil {
		return err
	}
	defer closeLog(w)

	sink := trigger.Open(cfg.TriggerPort, cfg.TriggerBaud, os.Stderr)
	defer closeSink(sink)

	sess, err := session.New(sessCfg, session.Deps{
		Log:   w,
		Sink:  sink,
		Clock: session.NewWallClock(),
		Env:   player,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sess.Run(ctx, player); err != nil {
		return err
	}
	if !player.Done() {
		return sperrors.Newf(sperrors.EReplayData, "replay of %s ended after %d trials", args[0], len(sess.Rewards()))
	}
	logErrf("replayed %d trials into %s\n", len(sess.Rewards()), w.Path())
	return nil
}

func newOutcomesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outcomes <log>",
		Short: "Print the final choice outcome of every trial",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			log, err := replay.Open(args[0])
			if err != nil {
				return err
			}
			outcomes, err := log.FinalChoiceOutcomes()
			if err != nil {
				return err
			}
			for t, v := range outcomes {
				fmt.Printf("%d\t%s\n", t, payoff.Format(v))
			}
			return nil
		},
	}
}

func newSettingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setting <log>",
		Short: "Print the payoff setting of a trial",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			log, err := replay.Open(args[0])
			if err != nil {
				return err
			}
			setting, err := log.PayoffSettingAt(queryTrial)
			if err != nil {
				return err
			}
			cols := setting.Columns()
			for i, name := range payoff.ColumnNames {
				fmt.Printf("%s\t%s\n", name, payoff.Format(cols[i]))
			}
			fmt.Printf("ev0\t%s\nev1\t%s\n", payoff.Format(setting.ExpectedValue(0)), payoff.Format(setting.ExpectedValue(1)))
			return nil
		},
	}
	cmd.Flags().IntVar(&queryTrial, "trial", 0, "trial index")
	return cmd
}

func newActionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action <log>",
		Short: "Print the passive action taken at a sampling step",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			log, err := replay.Open(args[0])
			if err != nil {
				return err
			}
			side, rt, err := log.PassiveAction(queryTrial, querySample)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", side, payoff.Format(rt))
			return nil
		},
	}
	addStepFlags(cmd)
	return cmd
}

func newOutcomeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outcome <log>",
		Short: "Print the outcome seen at a sampling step",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			log, err := replay.Open(args[0])
			if err != nil {
				return err
			}
			v, err := log.PassiveOutcome(queryTrial, querySample)
			if err != nil {
				return err
			}
			fmt.Println(payoff.Format(v))
			return nil
		},
	}
	addStepFlags(cmd)
	return cmd
}

func addStepFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&queryTrial, "trial", 0, "trial index")
	cmd.Flags().IntVar(&querySample, "sample", 0, "sample index within the trial")
}

func newTriggersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "triggers",
		Short: "List the EEG trigger codes",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var b strings.Builder
			for _, t := range trigger.All() {
				fmt.Fprintf(&b, "%3d\t%s\n", t.Byte(), t)
			}
			_, err := fmt.Print(b.String())
			return err
		},
	}
}
