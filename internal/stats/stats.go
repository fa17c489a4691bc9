// Package stats summarizes experiment logs and renders behavioural reports.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/octomike/sp-experiment/internal/model"
	"github.com/octomike/sp-experiment/internal/payoff"
)

const sparkChars = " .:-=+*#%@"

// SessionMetrics computes mean samples per trial, mean reward per trial
// and the share of final choices that picked the better option. trials
// must belong to s.
func SessionMetrics(s model.SessionSummary, trials []model.TrialSummary) (samplesPerTrial, rewardPerTrial, betterRate float64) {
	if s.Trials == 0 {
		return 0, 0, 0
	}
	n := float64(s.Trials)
	samplesPerTrial = float64(s.Samples) / n
	rewardPerTrial = s.TotalReward / n
	better := 0
	for _, t := range trials {
		if t.ChoseBetter {
			better++
		}
	}
	if len(trials) > 0 {
		betterRate = float64(better) / float64(len(trials))
	}
	return samplesPerTrial, rewardPerTrial, betterRate
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		n := i + 1
		if i >= window {
			sum -= values[i-window]
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := minMax(values)
	if math.Abs(hi-lo) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		idx := int(math.Round((v - lo) / (hi - lo) * float64(len(sparkChars)-1)))
		b.WriteByte(sparkChars[clamp(idx, 0, len(sparkChars)-1)])
	}
	return b.String()
}

// RenderSummary prints a summary of the given sessions.
func RenderSummary(w io.Writer, sessions []model.SessionSummary, trials []model.TrialSummary) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	var nTrials, nSamples, resets, premature, forced int
	var reward float64
	better := 0
	for _, s := range sessions {
		nTrials += s.Trials
		nSamples += s.Samples
		resets += s.Resets
		premature += s.PrematureStops
		forced += s.ForcedStops
		reward += s.TotalReward
	}
	for _, t := range trials {
		if t.ChoseBetter {
			better++
		}
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d", len(sessions)),
		fmt.Sprintf("Trials: %d", nTrials),
	}
	if nTrials > 0 {
		lines = append(lines,
			fmt.Sprintf("Samples per trial: %.2f", float64(nSamples)/float64(nTrials)),
			fmt.Sprintf("Reward per trial: %.2f", reward/float64(nTrials)),
		)
	}
	if len(trials) > 0 {
		lines = append(lines, fmt.Sprintf("Better option chosen: %.1f%%", float64(better)/float64(len(trials))*100))
	}
	lines = append(lines,
		fmt.Sprintf("Premature stops: %d", premature),
		fmt.Sprintf("Forced stops: %d", forced),
		fmt.Sprintf("Resets: %d", resets),
		"",
	)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderSessionTable prints one row per session.
func RenderSessionTable(w io.Writer, sessions []model.SessionSummary) error {
	if len(sessions) == 0 {
		return nil
	}
	headers := []string{"Subject", "Imported", "Trials", "Samples", "Reward", "Mean RT (s)", "Resets"}
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.Subject,
			s.ImportedAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", s.Trials),
			fmt.Sprintf("%d", s.Samples),
			payoff.Format(s.TotalReward),
			fmt.Sprintf("%.3f", s.MeanRT),
			fmt.Sprintf("%d", s.Resets),
		})
	}
	return writeTable(w, "Sessions", headers, rows, map[int]bool{2: true, 3: true, 4: true, 5: true, 6: true})
}

// RenderTrialTable prints one row per trial.
func RenderTrialTable(w io.Writer, trials []model.TrialSummary) error {
	if len(trials) == 0 {
		_, err := fmt.Fprintln(w, "No trials found.")
		return err
	}
	headers := []string{"Trial", "Samples", "Choice", "Outcome", "EV left", "EV right", "Better", "Resets"}
	rows := make([][]string, 0, len(trials))
	for _, t := range trials {
		choice := "left"
		if t.FinalOption == 1 {
			choice = "right"
		}
		better := "no"
		if t.ChoseBetter {
			better = "yes"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", t.Trial),
			fmt.Sprintf("%d", t.Samples),
			choice,
			payoff.Format(t.FinalOutcome),
			fmt.Sprintf("%.2f", t.ExpectedValue[0]),
			fmt.Sprintf("%.2f", t.ExpectedValue[1]),
			better,
			fmt.Sprintf("%d", t.Resets),
		})
	}
	return writeTable(w, "Trials", headers, rows, map[int]bool{0: true, 1: true, 3: true, 4: true, 5: true, 7: true})
}

// RenderCurvesWithSize plots per-session behaviour across sessions.
func RenderCurvesWithSize(w io.Writer, sessions []model.SessionSummary, trials []model.TrialSummary, window, totalWidth, height int, useColor bool) error {
	if len(sessions) == 0 {
		return nil
	}
	bySession := map[string][]model.TrialSummary{}
	for _, t := range trials {
		bySession[t.SessionID] = append(bySession[t.SessionID], t)
	}
	samples := make([]float64, len(sessions))
	rewards := make([]float64, len(sessions))
	better := make([]float64, len(sessions))
	for i, s := range sessions {
		samples[i], rewards[i], better[i] = SessionMetrics(s, bySession[s.ID])
		better[i] *= 10
	}
	return PlotSeries(w, "Sessions", []Series{
		{Name: "Samples/trial", Values: MovingAverage(samples, window)},
		{Name: "Reward/trial", Values: MovingAverage(rewards, window)},
		{Name: "Better choice x10", Values: MovingAverage(better, window)},
	}, PlotOptions{Width: plotWidth(totalWidth), Height: height, Color: useColor})
}

// RenderTrialCurvesWithSize plots samples and outcome per trial.
func RenderTrialCurvesWithSize(w io.Writer, trials []model.TrialSummary, totalWidth, height int, useColor bool) error {
	if len(trials) == 0 {
		return nil
	}
	samples := make([]float64, len(trials))
	outcomes := make([]float64, len(trials))
	for i, t := range trials {
		samples[i] = float64(t.Samples)
		outcomes[i] = t.FinalOutcome
	}
	return PlotSeries(w, "Trials", []Series{
		{Name: "Samples", Values: samples},
		{Name: "Outcome", Values: outcomes},
	}, PlotOptions{Width: plotWidth(totalWidth), Height: height, Color: useColor})
}

func writeTable(w io.Writer, title string, headers []string, rows [][]string, rightAlign map[int]bool) error {
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func plotWidth(totalWidth int) int {
	if totalWidth <= 0 {
		return 0
	}
	return PlotWidthFor(totalWidth)
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
