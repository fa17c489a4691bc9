// Package replay answers queries against a finalized event log and plays a
// recorded session back through the live code path.
package replay

import (
	"github.com/octomike/sp-experiment/internal/action"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/eventlog"
	"github.com/octomike/sp-experiment/internal/payoff"
)

// passiveTypes are the action types replayed during sampling.
var passiveTypes = map[action.Type]bool{
	action.TypeSample:        true,
	action.TypeStop:          true,
	action.TypeForcedStop:    true,
	action.TypePrematureStop: true,
}

// Log is a read-only view of a log. Records are kept in Seq order.
type Log struct {
	records []eventlog.Record
}

// Open reads the log at path.
func Open(path string) (*Log, error) {
	recs, err := eventlog.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(recs), nil
}

// New wraps records that are already in append order.
func New(records []eventlog.Record) *Log {
	return &Log{records: records}
}

// Records returns the underlying records.
func (l *Log) Records() []eventlog.Record {
	return l.records
}

// Trials returns the number of trials, max(trial)+1.
func (l *Log) Trials() int {
	n := 0
	for _, r := range l.records {
		if r.Trial != nil && *r.Trial+1 > n {
			n = *r.Trial + 1
		}
	}
	return n
}

// FinalChoiceOutcomes returns, per trial, the last outcome recorded in it.
func (l *Log) FinalChoiceOutcomes() ([]float64, error) {
	n := l.Trials()
	if n == 0 {
		return nil, sperrors.New(sperrors.EReplayData, "log has no trials")
	}
	outcomes := make([]float64, n)
	for t := 0; t < n; t++ {
		found := false
		for _, r := range l.trial(t) {
			if r.Outcome != nil {
				outcomes[t] = *r.Outcome
				found = true
			}
		}
		if !found {
			return nil, sperrors.Newf(sperrors.EReplayData, "trial %d has no outcome", t)
		}
	}
	return outcomes, nil
}

// PayoffSettingAt returns the last setting recorded for trial. Settings
// logged before a reset are superseded by the one logged after it.
func (l *Log) PayoffSettingAt(trial int) (payoff.Setting, error) {
	var last *payoff.Columns
	for _, r := range l.trial(trial) {
		if r.Columns != nil {
			last = r.Columns
		}
	}
	if last == nil {
		return payoff.Setting{}, sperrors.Newf(sperrors.EReplayData, "trial %d has no payoff setting", trial)
	}
	s, err := payoff.Unflatten(*last)
	if err != nil {
		return payoff.Setting{}, sperrors.Wrap(sperrors.EReplayData, "stored payoff setting is invalid", err)
	}
	return s, nil
}

// PassiveAction returns the key and reaction time of the sample-th
// sampling-phase action in trial.
func (l *Log) PassiveAction(trial, sample int) (action.Side, float64, error) {
	var actions []eventlog.Record
	for _, r := range l.trial(trial) {
		if r.Action != nil && passiveTypes[r.Action.Type] {
			actions = append(actions, r)
		}
	}
	if sample < 0 || sample >= len(actions) {
		return "", 0, indexError("action", trial, sample, len(actions))
	}
	return sideAndRT(actions[sample])
}

// PassiveOutcome returns the sample-th outcome recorded in trial.
func (l *Log) PassiveOutcome(trial, sample int) (float64, error) {
	var outcomes []float64
	for _, r := range l.trial(trial) {
		if r.Outcome != nil {
			outcomes = append(outcomes, *r.Outcome)
		}
	}
	if sample < 0 || sample >= len(outcomes) {
		return 0, indexError("outcome", trial, sample, len(outcomes))
	}
	return outcomes[sample], nil
}

// FinalChoice returns the key and reaction time of the last final choice
// in trial.
func (l *Log) FinalChoice(trial int) (action.Side, float64, error) {
	var last *eventlog.Record
	for _, r := range l.trial(trial) {
		if r.Action != nil && r.Action.Type == action.TypeFinalChoice {
			r := r
			last = &r
		}
	}
	if last == nil {
		return "", 0, sperrors.Newf(sperrors.EReplayData, "trial %d has no final choice", trial)
	}
	return sideAndRT(*last)
}

// sampling counts the accepted samples of trial and reports whether it
// ended in a forced stop.
func (l *Log) sampling(trial int) (samples int, forced bool) {
	for _, r := range l.trial(trial) {
		if r.Action == nil {
			continue
		}
		switch r.Action.Type {
		case action.TypeSample:
			samples++
		case action.TypeForcedStop:
			forced = true
		}
	}
	return samples, forced
}

// AfterLastReset drops, per trial, every record up to and including the
// trial's last reset marker.
func (l *Log) AfterLastReset() *Log {
	lastReset := map[int]int{}
	for i, r := range l.records {
		if r.Reset && r.Trial != nil {
			lastReset[*r.Trial] = i
		}
	}
	kept := make([]eventlog.Record, 0, len(l.records))
	for i, r := range l.records {
		if r.Trial != nil {
			if cut, ok := lastReset[*r.Trial]; ok && i <= cut {
				continue
			}
		}
		kept = append(kept, r)
	}
	return New(kept)
}

func (l *Log) trial(trial int) []eventlog.Record {
	var out []eventlog.Record
	for _, r := range l.records {
		if r.InTrial(trial) {
			out = append(out, r)
		}
	}
	return out
}

func sideAndRT(r eventlog.Record) (action.Side, float64, error) {
	side, err := r.Action.Side()
	if err != nil {
		return "", 0, err
	}
	if r.ResponseTime == nil {
		return "", 0, sperrors.Newf(sperrors.EReplayData, "row %d has no response time", r.Seq)
	}
	return side, *r.ResponseTime, nil
}

func indexError(what string, trial, sample, n int) error {
	if n == 0 {
		return sperrors.Newf(sperrors.EReplayData, "trial %d has no recorded %s", trial, what)
	}
	return sperrors.Newf(sperrors.EReplayData, "trial %d has %d recorded %ss, index %d is out of range", trial, n, what, sample)
}
