package stats

import (
	"github.com/octomike/sp-experiment/internal/action"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/eventlog"
	"github.com/octomike/sp-experiment/internal/model"
	"github.com/octomike/sp-experiment/internal/replay"
)

// Summarize derives session and per-trial summaries from a log. Only the
// attempt after each trial's last reset counts; trials without a final
// choice are left out.
func Summarize(recs []eventlog.Record) (model.SessionSummary, []model.TrialSummary, error) {
	full := replay.New(recs)
	kept := full.AfterLastReset()

	var sum model.SessionSummary
	if len(recs) > 0 {
		sum.Version = recs[0].Version
	}
	resets := map[int]int{}
	first, last := -1.0, -1.0
	for _, r := range recs {
		if r.Reset && r.Trial != nil {
			resets[*r.Trial]++
			sum.Resets++
		}
		if r.Onset != nil {
			if first < 0 {
				first = *r.Onset
			}
			last = *r.Onset
		}
	}
	if first >= 0 {
		sum.Duration = last - first
	}

	var rtSum float64
	var rtCount int
	for _, r := range kept.Records() {
		if r.Action == nil {
			continue
		}
		switch r.Action.Type {
		case action.TypePrematureStop:
			sum.PrematureStops++
		case action.TypeForcedStop:
			sum.ForcedStops++
		}
		if r.ResponseTime != nil {
			rtSum += *r.ResponseTime
			rtCount++
		}
	}
	if rtCount > 0 {
		sum.MeanRT = rtSum / float64(rtCount)
	}

	var trials []model.TrialSummary
	for t := 0; t < kept.Trials(); t++ {
		ts, ok, err := summarizeTrial(kept, t)
		if err != nil {
			return model.SessionSummary{}, nil, err
		}
		if !ok {
			continue
		}
		ts.Resets = resets[t]
		trials = append(trials, ts)
		sum.Trials++
		sum.Samples += ts.Samples
		sum.TotalReward += ts.FinalOutcome
	}
	return sum, trials, nil
}

func summarizeTrial(log *replay.Log, t int) (model.TrialSummary, bool, error) {
	side, _, err := log.FinalChoice(t)
	if sperrors.Is(err, sperrors.EReplayData) {
		return model.TrialSummary{}, false, nil
	}
	if err != nil {
		return model.TrialSummary{}, false, err
	}
	ts := model.TrialSummary{Trial: t}
	ts.FinalOption, _ = side.Option()
	for _, r := range log.Records() {
		if !r.InTrial(t) {
			continue
		}
		if r.Action != nil && r.Action.Type == action.TypeSample {
			ts.Samples++
		}
		if r.Outcome != nil {
			ts.FinalOutcome = *r.Outcome
		}
	}
	setting, err := log.PayoffSettingAt(t)
	if err != nil {
		return model.TrialSummary{}, false, err
	}
	ts.ExpectedValue = [2]float64{setting.ExpectedValue(0), setting.ExpectedValue(1)}
	ts.ChoseBetter = ts.ExpectedValue[ts.FinalOption] >= ts.ExpectedValue[1-ts.FinalOption]
	return ts, true, nil
}
