package replay

import (
	"context"
	"time"

	"github.com/octomike/sp-experiment/internal/action"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/session"
	"github.com/octomike/sp-experiment/internal/trial"
)

// Player replays a recorded session as both the participant and the
// environment. It only sees the attempt that followed each trial's last
// reset, so the replay never times out.
type Player struct {
	log    *Log
	trial  int
	cursor int
	chosen int
}

// NewPlayer prepares a passive replay of log.
func NewPlayer(log *Log) *Player {
	return &Player{log: log.AfterLastReset(), trial: -1}
}

// Trials returns the number of recorded trials.
func (p *Player) Trials() int {
	return p.log.Trials()
}

// Done reports whether every completed trial of the recording has been
// played back up to its final choice.
func (p *Player) Done() bool {
	n, err := p.completed()
	return err == nil && p.chosen >= n
}

// Limits infers the sample limits the recording ran with, so that the
// replayed machine takes the same steps. The per-trial limit is the
// sample count of the forced-stop trials, or the largest sample count when
// no trial was forced to stop. The overall limit is the sample total of the
// completed trials, which ends the replay after the last of them.
func (p *Player) Limits() (trial.Limits, error) {
	n, err := p.completed()
	if err != nil {
		return trial.Limits{}, err
	}
	if n == 0 {
		return trial.Limits{}, sperrors.New(sperrors.EReplayData, "log has no completed trial")
	}
	var limits trial.Limits
	largest, forcedAt := 0, 0
	for t := 0; t < n; t++ {
		samples, forced := p.log.sampling(t)
		if samples == 0 {
			return trial.Limits{}, sperrors.Newf(sperrors.EReplayData, "trial %d has a final choice without a sample", t)
		}
		limits.MaxSamplesOverall += samples
		largest = max(largest, samples)
		if forced {
			if forcedAt != 0 && forcedAt != samples {
				return trial.Limits{}, sperrors.Newf(sperrors.EReplayData, "trial %d was forced to stop after %d samples, an earlier trial after %d", t, samples, forcedAt)
			}
			forcedAt = samples
		}
	}
	limits.MaxSamplesPerTrial = largest
	if forcedAt != 0 {
		if largest > forcedAt {
			return trial.Limits{}, sperrors.Newf(sperrors.EReplayData, "a trial took %d samples past the forced stop at %d", largest, forcedAt)
		}
		limits.MaxSamplesPerTrial = forcedAt
	}
	return limits, nil
}

// completed counts the leading trials that end in a final choice. Only the
// last recorded trial may be left open.
func (p *Player) completed() (int, error) {
	total := p.log.Trials()
	n := 0
	for t := 0; t < total; t++ {
		if _, _, err := p.log.FinalChoice(t); err != nil {
			if t != total-1 {
				return 0, err
			}
			break
		}
		n++
	}
	return n, nil
}

// Setting returns the recorded setting and moves the player to trial.
func (p *Player) Setting(trial int) (payoff.Setting, error) {
	s, err := p.log.PayoffSettingAt(trial)
	if err != nil {
		return payoff.Setting{}, err
	}
	p.trial = trial
	p.cursor = 0
	return s, nil
}

// Outcome returns the recorded outcome. The option is implied by the
// recorded action.
func (p *Player) Outcome(trial, index, _ int) (float64, error) {
	return p.log.PassiveOutcome(trial, index)
}

// WaitForAction returns the next recorded key press of the current trial.
// When down is not allowed the final choice is being asked for.
func (p *Player) WaitForAction(ctx context.Context, _ time.Duration, allowed []action.Side) (session.Response, error) {
	if err := ctx.Err(); err != nil {
		return session.Response{}, err
	}
	if p.trial < 0 {
		return session.Response{}, sperrors.New(sperrors.EInvalidState, "no trial started")
	}
	var side action.Side
	var rt float64
	var err error
	if allows(allowed, action.Down) {
		side, rt, err = p.log.PassiveAction(p.trial, p.cursor)
		p.cursor++
	} else {
		side, rt, err = p.log.FinalChoice(p.trial)
		if err == nil {
			p.chosen = p.trial + 1
		}
	}
	if err != nil {
		return session.Response{}, err
	}
	if !allows(allowed, side) {
		return session.Response{}, sperrors.Newf(sperrors.EReplayData, "recorded key %q is not allowed in trial %d", side, p.trial)
	}
	return session.Response{Side: side, RT: rt}, nil
}

func allows(allowed []action.Side, side action.Side) bool {
	for _, a := range allowed {
		if a == side {
			return true
		}
	}
	return false
}
