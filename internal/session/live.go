package session

import (
	"time"

	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/payoff"
)

// LiveEnvironment draws a fresh random setting for every trial start,
// including restarts after a reset.
type LiveEnvironment struct {
	gen   *payoff.Generator
	trial int
	dist  *payoff.Distributions
}

// NewLiveEnvironment returns an environment backed by gen.
func NewLiveEnvironment(gen *payoff.Generator) *LiveEnvironment {
	return &LiveEnvironment{gen: gen, trial: -1}
}

// Setting implements Environment.
func (e *LiveEnvironment) Setting(trial int) (payoff.Setting, error) {
	dist, err := payoff.Build(e.gen.Setting(), e.gen.Rand())
	if err != nil {
		return payoff.Setting{}, err
	}
	e.trial = trial
	e.dist = dist
	return dist.Setting(), nil
}

// Outcome implements Environment.
func (e *LiveEnvironment) Outcome(trial, _, option int) (float64, error) {
	if e.dist == nil || trial != e.trial {
		return 0, sperrors.Newf(sperrors.EInvalidState, "no setting drawn for trial %d", trial)
	}
	return e.dist.Draw(option)
}

// WallClock measures seconds from its creation.
type WallClock struct {
	start time.Time
}

// NewWallClock starts a clock now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now implements Clock.
func (c *WallClock) Now() float64 {
	return time.Since(c.start).Seconds()
}
