// Package trial drives the sample and final-choice control flow of a session.
package trial

import (
	"github.com/octomike/sp-experiment/internal/action"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
)

// State is the position of the machine within a trial.
type State int

const (
	TrialComplete State = iota
	AwaitingSample
	AwaitingFinalChoice
	SessionComplete
)

func (s State) String() string {
	switch s {
	case TrialComplete:
		return "trial_complete"
	case AwaitingSample:
		return "awaiting_sample"
	case AwaitingFinalChoice:
		return "awaiting_final_choice"
	case SessionComplete:
		return "session_complete"
	}
	return "unknown"
}

// Step is one event emitted by a transition. Callers turn steps into log
// rows, triggers and stimuli.
type Step int

const (
	NewTrial Step = iota + 1
	SampleOnset
	SampleAccepted
	PrematureStop
	ForcedStop
	Stop
	FinalChoicePrompt
	FinalChoiceAccepted
	TrialReset
	SessionEnd
)

var stepNames = map[Step]string{
	NewTrial:            "new_trial",
	SampleOnset:         "sample_onset",
	SampleAccepted:      "sample_accepted",
	PrematureStop:       "premature_stop",
	ForcedStop:          "forced_stop",
	Stop:                "stop",
	FinalChoicePrompt:   "final_choice_prompt",
	FinalChoiceAccepted: "final_choice_accepted",
	TrialReset:          "trial_reset",
	SessionEnd:          "session_end",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// Limits bound the number of samples.
type Limits struct {
	MaxSamplesPerTrial int
	MaxSamplesOverall  int
}

// DefaultLimits are the budgets used when nothing is configured.
var DefaultLimits = Limits{MaxSamplesPerTrial: 5, MaxSamplesOverall: 10}

// Validate requires both limits to be positive.
func (l Limits) Validate() error {
	if l.MaxSamplesPerTrial <= 0 {
		return sperrors.Newf(sperrors.EConfiguration, "max samples per trial must be positive, got %d", l.MaxSamplesPerTrial)
	}
	if l.MaxSamplesOverall <= 0 {
		return sperrors.Newf(sperrors.EConfiguration, "max samples overall must be positive, got %d", l.MaxSamplesOverall)
	}
	return nil
}

// Machine is the trial state machine. It is not safe for concurrent use.
type Machine struct {
	limits       Limits
	state        State
	trial        int
	trialSamples int
	overall      int
	armed        bool
}

// NewMachine returns a machine in TrialComplete, before the first trial.
func NewMachine(l Limits) (*Machine, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &Machine{limits: l, state: TrialComplete, trial: -1}, nil
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Trial returns the current trial index, -1 before the first Start.
func (m *Machine) Trial() int { return m.trial }

// TrialSamples returns the samples accepted in the current trial.
func (m *Machine) TrialSamples() int { return m.trialSamples }

// OverallSamples returns the samples of all completed trials.
func (m *Machine) OverallSamples() int { return m.overall }

// ForcedStopArmed reports whether the next sample request may be forced
// into a final choice.
func (m *Machine) ForcedStopArmed() bool { return m.armed }

// Done reports whether the sample budget is spent.
func (m *Machine) Done() bool { return m.state == SessionComplete }

// Limits returns the configured limits.
func (m *Machine) Limits() Limits { return m.limits }

// Start begins the next trial.
func (m *Machine) Start() ([]Step, error) {
	if m.state != TrialComplete {
		return nil, m.invalid("start a trial")
	}
	m.trial++
	m.clearTrial()
	m.state = AwaitingSample
	return []Step{NewTrial, SampleOnset}, nil
}

// Sample handles a left or right sample request. Once the per-trial
// maximum is reached an armed machine turns the request into a forced stop.
func (m *Machine) Sample(side action.Side) ([]Step, error) {
	if m.state != AwaitingSample {
		return nil, m.invalid("sample")
	}
	if _, ok := side.Option(); !ok {
		return nil, sperrors.Newf(sperrors.EInvalidState, "cannot sample with key %q", side)
	}
	if m.armed && m.trialSamples >= m.limits.MaxSamplesPerTrial {
		m.state = AwaitingFinalChoice
		return []Step{ForcedStop, FinalChoicePrompt}, nil
	}
	m.trialSamples++
	if m.trialSamples+1 >= m.limits.MaxSamplesPerTrial {
		m.armed = true
	}
	return []Step{SampleAccepted, SampleOnset}, nil
}

// Stop asks for the final choice. Without a sample the request is
// rejected and sampling continues.
func (m *Machine) Stop() ([]Step, error) {
	if m.state != AwaitingSample {
		return nil, m.invalid("stop")
	}
	if m.trialSamples == 0 {
		return []Step{PrematureStop, SampleOnset}, nil
	}
	m.state = AwaitingFinalChoice
	return []Step{Stop, FinalChoicePrompt}, nil
}

// Choose records the final choice and completes the trial. The session
// ends once the completed trials spent the overall budget.
func (m *Machine) Choose(side action.Side) ([]Step, error) {
	if m.state != AwaitingFinalChoice {
		return nil, m.invalid("choose")
	}
	if _, ok := side.Option(); !ok {
		return nil, sperrors.Newf(sperrors.EInvalidState, "cannot choose with key %q", side)
	}
	m.overall += m.trialSamples
	m.state = TrialComplete
	if m.overall >= m.limits.MaxSamplesOverall {
		m.state = SessionComplete
		return []Step{FinalChoiceAccepted, SessionEnd}, nil
	}
	return []Step{FinalChoiceAccepted}, nil
}

// Reset restarts the current trial after a missed response deadline.
func (m *Machine) Reset() ([]Step, error) {
	if m.state != AwaitingSample && m.state != AwaitingFinalChoice {
		return nil, m.invalid("reset")
	}
	m.clearTrial()
	m.state = AwaitingSample
	return []Step{TrialReset, NewTrial, SampleOnset}, nil
}

func (m *Machine) clearTrial() {
	m.trialSamples = 0
	m.armed = false
}

func (m *Machine) invalid(op string) error {
	return sperrors.NewWithDetails(sperrors.EInvalidState, "cannot "+op+" now", map[string]string{"state": m.state.String()})
}
