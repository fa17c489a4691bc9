// Package session runs the Sampling Paradigm: it feeds participant
// responses into the trial machine and turns every resulting step into a
// log row, a trigger and a stimulus.
package session

import (
	"context"
	"math/rand"
	"time"

	"github.com/octomike/sp-experiment/internal/action"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/eventlog"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/trial"
	"github.com/octomike/sp-experiment/internal/trigger"
)

// Clock returns seconds since the experiment timer started.
type Clock interface {
	Now() float64
}

// Response is one key press and its reaction time in seconds.
type Response struct {
	Side action.Side
	RT   float64
}

// Input blocks until the participant presses one of the allowed keys. A
// missed deadline is reported as E_RESPONSE_TIMEOUT. A zero timeout waits
// forever.
type Input interface {
	WaitForAction(ctx context.Context, timeout time.Duration, allowed []action.Side) (Response, error)
}

// Display shows stimuli. A plain Display is taken to show a stimulus
// before Show returns, so the session logs its row right away.
type Display interface {
	Show(f Feedback)
}

// ScheduledDisplay shows stimuli some time after Show returns. It must
// call Feedback.Present when each stimulus appears. Rows are written in
// the order the session produced them, so a response row waits for the
// stimulus rows queued before it.
type ScheduledDisplay interface {
	Display
	Scheduled()
}

// Environment provides the payoff setting of each trial and draws rewards.
// index counts the outcomes already drawn in the trial.
type Environment interface {
	Setting(trial int) (payoff.Setting, error)
	Outcome(trial, index, option int) (float64, error)
}

// Logger persists events.
type Logger interface {
	Log(e eventlog.Event) (eventlog.Record, error)
}

// Config holds the session budgets and timings. Timings are in frames
// except the mask jitter bounds.
type Config struct {
	Limits          trial.Limits
	FPS             int
	ResponseTimeout time.Duration
	MessageFrames   int
	MaskMinMs       int
	MaskMaxMs       int
	OutcomeFrames   int
}

// DefaultConfig returns the timings used in the lab.
func DefaultConfig() Config {
	return Config{
		Limits:        trial.DefaultLimits,
		FPS:           60,
		MessageFrames: 120,
		MaskMinMs:     1000,
		MaskMaxMs:     2000,
		OutcomeFrames: 120,
	}
}

// Deps are the collaborators of a session. Display and Sink may be nil.
type Deps struct {
	Log     Logger
	Sink    trigger.Sink
	Clock   Clock
	Env     Environment
	Display Display
	Rand    *rand.Rand
}

// Session couples the trial machine to its collaborators.
type Session struct {
	cfg     Config
	machine *trial.Machine
	log     Logger
	sink    trigger.Sink
	clock   Clock
	env     Environment
	display Display
	rnd     *rand.Rand

	scheduled bool
	pending   []*pendingRow

	urns     *payoff.Urns
	outcomes int
	rewards  []float64
	began    bool
	ended    bool
}

// New validates cfg and returns a session ready for Begin.
func New(cfg Config, deps Deps) (*Session, error) {
	if cfg.FPS <= 0 {
		return nil, sperrors.Newf(sperrors.EConfiguration, "invalid frame rate %d", cfg.FPS)
	}
	if cfg.MaskMaxMs < cfg.MaskMinMs {
		return nil, sperrors.Newf(sperrors.EConfiguration, "mask jitter max %dms is below min %dms", cfg.MaskMaxMs, cfg.MaskMinMs)
	}
	m, err := trial.NewMachine(cfg.Limits)
	if err != nil {
		return nil, err
	}
	if deps.Log == nil || deps.Clock == nil || deps.Env == nil {
		return nil, sperrors.New(sperrors.EConfiguration, "session needs a logger, a clock and an environment")
	}
	s := &Session{
		cfg:     cfg,
		machine: m,
		log:     deps.Log,
		sink:    deps.Sink,
		clock:   deps.Clock,
		env:     deps.Env,
		display: deps.Display,
		rnd:     deps.Rand,
	}
	if s.sink == nil {
		s.sink = trigger.NopSink{}
	}
	if s.display == nil {
		s.display = nopDisplay{}
	}
	_, s.scheduled = s.display.(ScheduledDisplay)
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s, nil
}

// State returns the state of the trial machine.
func (s *Session) State() trial.State { return s.machine.State() }

// Trial returns the current trial index.
func (s *Session) Trial() int { return s.machine.Trial() }

// TrialSamples returns the samples taken in the current trial.
func (s *Session) TrialSamples() int { return s.machine.TrialSamples() }

// OverallSamples returns the samples of all completed trials.
func (s *Session) OverallSamples() int { return s.machine.OverallSamples() }

// Done reports whether the sample budget is spent.
func (s *Session) Done() bool { return s.machine.Done() }

// Pending returns the number of rows waiting for their stimulus to be
// presented.
func (s *Session) Pending() int { return len(s.pending) }

// Ended reports whether End was called.
func (s *Session) Ended() bool { return s.ended }

// Rewards returns the final-choice outcomes so far, one per trial.
func (s *Session) Rewards() []float64 {
	return append([]float64(nil), s.rewards...)
}

// Timeout returns the configured response deadline.
func (s *Session) Timeout() time.Duration { return s.cfg.ResponseTimeout }

// Allowed returns the keys accepted in the current state.
func (s *Session) Allowed() []action.Side {
	switch s.machine.State() {
	case trial.AwaitingSample:
		return []action.Side{action.Left, action.Right, action.Down}
	case trial.AwaitingFinalChoice:
		return []action.Side{action.Left, action.Right}
	}
	return nil
}

// Begin logs the start of the experiment and opens the first trial.
func (s *Session) Begin() error {
	if s.began {
		return sperrors.New(sperrors.EInvalidState, "session already began")
	}
	s.began = true
	if err := s.present(Feedback{Kind: Welcome, Text: welcomeText}, &eventlog.Event{Trigger: trigger.BeginExperiment}); err != nil {
		return err
	}
	return s.startTrial()
}

// Press handles one key press with its reaction time.
func (s *Session) Press(side action.Side, rt float64) error {
	var (
		steps []trial.Step
		err   error
	)
	switch s.machine.State() {
	case trial.AwaitingSample:
		if side == action.Down {
			steps, err = s.machine.Stop()
		} else {
			steps, err = s.machine.Sample(side)
		}
	case trial.AwaitingFinalChoice:
		steps, err = s.machine.Choose(side)
	default:
		return sperrors.Newf(sperrors.EInvalidState, "no response expected in state %s", s.machine.State())
	}
	if err != nil {
		return err
	}
	if err := s.apply(steps, side, &rt); err != nil {
		return err
	}
	if s.machine.State() == trial.TrialComplete {
		return s.startTrial()
	}
	return nil
}

// MissedDeadline logs an error marker and restarts the current trial.
func (s *Session) MissedDeadline() error {
	steps, err := s.machine.Reset()
	if err != nil {
		return err
	}
	return s.apply(steps, "", nil)
}

// End logs the end of the experiment. It is safe to call once.
func (s *Session) End() error {
	if s.ended {
		return nil
	}
	s.ended = true
	return s.present(Feedback{Kind: Goodbye, Text: goodbyeText}, &eventlog.Event{DurationFrames: 1, Trigger: trigger.EndExperiment})
}

// Run drives the session with input until the budget is spent, then
// logs the end of the experiment.
func (s *Session) Run(ctx context.Context, input Input) error {
	if err := s.Begin(); err != nil {
		return err
	}
	for !s.machine.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := input.WaitForAction(ctx, s.cfg.ResponseTimeout, s.Allowed())
		if sperrors.Is(err, sperrors.EResponseTimeout) {
			if err := s.MissedDeadline(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := s.Press(resp.Side, resp.RT); err != nil {
			return err
		}
	}
	return s.End()
}

func (s *Session) startTrial() error {
	steps, err := s.machine.Start()
	if err != nil {
		return err
	}
	return s.apply(steps, "", nil)
}

func (s *Session) apply(steps []trial.Step, side action.Side, rt *float64) error {
	for _, step := range steps {
		if err := s.applyStep(step, side, rt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) applyStep(step trial.Step, side action.Side, rt *float64) error {
	t := s.machine.Trial()
	switch step {
	case trial.NewTrial:
		return s.newTrial(t)
	case trial.SampleOnset:
		return s.present(Feedback{Kind: Fixation, Trial: t}, &eventlog.Event{Trial: &t, Trigger: trigger.SampleOnset})
	case trial.SampleAccepted:
		option, _ := side.Option()
		trig := trigger.LeftChoice
		if option == 1 {
			trig = trigger.RightChoice
		}
		if err := s.emitAction(t, action.SampleLeft+action.Code(option), rt, trig); err != nil {
			return err
		}
		return s.outcome(t, option, trigger.MaskOutcome, trigger.ShowOutcome, SampleOutcome)
	case trial.PrematureStop:
		if err := s.emitAction(t, action.PrematureStop, rt, trigger.PrematureStop); err != nil {
			return err
		}
		return s.present(Feedback{Kind: Message, Trial: t, Text: prematureStopText, Frames: s.cfg.MessageFrames}, nil)
	case trial.ForcedStop:
		option, _ := side.Option()
		if err := s.present(Feedback{Kind: Message, Trial: t, Text: forcedStopText, Frames: s.cfg.MessageFrames}, nil); err != nil {
			return err
		}
		return s.emitAction(t, action.ForcedStopLeft+action.Code(option), rt, trigger.ForcedStop)
	case trial.Stop:
		return s.emitAction(t, action.Stop, rt, trigger.FinalChoice)
	case trial.FinalChoicePrompt:
		prompt := Feedback{Kind: Message, Trial: t, Text: finalChoiceText, Frames: s.cfg.MessageFrames}
		if err := s.present(prompt, &eventlog.Event{Trial: &t, DurationFrames: s.cfg.MessageFrames, Trigger: trigger.NewFinalChoice}); err != nil {
			return err
		}
		return s.present(Feedback{Kind: FinalFixation, Trial: t}, &eventlog.Event{Trial: &t, Trigger: trigger.FinalChoiceOnset})
	case trial.FinalChoiceAccepted:
		option, _ := side.Option()
		trig := trigger.LeftFinalChoice
		if option == 1 {
			trig = trigger.RightFinalChoice
		}
		if err := s.emitAction(t, action.FinalLeft+action.Code(option), rt, trig); err != nil {
			return err
		}
		return s.outcome(t, option, trigger.MaskFinalOutcome, trigger.ShowFinalOutcome, FinalOutcome)
	case trial.TrialReset:
		msg := Feedback{Kind: Message, Trial: t, Text: resetText, Frames: s.cfg.MessageFrames}
		return s.present(msg, &eventlog.Event{Trial: &t, DurationFrames: s.cfg.MessageFrames, Trigger: trigger.Error, Reset: true})
	case trial.SessionEnd:
		return s.blockFeedback()
	}
	return sperrors.Newf(sperrors.EInvalidState, "unhandled step %s", step)
}

func (s *Session) newTrial(t int) error {
	setting, err := s.env.Setting(t)
	if err != nil {
		return err
	}
	urns, err := setting.Urns()
	if err != nil {
		return err
	}
	s.urns = &urns
	s.outcomes = 0
	msg := Feedback{Kind: Message, Trial: t, Text: newTrialText, Frames: s.cfg.MessageFrames}
	return s.present(msg, &eventlog.Event{Trial: &t, DurationFrames: s.cfg.MessageFrames, Trigger: trigger.NewTrial, Urns: s.urns})
}

func (s *Session) outcome(t, option int, mask, show trigger.Trigger, kind FeedbackKind) error {
	value, err := s.env.Outcome(t, s.outcomes, option)
	if err != nil {
		return err
	}
	s.outcomes++
	maskFrames := payoff.JitteredWaitFrames(s.rnd, s.cfg.MaskMinMs, s.cfg.MaskMaxMs, s.cfg.FPS)
	maskFb := Feedback{Kind: Mask, Trial: t, Option: option, Frames: maskFrames}
	if err := s.present(maskFb, &eventlog.Event{Trial: &t, DurationFrames: maskFrames, Trigger: mask}); err != nil {
		return err
	}
	shown := Feedback{Kind: kind, Trial: t, Option: option, Value: value, Frames: s.cfg.OutcomeFrames}
	if err := s.present(shown, &eventlog.Event{Trial: &t, DurationFrames: s.cfg.OutcomeFrames, Outcome: &value, Trigger: show}); err != nil {
		return err
	}
	if kind == FinalOutcome {
		s.rewards = append(s.rewards, value)
	}
	return nil
}

func (s *Session) blockFeedback() error {
	total := 0.0
	for _, r := range s.rewards {
		total += r
	}
	fb := Feedback{Kind: BlockFeedback, Trial: s.machine.Trial(), Value: total, Frames: s.cfg.MessageFrames}
	return s.present(fb, &eventlog.Event{DurationFrames: s.cfg.MessageFrames, Trigger: trigger.BlockFeedback})
}

func (s *Session) emitAction(t int, code action.Code, rt *float64, trig trigger.Trigger) error {
	return s.emit(eventlog.Event{Trial: &t, Action: &code, ResponseTime: rt, Trigger: trig})
}

// pendingRow is a row produced while a ScheduledDisplay still has
// stimuli to show. ready is set once its onset is stamped.
type pendingRow struct {
	event eventlog.Event
	ready bool
}

// present shows f. A non-nil e is the row of the stimulus: it is stamped
// with the onset of f, so for a ScheduledDisplay it waits until f is
// presented.
func (s *Session) present(f Feedback, e *eventlog.Event) error {
	if e == nil {
		s.display.Show(f)
		return nil
	}
	if !s.scheduled {
		s.display.Show(f)
		return s.emit(*e)
	}
	row := &pendingRow{event: *e}
	s.pending = append(s.pending, row)
	f.onset = func() error {
		if row.ready {
			return nil
		}
		s.stamp(&row.event)
		row.ready = true
		return s.flush()
	}
	s.display.Show(f)
	return nil
}

// emit stamps the onset of a row that happens now, such as a response.
func (s *Session) emit(e eventlog.Event) error {
	s.stamp(&e)
	if !s.scheduled {
		_, err := s.log.Log(e)
		return err
	}
	s.pending = append(s.pending, &pendingRow{event: e, ready: true})
	return s.flush()
}

// stamp sets the onset and sends the trigger.
func (s *Session) stamp(e *eventlog.Event) {
	onset := s.clock.Now()
	e.Onset = &onset
	if e.Trigger != trigger.None {
		s.sink.Send(e.Trigger)
	}
}

// flush writes the leading rows whose onsets are known.
func (s *Session) flush() error {
	for len(s.pending) > 0 && s.pending[0].ready {
		if _, err := s.log.Log(s.pending[0].event); err != nil {
			return err
		}
		s.pending = s.pending[1:]
	}
	return nil
}
