package session

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/octomike/sp-experiment/internal/action"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
	"github.com/octomike/sp-experiment/internal/eventlog"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/trial"
	"github.com/octomike/sp-experiment/internal/trigger"
)

type scripted struct {
	side action.Side
	rt   float64
	err  error
}

type scriptInput struct {
	t     *testing.T
	steps []scripted
	next  int
}

func (s *scriptInput) WaitForAction(_ context.Context, _ time.Duration, allowed []action.Side) (Response, error) {
	if s.next >= len(s.steps) {
		return Response{}, errors.New("script exhausted")
	}
	st := s.steps[s.next]
	s.next++
	if st.err != nil {
		return Response{}, st.err
	}
	for _, a := range allowed {
		if a == st.side {
			return Response{Side: st.side, RT: st.rt}, nil
		}
	}
	s.t.Fatalf("key %q not allowed, allowed %v", st.side, allowed)
	return Response{}, nil
}

type tickClock struct{ now float64 }

func (c *tickClock) Now() float64 {
	c.now += 0.5
	return c.now
}

type fixedEnv struct {
	setting  payoff.Setting
	settings []int
}

func (e *fixedEnv) Setting(trial int) (payoff.Setting, error) {
	e.settings = append(e.settings, trial)
	return e.setting, nil
}

func (e *fixedEnv) Outcome(_, index, option int) (float64, error) {
	return float64(option*10 + index + 1), nil
}

type recordingDisplay struct{ shown []Feedback }

func (d *recordingDisplay) Show(f Feedback) { d.shown = append(d.shown, f) }

type harness struct {
	session *Session
	writer  *eventlog.Writer
	sink    *trigger.RecordingSink
	env     *fixedEnv
	display *recordingDisplay
}

func newHarness(t *testing.T, limits trial.Limits) *harness {
	t.Helper()
	w, err := eventlog.Create(filepath.Join(t.TempDir(), "sub-test_task-sp_events.tsv"), eventlog.Options{FPS: 60, Version: "test"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h := &harness{
		writer:  w,
		sink:    &trigger.RecordingSink{},
		env:     &fixedEnv{setting: payoff.Setting{3, 7, 0.3, 0.7, 9, 1, 0.6, 0.4}},
		display: &recordingDisplay{},
	}
	cfg := DefaultConfig()
	cfg.Limits = limits
	h.session, err = New(cfg, Deps{
		Log:     w,
		Sink:    h.sink,
		Clock:   &tickClock{},
		Env:     h.env,
		Display: h.display,
		Rand:    rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func (h *harness) run(t *testing.T, steps ...scripted) []eventlog.Record {
	t.Helper()
	if err := h.session.Run(context.Background(), &scriptInput{t: t, steps: steps}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := h.writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	recs, err := eventlog.ReadFile(h.writer.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return recs
}

func TestRunEventStream(t *testing.T) {
	h := newHarness(t, trial.Limits{MaxSamplesPerTrial: 5, MaxSamplesOverall: 2})
	recs := h.run(t,
		scripted{side: action.Down, rt: 0.4},
		scripted{side: action.Left, rt: 0.6},
		scripted{side: action.Down, rt: 0.5},
		scripted{side: action.Right, rt: 0.7},
		scripted{side: action.Right, rt: 0.3},
		scripted{side: action.Down, rt: 0.2},
		scripted{side: action.Left, rt: 0.9},
	)

	want := []trigger.Trigger{
		trigger.BeginExperiment, trigger.NewTrial, trigger.SampleOnset,
		trigger.PrematureStop, trigger.SampleOnset,
		trigger.LeftChoice, trigger.MaskOutcome, trigger.ShowOutcome, trigger.SampleOnset,
		trigger.FinalChoice, trigger.NewFinalChoice, trigger.FinalChoiceOnset,
		trigger.RightFinalChoice, trigger.MaskFinalOutcome, trigger.ShowFinalOutcome,
		trigger.NewTrial, trigger.SampleOnset,
		trigger.RightChoice, trigger.MaskOutcome, trigger.ShowOutcome, trigger.SampleOnset,
		trigger.FinalChoice, trigger.NewFinalChoice, trigger.FinalChoiceOnset,
		trigger.LeftFinalChoice, trigger.MaskFinalOutcome, trigger.ShowFinalOutcome,
		trigger.BlockFeedback, trigger.EndExperiment,
	}
	if !reflect.DeepEqual(h.sink.Sent, want) {
		t.Fatalf("triggers = %v\nwant %v", h.sink.Sent, want)
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d rows, want %d", len(recs), len(want))
	}
	for i, rec := range recs {
		if rec.Trigger != want[i] {
			t.Errorf("row %d trigger = %v, want %v", i, rec.Trigger, want[i])
		}
		if rec.Onset == nil {
			t.Errorf("row %d has no onset", i)
		}
	}

	premature := recs[3]
	if premature.Action == nil || premature.Action.Type != action.TypePrematureStop || premature.Action.Index != 2 {
		t.Fatalf("premature stop row = %+v", premature.Action)
	}
	if premature.ResponseTime == nil || *premature.ResponseTime != 0.4 {
		t.Fatalf("premature stop rt = %v", premature.ResponseTime)
	}
	final := recs[12]
	if final.Action == nil || final.Action.Type != action.TypeFinalChoice || final.Action.Index != 1 {
		t.Fatalf("final choice row = %+v", final.Action)
	}
	if recs[1].Columns == nil || recs[1].Duration != 2 {
		t.Fatalf("new trial row = %+v", recs[1])
	}
	if !reflect.DeepEqual(h.session.Rewards(), []float64{12, 2}) {
		t.Fatalf("rewards = %v", h.session.Rewards())
	}
	if !h.session.Done() || !h.session.Ended() {
		t.Fatalf("session not finished")
	}
}

func TestMissedDeadlineResetsTrial(t *testing.T) {
	h := newHarness(t, trial.Limits{MaxSamplesPerTrial: 5, MaxSamplesOverall: 1})
	timeout := sperrors.New(sperrors.EResponseTimeout, "no response")
	recs := h.run(t,
		scripted{side: action.Left, rt: 0.5},
		scripted{err: timeout},
		scripted{side: action.Right, rt: 0.5},
		scripted{side: action.Down, rt: 0.5},
		scripted{side: action.Right, rt: 0.5},
	)
	if !reflect.DeepEqual(h.env.settings, []int{0, 0}) {
		t.Fatalf("settings drawn for trials %v", h.env.settings)
	}
	var resets, newTrials int
	for _, rec := range recs {
		if rec.Reset {
			resets++
			if rec.Trigger != trigger.Error || !rec.InTrial(0) {
				t.Fatalf("reset row = %+v", rec)
			}
		}
		if rec.Trigger == trigger.NewTrial {
			newTrials++
		}
	}
	if resets != 1 || newTrials != 2 {
		t.Fatalf("got %d resets and %d new trials", resets, newTrials)
	}
	if h.session.OverallSamples() != 1 {
		t.Fatalf("overall = %d, want 1", h.session.OverallSamples())
	}
}

func TestForcedStopRow(t *testing.T) {
	h := newHarness(t, trial.Limits{MaxSamplesPerTrial: 2, MaxSamplesOverall: 1})
	recs := h.run(t,
		scripted{side: action.Left, rt: 0.5},
		scripted{side: action.Left, rt: 0.5},
		scripted{side: action.Right, rt: 0.5},
		scripted{side: action.Left, rt: 0.5},
	)
	var forced *eventlog.Record
	for i := range recs {
		if recs[i].Trigger == trigger.ForcedStop {
			forced = &recs[i]
		}
	}
	if forced == nil {
		t.Fatalf("no forced stop row")
	}
	if forced.Action == nil || forced.Action.Type != action.TypeForcedStop || forced.Action.Index != 1 {
		t.Fatalf("forced stop action = %+v", forced.Action)
	}
	if h.session.OverallSamples() != 2 {
		t.Fatalf("overall = %d, want 2", h.session.OverallSamples())
	}
}

func TestRunStopsOnInputError(t *testing.T) {
	h := newHarness(t, trial.DefaultLimits)
	err := h.session.Run(context.Background(), &scriptInput{t: t})
	if err == nil || err.Error() != "script exhausted" {
		t.Fatalf("expected input error, got %v", err)
	}
	if h.session.Ended() {
		t.Fatalf("session should not log an end after an input error")
	}
}

func TestNewRejectsConfig(t *testing.T) {
	deps := Deps{Log: nopLogger{}, Clock: &tickClock{}, Env: &fixedEnv{}}
	bad := DefaultConfig()
	bad.FPS = 0
	if _, err := New(bad, deps); !sperrors.Is(err, sperrors.EConfiguration) {
		t.Fatalf("fps 0: %v", err)
	}
	bad = DefaultConfig()
	bad.Limits.MaxSamplesOverall = 0
	if _, err := New(bad, deps); !sperrors.Is(err, sperrors.EConfiguration) {
		t.Fatalf("overall 0: %v", err)
	}
	if _, err := New(DefaultConfig(), Deps{}); !sperrors.Is(err, sperrors.EConfiguration) {
		t.Fatalf("missing deps: %v", err)
	}
}

type nopLogger struct{}

func (nopLogger) Log(eventlog.Event) (eventlog.Record, error) { return eventlog.Record{}, nil }

type scheduledDisplay struct{ queue []Feedback }

func (d *scheduledDisplay) Show(f Feedback) { d.queue = append(d.queue, f) }

func (d *scheduledDisplay) Scheduled() {}

type memLog struct{ events []eventlog.Event }

func (l *memLog) Log(e eventlog.Event) (eventlog.Record, error) {
	l.events = append(l.events, e)
	return eventlog.Record{}, nil
}

func TestScheduledDisplayStampsOnPresent(t *testing.T) {
	display := &scheduledDisplay{}
	log := &memLog{}
	clock := &tickClock{}
	sink := &trigger.RecordingSink{}
	cfg := DefaultConfig()
	cfg.Limits = trial.Limits{MaxSamplesPerTrial: 5, MaxSamplesOverall: 2}
	env := &fixedEnv{setting: payoff.Setting{3, 7, 0.3, 0.7, 9, 1, 0.6, 0.4}}
	s, err := New(cfg, Deps{Log: log, Sink: sink, Clock: clock, Env: env, Display: display})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if len(log.events) != 0 || len(sink.Sent) != 0 || s.Pending() != 3 {
		t.Fatalf("rows written before their stimuli: %d rows, %d pending", len(log.events), s.Pending())
	}

	// Presenting out of order holds the later row back.
	if err := display.queue[1].Present(); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if len(log.events) != 0 || !reflect.DeepEqual(sink.Sent, []trigger.Trigger{trigger.NewTrial}) {
		t.Fatalf("rows = %d, triggers = %v", len(log.events), sink.Sent)
	}
	for _, f := range display.queue {
		if err := f.Present(); err != nil {
			t.Fatalf("Present: %v", err)
		}
	}
	if len(log.events) != 3 || s.Pending() != 0 {
		t.Fatalf("rows = %d, pending = %d", len(log.events), s.Pending())
	}
	if *log.events[1].Onset != 0.5 || *log.events[0].Onset != 1.0 {
		t.Fatalf("onsets = %v, %v", *log.events[0].Onset, *log.events[1].Onset)
	}
	display.queue = nil

	clock.now = 10
	if err := s.Press(action.Left, 0.3); err != nil {
		t.Fatalf("Press: %v", err)
	}
	if len(log.events) != 4 || log.events[3].Trigger != trigger.LeftChoice || *log.events[3].Onset != 10.5 {
		t.Fatalf("response row not written at press time: %+v", log.events[len(log.events)-1])
	}
	if s.Pending() != 3 {
		t.Fatalf("pending = %d, want mask, outcome and fixation", s.Pending())
	}
}
