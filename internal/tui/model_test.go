package tui

import (
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/octomike/sp-experiment/internal/action"
	"github.com/octomike/sp-experiment/internal/eventlog"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/session"
	"github.com/octomike/sp-experiment/internal/trial"
	"github.com/octomike/sp-experiment/internal/trigger"
)

type recordingLog struct {
	events []eventlog.Event
}

func (r *recordingLog) Log(e eventlog.Event) (eventlog.Record, error) {
	r.events = append(r.events, e)
	return eventlog.Record{}, nil
}

func (r *recordingLog) triggers() []trigger.Trigger {
	out := make([]trigger.Trigger, len(r.events))
	for i, e := range r.events {
		out[i] = e.Trigger
	}
	return out
}

type zeroClock struct{}

func (zeroClock) Now() float64 { return 0 }

type fixedEnv struct{}

func (fixedEnv) Setting(int) (payoff.Setting, error) {
	return payoff.Setting{1, 2, 0.3, 0.7, 3, 4, 0.5, 0.5}, nil
}

func (fixedEnv) Outcome(_, _, option int) (float64, error) {
	return float64(option + 5), nil
}

func newTestModel(t *testing.T, limits trial.Limits, timeout time.Duration) (*Model, *recordingLog, *time.Time) {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.Limits = limits
	cfg.ResponseTimeout = timeout
	log := &recordingLog{}
	m, err := NewModel(cfg, session.Deps{Log: log, Clock: zeroClock{}, Env: fixedEnv{}})
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	now := time.Unix(100, 0)
	m.now = func() time.Time { return now }
	return m, log, &now
}

// drain plays queued stimuli until a response is expected or nothing is
// left to show.
func drain(m *Model) {
	for !m.awaiting && len(m.queue) > 0 {
		m.Update(advanceMsg{seq: m.showSeq})
	}
}

func press(m *Model, key tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: key})
	return cmd
}

func TestModelRunsSession(t *testing.T) {
	m, log, now := newTestModel(t, trial.Limits{MaxSamplesPerTrial: 2, MaxSamplesOverall: 1}, 0)

	if !strings.Contains(m.View(), "Press any key to start.") {
		t.Fatalf("expected intro screen")
	}
	press(m, tea.KeySpace)
	drain(m)
	if !m.awaiting || m.current.Kind != session.Fixation {
		t.Fatalf("expected fixation awaiting a response, got %+v", m.current)
	}

	*now = now.Add(400 * time.Millisecond)
	press(m, tea.KeyLeft)
	drain(m)
	if m.sess.TrialSamples() != 1 {
		t.Fatalf("expected 1 sample, got %d", m.sess.TrialSamples())
	}

	press(m, tea.KeyDown)
	drain(m)
	if m.current.Kind != session.FinalFixation {
		t.Fatalf("expected final fixation, got %+v", m.current)
	}
	// Stopping is not a final choice.
	press(m, tea.KeyDown)
	if !m.awaiting {
		t.Fatalf("down must be ignored during the final choice")
	}

	press(m, tea.KeyRight)
	drain(m)
	if !m.finished || m.current.Kind != session.Goodbye {
		t.Fatalf("expected goodbye screen, got %+v", m.current)
	}
	if m.reward != 6 {
		t.Fatalf("reward = %v, want 6", m.reward)
	}
	trigs := log.triggers()
	if trigs[0] != trigger.BeginExperiment || trigs[len(trigs)-1] != trigger.EndExperiment {
		t.Fatalf("unexpected trigger stream: %v", trigs)
	}

	var rt *float64
	for _, e := range log.events {
		if e.Action != nil && *e.Action == action.SampleLeft {
			rt = e.ResponseTime
		}
	}
	if rt == nil || *rt != 0.4 {
		t.Fatalf("expected sample rt 0.4, got %v", rt)
	}

	cmd := press(m, tea.KeySpace)
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
	if m.Aborted() || m.Err() != nil {
		t.Fatalf("unexpected abort or error: %v", m.Err())
	}
}

type manualClock struct{ now float64 }

func (c *manualClock) Now() float64 { return c.now }

func (r *recordingLog) find(trig trigger.Trigger, nth int) eventlog.Event {
	for _, e := range r.events {
		if e.Trigger == trig {
			if nth == 0 {
				return e
			}
			nth--
		}
	}
	return eventlog.Event{}
}

func TestModelStampsOnsetsWhenShown(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.Limits = trial.Limits{MaxSamplesPerTrial: 3, MaxSamplesOverall: 2}
	log := &recordingLog{}
	clock := &manualClock{}
	sink := &trigger.RecordingSink{}
	m, err := NewModel(cfg, session.Deps{Log: log, Sink: sink, Clock: clock, Env: fixedEnv{}})
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	// play lets every queued stimulus stay up for its frames.
	play := func() {
		for !m.awaiting && len(m.queue) > 0 {
			clock.now += float64(m.current.Frames) / float64(cfg.FPS)
			m.Update(advanceMsg{seq: m.showSeq})
		}
	}
	press(m, tea.KeySpace)
	play()

	clock.now = 10
	press(m, tea.KeyLeft)
	if last := sink.Sent[len(sink.Sent)-1]; last != trigger.MaskOutcome {
		t.Fatalf("outcome trigger sent before it is shown: %v", sink.Sent)
	}
	if m.sess.Pending() == 0 {
		t.Fatalf("expected outcome rows to wait for their stimulus")
	}
	play()
	if m.sess.Pending() != 0 {
		t.Fatalf("rows left unwritten: %d", m.sess.Pending())
	}

	choice := log.find(trigger.LeftChoice, 0)
	mask := log.find(trigger.MaskOutcome, 0)
	shown := log.find(trigger.ShowOutcome, 0)
	next := log.find(trigger.SampleOnset, 1)
	if choice.Onset == nil || mask.Onset == nil || shown.Onset == nil || next.Onset == nil {
		t.Fatalf("missing rows: %v", log.triggers())
	}
	if *choice.Onset != 10 || *mask.Onset != 10 {
		t.Fatalf("choice and mask onsets = %v, %v, want 10", *choice.Onset, *mask.Onset)
	}
	fps := float64(cfg.FPS)
	if want := *mask.Onset + float64(mask.DurationFrames)/fps; math.Abs(*shown.Onset-want) > 1e-9 {
		t.Fatalf("outcome onset = %v, want %v", *shown.Onset, want)
	}
	if want := *shown.Onset + float64(shown.DurationFrames)/fps; math.Abs(*next.Onset-want) > 1e-9 {
		t.Fatalf("fixation onset = %v, want %v", *next.Onset, want)
	}

	for i, e := range log.events {
		if i > 0 && *e.Onset < *log.events[i-1].Onset {
			t.Fatalf("row %d (%s) goes back in time", i, e.Trigger)
		}
	}
	if len(sink.Sent) != len(log.events) {
		t.Fatalf("sent %d triggers for %d rows", len(sink.Sent), len(log.events))
	}
}

func TestModelMissedDeadlineResetsTrial(t *testing.T) {
	m, log, _ := newTestModel(t, trial.DefaultLimits, 2*time.Second)
	press(m, tea.KeySpace)
	drain(m)

	stale := m.deadlineSeq - 1
	m.Update(deadlineMsg{seq: stale})
	if !m.awaiting {
		t.Fatalf("stale deadline must be ignored")
	}

	m.Update(deadlineMsg{seq: m.deadlineSeq})
	if m.awaiting {
		t.Fatalf("expected response window to close")
	}
	drain(m)
	reset := false
	for _, e := range log.events {
		if e.Reset && e.Trigger == trigger.Error {
			reset = true
		}
	}
	if !reset {
		t.Fatalf("expected reset row, got %v", log.triggers())
	}
	if !m.awaiting || m.sess.Trial() != 0 {
		t.Fatalf("expected trial 0 to restart, got trial %d", m.sess.Trial())
	}
}

func TestModelAbort(t *testing.T) {
	m, _, _ := newTestModel(t, trial.DefaultLimits, 0)
	press(m, tea.KeySpace)
	drain(m)
	press(m, tea.KeyEsc)
	if !m.Aborted() {
		t.Fatalf("expected abort")
	}
}

func TestRenderFooter(t *testing.T) {
	m, _, _ := newTestModel(t, trial.DefaultLimits, 0)
	out := m.renderFooter()
	for _, want := range []string{"Trial 1", "Samples 0/5", "Overall 0/10", "Reward 0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("footer missing %q: %s", want, out)
		}
	}
}
