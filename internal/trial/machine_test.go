package trial

import (
	"reflect"
	"testing"

	"github.com/octomike/sp-experiment/internal/action"
	sperrors "github.com/octomike/sp-experiment/internal/errors"
)

func newMachine(t *testing.T, perTrial, overall int) *Machine {
	t.Helper()
	m, err := NewMachine(Limits{MaxSamplesPerTrial: perTrial, MaxSamplesOverall: overall})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

func mustSteps(t *testing.T) func([]Step, error) []Step {
	return func(steps []Step, err error) []Step {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return steps
	}
}

func sample(t *testing.T, m *Machine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		steps := mustSteps(t)(m.Sample(action.Left))
		if steps[0] != SampleAccepted {
			t.Fatalf("sample %d: got %v", i+1, steps)
		}
	}
}

func TestStartEmitsNewTrial(t *testing.T) {
	m := newMachine(t, 5, 10)
	if m.State() != TrialComplete || m.Trial() != -1 {
		t.Fatalf("unexpected initial state %v trial %d", m.State(), m.Trial())
	}
	steps := mustSteps(t)(m.Start())
	if !reflect.DeepEqual(steps, []Step{NewTrial, SampleOnset}) {
		t.Fatalf("got %v", steps)
	}
	if m.State() != AwaitingSample || m.Trial() != 0 {
		t.Fatalf("got state %v trial %d", m.State(), m.Trial())
	}
}

func TestPrematureStopKeepsSampling(t *testing.T) {
	m := newMachine(t, 5, 10)
	mustSteps(t)(m.Start())
	for i := 0; i < 3; i++ {
		steps := mustSteps(t)(m.Stop())
		if !reflect.DeepEqual(steps, []Step{PrematureStop, SampleOnset}) {
			t.Fatalf("stop %d: got %v", i, steps)
		}
		if m.State() != AwaitingSample {
			t.Fatalf("stop %d: state %v", i, m.State())
		}
	}
	if _, err := m.Choose(action.Left); !sperrors.Is(err, sperrors.EInvalidState) {
		t.Fatalf("expected E_INVALID_STATE, got %v", err)
	}
}

func TestStopAfterSampleAsksForFinalChoice(t *testing.T) {
	m := newMachine(t, 5, 10)
	mustSteps(t)(m.Start())
	sample(t, m, 1)
	steps := mustSteps(t)(m.Stop())
	if !reflect.DeepEqual(steps, []Step{Stop, FinalChoicePrompt}) {
		t.Fatalf("got %v", steps)
	}
	if m.State() != AwaitingFinalChoice {
		t.Fatalf("state %v", m.State())
	}
}

func TestForcedStopAfterMaxSamples(t *testing.T) {
	m := newMachine(t, 5, 100)
	mustSteps(t)(m.Start())
	sample(t, m, 4)
	if !m.ForcedStopArmed() {
		t.Fatalf("expected forced stop to be armed after 4 samples")
	}
	sample(t, m, 1)
	if m.TrialSamples() != 5 || m.State() != AwaitingSample {
		t.Fatalf("got %d samples in state %v", m.TrialSamples(), m.State())
	}
	steps := mustSteps(t)(m.Sample(action.Right))
	if !reflect.DeepEqual(steps, []Step{ForcedStop, FinalChoicePrompt}) {
		t.Fatalf("got %v", steps)
	}
	if m.State() != AwaitingFinalChoice || m.TrialSamples() != 5 {
		t.Fatalf("got %d samples in state %v", m.TrialSamples(), m.State())
	}
}

func TestSessionEndsAfterBudget(t *testing.T) {
	m := newMachine(t, 5, 10)
	for i, n := range []int{3, 4, 5} {
		mustSteps(t)(m.Start())
		sample(t, m, n)
		mustSteps(t)(m.Stop())
		steps := mustSteps(t)(m.Choose(action.Right))
		last := i == 2
		if got := steps[len(steps)-1] == SessionEnd; got != last {
			t.Fatalf("trial %d: steps %v", i, steps)
		}
		if !last && m.State() != TrialComplete {
			t.Fatalf("trial %d: state %v", i, m.State())
		}
	}
	if !m.Done() || m.OverallSamples() != 12 {
		t.Fatalf("done=%v overall=%d", m.Done(), m.OverallSamples())
	}
	if _, err := m.Start(); !sperrors.Is(err, sperrors.EInvalidState) {
		t.Fatalf("expected E_INVALID_STATE, got %v", err)
	}
}

func TestResetRestartsTrial(t *testing.T) {
	m := newMachine(t, 5, 10)
	mustSteps(t)(m.Start())
	sample(t, m, 4)
	steps := mustSteps(t)(m.Reset())
	if !reflect.DeepEqual(steps, []Step{TrialReset, NewTrial, SampleOnset}) {
		t.Fatalf("got %v", steps)
	}
	if m.Trial() != 0 || m.TrialSamples() != 0 || m.ForcedStopArmed() {
		t.Fatalf("trial %d samples %d armed %v", m.Trial(), m.TrialSamples(), m.ForcedStopArmed())
	}
	if m.OverallSamples() != 0 {
		t.Fatalf("reset trial counted %d samples", m.OverallSamples())
	}
}

func TestInvalidOperations(t *testing.T) {
	m := newMachine(t, 5, 10)
	if _, err := m.Sample(action.Left); !sperrors.Is(err, sperrors.EInvalidState) {
		t.Fatalf("sample before start: %v", err)
	}
	if _, err := m.Reset(); !sperrors.Is(err, sperrors.EInvalidState) {
		t.Fatalf("reset before start: %v", err)
	}
	mustSteps(t)(m.Start())
	if _, err := m.Sample(action.Down); !sperrors.Is(err, sperrors.EInvalidState) {
		t.Fatalf("sample with down: %v", err)
	}
	if _, err := m.Start(); !sperrors.Is(err, sperrors.EInvalidState) {
		t.Fatalf("start twice: %v", err)
	}
}

func TestLimitsValidate(t *testing.T) {
	for _, l := range []Limits{{0, 10}, {5, 0}, {-1, -1}} {
		if _, err := NewMachine(l); !sperrors.Is(err, sperrors.EConfiguration) {
			t.Errorf("%+v: expected E_CONFIGURATION, got %v", l, err)
		}
	}
}
