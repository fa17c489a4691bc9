package statsui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/octomike/sp-experiment/internal/action"
	"github.com/octomike/sp-experiment/internal/eventlog"
	"github.com/octomike/sp-experiment/internal/model"
)

type fakeLoader struct {
	sessions []model.SessionSummary
	trials   []model.TrialSummary
	events   map[string][]eventlog.Record
	err      error
}

func (f *fakeLoader) ListSessions(context.Context, model.StatsConfig) ([]model.SessionSummary, error) {
	return f.sessions, f.err
}

func (f *fakeLoader) TrialSummaries(context.Context, []string) ([]model.TrialSummary, error) {
	return f.trials, nil
}

func (f *fakeLoader) GetEvents(_ context.Context, id string) ([]eventlog.Record, error) {
	return f.events[id], nil
}

func newLoader() *fakeLoader {
	at := eventlog.Ptr[float64]
	tr := eventlog.Ptr[int]
	return &fakeLoader{
		sessions: []model.SessionSummary{
			{ID: "a", Subject: "01", ImportedAt: time.Unix(0, 0), Trials: 1, Samples: 2, TotalReward: 4},
			{ID: "b", Subject: "02", ImportedAt: time.Unix(60, 0), Trials: 1, Samples: 1, TotalReward: 3},
		},
		trials: []model.TrialSummary{
			{SessionID: "a", Trial: 0, Samples: 2, FinalOption: 1, FinalOutcome: 4, ChoseBetter: true},
			{SessionID: "b", Trial: 0, Samples: 1, FinalOption: 0, FinalOutcome: 3},
		},
		events: map[string][]eventlog.Record{
			"b": {
				{Trial: tr(0), Outcome: at(7)},
				{Trial: tr(0), Reset: true},
				{Trial: tr(0), Outcome: at(5)},
				{Trial: tr(0), Action: &action.Action{Type: action.TypeFinalChoice, Index: 0}},
				{Trial: tr(0), Outcome: at(3)},
			},
		},
	}
}

func TestModelSelectsLatestSession(t *testing.T) {
	m := NewModel(newLoader(), model.StatsConfig{})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	if m.selected != "b" {
		t.Fatalf("expected latest session selected, got %q", m.selected)
	}
	view := m.View()
	if !strings.Contains(view, "Overview") || !strings.Contains(view, "subject=any") {
		t.Fatalf("unexpected view:\n%s", view)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if m.active != tabTrials {
		t.Fatalf("expected trials tab, got %d", m.active)
	}
	view = m.View()
	if !strings.Contains(view, "Session b") || !strings.Contains(view, "Sampled outcomes") {
		t.Fatalf("expected trial detail in view:\n%s", view)
	}
}

func TestModelEnterOpensSession(t *testing.T) {
	m := NewModel(newLoader(), model.StatsConfig{})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.active != tabTrials || m.selected != "a" {
		t.Fatalf("expected session a on trials tab, got %q on %d", m.selected, m.active)
	}
}

func TestModelLoadError(t *testing.T) {
	loader := newLoader()
	loader.err = errors.New("database is locked")
	m := NewModel(loader, model.StatsConfig{})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	if !strings.Contains(m.View(), "database is locked") {
		t.Fatalf("expected error in footer")
	}
}

func TestSampleSparklinesKeepLastAttempt(t *testing.T) {
	lines := sampleSparklines(newLoader().events["b"])
	if len(lines) != 1 {
		t.Fatalf("expected one trial line, got %v", lines)
	}
	if !strings.HasSuffix(lines[0], " 5") || strings.Contains(lines[0], "7") {
		t.Fatalf("expected only the post-reset sample, got %q", lines[0])
	}
}

func TestCurveWindowSteps(t *testing.T) {
	if nextCurveWindow(1) != 5 || nextCurveWindow(5) != 10 || nextCurveWindow(7) != 10 {
		t.Fatalf("unexpected next windows")
	}
	if prevCurveWindow(5) != 1 || prevCurveWindow(10) != 5 || prevCurveWindow(7) != 5 {
		t.Fatalf("unexpected prev windows")
	}
}

func TestFilterFormApplies(t *testing.T) {
	loader := newLoader()
	m := NewModel(loader, model.StatsConfig{CurveWindow: 5})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if !m.form.active {
		t.Fatalf("expected filter form to open")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("01")})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.form.active || m.cfg.Subject != "01" || m.cfg.CurveWindow != 5 {
		t.Fatalf("unexpected config after apply: %+v", m.cfg)
	}
}

func TestFilterFormRejectsBadInput(t *testing.T) {
	f := newFilterForm()
	f.open(model.StatsConfig{CurveWindow: 1})
	f.fields[fieldLast].SetValue("-2")
	if _, err := f.parse(); err == nil {
		t.Fatalf("expected negative last to be rejected")
	}
	f.fields[fieldLast].SetValue("")
	f.fields[fieldSince].SetValue("2026-13-01")
	if _, err := f.parse(); err == nil {
		t.Fatalf("expected bad date to be rejected")
	}
	f.fields[fieldSince].SetValue("2026-02-01")
	f.fields[fieldWindow].SetValue("0")
	if _, err := f.parse(); err == nil {
		t.Fatalf("expected zero window to be rejected")
	}
	f.fields[fieldWindow].SetValue("3")
	cfg, err := f.parse()
	if err != nil || cfg.Since == nil || cfg.CurveWindow != 3 {
		t.Fatalf("parse = %+v, %v", cfg, err)
	}
}

func TestFitBox(t *testing.T) {
	got := fitBox("ab\ncdef\nx", 4, 2)
	if got != "ab  \ncdef" {
		t.Fatalf("fitBox = %q", got)
	}
	if got := fitBox("", 2, 2); got != "  \n  " {
		t.Fatalf("fitBox empty = %q", got)
	}
	if got := clip("subject=any since=any", 10); got != "subject..." {
		t.Fatalf("clip = %q", got)
	}
}
