package statsui

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/octomike/sp-experiment/internal/model"
)

const dateLayout = "2006-01-02"

// Filter form fields, in tab order.
const (
	fieldSubject = iota
	fieldSince
	fieldLast
	fieldWindow
	fieldCount
)

var fieldPrompts = [fieldCount]string{
	fieldSubject: "Subject: ",
	fieldSince:   "Since (YYYY-MM-DD): ",
	fieldLast:    "Last: ",
	fieldWindow:  "Curve window: ",
}

// filterForm edits a StatsConfig. It is open while active is set.
type filterForm struct {
	fields [fieldCount]textinput.Model
	focus  int
	active bool
	err    string
}

// formResult tells the model what a key press did to the form.
type formResult int

const (
	formEditing formResult = iota
	formApplied
	formCancelled
)

func newFilterForm() filterForm {
	var f filterForm
	for i := range f.fields {
		in := textinput.New()
		in.Prompt = fieldPrompts[i]
		in.Cursor.SetMode(cursor.CursorBlink)
		f.fields[i] = in
	}
	return f
}

// open fills the fields from cfg and focuses the first one.
func (f *filterForm) open(cfg model.StatsConfig) tea.Cmd {
	f.active = true
	f.err = ""
	f.fields[fieldSubject].SetValue(cfg.Subject)
	f.fields[fieldSince].SetValue("")
	if cfg.Since != nil {
		f.fields[fieldSince].SetValue(cfg.Since.Format(dateLayout))
	}
	f.fields[fieldLast].SetValue("")
	if cfg.Last > 0 {
		f.fields[fieldLast].SetValue(strconv.Itoa(cfg.Last))
	}
	f.fields[fieldWindow].SetValue(strconv.Itoa(cfg.CurveWindow))
	return f.focusField(0)
}

func (f *filterForm) focusField(idx int) tea.Cmd {
	f.focus = (idx + fieldCount) % fieldCount
	var cmd tea.Cmd
	for i := range f.fields {
		if i == f.focus {
			cmd = f.fields[i].Focus()
			continue
		}
		f.fields[i].Blur()
	}
	return cmd
}

func (f *filterForm) resize(width int) {
	for i := range f.fields {
		f.fields[i].Width = max(10, width-lipgloss.Width(f.fields[i].Prompt)-2)
	}
}

// update handles a key while the form is open. On formApplied, cfg holds
// the parsed filters.
func (f *filterForm) update(msg tea.KeyMsg) (result formResult, cfg model.StatsConfig, cmd tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		f.active = false
		f.err = ""
		return formCancelled, cfg, nil
	case tea.KeyEnter:
		parsed, err := f.parse()
		if err != nil {
			f.err = err.Error()
			return formEditing, cfg, nil
		}
		f.active = false
		f.err = ""
		return formApplied, parsed, nil
	case tea.KeyTab:
		return formEditing, cfg, f.focusField(f.focus + 1)
	case tea.KeyShiftTab:
		return formEditing, cfg, f.focusField(f.focus - 1)
	}
	f.fields[f.focus], cmd = f.fields[f.focus].Update(msg)
	return formEditing, cfg, cmd
}

func (f *filterForm) value(field int) string {
	return strings.TrimSpace(f.fields[field].Value())
}

func (f *filterForm) parse() (model.StatsConfig, error) {
	cfg := model.StatsConfig{Subject: f.value(fieldSubject), CurveWindow: 1}
	if v := f.value(fieldSince); v != "" {
		since, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			return cfg, errors.New("invalid since date (expected YYYY-MM-DD)")
		}
		cfg.Since = &since
	}
	if v := f.value(fieldLast); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, errors.New("invalid last value (use 0 or positive integer)")
		}
		cfg.Last = n
	}
	if v := f.value(fieldWindow); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, errors.New("invalid curve window (use integer >= 1)")
		}
		cfg.CurveWindow = n
	}
	return cfg, nil
}

func (f *filterForm) view() string {
	lines := make([]string, 0, fieldCount+2)
	lines = append(lines, "Filters (enter to apply, esc to cancel)")
	for _, in := range f.fields {
		lines = append(lines, in.View())
	}
	if f.err != "" {
		lines = append(lines, errorStyle.Render(f.err))
	}
	return strings.Join(lines, "\n")
}
