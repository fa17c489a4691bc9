// Package tui provides the Bubble Tea participant screen of a live session.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/octomike/sp-experiment/internal/action"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/session"
)

const introText = "Sampling Paradigm\n\nSample the two options with the left and right arrow keys.\nPress the down arrow when you are ready to choose.\n\nPress any key to start."

var (
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	fixStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	optionStyle = lipgloss.NewStyle().
			Width(9).
			Height(3).
			Align(lipgloss.Center, lipgloss.Center).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	chosenStyle = optionStyle.BorderForeground(lipgloss.Color("#C89A3A"))
)

var keyMap = map[string]action.Side{"left": action.Left, "right": action.Right, "down": action.Down}

type advanceMsg struct{ seq int }

type deadlineMsg struct{ seq int }

// Model implements the Bubble Tea participant screen and the session's
// display. Stimuli queue up while the session processes a response and
// are played back one after another for their frame counts. Each one is
// logged, with its trigger, as it is played.
type Model struct {
	sess   *session.Session
	cfg    session.Config
	now    func() time.Time
	failed error

	width  int
	height int

	queue   []session.Feedback
	current session.Feedback
	showSeq int

	awaiting    bool
	onset       time.Time
	deadlineSeq int

	started  bool
	finished bool
	aborted  bool
	reward   float64
}

// NewModel builds the session on top of deps, with the model as its
// display.
func NewModel(cfg session.Config, deps session.Deps) (*Model, error) {
	m := &Model{cfg: cfg, now: time.Now}
	deps.Display = m
	sess, err := session.New(cfg, deps)
	if err != nil {
		return nil, err
	}
	m.sess = sess
	return m, nil
}

// Session returns the driven session.
func (m *Model) Session() *session.Session { return m.sess }

// Err returns the error that stopped the session, if any.
func (m *Model) Err() error { return m.failed }

// Aborted reports whether the operator quit before the session ended.
func (m *Model) Aborted() bool { return m.aborted }

// Show implements session.Display.
func (m *Model) Show(f session.Feedback) {
	m.queue = append(m.queue, f)
}

// Scheduled implements session.ScheduledDisplay: stimuli are logged when
// advance puts them on screen.
func (m *Model) Scheduled() {}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case advanceMsg:
		if msg.seq != m.showSeq {
			return m, nil
		}
		return m, m.advance()
	case deadlineMsg:
		if !m.awaiting || msg.seq != m.deadlineSeq {
			return m, nil
		}
		m.awaiting = false
		m.deadlineSeq++
		if err := m.sess.MissedDeadline(); err != nil {
			return m, m.fail(err)
		}
		return m, m.advance()
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
		m.aborted = !m.finished
		return m, tea.Quit
	}
	if !m.started {
		m.started = true
		if err := m.sess.Begin(); err != nil {
			return m, m.fail(err)
		}
		return m, m.advance()
	}
	if m.finished && len(m.queue) == 0 {
		return m, tea.Quit
	}
	side, ok := keyMap[msg.String()]
	if !ok || !m.awaiting || !allows(m.sess.Allowed(), side) {
		return m, nil
	}
	rt := m.now().Sub(m.onset).Seconds()
	m.awaiting = false
	m.deadlineSeq++
	if err := m.sess.Press(side, rt); err != nil {
		return m, m.fail(err)
	}
	if m.sess.Done() && !m.sess.Ended() {
		if err := m.sess.End(); err != nil {
			return m, m.fail(err)
		}
		m.finished = true
	}
	return m, m.advance()
}

// advance shows the next queued stimulus. Once the queue is empty and a
// response is expected, the response window opens.
func (m *Model) advance() tea.Cmd {
	for len(m.queue) > 0 {
		m.current = m.queue[0]
		m.queue = m.queue[1:]
		m.showSeq++
		if err := m.current.Present(); err != nil {
			return m.fail(err)
		}
		if m.current.Kind == session.FinalOutcome {
			m.reward = m.totalReward()
		}
		if m.current.Frames > 0 {
			seq := m.showSeq
			return tea.Tick(m.frames(m.current.Frames), func(time.Time) tea.Msg {
				return advanceMsg{seq: seq}
			})
		}
	}
	if m.finished || len(m.sess.Allowed()) == 0 {
		return nil
	}
	m.awaiting = true
	m.onset = m.now()
	if timeout := m.sess.Timeout(); timeout > 0 {
		seq := m.deadlineSeq
		return tea.Tick(timeout, func(time.Time) tea.Msg {
			return deadlineMsg{seq: seq}
		})
	}
	return nil
}

func (m *Model) fail(err error) tea.Cmd {
	m.failed = err
	return tea.Quit
}

func (m *Model) frames(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(m.cfg.FPS)
}

func (m *Model) totalReward() float64 {
	total := 0.0
	for _, r := range m.sess.Rewards() {
		total += r
	}
	return total
}

// View implements tea.Model.
func (m *Model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	content := m.renderStimulus(width)
	if m.width == 0 || m.height == 0 {
		return content + "\n" + m.renderFooter()
	}
	if m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footer := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, m.renderFooter())
	return body + "\n" + footer
}

func (m *Model) renderStimulus(width int) string {
	textWidth := max(int(float64(width)*0.70), 1)
	if !m.started {
		return wrapText(introText, textWidth, textStyle)
	}
	f := m.current
	switch f.Kind {
	case session.Fixation:
		return m.renderOptions(-1, "", "+", "←/→ sample   ↓ choose")
	case session.FinalFixation:
		return m.renderOptions(-1, "", "+", "←/→ final choice")
	case session.Mask:
		return m.renderOptions(f.Option, "?", "", "")
	case session.SampleOutcome:
		return m.renderOptions(f.Option, payoff.Format(f.Value), "", "")
	case session.FinalOutcome:
		return m.renderOptions(f.Option, payoff.Format(f.Value), "", "final outcome")
	case session.BlockFeedback:
		return wrapText(fmt.Sprintf("You won %s points in this block.", payoff.Format(f.Value)), textWidth, valueStyle)
	}
	return wrapText(f.Text, textWidth, textStyle)
}

// renderOptions draws the two option boxes. chosen is -1 when no option
// is selected.
func (m *Model) renderOptions(chosen int, value, center, hint string) string {
	boxes := make([]string, 2)
	for option := range boxes {
		style := optionStyle
		content := ""
		if option == chosen {
			style = chosenStyle
			content = valueStyle.Render(value)
		}
		boxes[option] = style.Render(content)
	}
	middle := lipgloss.NewStyle().Width(5).Height(lipgloss.Height(boxes[0])).Align(lipgloss.Center, lipgloss.Center).Render(fixStyle.Render(center))
	row := lipgloss.JoinHorizontal(lipgloss.Center, boxes[0], middle, boxes[1])
	if hint == "" {
		return row
	}
	return lipgloss.JoinVertical(lipgloss.Center, row, mutedStyle.Render(hint))
}

func (m *Model) renderFooter() string {
	if m.sess == nil {
		return ""
	}
	trial := max(m.sess.Trial(), 0)
	limits := m.cfg.Limits
	segments := []string{
		fmt.Sprintf("Trial %d", trial+1),
		fmt.Sprintf("Samples %d/%d", m.sess.TrialSamples(), limits.MaxSamplesPerTrial),
		fmt.Sprintf("Overall %d/%d", m.sess.OverallSamples(), limits.MaxSamplesOverall),
		"Reward " + payoff.Format(m.reward),
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}

func allows(allowed []action.Side, side action.Side) bool {
	for _, s := range allowed {
		if s == side {
			return true
		}
	}
	return false
}
