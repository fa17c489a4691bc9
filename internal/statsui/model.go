// Package statsui provides the Bubble Tea browser over imported sessions.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/octomike/sp-experiment/internal/action"
	"github.com/octomike/sp-experiment/internal/eventlog"
	"github.com/octomike/sp-experiment/internal/model"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/stats"
	"github.com/octomike/sp-experiment/internal/store"
)

type tab int

const (
	tabOverview tab = iota
	tabSessions
	tabTrials
	tabCount
)

var tabNames = [tabCount]string{"Overview", "Sessions", "Trials"}

const plotHeight = 10

var (
	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true)
	activeTabStyle = tabStyle.
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			BorderForeground(lipgloss.Color("#3A8FC8"))
	inactiveTabStyle = tabStyle.
				Foreground(lipgloss.Color("#B0B0B0")).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle       = tabStyle.BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Loader is the catalog access the browser needs.
type Loader interface {
	stats.Source
	GetEvents(ctx context.Context, sessionID string) ([]eventlog.Record, error)
}

var _ Loader = (*store.Store)(nil)

// Model browses the catalog: an overview of all matching sessions, the
// session list, and the trials of the selected session.
type Model struct {
	loader Loader
	cfg    model.StatsConfig

	report     stats.Report
	errMsg     string
	loadFailed bool

	active   tab
	pages    [tabCount]viewport.Model
	sessions table.Model
	form     filterForm

	selected string
	events   []eventlog.Record

	width  int
	height int
}

// NewModel loads the report for cfg and selects the latest session.
func NewModel(loader Loader, cfg model.StatsConfig) *Model {
	cfg.CurveWindow = max(cfg.CurveWindow, 1)
	m := &Model{
		loader:   loader,
		cfg:      cfg,
		sessions: newSessionTable(),
		form:     newFilterForm(),
	}
	for i := range m.pages {
		m.pages[i] = viewport.New(0, 0)
	}
	m.reload()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.renderPages()
	case tea.KeyMsg:
		if m.form.active {
			return m, m.updateForm(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		return tea.Quit
	case "left", "h":
		m.switchTab(m.active - 1)
		return tea.ClearScreen
	case "right", "l":
		m.switchTab(m.active + 1)
		return tea.ClearScreen
	case "=":
		m.cfg.CurveWindow = nextCurveWindow(m.cfg.CurveWindow)
		m.renderPages()
		return nil
	case "-":
		m.cfg.CurveWindow = prevCurveWindow(m.cfg.CurveWindow)
		m.renderPages()
		return nil
	case "/":
		return m.form.open(m.cfg)
	case "enter":
		if m.active != tabSessions {
			return nil
		}
		m.selectSession()
		m.switchTab(tabTrials)
		return tea.ClearScreen
	case "g", "home":
		if m.active == tabSessions {
			m.sessions.GotoTop()
		} else {
			m.pages[m.active].GotoTop()
		}
		return nil
	case "G", "end":
		if m.active == tabSessions {
			m.sessions.GotoBottom()
		} else {
			m.pages[m.active].GotoBottom()
		}
		return nil
	}
	var cmd tea.Cmd
	if m.active == tabSessions {
		m.sessions, cmd = m.sessions.Update(msg)
	} else {
		m.pages[m.active], cmd = m.pages[m.active].Update(msg)
	}
	return cmd
}

func (m *Model) updateForm(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC {
		return tea.Quit
	}
	result, cfg, cmd := m.form.update(msg)
	if result == formApplied {
		m.cfg = cfg
		m.reload()
		m.resize()
	}
	return cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	top, bottom := m.chrome()
	body := max(m.height-top-bottom, 1)
	return strings.Join([]string{
		fitBox(m.renderHeader(), m.width, top),
		fitBox(m.renderBody(), m.width, body),
		fitBox(m.renderFooter(), m.width, bottom),
	}, "\n")
}

// chrome returns the header and footer heights.
func (m *Model) chrome() (top, bottom int) {
	top = lipgloss.Height(activeTabStyle.Render(tabNames[0])) + 1
	bottom = 1
	if !m.form.active && m.errMsg != "" {
		bottom++
	}
	return top, bottom
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	top, bottom := m.chrome()
	body := max(m.height-top-bottom, 1)
	for i := range m.pages {
		m.pages[i].Width = m.width
		m.pages[i].Height = body
	}
	m.sessions.SetWidth(m.width)
	m.sessions.SetHeight(max(body-1, 1))
	m.form.resize(m.width)
}

func (m *Model) switchTab(t tab) {
	m.active = (t + tabCount) % tabCount
	if m.active == tabSessions {
		m.sessions.Focus()
		return
	}
	m.sessions.Blur()
}

func (m *Model) renderHeader() string {
	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		style := inactiveTabStyle
		if tab(i) == m.active {
			style = activeTabStyle
		}
		tabs[i] = style.Render(name)
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	return fillWidth(row, m.width) + "\n" + headerStyle.Render(clip(m.filterSummary(), m.width))
}

func (m *Model) filterSummary() string {
	subject, since, last := "any", "any", "all"
	if m.cfg.Subject != "" {
		subject = m.cfg.Subject
	}
	if m.cfg.Since != nil {
		since = m.cfg.Since.Format(dateLayout)
	}
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	return fmt.Sprintf("Filters: subject=%s  since=%s  last=%s  window=%d", subject, since, last, m.cfg.CurveWindow)
}

func (m *Model) renderFooter() string {
	if m.form.active {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	help := "Tabs: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Filters: /  Quit: q"
	if m.active == tabSessions {
		help = "Tabs: left/right  Select: up/down  Trials: enter  Filters: /  Quit: q"
	}
	footer := headerStyle.Render(help)
	if m.errMsg != "" {
		footer += "\n" + errorStyle.Render(m.errMsg)
	}
	return footer
}

func (m *Model) renderBody() string {
	switch {
	case m.form.active:
		return m.form.view()
	case m.active != tabSessions:
		return m.pages[m.active].View()
	case len(m.report.Sessions) == 0:
		return "No sessions found."
	}
	return tableMutedStyle.Render(m.sessions.View())
}

// reload rebuilds the report for the current filters. The selected
// session is kept while it still matches, otherwise the latest one is
// picked.
func (m *Model) reload() {
	report, err := stats.BuildReport(context.Background(), m.loader, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		m.loadFailed = true
		for i := range m.pages {
			m.pages[i].SetContent("Failed to load stats.")
		}
		return
	}
	m.errMsg = ""
	m.loadFailed = false
	m.report = report
	m.sessions.SetRows(sessionRows(report.Sessions))
	if m.selected != "" && !hasSession(report.Sessions, m.selected) {
		m.selected = ""
		m.events = nil
	}
	if m.selected == "" && len(report.Sessions) > 0 {
		m.sessions.GotoBottom()
		m.selectSession()
	}
	m.renderPages()
}

func (m *Model) selectSession() {
	idx := m.sessions.Cursor()
	if idx < 0 || idx >= len(m.report.Sessions) {
		return
	}
	m.selected = m.report.Sessions[idx].ID
	m.events = nil
	events, err := m.loader.GetEvents(context.Background(), m.selected)
	if err != nil {
		m.errMsg = err.Error()
	} else {
		m.events = events
	}
	m.renderPages()
}

func (m *Model) renderPages() {
	if m.loadFailed {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.pages[tabOverview].SetContent(renderOverview(m.report, m.cfg.CurveWindow, width))
	m.pages[tabTrials].SetContent(m.renderTrials(width))
}

func renderOverview(report stats.Report, window, width int) string {
	if len(report.Sessions) == 0 {
		return "No sessions found."
	}
	summary := renderSummaryCards(report, width)
	var buf bytes.Buffer
	if err := stats.RenderCurvesWithSize(&buf, report.Sessions, report.Trials, window, width, plotHeight, true); err != nil {
		return fmt.Sprintf("Failed to render curves: %v", err)
	}
	return strings.TrimRight(summary+"\n\n"+buf.String(), "\n")
}

func renderSummaryCards(report stats.Report, width int) string {
	var trials, samples, resets int
	var reward float64
	for _, s := range report.Sessions {
		trials += s.Trials
		samples += s.Samples
		resets += s.Resets
		reward += s.TotalReward
	}
	better := 0
	for _, t := range report.Trials {
		if t.ChoseBetter {
			better++
		}
	}
	perTrial := func(v float64) string {
		if trials == 0 {
			return "-"
		}
		return fmt.Sprintf("%.2f", v/float64(trials))
	}
	betterRate := "-"
	if len(report.Trials) > 0 {
		betterRate = fmt.Sprintf("%.1f%%", float64(better)/float64(len(report.Trials))*100)
	}
	cards := []string{
		metricCard("Sessions", strconv.Itoa(len(report.Sessions))),
		metricCard("Trials", strconv.Itoa(trials)),
		metricCard("Samples/trial", perTrial(float64(samples))),
		metricCard("Reward/trial", perTrial(reward)),
		metricCard("Better choice", betterRate),
		metricCard("Resets", strconv.Itoa(resets)),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4], cards[5])
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func (m *Model) renderTrials(width int) string {
	if m.selected == "" {
		return "No session selected. Pick one on the Sessions tab."
	}
	trials := m.report.TrialsOf(m.selected)
	var buf bytes.Buffer
	buf.WriteString(headerStyle.Render("Session "+m.selected) + "\n\n")
	if err := stats.RenderTrialTable(&buf, trials); err != nil {
		return fmt.Sprintf("Failed to render trials: %v", err)
	}
	if lines := sampleSparklines(m.events); len(lines) > 0 {
		buf.WriteString("Sampled outcomes\n")
		for _, line := range lines {
			buf.WriteString(line + "\n")
		}
		buf.WriteString("\n")
	}
	if err := stats.RenderTrialCurvesWithSize(&buf, trials, width, plotHeight, true); err != nil {
		return fmt.Sprintf("Failed to render trial curves: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// sampleSparklines renders the sampled outcomes of each trial's last
// attempt, one line per trial.
func sampleSparklines(events []eventlog.Record) []string {
	type trialSamples struct {
		values []float64
		final  bool
	}
	byTrial := map[int]*trialSamples{}
	maxTrial := -1
	for _, r := range events {
		if r.Trial == nil {
			continue
		}
		t := *r.Trial
		maxTrial = max(maxTrial, t)
		if r.Reset || byTrial[t] == nil {
			byTrial[t] = &trialSamples{}
			if r.Reset {
				continue
			}
		}
		ts := byTrial[t]
		if r.Action != nil && r.Action.Type == action.TypeFinalChoice {
			ts.final = true
		}
		if r.Outcome != nil && !ts.final {
			ts.values = append(ts.values, *r.Outcome)
		}
	}
	var lines []string
	for t := 0; t <= maxTrial; t++ {
		ts := byTrial[t]
		if ts == nil {
			continue
		}
		values := make([]string, len(ts.values))
		for i, v := range ts.values {
			values[i] = payoff.Format(v)
		}
		lines = append(lines, fmt.Sprintf("%4d  %-10s %s", t, stats.Sparkline(ts.values), strings.Join(values, " ")))
	}
	return lines
}

func hasSession(sessions []model.SessionSummary, id string) bool {
	for _, s := range sessions {
		if s.ID == id {
			return true
		}
	}
	return false
}

func newSessionTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Subject", Width: 8},
			{Title: "Imported", Width: 16},
			{Title: "Trials", Width: 6},
			{Title: "Samples", Width: 7},
			{Title: "Reward", Width: 8},
			{Title: "Mean RT", Width: 8},
			{Title: "Resets", Width: 6},
			{Title: "Path", Width: 40},
		}),
		table.WithHeight(1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	t.SetStyles(styles)
	return t
}

func sessionRows(sessions []model.SessionSummary) []table.Row {
	rows := make([]table.Row, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, table.Row{
			s.Subject,
			s.ImportedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(s.Trials),
			strconv.Itoa(s.Samples),
			payoff.Format(s.TotalReward),
			fmt.Sprintf("%.3f", s.MeanRT),
			strconv.Itoa(s.Resets),
			s.Path,
		})
	}
	return rows
}

func nextCurveWindow(n int) int {
	if n < 5 {
		return 5
	}
	return (n/5 + 1) * 5
}

func prevCurveWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return (n / 5) * 5
}
