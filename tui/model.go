package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/runlog/runlog/record"
	"github.com/runlog/runlog/results"
)

// ResultsEventMsg wraps collector events for bubbletea.
type ResultsEventMsg results.Event

// EOFMsg signals that the stream has ended and the collector is finished.
type EOFMsg struct{}

// maxRecent is how many finished tests stay visible above the running set.
const maxRecent = 10

// finishedTest is one line in the recent-completions area.
type finishedTest struct {
	name    string
	result  record.Result
	elapsed time.Duration
}

// Model is the bubbletea model for live-tailing a result stream.
//
// It consumes results.Event to know when to re-render and reads current
// state from the collector. The view shows recently finished tests, the
// set of currently running tests with live elapsed times, and a counts
// footer.
type Model struct {
	collector *results.Collector

	streamPath string
	recent     []finishedTest
	finished   bool
	startTime  time.Time

	width  int
	height int

	spinner spinner.Model

	passStyle   lipgloss.Style
	failStyle   lipgloss.Style
	skipStyle   lipgloss.Style
	dimStyle    lipgloss.Style
	headerStyle lipgloss.Style
}

// NewModel creates a TUI model tailing the given stream.
func NewModel(streamPath string, collector *results.Collector) *Model {
	s := spinner.New()
	s.Spinner = spinner.Jump

	return &Model{
		collector:   collector,
		streamPath:  streamPath,
		startTime:   time.Now(),
		width:       80,
		height:      24,
		spinner:     s,
		passStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")), // green
		failStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")), // red
		skipStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")), // yellow
		dimStyle:    lipgloss.NewStyle().Faint(true),
		headerStyle: lipgloss.NewStyle().Bold(true),
	}
}

// Init returns the initial spinner tick.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ResultsEventMsg:
		m.handleResultsEvent(results.Event(msg))

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case EOFMsg:
		m.finished = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.finished = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleResultsEvent records completions into the recent list. Running
// state is read straight from the collector at render time.
func (m *Model) handleResultsEvent(evt results.Event) {
	if evt.Type != results.EventTestFinished {
		return
	}
	state := m.collector.State()
	test, ok := state.Tests[evt.Instance]
	if !ok {
		return
	}
	m.recent = append(m.recent, finishedTest{
		name:    describeTest(test),
		result:  test.Result,
		elapsed: test.Elapsed(),
	})
	if len(m.recent) > maxRecent {
		m.recent = m.recent[len(m.recent)-maxRecent:]
	}
}

// View renders the current display.
func (m *Model) View() string {
	if m.finished {
		return ""
	}

	state := m.collector.State()
	var b strings.Builder

	b.WriteString(m.headerStyle.Render("runlog "+m.streamPath) + "\n\n")

	for _, ft := range m.recent {
		b.WriteString(m.finishedLine(ft) + "\n")
	}

	running := 0
	for _, test := range state.InOrder() {
		if !test.Running() {
			continue
		}
		running++
		elapsed := m.dimStyle.Render(formatDuration(test.Elapsed()))
		b.WriteString(fmt.Sprintf("%s %s  %s\n", m.spinner.View(), describeTest(test), elapsed))
	}
	if running == 0 {
		b.WriteString(m.dimStyle.Render("waiting for tests...") + "\n")
	}

	b.WriteString("\n" + m.footer(state.Counts))
	return b.String()
}

func (m *Model) finishedLine(ft finishedTest) string {
	var symbol string
	switch ft.result {
	case record.ResultPassed:
		symbol = m.passStyle.Render(SymbolPass)
	case record.ResultFailed, record.ResultErrored:
		symbol = m.failStyle.Render(SymbolFail)
	case record.ResultSkipped:
		symbol = m.skipStyle.Render(SymbolSkip)
	default:
		symbol = " "
	}
	return fmt.Sprintf("%s %s  %s", symbol, ft.name, m.dimStyle.Render(formatDuration(ft.elapsed)))
}

func (m *Model) footer(counts results.Counts) string {
	parts := []string{
		fmt.Sprintf("%d running", counts.Running),
		m.passStyle.Render(fmt.Sprintf("%d passed", counts.Passed)),
		m.failStyle.Render(fmt.Sprintf("%d failed", counts.Failed)),
	}
	if counts.Errored > 0 {
		parts = append(parts, m.failStyle.Render(fmt.Sprintf("%d errored", counts.Errored)))
	}
	if counts.Skipped > 0 {
		parts = append(parts, m.skipStyle.Render(fmt.Sprintf("%d skipped", counts.Skipped)))
	}
	parts = append(parts, m.dimStyle.Render(formatDuration(time.Since(m.startTime))))
	return strings.Join(parts, "  ")
}

// DisplaySummary prints the end-of-stream summary to stdout. Call after
// the bubbletea program has exited so the output lands below the TUI.
func (m *Model) DisplaySummary() {
	summary := ComputeSummary(m.collector.State(), 10*time.Second)
	formatter := NewSummaryFormatter(m.width)
	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, formatter.Format(summary))
}
