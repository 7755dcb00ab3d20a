package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/runlog/runlog/record"
	"github.com/runlog/runlog/results"
)

// Summary is the computed end-of-stream report.
type Summary struct {
	Counts    results.Counts
	TotalTime time.Duration   // first start to last stop across the stream
	Failures  []*results.Test // FAILED and ERRORED tests, in preview order
	Skipped   []*results.Test
	Orphans   []*results.Test // previews with no completion
	SlowTests []*results.Test // completed tests over the slow threshold, slowest first
	Anomalies []error         // invalid or unmatched records
}

// ComputeSummary builds a Summary from collector state. Completed tests
// slower than slowThreshold are listed in SlowTests.
func ComputeSummary(state *results.State, slowThreshold time.Duration) *Summary {
	summary := &Summary{Counts: state.Counts}

	var first, last time.Time
	for _, test := range state.InOrder() {
		if first.IsZero() || test.Start.Before(first) {
			first = test.Start
		}
		end := test.Stop
		if end.IsZero() {
			end = test.Start
		}
		if end.After(last) {
			last = end
		}

		switch {
		case test.Orphaned:
			summary.Orphans = append(summary.Orphans, test)
		case test.Result == record.ResultFailed, test.Result == record.ResultErrored:
			summary.Failures = append(summary.Failures, test)
		case test.Result == record.ResultSkipped:
			summary.Skipped = append(summary.Skipped, test)
		}

		if !test.Stop.IsZero() && test.Elapsed() >= slowThreshold {
			summary.SlowTests = append(summary.SlowTests, test)
		}
	}
	if !first.IsZero() {
		summary.TotalTime = last.Sub(first)
	}

	sort.Slice(summary.SlowTests, func(i, j int) bool {
		return summary.SlowTests[i].Elapsed() > summary.SlowTests[j].Elapsed()
	})

	summary.Anomalies = state.Invalid
	return summary
}

// Symbols used for test outcomes.
const (
	SymbolPass   = "✓"
	SymbolFail   = "✗"
	SymbolSkip   = "∅"
	SymbolOrphan = "?"
)

// SummaryFormatter renders a Summary for display.
type SummaryFormatter struct {
	width int

	passStyle lipgloss.Style
	failStyle lipgloss.Style
	skipStyle lipgloss.Style
	dimStyle  lipgloss.Style
}

// NewSummaryFormatter creates a formatter for the given terminal width
// (80 is used if width is unknown).
func NewSummaryFormatter(width int) *SummaryFormatter {
	if width <= 0 {
		width = 80
	}
	return &SummaryFormatter{
		width:     width,
		passStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("2")), // green
		failStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("1")), // red
		skipStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("3")), // yellow
		dimStyle:  lipgloss.NewStyle().Faint(true),
	}
}

// Format renders the complete summary.
func (sf *SummaryFormatter) Format(summary *Summary) string {
	var b strings.Builder

	sf.formatOverall(&b, summary)

	if len(summary.Failures) > 0 {
		b.WriteString("\n")
		sf.formatFailures(&b, summary.Failures)
	}
	if len(summary.Skipped) > 0 {
		b.WriteString("\n")
		sf.formatSkipped(&b, summary.Skipped)
	}
	if len(summary.Orphans) > 0 {
		b.WriteString("\n")
		sf.formatOrphans(&b, summary.Orphans)
	}
	if len(summary.SlowTests) > 0 {
		b.WriteString("\n")
		sf.formatSlowTests(&b, summary.SlowTests)
	}
	if len(summary.Anomalies) > 0 {
		b.WriteString("\n")
		sf.formatAnomalies(&b, summary.Anomalies)
	}

	return b.String()
}

func (sf *SummaryFormatter) formatOverall(b *strings.Builder, summary *Summary) {
	b.WriteString("RESULTS\n")
	b.WriteString(sf.horizontalLine() + "\n")

	total := summary.Counts.Total()
	fmt.Fprintf(b, "Total tests:  %d\n", total)
	fmt.Fprintf(b, "Passed:       %s\n", sf.passStyle.Render(countWithPct(summary.Counts.Passed, total)))
	fmt.Fprintf(b, "Failed:       %s\n", sf.failStyle.Render(countWithPct(summary.Counts.Failed, total)))
	if summary.Counts.Errored > 0 {
		fmt.Fprintf(b, "Errored:      %s\n", sf.failStyle.Render(countWithPct(summary.Counts.Errored, total)))
	}
	fmt.Fprintf(b, "Skipped:      %s\n", sf.skipStyle.Render(countWithPct(summary.Counts.Skipped, total)))
	if summary.Counts.Orphaned > 0 {
		fmt.Fprintf(b, "Incomplete:   %s\n", sf.failStyle.Render(countWithPct(summary.Counts.Orphaned, total)))
	}
	fmt.Fprintf(b, "Total time:   %s\n", formatDuration(summary.TotalTime))
}

func (sf *SummaryFormatter) formatFailures(b *strings.Builder, failures []*results.Test) {
	b.WriteString("FAILURES\n")
	b.WriteString(sf.horizontalLine() + "\n")
	for _, test := range failures {
		fmt.Fprintf(b, "%s %s  %s\n",
			sf.failStyle.Render(SymbolFail),
			describeTest(test),
			sf.dimStyle.Render(formatDuration(test.Elapsed())))
		if test.Detail != nil {
			for _, line := range test.Detail.Errors {
				fmt.Fprintf(b, "    %s\n", line)
			}
			for _, line := range test.Detail.Failures {
				fmt.Fprintf(b, "    %s\n", line)
			}
		}
	}
}

func (sf *SummaryFormatter) formatSkipped(b *strings.Builder, skipped []*results.Test) {
	b.WriteString("SKIPPED\n")
	b.WriteString(sf.horizontalLine() + "\n")
	for _, test := range skipped {
		fmt.Fprintf(b, "%s %s\n", sf.skipStyle.Render(SymbolSkip), describeTest(test))
		if test.Detail != nil {
			for _, line := range test.Detail.Warnings {
				fmt.Fprintf(b, "    %s\n", line)
			}
		}
	}
}

func (sf *SummaryFormatter) formatOrphans(b *strings.Builder, orphans []*results.Test) {
	b.WriteString("INCOMPLETE\n")
	b.WriteString(sf.horizontalLine() + "\n")
	for _, test := range orphans {
		fmt.Fprintf(b, "%s %s  %s\n",
			sf.failStyle.Render(SymbolOrphan),
			describeTest(test),
			sf.dimStyle.Render("started "+test.Start.Format("15:04:05")+", never finished"))
	}
}

func (sf *SummaryFormatter) formatSlowTests(b *strings.Builder, slow []*results.Test) {
	b.WriteString("SLOW TESTS\n")
	b.WriteString(sf.horizontalLine() + "\n")
	for _, test := range slow {
		fmt.Fprintf(b, "  %s  %s\n", describeTest(test), formatDuration(test.Elapsed()))
	}
}

func (sf *SummaryFormatter) formatAnomalies(b *strings.Builder, anomalies []error) {
	b.WriteString("STREAM WARNINGS\n")
	b.WriteString(sf.horizontalLine() + "\n")
	for _, err := range anomalies {
		fmt.Fprintf(b, "  %s\n", err)
	}
}

func (sf *SummaryFormatter) horizontalLine() string {
	w := sf.width
	if w > 80 {
		w = 80
	}
	return strings.Repeat("─", w)
}

// describeTest renders a test's name with its pivots, if any:
// pkg::TestFoo{arch=arm64, os=linux}.
func describeTest(test *results.Test) string {
	if len(test.Pivots) == 0 {
		return test.Name
	}
	keys := make([]string, 0, len(test.Pivots))
	for k := range test.Pivots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+test.Pivots[k])
	}
	return test.Name + "{" + strings.Join(pairs, ", ") + "}"
}

func countWithPct(n, total int) string {
	if total == 0 {
		return "0"
	}
	return fmt.Sprintf("%d (%.1f%%)", n, float64(n)/float64(total)*100)
}

// formatDuration renders sub-minute durations as "X.Xs" and anything
// longer as "HH:MM:SS.mmm".
func formatDuration(d time.Duration) string {
	if d < 60*time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, milliseconds)
}
