package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/runlog/runlog/output"
	"github.com/runlog/runlog/results"
	"github.com/runlog/runlog/stream"
	"github.com/runlog/runlog/tui"
)

// cat prints a completed stream as plain text, one line per completion,
// with the summary at the end.
func (a *App) cat(ctx *cli.Context) error {
	path := streamArg(ctx)
	recs, err := stream.ReadFile(path)
	if err != nil {
		return err
	}
	a.logger.Debug().Int("records", len(recs)).Str("path", path).Msg("read result stream")

	events := make(chan stream.Event, len(recs))
	for _, rec := range recs {
		events <- stream.Event{Type: stream.EventRecord, Record: rec}
	}
	close(events)

	collector := results.NewCollector()
	sub := collector.Subscribe()
	go collector.ProcessEvents(events)

	simple := output.NewSimple(os.Stdout, collector, ctx.Bool("starts"))
	if err := simple.ProcessEvents(sub); err != nil {
		return err
	}
	if simple.HasFailures() {
		return cli.Exit("", 1)
	}
	return nil
}

// summary prints only the end-of-stream summary.
func (a *App) summary(ctx *cli.Context) error {
	path := streamArg(ctx)
	recs, err := stream.ReadFile(path)
	if err != nil {
		return err
	}

	collector := results.NewCollector()
	for _, rec := range recs {
		collector.Push(rec)
	}
	collector.Finish()

	state := collector.State()
	s := tui.ComputeSummary(state, 10*time.Second)
	fmt.Println(tui.NewSummaryFormatter(80).Format(s))

	if state.Counts.Bad() {
		return cli.Exit("", 1)
	}
	return nil
}
