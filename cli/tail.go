package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/runlog/runlog/output"
	"github.com/runlog/runlog/results"
	"github.com/runlog/runlog/stream"
	"github.com/runlog/runlog/tui"
)

// tail follows a result stream live, either in the TUI or as plain text
// with --notty. With --replay a finished stream is re-emitted with its
// original inter-record timing.
func (a *App) tail(ctx *cli.Context) error {
	if ctx.Float64("rate") < 0 {
		return fmt.Errorf("-rate must be >= 0")
	}

	path := streamArg(ctx)
	followCtx, cancel := context.WithCancel(ctx.Context)
	defer cancel()

	events, err := a.tailSource(followCtx, ctx, path)
	if err != nil {
		return err
	}

	collector := results.NewCollector()
	sub := collector.Subscribe()
	go collector.ProcessEvents(events)

	if ctx.Bool("notty") {
		simple := output.NewSimple(os.Stdout, collector, false)
		if err := simple.ProcessEvents(sub); err != nil {
			return err
		}
		if simple.HasFailures() {
			return cli.Exit("", 1)
		}
		return nil
	}

	return a.tailTUI(cancel, path, collector, sub)
}

// tailSource returns the stream events to consume: a live follow of the
// file, or a timed replay of its current contents.
func (a *App) tailSource(followCtx context.Context, ctx *cli.Context, path string) (<-chan stream.Event, error) {
	if !ctx.Bool("replay") {
		return stream.Follow(followCtx, path), nil
	}

	recs, err := stream.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Int("records", len(recs)).Float64("rate", ctx.Float64("rate")).Msg("replaying result stream")

	replayed := stream.Replay(followCtx, recs, ctx.Float64("rate"))
	events := make(chan stream.Event, 100)
	go func() {
		defer close(events)
		for rec := range replayed {
			events <- stream.Event{Type: stream.EventRecord, Record: rec}
		}
	}()
	return events, nil
}

// tailTUI runs the live viewer and prints the summary after it exits.
func (a *App) tailTUI(cancel context.CancelFunc, path string, collector *results.Collector, sub <-chan results.Event) error {
	m := tui.NewModel(path, collector)
	p := tea.NewProgram(m)

	go func() {
		for evt := range sub {
			p.Send(tui.ResultsEventMsg(evt))
		}
		p.Send(tui.EOFMsg{})
	}()

	finalModel, err := p.Run()
	cancel()
	if err != nil {
		return fmt.Errorf("running viewer: %w", err)
	}

	collector.Finish()
	if model, ok := finalModel.(*tui.Model); ok {
		model.DisplaySummary()
	}

	if collector.State().Counts.Bad() {
		return cli.Exit("", 1)
	}
	return nil
}
