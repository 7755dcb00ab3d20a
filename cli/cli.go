// Package cli implements the runlog command line interface.
package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/runlog/runlog/stream"
)

const AppName = "runlog"

// App wires the CLI commands to the stream, results, and display layers.
type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

// New creates the runlog CLI app.
func New() *App {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339Nano,
	})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Record and view test run result streams",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}

	app.cli.Commands = []*cli.Command{
		{
			Name:      "record",
			Usage:     "Convert `go test -json` input into a result stream",
			ArgsUsage: " ",
			Action:    app.record,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "file",
					Aliases: []string{"f"},
					Usage:   "Read go test output from a file instead of stdin",
				},
				&cli.StringFlag{
					Name:  "dir",
					Usage: "Directory to write the result stream into",
					Value: ".",
				},
			},
		},
		{
			Name:      "cat",
			Usage:     "Print a result stream as plain text",
			ArgsUsage: "[stream file]",
			Action:    app.cat,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "starts",
					Usage: "Also print test starts, not just completions",
				},
			},
		},
		{
			Name:      "summary",
			Usage:     "Print the summary for a result stream",
			ArgsUsage: "[stream file]",
			Action:    app.summary,
		},
		{
			Name:      "tail",
			Usage:     "Follow a result stream live",
			ArgsUsage: "[stream file]",
			Action:    app.tail,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "notty",
					Usage: "Don't use the TUI, stream plain text to stdout",
				},
				&cli.BoolFlag{
					Name:  "replay",
					Usage: "Re-emit a finished stream with its original timing",
				},
				&cli.Float64Flag{
					Name:  "rate",
					Usage: "Replay rate multiplier (0=instant, 1=original speed, 0.5=2x speed)",
					Value: 1.0,
				},
			},
		},
		{
			Name:      "verify",
			Usage:     "Check a result stream against the record invariants",
			ArgsUsage: "[stream file]",
			Action:    app.verify,
		},
	}

	return app
}

// Run executes the CLI with the given arguments.
func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// streamArg resolves the stream file argument, defaulting to the
// conventional file name in the current directory.
func streamArg(ctx *cli.Context) string {
	if path := ctx.Args().First(); path != "" {
		return path
	}
	return filepath.Join(".", stream.DefaultFileName)
}
