package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/runlog/runlog/gotest"
	"github.com/runlog/runlog/scope"
	"github.com/runlog/runlog/stream"
)

// record converts `go test -json` input into a result stream file.
// Non-JSON lines and package-level output pass through to stdout so this
// can sit in a pipeline without hiding build errors.
func (a *App) record(ctx *cli.Context) error {
	outPath := filepath.Join(ctx.String("dir"), stream.DefaultFileName)

	s := scope.New()
	defer s.Close()

	if err := s.Register("input", func(*scope.Scope) (any, error) {
		path := ctx.String("file")
		if path == "" {
			return os.Stdin, nil
		}
		return os.Open(path)
	}, func(r any) error {
		if r == os.Stdin {
			return nil
		}
		return r.(*os.File).Close()
	}); err != nil {
		return err
	}

	if err := s.Register("stream", func(*scope.Scope) (any, error) {
		return stream.Create(outPath)
	}, func(r any) error {
		return r.(*stream.Writer).Close()
	}); err != nil {
		return err
	}

	in, err := s.Resolve("input")
	if err != nil {
		return err
	}
	w, err := s.Resolve("stream")
	if err != nil {
		return err
	}
	writer := w.(*stream.Writer)

	a.logger.Debug().Str("path", outPath).Msg("recording result stream")

	converter := gotest.NewConverter(writer)
	recorded, err := converter.Run(in.(io.Reader), os.Stdout)
	if err != nil {
		return fmt.Errorf("recording stream: %w", err)
	}

	if abandoned := converter.Abandon(); abandoned > 0 {
		a.logger.Warn().Int("tests", abandoned).Msg("input ended with tests still running; previews left unmatched")
	}
	a.logger.Info().Int("tests", recorded).Str("path", outPath).Msg("result stream recorded")
	return s.Close()
}
