package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/runlog/runlog/record"
	"github.com/runlog/runlog/stream"
)

// verify checks a whole stream against the record invariants: every
// record valid on its own, every completion preceded by its preview with
// the same start time, no instance seen more than twice. Orphaned
// previews are reported but are not violations; a crashed producer
// always leaves some behind.
func (a *App) verify(ctx *cli.Context) error {
	path := streamArg(ctx)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening result stream: %w", err)
	}
	defer f.Close()

	var violations []string
	previews := make(map[string]record.Record)
	finished := make(map[string]bool)
	records := 0

	r := stream.NewReader(f)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			violations = append(violations, err.Error())
			continue
		}
		records++

		if err := rec.Validate(); err != nil {
			violations = append(violations, err.Error())
			continue
		}

		if rec.IsPreview() {
			if _, ok := previews[rec.Instance]; ok {
				violations = append(violations, fmt.Sprintf("instance %s: duplicate preview", rec.Instance))
				continue
			}
			previews[rec.Instance] = rec
			continue
		}

		preview, ok := previews[rec.Instance]
		if !ok {
			violations = append(violations, fmt.Sprintf("instance %s: completion with no preceding preview", rec.Instance))
			continue
		}
		if finished[rec.Instance] {
			violations = append(violations, fmt.Sprintf("instance %s: duplicate completion", rec.Instance))
			continue
		}
		finished[rec.Instance] = true

		if rec.Start != preview.Start {
			violations = append(violations, fmt.Sprintf(
				"instance %s: completion start %s differs from preview start %s",
				rec.Instance, rec.Start, preview.Start))
		}
		if rec.Name != preview.Name {
			violations = append(violations, fmt.Sprintf(
				"instance %s: completion name %q differs from preview name %q",
				rec.Instance, rec.Name, preview.Name))
		}
	}

	orphans := 0
	for instance := range previews {
		if !finished[instance] {
			orphans++
			a.logger.Warn().Str("instance", instance).Str("name", previews[instance].Name).
				Msg("preview with no completion (producer may have crashed)")
		}
	}

	for _, v := range violations {
		fmt.Fprintln(os.Stdout, "violation:", v)
	}
	a.logger.Info().
		Int("records", records).
		Int("tests", len(previews)).
		Int("orphans", orphans).
		Int("violations", len(violations)).
		Str("path", path).
		Msg("verified result stream")

	if len(violations) > 0 {
		return cli.Exit("", 1)
	}
	return nil
}
