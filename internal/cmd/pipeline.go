package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dendrascience/parzip/crawl"
	"github.com/dendrascience/parzip/destination"
	"github.com/dendrascience/parzip/zipspec"
	"github.com/dendrascience/parzip/zipwriter"
)

// summary is what one archive write did.
type summary struct {
	Stats  zipwriter.Stats
	Merged int
	Size   int64
}

// writeArchive runs spec building, destination setup, the parallel write,
// the optional merge and finalization for one output. On failure after the
// destination is open the partial archive is left without a central
// directory.
func writeArchive(ctx context.Context, c *commandContext, s zipSettings, result crawl.Result) (summary, error) {
	log := c.component("pipeline")
	if s.Merge != nil {
		for _, src := range s.Merge.Sources() {
			if canonicalPath(src) == canonicalPath(s.Output) {
				return summary{}, fmt.Errorf("merge source %s is the output archive", src)
			}
			if _, err := os.Stat(src); err != nil {
				return summary{}, fmt.Errorf("merge source: %w", err)
			}
		}
	}

	spec, err := zipspec.Build(result, s.Strategy, s.Options)
	if err != nil {
		return summary{}, err
	}

	handle := destination.New(s.Output, s.Behavior)
	handle.SetLogger(c.component("destination"))
	if err := handle.Initialize(); err != nil {
		return summary{}, err
	}

	opts := s.Writer
	opts.Logger = c.component("zipwriter")
	w := zipwriter.New(handle, opts)

	var sum summary
	if sum.Stats, err = w.Write(ctx, spec); err != nil {
		return sum, errors.Join(err, w.Abort())
	}
	if s.Merge != nil {
		m := *s.Merge
		m.Logger = c.component("merge")
		// same stamp as the synthesized directory entries
		if sum.Merged, err = m.Apply(ctx, w, spec.Options().Mtime.For(nil)); err != nil {
			return sum, errors.Join(err, w.Abort())
		}
	}
	if err := w.Finalize(); err != nil {
		return sum, err
	}
	sum.Size = handle.Offset()

	log.Info("archive written",
		"path", s.Output,
		"behavior", s.Behavior.String(),
		"entries", sum.Stats.Entries,
		"files", sum.Stats.Files,
		"merged", sum.Merged,
		"chunks", sum.Stats.Chunks,
		"spilled_chunks", sum.Stats.SpilledChunks,
		"uncompressed", humanize.IBytes(uint64(sum.Stats.UncompressedBytes)),
		"size", humanize.IBytes(uint64(sum.Size)),
		"elapsed", sum.Stats.Elapsed.Round(time.Millisecond),
	)
	return sum, nil
}
