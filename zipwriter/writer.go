// Package zipwriter executes a zipspec.Spec: chunks are compressed by a
// bounded set of workers and placed into the sink strictly in spec order by
// a single coordinator, which also writes the central directory on Finalize.
package zipwriter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dendrascience/parzip/zipfmt"
	"github.com/dendrascience/parzip/zipspec"
)

// DefaultSpoolThreshold is how much of a chunk is held in memory before it
// spills to a temporary file.
const DefaultSpoolThreshold = 8 << 20

// Sink is where the archive bytes go. *destination.Handle implements it.
type Sink interface {
	io.Writer
	// Offset is the absolute position of the next byte written.
	Offset() int64
	// Prior lists records already in the archive being appended to.
	Prior() []zipfmt.CentralRecord
	// Finish flushes and releases the sink.
	Finish() error
}

// Options tune execution. The zero value is usable.
type Options struct {
	// Workers bounds concurrent chunk compression. Zero or less means
	// runtime.NumCPU(). Sequential specs always use one worker.
	Workers        int
	SpoolThreshold int64
	TempDir        string
	Logger         *slog.Logger
}

// Stats summarizes what a Write placed.
type Stats struct {
	Entries           int
	Files             int
	Dirs              int
	Chunks            int
	SpilledChunks     int
	UncompressedBytes int64
	CompressedBytes   int64
	Elapsed           time.Duration
}

func (s *Stats) add(o Stats) {
	s.Entries += o.Entries
	s.Files += o.Files
	s.Dirs += o.Dirs
	s.SpilledChunks += o.SpilledChunks
	s.UncompressedBytes += o.UncompressedBytes
	s.CompressedBytes += o.CompressedBytes
}

// Writer builds one archive in a Sink. It is not safe for concurrent use;
// the concurrency lives inside Write.
type Writer struct {
	sink      Sink
	opts      Options
	log       *slog.Logger
	prior     []zipfmt.CentralRecord
	records   []zipfmt.CentralRecord
	names     map[string]struct{}
	finalized bool

	compress func(ctx context.Context, spec *zipspec.Spec, c zipspec.Chunk, threshold int64, tempDir string) chunkResult
}

// New returns a Writer over an open sink. Names already in sink.Prior() are
// reserved.
func New(sink Sink, opts Options) *Writer {
	if opts.SpoolThreshold <= 0 {
		opts.SpoolThreshold = DefaultSpoolThreshold
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	w := &Writer{
		sink:  sink,
		opts:  opts,
		log:   log,
		prior: sink.Prior(),
		names: make(map[string]struct{}),

		compress: compressChunk,
	}
	for _, r := range w.prior {
		w.names[r.Name] = struct{}{}
	}
	return w
}

// Records returns every central directory record the archive will hold,
// prior records first.
func (w *Writer) Records() []zipfmt.CentralRecord {
	return slices.Concat(w.prior, w.records)
}

// Has reports whether name is already taken in the archive.
func (w *Writer) Has(name string) bool {
	_, ok := w.names[name]
	return ok
}

func (w *Writer) workers(spec *zipspec.Spec) int {
	if spec.Strategy().Parallelism == zipspec.Sequential {
		return 1
	}
	if w.opts.Workers > 0 {
		return w.opts.Workers
	}
	return runtime.NumCPU()
}

func (w *Writer) reserve(names ...string) error {
	for _, name := range names {
		if _, dup := w.names[name]; dup {
			return &zipspec.NameError{Name: name, Err: ErrDuplicateName}
		}
	}
	for _, name := range names {
		w.names[name] = struct{}{}
	}
	return nil
}

// Write compresses every chunk of spec and appends the entries to the sink
// in spec order. Chunks are compressed concurrently; chunk i is written
// only after chunks 0..i-1, whatever order they finish in. The first
// failure cancels outstanding work and is returned; bytes already written
// are not rolled back.
func (w *Writer) Write(ctx context.Context, spec *zipspec.Spec) (Stats, error) {
	if w.finalized {
		return Stats{}, ErrFinalized
	}
	entries := spec.Entries()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	if err := w.reserve(names...); err != nil {
		return Stats{}, err
	}

	start := time.Now()
	chunks := spec.Chunks()
	workers := w.workers(spec)
	stats := Stats{Chunks: len(chunks)}
	w.log.Debug("writing archive entries",
		"entries", len(entries),
		"chunks", len(chunks),
		"workers", workers,
		"parallelism", spec.Strategy().Parallelism.String(),
		"compression", spec.Options().Compression.String(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// one buffered channel per chunk: workers never block on send and the
	// coordinator receives in chunk order
	results := make([]chan chunkResult, len(chunks))
	for i := range results {
		results[i] = make(chan chunkResult, 1)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	done := make(chan error, 1)
	go func() {
		for i, c := range chunks {
			g.Go(func() error {
				res := w.compress(gctx, spec, c, w.opts.SpoolThreshold, w.opts.TempDir)
				results[i] <- res
				return res.err
			})
		}
		done <- g.Wait()
	}()

	for i := range chunks {
		res := <-results[i]
		err := res.err
		if err == nil {
			err = w.place(&res)
		}
		res.release()
		if err != nil {
			cancel()
			groupErr := <-done
			for _, ch := range results[i+1:] {
				r := <-ch
				r.release()
			}
			if groupErr != nil && !errors.Is(groupErr, context.Canceled) {
				err = groupErr
			}
			w.log.Debug("archive write failed", "chunk", i, "error", err)
			return stats, err
		}
		stats.add(res.stats)
	}
	if err := <-done; err != nil {
		return stats, err
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}

// place copies a finished chunk into the sink and records its entries at
// their absolute offsets.
func (w *Writer) place(res *chunkResult) error {
	base := w.sink.Offset()
	if _, err := res.data.WriteTo(w.sink); err != nil {
		return &CompressionError{Kind: Io, Path: fmt.Sprintf("chunk %d", res.index), Index: -1, Err: err}
	}
	for _, r := range res.records {
		r.Offset += uint64(base)
		w.records = append(w.records, r)
	}
	w.log.Debug("chunk placed",
		"chunk", res.index,
		"entries", len(res.records),
		"offset", base,
		"bytes", res.data.Len(),
		"spilled", res.data.Spilled(),
	)
	return nil
}

// AddDirectory appends a directory entry. A trailing slash is added to name
// if missing.
func (w *Writer) AddDirectory(name string, modified time.Time) error {
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	h := zipfmt.Header{Name: name, Method: zipfmt.Store, Modified: modified, Mode: fs.ModeDir | 0o755}
	return w.CopyRaw(h, nil)
}

// CopyRaw appends an entry whose payload is already encoded as h describes:
// exactly h.CompressedSize bytes are copied from r without recompression.
func (w *Writer) CopyRaw(h zipfmt.Header, r io.Reader) error {
	if w.finalized {
		return ErrFinalized
	}
	if err := w.reserve(h.Name); err != nil {
		return err
	}
	offset := w.sink.Offset()
	if _, err := w.sink.Write(zipfmt.AppendLocalHeader(nil, &h)); err != nil {
		return &CompressionError{Kind: Io, Path: h.Name, Index: -1, Err: err}
	}
	if h.CompressedSize > 0 {
		if r == nil {
			return &CompressionError{Kind: Io, Path: h.Name, Index: -1, Err: errors.New("no payload for non-empty entry")}
		}
		if _, err := io.CopyN(w.sink, r, int64(h.CompressedSize)); err != nil {
			return &CompressionError{Kind: Io, Path: h.Name, Index: -1, Err: err}
		}
	}
	w.records = append(w.records, zipfmt.CentralRecord{Header: h, Offset: uint64(offset)})
	return nil
}

// Finalize writes the central directory, prior records first, and the end
// records, then finishes the sink. The sink is finished even when writing
// the directory fails.
func (w *Writer) Finalize() error {
	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true
	records := w.Records()
	offset := w.sink.Offset()
	_, err := zipfmt.WriteDirectory(w.sink, records, uint64(offset))
	if err != nil {
		err = &CompressionError{Kind: Io, Path: "central directory", Index: -1, Err: err}
	}
	if ferr := w.sink.Finish(); ferr != nil {
		err = errors.Join(err, ferr)
	}
	if err == nil {
		w.log.Debug("archive finalized", "entries", len(records), "directory_offset", offset)
	}
	return err
}

// Abort finishes the sink without writing a central directory.
func (w *Writer) Abort() error {
	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true
	return w.sink.Finish()
}
