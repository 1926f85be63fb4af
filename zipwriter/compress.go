package zipwriter

import (
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"

	"github.com/dendrascience/parzip/internal/spool"
	"github.com/dendrascience/parzip/zipfmt"
	"github.com/dendrascience/parzip/zipspec"
)

// chunkResult is the message a worker sends to the coordinator: the encoded
// entries of one chunk and their records, offsets relative to the chunk.
type chunkResult struct {
	index   int
	data    *spool.Buffer
	records []zipfmt.CentralRecord
	stats   Stats
	err     error
}

func (r *chunkResult) release() {
	if r.data != nil {
		r.data.Close()
		r.data = nil
	}
}

// compressor encodes the entries of one chunk. Each worker owns one.
type compressor struct {
	opts    zipspec.Options
	out     *spool.Buffer
	payload *spool.Buffer
	fw      *flate.Writer
	hdr     []byte
}

func newCompressor(opts zipspec.Options, threshold int64, tempDir string) *compressor {
	return &compressor{
		opts:    opts,
		out:     spool.New(threshold, tempDir),
		payload: spool.New(threshold, tempDir),
		hdr:     make([]byte, 0, 512),
	}
}

// compressChunk encodes entries [c.Start, c.End) of spec. The result is
// returned even on failure so the coordinator can release it.
func compressChunk(ctx context.Context, spec *zipspec.Spec, c zipspec.Chunk, threshold int64, tempDir string) chunkResult {
	res := chunkResult{index: c.Index}
	comp := newCompressor(spec.Options(), threshold, tempDir)
	defer comp.payload.Close()
	res.data = comp.out

	for i, e := range spec.ChunkEntries(c) {
		if err := ctx.Err(); err != nil {
			res.err = err
			return res
		}
		rel := uint64(comp.out.Len())
		h, err := comp.entry(e)
		if err != nil {
			res.err = wrapEntryError(c.Start+i, e.Source, err)
			return res
		}
		res.records = append(res.records, zipfmt.CentralRecord{Header: h, Offset: rel})
		if e.Dir {
			res.stats.Dirs++
		} else {
			res.stats.Files++
		}
		res.stats.UncompressedBytes += int64(h.UncompressedSize)
		res.stats.CompressedBytes += int64(h.CompressedSize)
	}
	res.stats.Entries = len(res.records)
	if comp.out.Spilled() {
		res.stats.SpilledChunks = 1
	}
	return res
}

func wrapEntryError(index int, path string, err error) error {
	var ce *CompressionError
	if errors.As(err, &ce) {
		ce.Index = index
		return ce
	}
	kind := Io
	if errors.Is(err, fs.ErrNotExist) {
		kind = EntryVanished
	}
	return &CompressionError{Kind: kind, Path: path, Index: index, Err: err}
}

// entry appends the local header and payload for e to the chunk output.
func (c *compressor) entry(e zipspec.Entry) (zipfmt.Header, error) {
	if e.Dir {
		h := zipfmt.Header{
			Name:     e.Name,
			Method:   zipfmt.Store,
			Modified: c.opts.Mtime.For(nil),
			Mode:     fs.ModeDir | 0o755,
		}
		return h, c.emit(&h, false)
	}

	f, err := os.Open(e.Source)
	if err != nil {
		return zipfmt.Header{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return zipfmt.Header{}, err
	}
	if !info.Mode().IsRegular() {
		return zipfmt.Header{}, &CompressionError{Kind: EntryVanished, Path: e.Source, Err: fmt.Errorf("no longer a regular file (%v)", info.Mode().Type())}
	}

	h := zipfmt.Header{
		Name:     e.Name,
		Method:   c.opts.MethodFor(info.Size()),
		Modified: c.opts.Mtime.For(info),
		Mode:     info.Mode().Perm(),
	}
	if err := c.payload.Reset(); err != nil {
		return zipfmt.Header{}, err
	}
	sum := crc32.NewIEEE()
	src := io.TeeReader(f, sum)

	var n int64
	switch h.Method {
	case zipfmt.Store:
		n, err = io.Copy(c.payload, src)
	case zipfmt.Deflate:
		n, err = c.deflate(src)
	default:
		err = fmt.Errorf("unsupported method %v", h.Method)
	}
	if err != nil {
		return zipfmt.Header{}, err
	}
	h.CRC32 = sum.Sum32()
	h.UncompressedSize = uint64(n)
	h.CompressedSize = uint64(c.payload.Len())
	return h, c.emit(&h, true)
}

func (c *compressor) deflate(src io.Reader) (int64, error) {
	if c.fw == nil {
		fw, err := flate.NewWriter(c.payload, c.opts.Compression.Level)
		if err != nil {
			return 0, err
		}
		c.fw = fw
	} else {
		c.fw.Reset(c.payload)
	}
	n, err := io.Copy(c.fw, src)
	if err != nil {
		return n, err
	}
	return n, c.fw.Close()
}

func (c *compressor) emit(h *zipfmt.Header, withPayload bool) error {
	c.hdr = zipfmt.AppendLocalHeader(c.hdr[:0], h)
	if _, err := c.out.Write(c.hdr); err != nil {
		return err
	}
	if !withPayload {
		return nil
	}
	_, err := c.payload.WriteTo(c.out)
	return err
}
