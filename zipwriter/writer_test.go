package zipwriter

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dendrascience/parzip/crawl"
	"github.com/dendrascience/parzip/destination"
	"github.com/dendrascience/parzip/zipfmt"
	"github.com/dendrascience/parzip/zipspec"
)

// memSink collects archive bytes in memory.
type memSink struct {
	bytes.Buffer
	prior    []zipfmt.CentralRecord
	finished int
}

func (m *memSink) Offset() int64                  { return int64(m.Len()) }
func (m *memSink) Prior() []zipfmt.CentralRecord { return m.prior }
func (m *memSink) Finish() error                  { m.finished++; return nil }

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func buildSpec(t *testing.T, root string, strategy zipspec.Strategy, opts zipspec.Options) *zipspec.Spec {
	t.Helper()
	result, err := crawl.Crawl(context.Background(), root)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	spec, err := zipspec.Build(result, strategy, opts)
	if err != nil {
		t.Fatalf("build spec: %v", err)
	}
	return spec
}

func archiveBytes(t *testing.T, spec *zipspec.Spec, opts Options) []byte {
	t.Helper()
	sink := &memSink{}
	w := New(sink, opts)
	if _, err := w.Write(context.Background(), spec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if sink.finished != 1 {
		t.Errorf("sink finished %d times, want 1", sink.finished)
	}
	return sink.Bytes()
}

func openArchive(t *testing.T, data []byte) *zip.Reader {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("archive/zip rejected the archive: %v", err)
	}
	return zr
}

func readAll(t *testing.T, f *zip.File) string {
	t.Helper()
	rc, err := f.Open()
	if err != nil {
		t.Fatalf("open %s: %v", f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", f.Name, err)
	}
	return string(b)
}

func TestWriteToDestination(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "hi", "sub/b.txt": "there"})
	spec := buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.ParallelMerge, Width: 2}, zipspec.DefaultOptions())

	out := filepath.Join(t.TempDir(), "out.zip")
	h := destination.New(out, destination.AlwaysTruncate)
	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	w := New(h, Options{Workers: 2})
	stats, err := w.Write(context.Background(), spec)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if stats.Files != 2 || stats.Chunks != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer zr.Close()
	want := []struct{ name, content string }{{"a.txt", "hi"}, {"sub/b.txt", "there"}}
	if len(zr.File) != len(want) {
		t.Fatalf("archive holds %d entries, want %d", len(zr.File), len(want))
	}
	for i, f := range zr.File {
		if f.Name != want[i].name {
			t.Errorf("entry %d = %q, want %q", i, f.Name, want[i].name)
		}
		if got := readAll(t, f); got != want[i].content {
			t.Errorf("%s = %q, want %q", f.Name, got, want[i].content)
		}
		if f.Method != zip.Store {
			t.Errorf("%s: small file method = %d, want store", f.Name, f.Method)
		}
	}

	raw, _ := os.ReadFile(out)
	end := raw[len(raw)-22:]
	if binary.LittleEndian.Uint32(end) != 0x06054b50 {
		t.Fatalf("archive does not end with an end-of-directory record")
	}
	if n := binary.LittleEndian.Uint16(end[10:]); n != 2 {
		t.Errorf("end record counts %d entries, want 2", n)
	}
}

func randomTree(t *testing.T, root string, n int) map[string][]byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(1, 2))
	files := make(map[string][]byte, n)
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	for i := range n {
		name := fmt.Sprintf("d%d/f%03d.dat", i%4, i)
		var b []byte
		switch i % 3 {
		case 0:
			b = make([]byte, rng.IntN(64))
		case 1:
			var sb strings.Builder
			for sb.Len() < 2000+rng.IntN(20000) {
				sb.WriteString(words[rng.IntN(len(words))])
				sb.WriteByte(' ')
			}
			b = []byte(sb.String())
		default:
			b = make([]byte, 1000+rng.IntN(5000))
			for j := range b {
				b[j] = byte(rng.Uint32())
			}
		}
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, b, 0o644); err != nil {
			t.Fatal(err)
		}
		files[name] = b
	}
	return files
}

func TestParallelMatchesSequential(t *testing.T) {
	root := t.TempDir()
	randomTree(t, root, 50)
	opts := zipspec.DefaultOptions()

	want := archiveBytes(t, buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.Sequential}, opts), Options{})
	tests := []struct {
		name    string
		width   int
		workers int
		spool   int64
	}{
		{"one chunk", 1, 4, 0},
		{"three chunks", 3, 2, 0},
		{"more chunks than workers", 8, 2, 0},
		{"more chunks than entries", 64, 8, 0},
		{"spilled chunks", 5, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.ParallelMerge, Width: tt.width}, opts)
			got := archiveBytes(t, spec, Options{Workers: tt.workers, SpoolThreshold: tt.spool, TempDir: t.TempDir()})
			if !bytes.Equal(got, want) {
				t.Errorf("parallel archive differs from sequential (%d vs %d bytes)", len(got), len(want))
			}
		})
	}
}

func TestLaterChunkFinishingFirst(t *testing.T) {
	root := t.TempDir()
	big := strings.Repeat("the first chunk is slow to deflate\n", 20000)
	writeTree(t, root, map[string]string{"a-big.txt": big, "b-tiny.txt": "tiny"})
	opts := zipspec.DefaultOptions()
	want := archiveBytes(t, buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.Sequential}, opts), Options{})

	spec := buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.ParallelMerge, Width: 2}, opts)
	if n := len(spec.Chunks()); n != 2 {
		t.Fatalf("spec has %d chunks, want 2", n)
	}

	var (
		mu       sync.Mutex
		finished []int
	)
	secondDone := make(chan struct{})
	sink := &memSink{}
	w := New(sink, Options{Workers: 2})
	w.compress = func(ctx context.Context, spec *zipspec.Spec, c zipspec.Chunk, threshold int64, tempDir string) chunkResult {
		if c.Index == 0 {
			select {
			case <-secondDone:
			case <-ctx.Done():
			}
		}
		res := compressChunk(ctx, spec, c, threshold, tempDir)
		mu.Lock()
		finished = append(finished, c.Index)
		mu.Unlock()
		if c.Index == 1 {
			close(secondDone)
		}
		return res
	}
	if _, err := w.Write(context.Background(), spec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if len(finished) != 2 || finished[0] != 1 || finished[1] != 0 {
		t.Fatalf("chunks finished in order %v, want [1 0]", finished)
	}
	if !bytes.Equal(sink.Bytes(), want) {
		t.Errorf("archive differs from sequential (%d vs %d bytes)", sink.Len(), len(want))
	}
	zr := openArchive(t, sink.Bytes())
	if len(zr.File) != 2 || zr.File[0].Name != "a-big.txt" || zr.File[1].Name != "b-tiny.txt" {
		t.Fatalf("entries out of order: %v", zr.File)
	}
	off0, _ := zr.File[0].DataOffset()
	off1, _ := zr.File[1].DataOffset()
	if off0 >= off1 {
		t.Errorf("data offsets %d, %d not in entry order", off0, off1)
	}
	if zr.File[0].Method != zip.Deflate {
		t.Errorf("big entry method = %d, want deflate", zr.File[0].Method)
	}
	if got := readAll(t, zr.File[0]); got != big {
		t.Errorf("big entry content mismatch")
	}
}

func TestRoundTrip(t *testing.T) {
	root := t.TempDir()
	files := randomTree(t, root, 30)
	spec := buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.ParallelMerge, Width: 4}, zipspec.DefaultOptions())
	zr := openArchive(t, archiveBytes(t, spec, Options{}))

	if len(zr.File) != len(files) {
		t.Fatalf("archive holds %d entries, want %d", len(zr.File), len(files))
	}
	for _, f := range zr.File {
		want, ok := files[f.Name]
		if !ok {
			t.Errorf("unexpected entry %q", f.Name)
			continue
		}
		if got := readAll(t, f); got != string(want) {
			t.Errorf("%s: content mismatch", f.Name)
		}
		if f.CRC32 != crc32.ChecksumIEEE(want) {
			t.Errorf("%s: crc = %08x, want %08x", f.Name, f.CRC32, crc32.ChecksumIEEE(want))
		}
		if f.UncompressedSize64 != uint64(len(want)) {
			t.Errorf("%s: size = %d, want %d", f.Name, f.UncompressedSize64, len(want))
		}
		wantMethod := zip.Deflate
		if len(want) <= zipspec.DefaultSmallFileThreshold {
			wantMethod = zip.Store
		}
		if f.Method != wantMethod {
			t.Errorf("%s (%d bytes): method = %d, want %d", f.Name, len(want), f.Method, wantMethod)
		}
		if !f.Modified.Equal(zipspec.ReproducibleTime) {
			t.Errorf("%s: modified = %v, want %v", f.Name, f.Modified, zipspec.ReproducibleTime)
		}
	}
}

func TestEmptyArchive(t *testing.T) {
	for _, p := range []zipspec.Parallelism{zipspec.Sequential, zipspec.ParallelMerge} {
		t.Run(p.String(), func(t *testing.T) {
			spec, err := zipspec.Build(crawl.Result{}, zipspec.Strategy{Parallelism: p, Width: 4}, zipspec.DefaultOptions())
			if err != nil {
				t.Fatal(err)
			}
			data := archiveBytes(t, spec, Options{})
			if len(data) != 22 {
				t.Errorf("empty archive is %d bytes, want 22", len(data))
			}
			if zr := openArchive(t, data); len(zr.File) != 0 {
				t.Errorf("empty archive lists %d entries", len(zr.File))
			}
		})
	}
}

func TestEntryVanished(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})
	spec := buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.ParallelMerge, Width: 3}, zipspec.DefaultOptions())
	gone := filepath.Join(root, "b.txt")
	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}

	w := New(&memSink{}, Options{Workers: 3})
	_, err := w.Write(context.Background(), spec)
	if !errors.Is(err, ErrEntryVanished) {
		t.Fatalf("Write = %v, want ErrEntryVanished", err)
	}
	var ce *CompressionError
	if !errors.As(err, &ce) {
		t.Fatalf("error %T is not a *CompressionError", err)
	}
	if ce.Kind != EntryVanished || ce.Index != 1 || !strings.HasSuffix(ce.Path, "b.txt") {
		t.Errorf("error = %+v", ce)
	}
}

func TestCancelledWrite(t *testing.T) {
	root := t.TempDir()
	randomTree(t, root, 10)
	spec := buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.ParallelMerge, Width: 4}, zipspec.DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &memSink{}
	if _, err := New(sink, Options{}).Write(ctx, spec); !errors.Is(err, context.Canceled) {
		t.Errorf("Write = %v, want context.Canceled", err)
	}
	if sink.Len() != 0 {
		t.Errorf("cancelled write placed %d bytes", sink.Len())
	}
}

func TestAppendToExistingArchive(t *testing.T) {
	first := t.TempDir()
	writeTree(t, first, map[string]string{"a.txt": "first"})
	second := t.TempDir()
	writeTree(t, second, map[string]string{"b.txt": "second"})
	out := filepath.Join(t.TempDir(), "out.zip")

	write := func(root string, behavior destination.Behavior) error {
		h := destination.New(out, behavior)
		if err := h.Initialize(); err != nil {
			return err
		}
		w := New(h, Options{})
		spec := buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.ParallelMerge, Width: 2}, zipspec.DefaultOptions())
		if _, err := w.Write(context.Background(), spec); err != nil {
			w.Abort()
			return err
		}
		return w.Finalize()
	}
	if err := write(first, destination.OptimisticallyAppend); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := write(second, destination.AppendOrFail); err != nil {
		t.Fatalf("append: %v", err)
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 2 || zr.File[0].Name != "a.txt" || zr.File[1].Name != "b.txt" {
		t.Fatalf("entries = %v", zr.File)
	}
	if got := readAll(t, zr.File[0]); got != "first" {
		t.Errorf("a.txt = %q", got)
	}
	if got := readAll(t, zr.File[1]); got != "second" {
		t.Errorf("b.txt = %q", got)
	}

	// a clashing name is refused before anything is written
	if err := write(first, destination.AppendOrFail); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("appending a.txt again = %v, want ErrDuplicateName", err)
	}
}

func TestAppendToNonZip(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"__main__.py": "print('hi')\n"})
	out := filepath.Join(t.TempDir(), "app.pyz")
	stub := "#!/usr/bin/env python3\n"
	if err := os.WriteFile(out, []byte(stub), 0o755); err != nil {
		t.Fatal(err)
	}

	h := destination.New(out, destination.AppendToNonZip)
	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	w := New(h, Options{})
	spec := buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.Sequential}, zipspec.DefaultOptions())
	if _, err := w.Write(context.Background(), spec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	raw, _ := os.ReadFile(out)
	if !strings.HasPrefix(string(raw), stub) {
		t.Errorf("stub not preserved")
	}
	zr := openArchive(t, raw)
	if len(zr.File) != 1 || readAll(t, zr.File[0]) != "print('hi')\n" {
		t.Errorf("archive behind the stub is unreadable")
	}
	dir, err := zipfmt.ReadDirectory(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("ReadDirectory: %v", err)
	}
	if dir.Records[0].Offset != uint64(len(stub)) {
		t.Errorf("first entry at %d, want %d", dir.Records[0].Offset, len(stub))
	}
}

func TestFinalizedWriter(t *testing.T) {
	spec, err := zipspec.Build(crawl.Result{}, zipspec.Strategy{}, zipspec.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	w := New(&memSink{}, Options{})
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := w.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Errorf("second Finalize = %v, want ErrFinalized", err)
	}
	if _, err := w.Write(context.Background(), spec); !errors.Is(err, ErrFinalized) {
		t.Errorf("Write after Finalize = %v, want ErrFinalized", err)
	}
	if err := w.AddDirectory("x", zipspec.ReproducibleTime); !errors.Is(err, ErrFinalized) {
		t.Errorf("AddDirectory after Finalize = %v, want ErrFinalized", err)
	}
	if err := w.Abort(); !errors.Is(err, ErrFinalized) {
		t.Errorf("Abort after Finalize = %v, want ErrFinalized", err)
	}
}

func TestOwnPrefixDirectories(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})
	opts := zipspec.DefaultOptions()
	opts.Modifications = zipspec.Modifications{SilentPrefix: "lib", OwnPrefix: "pkg/mod"}
	spec := buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.ParallelMerge, Width: 2}, opts)
	zr := openArchive(t, archiveBytes(t, spec, Options{}))

	want := []string{"lib/pkg/", "lib/pkg/mod/", "lib/pkg/mod/a.txt"}
	if len(zr.File) != len(want) {
		t.Fatalf("archive holds %d entries, want %d", len(zr.File), len(want))
	}
	for i, f := range zr.File {
		if f.Name != want[i] {
			t.Errorf("entry %d = %q, want %q", i, f.Name, want[i])
		}
		isDir := strings.HasSuffix(want[i], "/")
		if f.Mode().IsDir() != isDir {
			t.Errorf("%s: IsDir = %v", f.Name, f.Mode().IsDir())
		}
	}
}

func TestAddDirectoryAndCopyRaw(t *testing.T) {
	sink := &memSink{}
	w := New(sink, Options{})
	if err := w.AddDirectory("docs", zipspec.ReproducibleTime); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}
	payload := []byte("raw bytes")
	h := zipfmt.Header{
		Name:             "docs/raw.txt",
		Method:           zipfmt.Store,
		Modified:         zipspec.ReproducibleTime,
		CRC32:            crc32.ChecksumIEEE(payload),
		CompressedSize:   uint64(len(payload)),
		UncompressedSize: uint64(len(payload)),
		Mode:             0o600,
	}
	if err := w.CopyRaw(h, bytes.NewReader(payload)); err != nil {
		t.Fatalf("CopyRaw: %v", err)
	}
	if err := w.CopyRaw(h, bytes.NewReader(payload)); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("second CopyRaw = %v, want ErrDuplicateName", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	zr := openArchive(t, sink.Bytes())
	if len(zr.File) != 2 || zr.File[0].Name != "docs/" || zr.File[1].Name != "docs/raw.txt" {
		t.Fatalf("entries = %v", zr.File)
	}
	if got := readAll(t, zr.File[1]); got != string(payload) {
		t.Errorf("raw entry = %q", got)
	}
	if zr.File[1].Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", zr.File[1].Mode())
	}
}

func TestPreserveSourceMetadata(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"run.sh": "#!/bin/sh\n"})
	p := filepath.Join(root, "run.sh")
	if err := os.Chmod(p, 0o755); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2021, 6, 15, 12, 30, 44, 0, time.UTC)
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	opts := zipspec.DefaultOptions()
	opts.Mtime = zipspec.MtimeBehavior{Kind: zipspec.PreserveSource}
	spec := buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.Sequential}, opts)
	zr := openArchive(t, archiveBytes(t, spec, Options{}))

	f := zr.File[0]
	if !f.Modified.Equal(mtime) {
		t.Errorf("modified = %v, want %v", f.Modified, mtime)
	}
	if f.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", f.Mode())
	}
}

func TestStoreCompression(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"big.txt": strings.Repeat("compressible ", 1000)})
	opts := zipspec.DefaultOptions()
	opts.Compression = zipspec.Compression{Method: zipfmt.Store}
	spec := buildSpec(t, root, zipspec.Strategy{Parallelism: zipspec.Sequential}, opts)
	zr := openArchive(t, archiveBytes(t, spec, Options{}))
	if f := zr.File[0]; f.Method != zip.Store || f.CompressedSize64 != f.UncompressedSize64 {
		t.Errorf("method = %d, sizes %d/%d", f.Method, f.CompressedSize64, f.UncompressedSize64)
	}
}
