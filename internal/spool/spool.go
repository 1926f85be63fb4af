// Package spool provides a write buffer that keeps its contents in memory up
// to a threshold and spills everything past it to a temporary file.
package spool

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Buffer is an append-only byte store. It is not safe for concurrent use.
type Buffer struct {
	threshold int64
	dir       string
	pattern   string

	mem  bytes.Buffer
	file *os.File
	size int64
}

// New returns an empty buffer that spills to a temporary file in dir once
// more than threshold bytes have been written. A threshold of zero or less
// spills on the first write; an empty dir uses os.TempDir.
func New(threshold int64, dir string) *Buffer {
	return &Buffer{threshold: threshold, dir: dir, pattern: "parzip-spool-*"}
}

// Write appends p.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.file == nil && int64(b.mem.Len())+int64(len(p)) > b.threshold {
		if err := b.spill(); err != nil {
			return 0, err
		}
	}
	var (
		n   int
		err error
	)
	if b.file != nil {
		n, err = b.file.Write(p)
	} else {
		n, err = b.mem.Write(p)
	}
	b.size += int64(n)
	return n, err
}

// ReadFrom appends everything read from r.
func (b *Buffer) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			w, werr := b.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

func (b *Buffer) spill() error {
	f, err := os.CreateTemp(b.dir, b.pattern)
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}
	// the name is not needed once the descriptor is open
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return fmt.Errorf("unlink spool file: %w", err)
	}
	if _, err := f.Write(b.mem.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("spill to %s: %w", f.Name(), err)
	}
	b.mem.Reset()
	b.file = f
	return nil
}

// Len returns the number of bytes written since the last Reset.
func (b *Buffer) Len() int64 { return b.size }

// Spilled reports whether the contents live in a temporary file.
func (b *Buffer) Spilled() bool { return b.file != nil }

// WriteTo copies the whole contents to w. The buffer may be written to again
// afterwards.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	if b.file == nil {
		return io.Copy(w, bytes.NewReader(b.mem.Bytes()))
	}
	n, err := io.Copy(w, io.NewSectionReader(b.file, 0, b.size))
	if err != nil {
		return n, fmt.Errorf("read spool: %w", err)
	}
	return n, nil
}

// Reset empties the buffer, keeping any spill file for reuse.
func (b *Buffer) Reset() error {
	b.mem.Reset()
	b.size = 0
	if b.file == nil {
		return nil
	}
	if err := b.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate spool: %w", err)
	}
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool: %w", err)
	}
	return nil
}

// Close releases the spill file, if any. The buffer must not be used after.
func (b *Buffer) Close() error {
	b.mem = bytes.Buffer{}
	b.size = 0
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}
