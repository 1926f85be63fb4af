// Package destination opens the file an archive is written to, applying a
// Behavior to any pre-existing content, and guards it with a lock file so
// only one writer holds it at a time.
package destination

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/dendrascience/parzip/zipfmt"
)

const bufferSize = 1 << 20

// LockPath returns the lock file guarding path.
func LockPath(path string) string { return path + ".lock" }

// Handle is the output sink of one archive write. It moves from
// Uninitialized to Open on Initialize and to Finished on Finish. A Handle is
// owned by a single goroutine.
type Handle struct {
	path     string
	behavior Behavior
	state    State
	log      *slog.Logger

	lock   *flock.Flock
	file   *os.File
	buf    *bufio.Writer
	offset int64
	prior  []zipfmt.CentralRecord
}

// New returns an Uninitialized handle for path.
func New(path string, behavior Behavior) *Handle {
	return &Handle{
		path:     path,
		behavior: behavior,
		log:      slog.New(slog.DiscardHandler),
	}
}

// SetLogger replaces the discard logger.
func (h *Handle) SetLogger(l *slog.Logger) {
	if l != nil {
		h.log = l
	}
}

func (h *Handle) Path() string       { return h.path }
func (h *Handle) Behavior() Behavior { return h.behavior }
func (h *Handle) State() State       { return h.state }

// Offset returns the absolute position the next Write lands at.
func (h *Handle) Offset() int64 { return h.offset }

// Prior returns the central directory records of the archive being appended
// to, which must be written back ahead of any new records.
func (h *Handle) Prior() []zipfmt.CentralRecord { return slices.Clone(h.prior) }

// Initialize opens the target according to the handle's Behavior. No byte of
// an existing target is modified before the first Write, except under
// AlwaysTruncate.
func (h *Handle) Initialize() error {
	switch h.state {
	case Open:
		return &Error{Kind: Busy, Path: h.path, Err: errors.New("handle already open")}
	case Finished:
		return &Error{Kind: AlreadyFinished, Path: h.path}
	}

	info, err := os.Stat(h.path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fsError(h.path, err)
	}
	if exists && info.IsDir() {
		return &Error{Kind: Io, Path: h.path, Err: errors.New("is a directory")}
	}

	switch h.behavior {
	case AlwaysTruncate:
		if err := h.probeWritable(); err != nil {
			return err
		}
		return h.open(os.O_RDWR|os.O_CREATE, h.truncate)
	case AppendOrFail:
		if !exists {
			return &Error{Kind: NotFound, Path: h.path}
		}
		return h.open(os.O_RDWR, h.readArchive)
	case OptimisticallyAppend:
		if exists {
			return h.open(os.O_RDWR, h.readArchive)
		}
		return h.open(os.O_RDWR|os.O_CREATE|os.O_EXCL, nil)
	case AppendToNonZip:
		if !exists {
			return &Error{Kind: NotFound, Path: h.path}
		}
		return h.open(os.O_RDWR, h.seekEnd)
	case CreateNew:
		if exists {
			return &Error{Kind: AlreadyExists, Path: h.path}
		}
		return h.open(os.O_RDWR|os.O_CREATE|os.O_EXCL, nil)
	default:
		return &Error{Kind: Io, Path: h.path, Err: fmt.Errorf("unsupported behavior %v", h.behavior)}
	}
}

func (h *Handle) probeWritable() error {
	dir := filepath.Dir(h.path)
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return &Error{Kind: NotFound, Path: dir, Err: err}
		}
		return &Error{Kind: PermissionDenied, Path: dir, Err: err}
	}
	return nil
}

// open takes the lock, opens the target with flag and runs prepare. Every
// resource acquired is released if a later step fails.
func (h *Handle) open(flag int, prepare func() error) error {
	lock := flock.New(LockPath(h.path))
	ok, err := lock.TryLock()
	if err != nil {
		return fsError(LockPath(h.path), err)
	}
	if !ok {
		return &Error{Kind: Busy, Path: h.path}
	}

	f, err := os.OpenFile(h.path, flag, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return fsError(h.path, err)
	}
	h.lock, h.file = lock, f
	if prepare != nil {
		if err := prepare(); err != nil {
			h.release()
			return err
		}
	}
	if _, err := f.Seek(h.offset, io.SeekStart); err != nil {
		h.release()
		return &Error{Kind: Io, Path: h.path, Err: err}
	}
	h.buf = bufio.NewWriterSize(f, bufferSize)
	h.state = Open
	h.log.Debug("destination open",
		"path", h.path,
		"behavior", h.behavior.String(),
		"offset", h.offset,
		"prior_entries", len(h.prior),
	)
	return nil
}

func (h *Handle) truncate() error {
	if err := h.file.Truncate(0); err != nil {
		return &Error{Kind: Io, Path: h.path, Err: err}
	}
	return nil
}

func (h *Handle) seekEnd() error {
	info, err := h.file.Stat()
	if err != nil {
		return &Error{Kind: Io, Path: h.path, Err: err}
	}
	h.offset = info.Size()
	return nil
}

func (h *Handle) readArchive() error {
	info, err := h.file.Stat()
	if err != nil {
		return &Error{Kind: Io, Path: h.path, Err: err}
	}
	dir, err := zipfmt.ReadDirectory(h.file, info.Size())
	if err != nil {
		return &Error{Kind: NotAnArchive, Path: h.path, Err: err}
	}
	h.offset = dir.Offset
	h.prior = dir.Records
	return nil
}

// Write buffers p at the current offset.
func (h *Handle) Write(p []byte) (int, error) {
	if err := h.checkOpen(); err != nil {
		return 0, err
	}
	n, err := h.buf.Write(p)
	h.offset += int64(n)
	if err != nil {
		return n, &Error{Kind: Io, Path: h.path, Err: err}
	}
	return n, nil
}

func (h *Handle) checkOpen() error {
	switch h.state {
	case Uninitialized:
		return &Error{Kind: NotYetOpen, Path: h.path}
	case Finished:
		return &Error{Kind: AlreadyFinished, Path: h.path}
	}
	return nil
}

// Finish flushes buffered bytes, cuts the file at the current offset and
// releases the file and the lock. Resources are released even when an
// earlier step fails. A second call fails with AlreadyFinished.
func (h *Handle) Finish() error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	h.state = Finished

	var errs []error
	if err := h.buf.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	} else if err := h.file.Truncate(h.offset); err != nil {
		errs = append(errs, fmt.Errorf("truncate: %w", err))
	}
	if err := h.release(); err != nil {
		errs = append(errs, err)
	}
	h.buf = nil
	if len(errs) > 0 {
		return &Error{Kind: Io, Path: h.path, Err: errors.Join(errs...)}
	}
	h.log.Debug("destination finished", "path", h.path, "size", h.offset)
	return nil
}

func (h *Handle) release() error {
	var errs []error
	if h.file != nil {
		if err := h.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
		h.file = nil
	}
	if h.lock != nil {
		if err := h.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("unlock: %w", err))
		}
		h.lock = nil
	}
	return errors.Join(errs...)
}
