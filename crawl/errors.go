package crawl

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies a crawl failure.
type Kind int

const (
	NotFound Kind = iota
	PermissionDenied
	SymlinkLoop
	Io
)

// Sentinel errors for package crawl, matched by errors.Is against any *Error
// of the corresponding kind.
var (
	ErrNotFound         = errors.New("path not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSymlinkLoop      = errors.New("too many levels of symbolic links")
	ErrIo               = errors.New("i/o error")
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case PermissionDenied:
		return "permission denied"
	case SymlinkLoop:
		return "symlink loop"
	case Io:
		return "io"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case NotFound:
		return ErrNotFound
	case PermissionDenied:
		return ErrPermissionDenied
	case SymlinkLoop:
		return ErrSymlinkLoop
	default:
		return ErrIo
	}
}

// Error is returned by Crawl. Path is the offending filesystem path.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("crawl %s: %s", e.Path, e.Kind.sentinel())
	}
	return fmt.Sprintf("crawl %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func newError(path string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	kind := Io
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = NotFound
	case errors.Is(err, fs.ErrPermission):
		kind = PermissionDenied
	}
	return &Error{Kind: kind, Path: path, Err: err}
}
