package destination

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies a destination failure.
type Kind int

const (
	AlreadyExists Kind = iota
	NotFound
	PermissionDenied
	AlreadyFinished
	NotYetOpen
	Busy
	NotAnArchive
	Io
)

var (
	ErrAlreadyExists    = errors.New("destination already exists")
	ErrNotFound         = errors.New("destination does not exist")
	ErrPermissionDenied = errors.New("destination is not writable")
	ErrAlreadyFinished  = errors.New("destination already finished")
	ErrNotYetOpen       = errors.New("destination not yet open")
	ErrBusy             = errors.New("destination is locked by another writer")
	ErrNotAnArchive     = errors.New("destination is not a zip archive")
	ErrIo               = errors.New("destination i/o error")
)

func (k Kind) String() string {
	switch k {
	case AlreadyExists:
		return "already exists"
	case NotFound:
		return "not found"
	case PermissionDenied:
		return "permission denied"
	case AlreadyFinished:
		return "already finished"
	case NotYetOpen:
		return "not yet open"
	case Busy:
		return "busy"
	case NotAnArchive:
		return "not an archive"
	case Io:
		return "io"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case AlreadyExists:
		return ErrAlreadyExists
	case NotFound:
		return ErrNotFound
	case PermissionDenied:
		return ErrPermissionDenied
	case AlreadyFinished:
		return ErrAlreadyFinished
	case NotYetOpen:
		return ErrNotYetOpen
	case Busy:
		return ErrBusy
	case NotAnArchive:
		return ErrNotAnArchive
	default:
		return ErrIo
	}
}

// Error describes a failure to open, write or finish a destination.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Path, e.Kind.sentinel())
	}
	return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind.sentinel(), e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// fsError classifies an error from the os package.
func fsError(path string, err error) *Error {
	kind := Io
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = NotFound
	case errors.Is(err, fs.ErrExist):
		kind = AlreadyExists
	case errors.Is(err, fs.ErrPermission):
		kind = PermissionDenied
	}
	return &Error{Kind: kind, Path: path, Err: err}
}
