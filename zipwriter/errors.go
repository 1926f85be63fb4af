package zipwriter

import (
	"errors"
	"fmt"

	"github.com/dendrascience/parzip/zipspec"
)

// Kind classifies a compression failure.
type Kind int

const (
	Io Kind = iota
	// EntryVanished means a source file listed in the Spec no longer exists.
	EntryVanished
)

var (
	ErrIo            = errors.New("i/o error")
	ErrEntryVanished = errors.New("entry vanished")
	// ErrFinalized is returned by every method once Finalize or Abort ran.
	ErrFinalized = errors.New("zipwriter: archive already finalized")
	// ErrDuplicateName is returned when an entry clashes with one already
	// in the archive.
	ErrDuplicateName = zipspec.ErrDuplicateName
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case EntryVanished:
		return "entry vanished"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	if k == EntryVanished {
		return ErrEntryVanished
	}
	return ErrIo
}

// CompressionError reports the entry that failed. Index is its position in
// the Spec, or -1 for failures not tied to one entry.
type CompressionError struct {
	Kind  Kind
	Path  string
	Index int
	Err   error
}

func (e *CompressionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind.sentinel(), e.Err)
	}
	return fmt.Sprintf("entry %d (%s): %v: %v", e.Index, e.Path, e.Kind.sentinel(), e.Err)
}

func (e *CompressionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}
