package zipspec

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	ErrInvalidName   = errors.New("invalid entry name")
	ErrDuplicateName = errors.New("duplicate entry name")
)

// NameError reports an entry name that cannot go into an archive.
type NameError struct {
	Name   string
	Source string
	// Other is the source of the earlier entry for duplicates.
	Other string
	Err   error
}

func (e *NameError) Error() string {
	if errors.Is(e.Err, ErrDuplicateName) {
		return fmt.Sprintf("entry %q from %s: %v (already used by %s)", e.Name, e.Source, e.Err, e.Other)
	}
	if e.Source != "" {
		return fmt.Sprintf("entry %q from %s: %v", e.Name, e.Source, e.Err)
	}
	return fmt.Sprintf("entry %q: %v", e.Name, e.Err)
}

func (e *NameError) Unwrap() error { return e.Err }

// ValidateName checks that name is valid UTF-8 and a relative, slash
// separated file name with no empty, "." or ".." components. Backslashes
// are ordinary name bytes.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidName)
	case strings.HasPrefix(name, "/"):
		return fmt.Errorf("%w: absolute path", ErrInvalidName)
	case strings.HasPrefix(name, "./"):
		return fmt.Errorf("%w: leading ./", ErrInvalidName)
	case strings.HasSuffix(name, "/"):
		return fmt.Errorf("%w: trailing /", ErrInvalidName)
	case strings.Contains(name, "//"):
		return fmt.Errorf("%w: empty component", ErrInvalidName)
	}
	for _, c := range strings.Split(name, "/") {
		if c == ".." || c == "." {
			return fmt.Errorf("%w: %q component", ErrInvalidName, c)
		}
	}
	return nil
}

func normalize(name string, nfc bool) string {
	if nfc {
		return norm.NFC.String(name)
	}
	return name
}

// prefixComponents validates a prefix, tolerating a trailing slash, and
// returns its components.
func prefixComponents(prefix string, nfc bool) ([]string, error) {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return nil, nil
	}
	prefix = normalize(prefix, nfc)
	if err := ValidateName(prefix); err != nil {
		return nil, &NameError{Name: prefix, Err: err}
	}
	return strings.Split(prefix, "/"), nil
}

// parentDirs returns the directory components of a file name.
func parentDirs(name string) []string {
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return nil
	}
	return strings.Split(name[:i], "/")
}

// newDirs returns the directories of cur not already opened by prev, each
// as its full component list.
func newDirs(prev, cur []string) [][]string {
	shared := 0
	for shared < len(prev) && shared < len(cur) && prev[shared] == cur[shared] {
		shared++
	}
	var out [][]string
	for i := shared; i < len(cur); i++ {
		out = append(out, cur[:i+1])
	}
	return out
}
