package destination

import (
	"fmt"
	"strings"
)

// Behavior decides what happens to a pre-existing target.
type Behavior int

const (
	// AlwaysTruncate creates the target or empties an existing one.
	AlwaysTruncate Behavior = iota
	// AppendOrFail adds entries to an existing archive, failing with
	// NotFound when there is none.
	AppendOrFail
	// OptimisticallyAppend appends to an existing archive or creates one.
	OptimisticallyAppend
	// AppendToNonZip writes a new archive after the existing bytes of the
	// target, which are treated as an opaque prefix (a shebang line, say).
	AppendToNonZip
	// CreateNew fails with AlreadyExists if the target exists.
	CreateNew
)

var behaviorNames = map[Behavior]string{
	AlwaysTruncate:       "always-truncate",
	AppendOrFail:         "append-or-fail",
	OptimisticallyAppend: "optimistically-append",
	AppendToNonZip:       "append-to-non-zip",
	CreateNew:            "create-new",
}

func (b Behavior) String() string {
	if name, ok := behaviorNames[b]; ok {
		return name
	}
	return fmt.Sprintf("behavior(%d)", int(b))
}

// ParseBehavior accepts the names printed by String.
func ParseBehavior(s string) (Behavior, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for b, name := range behaviorNames {
		if s == name {
			return b, nil
		}
	}
	return 0, fmt.Errorf("destination behavior: unsupported value %q", s)
}

// Behaviors lists every behavior in declaration order.
func Behaviors() []Behavior {
	return []Behavior{AlwaysTruncate, AppendOrFail, OptimisticallyAppend, AppendToNonZip, CreateNew}
}

// State is the lifecycle position of a Handle.
type State int

const (
	Uninitialized State = iota
	Open
	Finished
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Open:
		return "open"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
