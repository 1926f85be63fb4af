package zipspec

import (
	"fmt"
	"io/fs"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dendrascience/parzip/zipfmt"
)

// Parallelism selects how a spec is split across workers.
type Parallelism int

const (
	// Sequential puts every entry in one chunk.
	Sequential Parallelism = iota
	// ParallelMerge splits entries into contiguous chunks compressed
	// independently and merged in order.
	ParallelMerge
)

func (p Parallelism) String() string {
	switch p {
	case Sequential:
		return "sequential"
	case ParallelMerge:
		return "parallel-merge"
	default:
		return fmt.Sprintf("parallelism(%d)", int(p))
	}
}

// ParseParallelism accepts the names printed by String.
func ParseParallelism(s string) (Parallelism, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "synchronous":
		return Sequential, nil
	case "parallel-merge", "parallel":
		return ParallelMerge, nil
	default:
		return 0, fmt.Errorf("parallelism: unsupported value %q", s)
	}
}

// Strategy pairs a Parallelism with the number of chunks to aim for.
type Strategy struct {
	Parallelism Parallelism
	// Width is the chunk count for ParallelMerge. Zero or less means
	// runtime.NumCPU().
	Width int
}

// EffectiveWidth resolves Width against the machine.
func (s Strategy) EffectiveWidth() int {
	if s.Width > 0 {
		return s.Width
	}
	return runtime.NumCPU()
}

// DefaultLevel asks deflate for its default level.
const DefaultLevel = -1

// Compression is the method and level applied to file entries.
type Compression struct {
	Method zipfmt.Method
	// Level is 0-9 or DefaultLevel. Only meaningful for Deflate.
	Level int
}

// ParseCompression builds a Compression from CLI or config strings. An empty
// level selects the default; any explicit level is rejected for store.
func ParseCompression(method, level string) (Compression, error) {
	var c Compression
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "store", "stored":
		c.Method = zipfmt.Store
	case "deflate", "deflated", "":
		c.Method = zipfmt.Deflate
	default:
		return Compression{}, fmt.Errorf("compression: unsupported method %q", method)
	}
	level = strings.TrimSpace(level)
	if level == "" {
		if c.Method == zipfmt.Deflate {
			c.Level = DefaultLevel
		}
		return c, nil
	}
	if c.Method == zipfmt.Store {
		return Compression{}, fmt.Errorf("compression: store does not take a level (got %q)", level)
	}
	n, err := strconv.Atoi(level)
	if err != nil {
		return Compression{}, fmt.Errorf("compression level %q: %w", level, err)
	}
	c.Level = n
	return c, c.validate()
}

func (c Compression) validate() error {
	switch c.Method {
	case zipfmt.Store:
		if c.Level != 0 && c.Level != DefaultLevel {
			return fmt.Errorf("compression: store does not take a level (got %d)", c.Level)
		}
	case zipfmt.Deflate:
		if c.Level < DefaultLevel || c.Level > 9 {
			return fmt.Errorf("compression: deflate level %d out of range -1..9", c.Level)
		}
	default:
		return fmt.Errorf("compression: unsupported method %v", c.Method)
	}
	return nil
}

func (c Compression) String() string {
	if c.Method == zipfmt.Deflate && c.Level != DefaultLevel {
		return fmt.Sprintf("%s(%d)", c.Method, c.Level)
	}
	return c.Method.String()
}

// MtimeKind selects where entry modification times come from.
type MtimeKind int

const (
	// Reproducible stamps every entry with ReproducibleTime.
	Reproducible MtimeKind = iota
	// CurrentTime stamps every entry with the time Build ran.
	CurrentTime
	// PreserveSource copies each source file's modification time.
	PreserveSource
	// Explicit stamps every entry with a caller-chosen time.
	Explicit
)

// ReproducibleTime is the earliest time a ZIP header can encode.
var ReproducibleTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// MtimeBehavior is a MtimeKind plus the time it resolved to, if any.
type MtimeBehavior struct {
	Kind MtimeKind
	Time time.Time
}

// ExplicitTime returns an Explicit behavior stamping t.
func ExplicitTime(t time.Time) MtimeBehavior {
	return MtimeBehavior{Kind: Explicit, Time: t}
}

// ParseMtime accepts "reproducible", "current", "preserve" or an RFC 3339
// timestamp.
func ParseMtime(s string) (MtimeBehavior, error) {
	switch v := strings.TrimSpace(s); strings.ToLower(v) {
	case "reproducible", "":
		return MtimeBehavior{Kind: Reproducible}, nil
	case "current", "current-time", "now":
		return MtimeBehavior{Kind: CurrentTime}, nil
	case "preserve", "preserve-source", "source":
		return MtimeBehavior{Kind: PreserveSource}, nil
	default:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return MtimeBehavior{}, fmt.Errorf("mtime: want reproducible, current, preserve or an RFC 3339 time: %w", err)
		}
		return ExplicitTime(t), nil
	}
}

func (m MtimeBehavior) String() string {
	switch m.Kind {
	case Reproducible:
		return "reproducible"
	case CurrentTime:
		return "current"
	case PreserveSource:
		return "preserve"
	case Explicit:
		return m.Time.Format(time.RFC3339)
	default:
		return fmt.Sprintf("mtime(%d)", int(m.Kind))
	}
}

// Resolve fixes the build time used by CurrentTime, and by PreserveSource for
// synthesized entries. Other kinds are returned unchanged.
func (m MtimeBehavior) Resolve(now time.Time) MtimeBehavior {
	switch m.Kind {
	case CurrentTime, PreserveSource:
		m.Time = now.UTC().Truncate(time.Second)
	}
	return m
}

// For returns the modification time, in UTC, of an entry whose source is
// described by info. info may be nil for synthesized directory entries, which then take
// the build time under PreserveSource.
func (m MtimeBehavior) For(info fs.FileInfo) time.Time {
	switch m.Kind {
	case PreserveSource:
		if info != nil {
			return info.ModTime().UTC()
		}
		return m.Time
	case CurrentTime, Explicit:
		return m.Time
	default:
		return ReproducibleTime
	}
}

// Modifications rename entries on their way into the archive.
type Modifications struct {
	// SilentPrefix is prepended to every name without adding directory
	// entries for it.
	SilentPrefix string
	// OwnPrefix is prepended after SilentPrefix, and a directory entry is
	// emitted for each of its components.
	OwnPrefix string
}

// DefaultSmallFileThreshold is the size at or below which files are stored
// rather than deflated.
const DefaultSmallFileThreshold = 1000

// Options control how entries are encoded.
type Options struct {
	Compression Compression
	Mtime       MtimeBehavior
	// SmallFileThreshold stores files of at most this many bytes without
	// compression. Negative disables the check.
	SmallFileThreshold int64
	Modifications      Modifications
	// NormalizeNames converts entry names to Unicode NFC.
	NormalizeNames bool
	// DirectoryEntries emits an entry for every directory that holds files.
	DirectoryEntries bool
}

// DefaultOptions deflates at the default level with reproducible times.
func DefaultOptions() Options {
	return Options{
		Compression:        Compression{Method: zipfmt.Deflate, Level: DefaultLevel},
		Mtime:              MtimeBehavior{Kind: Reproducible},
		SmallFileThreshold: DefaultSmallFileThreshold,
	}
}

// MethodFor returns the method used for a file of size bytes.
func (o Options) MethodFor(size int64) zipfmt.Method {
	if o.Compression.Method == zipfmt.Deflate && o.SmallFileThreshold >= 0 && size <= o.SmallFileThreshold {
		return zipfmt.Store
	}
	return o.Compression.Method
}

func (o Options) validate() error {
	if err := o.Compression.validate(); err != nil {
		return err
	}
	switch o.Mtime.Kind {
	case Reproducible, CurrentTime, PreserveSource, Explicit:
	default:
		return fmt.Errorf("mtime: unsupported behavior %d", int(o.Mtime.Kind))
	}
	return nil
}
