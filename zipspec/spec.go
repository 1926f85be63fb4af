// Package zipspec turns a crawl result into an immutable archive plan: the
// validated, ordered entry list, its partition into chunks, and the encoding
// options every worker applies.
package zipspec

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dendrascience/parzip/crawl"
)

// Entry is one member of the planned archive.
type Entry struct {
	// Name is the archive member name. Directory names end in "/".
	Name string
	// Source is the file to read; empty for directories.
	Source string
	Dir    bool
}

// Chunk is the half-open range [Start, End) of entries compressed by one
// worker.
type Chunk struct {
	Index int
	Start int
	End   int
}

// Len returns the number of entries in c.
func (c Chunk) Len() int { return c.End - c.Start }

// Spec is a built archive plan. It is safe for concurrent reads.
type Spec struct {
	entries  []Entry
	chunks   []Chunk
	strategy Strategy
	opts     Options
	files    int
}

// Entries returns a copy of the ordered entry list.
func (s *Spec) Entries() []Entry { return slices.Clone(s.entries) }

// Chunks returns a copy of the partition.
func (s *Spec) Chunks() []Chunk { return slices.Clone(s.chunks) }

// ChunkEntries returns a copy of the entries in c.
func (s *Spec) ChunkEntries(c Chunk) []Entry { return slices.Clone(s.entries[c.Start:c.End]) }

func (s *Spec) Strategy() Strategy { return s.strategy }
func (s *Spec) Options() Options   { return s.opts }

// Len returns the number of entries, directories included.
func (s *Spec) Len() int { return len(s.entries) }

// Files returns the number of file entries.
func (s *Spec) Files() int { return s.files }

// Build validates the crawl result and plans the archive. It does no I/O.
// Names are taken from each entry's unresolved path, prefixed by
// opts.Modifications; entries are ordered component-wise by name.
func Build(result crawl.Result, strategy Strategy, opts Options) (*Spec, error) {
	switch strategy.Parallelism {
	case Sequential, ParallelMerge:
	default:
		return nil, fmt.Errorf("zipspec: unsupported parallelism %v", strategy.Parallelism)
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("zipspec: %w", err)
	}
	opts.Mtime = opts.Mtime.Resolve(time.Now())

	nfc := opts.NormalizeNames
	silent, err := prefixComponents(opts.Modifications.SilentPrefix, nfc)
	if err != nil {
		return nil, err
	}
	own, err := prefixComponents(opts.Modifications.OwnPrefix, nfc)
	if err != nil {
		return nil, err
	}

	files := make([]Entry, 0, len(result.Entries))
	for _, e := range result.Entries {
		name := normalize(e.UnresolvedPath, nfc)
		if err := ValidateName(name); err != nil {
			return nil, &NameError{Name: name, Source: e.ResolvedPath, Err: err}
		}
		files = append(files, Entry{Name: name, Source: e.ResolvedPath})
	}
	slices.SortStableFunc(files, func(a, b Entry) int { return crawl.ComparePaths(a.Name, b.Name) })
	for i := 1; i < len(files); i++ {
		if files[i].Name == files[i-1].Name {
			return nil, &NameError{
				Name:   files[i].Name,
				Source: files[i].Source,
				Other:  files[i-1].Source,
				Err:    ErrDuplicateName,
			}
		}
	}

	entries := make([]Entry, 0, len(own)+len(files))
	prefix := slices.Clone(silent)
	for _, c := range own {
		prefix = append(prefix, c)
		entries = append(entries, Entry{Name: strings.Join(prefix, "/") + "/", Dir: true})
	}
	join := func(name string) string {
		if len(prefix) == 0 {
			return name
		}
		return strings.Join(prefix, "/") + "/" + name
	}

	var prevDirs []string
	for _, f := range files {
		if opts.DirectoryEntries {
			cur := parentDirs(f.Name)
			for _, d := range newDirs(prevDirs, cur) {
				entries = append(entries, Entry{Name: join(strings.Join(d, "/")) + "/", Dir: true})
			}
			prevDirs = cur
		}
		f.Name = join(f.Name)
		entries = append(entries, f)
	}

	s := &Spec{
		entries:  entries,
		strategy: strategy,
		opts:     opts,
		files:    len(files),
	}
	switch strategy.Parallelism {
	case Sequential:
		s.chunks = []Chunk{{Index: 0, Start: 0, End: len(entries)}}
	case ParallelMerge:
		s.chunks = Partition(len(entries), strategy.EffectiveWidth())
	}
	return s, nil
}

// Partition splits n entries into min(width, n) contiguous chunks whose sizes
// differ by at most one, larger chunks first. The result depends only on n
// and width.
func Partition(n, width int) []Chunk {
	if n <= 0 {
		return nil
	}
	k := max(min(width, n), 1)
	size, extra := n/k, n%k
	chunks := make([]Chunk, 0, k)
	start := 0
	for i := range k {
		end := start + size
		if i < extra {
			end++
		}
		chunks = append(chunks, Chunk{Index: i, Start: start, End: end})
		start = end
	}
	return chunks
}
