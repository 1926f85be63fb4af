// Package merge copies the entries of existing ZIP archives into a
// zipwriter.Writer without recompressing them. Sources are grouped under
// optional name prefixes, written on the command line as "+prefix/".
package merge

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dendrascience/parzip/zipfmt"
	"github.com/dendrascience/parzip/zipspec"
	"github.com/dendrascience/parzip/zipwriter"
)

const (
	flagEncrypted      = 0x1
	flagDataDescriptor = 0x8
	flagUTF8           = 0x800
)

var (
	// ErrEmptyMerge is returned by ParseArgs when no source archive is named.
	ErrEmptyMerge = errors.New("merge: no source archives")
	// ErrEncrypted is returned for source entries that cannot be copied.
	ErrEncrypted = errors.New("merge: encrypted entries are not supported")
)

// Group is a set of source archives whose entries land under Prefix.
type Group struct {
	Prefix  string
	Sources []string
}

// Merge is an ordered list of groups.
type Merge struct {
	Groups []Group
	Logger *slog.Logger
}

// ParseArgs groups arguments of the form
//
//	[+prefix/] a.zip b.zip [+other/] c.zip ...
//
// Sources before the first prefix, and those after "+/", get no prefix.
func ParseArgs(args []string) (Merge, error) {
	var m Merge
	var cur *Group
	sources := 0
	for _, arg := range args {
		if strings.HasPrefix(arg, "+") && strings.HasSuffix(arg, "/") && len(arg) >= 2 {
			prefix := arg[1 : len(arg)-1]
			if prefix != "" {
				if err := zipspec.ValidateName(prefix); err != nil {
					return Merge{}, fmt.Errorf("merge prefix %q: %w", prefix, err)
				}
			}
			m.Groups = append(m.Groups, Group{Prefix: prefix})
			cur = &m.Groups[len(m.Groups)-1]
			continue
		}
		if cur == nil {
			m.Groups = append(m.Groups, Group{})
			cur = &m.Groups[len(m.Groups)-1]
		}
		cur.Sources = append(cur.Sources, arg)
		sources++
	}
	if sources == 0 {
		return Merge{}, ErrEmptyMerge
	}
	return m, nil
}

// Sources returns every source archive in order.
func (m Merge) Sources() []string {
	var out []string
	for _, g := range m.Groups {
		out = append(out, g.Sources...)
	}
	return out
}

// Apply appends every group to w in order. Each prefix gets a directory
// entry per component stamped with modified; entries are copied raw with
// their names prefixed. Directory entries already present in w are skipped;
// any other clash fails with zipwriter.ErrDuplicateName. Apply returns the
// number of entries it added.
func (m Merge) Apply(ctx context.Context, w *zipwriter.Writer, modified time.Time) (int, error) {
	log := m.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	added := 0
	for _, g := range m.Groups {
		dir := ""
		if g.Prefix != "" {
			for _, c := range strings.Split(g.Prefix, "/") {
				dir += c + "/"
				if w.Has(dir) {
					continue
				}
				if err := w.AddDirectory(dir, modified); err != nil {
					return added, err
				}
				added++
			}
		}
		for _, src := range g.Sources {
			n, err := copyArchive(ctx, w, src, dir)
			added += n
			if err != nil {
				return added, fmt.Errorf("merge %s: %w", src, err)
			}
			log.Debug("merged archive", "source", src, "prefix", g.Prefix, "entries", n)
		}
	}
	return added, nil
}

func copyArchive(ctx context.Context, w *zipwriter.Writer, src, prefix string) (int, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	n := 0
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		name := prefix + f.Name
		if strings.HasSuffix(name, "/") && w.Has(name) {
			continue
		}
		if f.Flags&flagEncrypted != 0 {
			return n, fmt.Errorf("%s: %w", f.Name, ErrEncrypted)
		}
		if err := copyEntry(w, f, name); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func copyEntry(w *zipwriter.Writer, f *zip.File, name string) error {
	h := zipfmt.Header{
		Name:             name,
		Method:           zipfmt.Method(f.Method),
		Flags:            f.Flags &^ (flagDataDescriptor | flagUTF8),
		Modified:         f.Modified,
		CRC32:            f.CRC32,
		CompressedSize:   f.CompressedSize64,
		UncompressedSize: f.UncompressedSize64,
		Mode:             f.Mode(),
	}
	r, err := f.OpenRaw()
	if err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	return w.CopyRaw(h, r)
}
