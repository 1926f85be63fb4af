// Package crawl enumerates the regular files under a set of roots in a
// deterministic order, following symlinks while visiting each canonical path
// at most once.
package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultMaxSymlinkDepth bounds how many symlinks are followed when resolving
// a single path.
const DefaultMaxSymlinkDepth = 40

// Entry is one regular file found by a crawl.
type Entry struct {
	// UnresolvedPath is relative to the crawl root, slash separated.
	UnresolvedPath string `json:"unresolved_path"`
	// ResolvedPath is absolute with every symlink evaluated.
	ResolvedPath string `json:"resolved_path"`
}

// Result is the ordered output of a crawl.
type Result struct {
	Entries []Entry `json:"real_file_paths"`
}

// Len returns the number of entries.
func (r Result) Len() int { return len(r.Entries) }

// WriteJSON encodes r to w.
func (r Result) WriteJSON(w io.Writer) error {
	if r.Entries == nil {
		r.Entries = []Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ReadJSON decodes a result previously written by WriteJSON and sorts it.
func ReadJSON(r io.Reader) (Result, error) {
	var res Result
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("decode crawl result: %w", err)
	}
	for i, e := range res.Entries {
		if e.UnresolvedPath == "" || e.ResolvedPath == "" {
			return Result{}, fmt.Errorf("decode crawl result: entry %d is missing a path", i)
		}
	}
	SortEntries(res.Entries)
	return res, nil
}

// ComparePaths orders slash separated paths component by component, so
// "a/b" sorts before "a-b" and "a.txt" before "sub/b.txt".
func ComparePaths(a, b string) int {
	return slices.Compare(strings.Split(a, "/"), strings.Split(b, "/"))
}

// SortEntries sorts entries by UnresolvedPath using ComparePaths.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return ComparePaths(a.UnresolvedPath, b.UnresolvedPath)
	})
}

// Crawler walks Roots. The zero value of every field but Roots is usable.
type Crawler struct {
	Roots           []string
	Ignores         *Ignores
	MaxSymlinkDepth int
	Logger          *slog.Logger
}

// Crawl is shorthand for a Crawler with default settings.
func Crawl(ctx context.Context, roots ...string) (Result, error) {
	c := &Crawler{Roots: roots}
	return c.Crawl(ctx)
}

type walker struct {
	*Crawler
	ctx     context.Context
	log     *slog.Logger
	visited map[string]struct{}
	entries []Entry
}

// Crawl enumerates every regular file under the roots. Directories are read
// in name order and roots in the given order, so when two paths alias the
// same file the first one reached wins. No partial result is returned on
// error.
func (c *Crawler) Crawl(ctx context.Context) (Result, error) {
	w := &walker{
		Crawler: c,
		ctx:     ctx,
		log:     c.Logger,
		visited: make(map[string]struct{}),
	}
	if w.log == nil {
		w.log = slog.New(slog.DiscardHandler)
	}
	for _, root := range c.Roots {
		if err := w.root(root); err != nil {
			return Result{}, err
		}
	}
	SortEntries(w.entries)
	w.log.Debug("crawl complete", "roots", len(c.Roots), "entries", len(w.entries))
	return Result{Entries: w.entries}, nil
}

func (w *walker) maxDepth() int {
	if w.MaxSymlinkDepth > 0 {
		return w.MaxSymlinkDepth
	}
	return DefaultMaxSymlinkDepth
}

// rootName is the name ignore patterns see for a root: its last path
// element, or "" for roots like "." and "/" that have none.
func rootName(root string) string {
	name := filepath.Base(filepath.Clean(root))
	switch name {
	case ".", "..", string(filepath.Separator):
		return ""
	}
	return name
}

func (w *walker) root(root string) error {
	if name := rootName(root); name != "" && w.Ignores.Match(name) {
		w.log.Debug("ignored root", "root", root)
		return nil
	}
	resolved, info, err := w.resolve(root)
	if err != nil {
		return err
	}
	if _, seen := w.visited[resolved]; seen {
		w.log.Debug("skipping aliased root", "root", root, "resolved", resolved)
		return nil
	}
	w.visited[resolved] = struct{}{}

	switch {
	case info.IsDir():
		return w.dir(resolved, "")
	case info.Mode().IsRegular():
		w.entries = append(w.entries, Entry{
			UnresolvedPath: filepath.Base(root),
			ResolvedPath:   resolved,
		})
	default:
		w.log.Debug("skipping non-regular root", "root", root, "mode", info.Mode().String())
	}
	return nil
}

// dir reads the directory at resolved, naming its children under rel.
func (w *walker) dir(resolved, rel string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	dirents, err := os.ReadDir(resolved)
	if err != nil {
		return newError(resolved, err)
	}
	for _, d := range dirents {
		childRel := d.Name()
		if rel != "" {
			childRel = path.Join(rel, d.Name())
		}
		if w.Ignores.Match(childRel) {
			w.log.Debug("ignored", "path", childRel)
			continue
		}

		child := filepath.Join(resolved, d.Name())
		target, info, err := w.resolve(child)
		if err != nil {
			var ce *Error
			if d.Type()&fs.ModeSymlink != 0 && errors.As(err, &ce) && ce.Kind == NotFound {
				w.log.Warn("skipping dangling symlink", "path", child)
				continue
			}
			return err
		}
		if _, seen := w.visited[target]; seen {
			continue
		}
		w.visited[target] = struct{}{}

		switch {
		case info.IsDir():
			if err := w.dir(target, childRel); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			w.entries = append(w.entries, Entry{UnresolvedPath: childRel, ResolvedPath: target})
		default:
			w.log.Debug("skipping non-regular file", "path", child, "mode", info.Mode().String())
		}
	}
	return nil
}

// resolve follows the symlink chain starting at p, one hop at a time so the
// chain length can be bounded, and returns the canonical absolute path along
// with the target's metadata.
func (w *walker) resolve(p string) (string, fs.FileInfo, error) {
	cur := p
	for hops := 0; ; hops++ {
		info, err := os.Lstat(cur)
		if err != nil {
			return "", nil, newError(cur, err)
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			break
		}
		if hops >= w.maxDepth() {
			return "", nil, &Error{Kind: SymlinkLoop, Path: p}
		}
		target, err := os.Readlink(cur)
		if err != nil {
			return "", nil, newError(cur, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(cur), target)
		}
		cur = target
	}

	abs, err := filepath.Abs(cur)
	if err != nil {
		return "", nil, newError(cur, err)
	}
	// parent components may still be symlinks
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", nil, newError(abs, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return "", nil, newError(canonical, err)
	}
	return canonical, info, nil
}
