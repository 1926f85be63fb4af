package cmd

import (
	"path/filepath"
	"strings"

	"github.com/dendrascience/parzip/crawl"
	"github.com/dendrascience/parzip/destination"
)

// pathsOverlap reports whether one path contains the other, or both are the
// same path. Relative paths are resolved against the working directory.
func pathsOverlap(path1, path2 string) bool {
	a, err := filepath.Abs(path1)
	if err != nil {
		return false
	}
	b, err := filepath.Abs(path2)
	if err != nil {
		return false
	}
	return within(a, b) || within(b, a)
}

func within(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// canonicalPath resolves symlinks in the directory part of p, which need
// not exist yet itself.
func canonicalPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return abs
	}
	return filepath.Join(dir, filepath.Base(abs))
}

// excludeOutput drops the archive being written, and its lock file, from a
// crawl of a tree that contains them. It returns the number dropped.
func excludeOutput(res crawl.Result, output string) (crawl.Result, int) {
	skip := map[string]struct{}{
		canonicalPath(output):                       {},
		canonicalPath(destination.LockPath(output)): {},
	}
	kept := make([]crawl.Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		if _, ok := skip[e.ResolvedPath]; ok {
			continue
		}
		kept = append(kept, e)
	}
	return crawl.Result{Entries: kept}, len(res.Entries) - len(kept)
}
