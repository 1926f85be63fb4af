package util

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dendrascience/parzip/zipfmt"
	"github.com/dendrascience/parzip/zipspec"
)

// EntryInfo describes one central directory record.
type EntryInfo struct {
	Name             string
	Method           string
	Modified         time.Time
	Mode             fs.FileMode
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	Offset           uint64
}

// IsDir reports whether the entry is a directory.
func (e EntryInfo) IsDir() bool { return strings.HasSuffix(e.Name, "/") }

// Problem is one defect found in an archive.
type Problem struct {
	Entry string
	Err   error
}

func (p Problem) Error() string { return fmt.Sprintf("%s: %v", p.Entry, p.Err) }

func (p Problem) Unwrap() error { return p.Err }

// Report summarizes a verified archive.
type Report struct {
	Path              string
	Entries           int
	Files             int
	Dirs              int
	CompressedBytes   uint64
	UncompressedBytes uint64
	Problems          []Problem
}

// OK reports whether no problems were found.
func (r Report) OK() bool { return len(r.Problems) == 0 }

func CountEntries(path string) (int, error) {
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return 0, err
	}
	defer zrc.Close()
	return len(zrc.File), nil
}

// CheckEntry reports whether the archive at path has an entry called name.
func CheckEntry(path string, name string) (bool, error) {
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return false, err
	}
	defer zrc.Close()
	for _, v := range zrc.File {
		if v.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func readDirectory(path string) (*zipfmt.Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrExpectedFile
	}
	return zipfmt.ReadDirectory(f, info.Size())
}

// ListEntries returns the archive's central directory records in order.
func ListEntries(path string) ([]EntryInfo, error) {
	dir, err := readDirectory(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make([]EntryInfo, 0, len(dir.Records))
	for _, r := range dir.Records {
		out = append(out, EntryInfo{
			Name:             r.Name,
			Method:           r.Method.String(),
			Modified:         r.Modified,
			Mode:             r.Mode,
			CRC32:            r.CRC32,
			CompressedSize:   r.CompressedSize,
			UncompressedSize: r.UncompressedSize,
			Offset:           r.Offset,
		})
	}
	return out, nil
}

// VerifyArchive checks path structurally and decompresses every entry.
// An error is returned only when the archive cannot be read at all; entry
// level defects are collected in the report.
func VerifyArchive(path string) (Report, error) {
	report := Report{Path: path}
	dir, err := readDirectory(path)
	if err != nil {
		return report, fmt.Errorf("%s: %w", path, err)
	}
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return report, fmt.Errorf("%s: %w", path, err)
	}
	defer zrc.Close()

	if len(dir.Records) != len(zrc.File) {
		report.Problems = append(report.Problems, Problem{
			Entry: "central directory",
			Err:   fmt.Errorf("%w: %d records, %d entries", ErrDirectoryLength, len(dir.Records), len(zrc.File)),
		})
	}

	seen := make(map[string]struct{}, len(zrc.File))
	for _, f := range zrc.File {
		report.Entries++
		if _, dup := seen[f.Name]; dup {
			report.Problems = append(report.Problems, Problem{Entry: f.Name, Err: ErrDuplicateEntry})
		}
		seen[f.Name] = struct{}{}

		name := strings.TrimSuffix(f.Name, "/")
		if err := zipspec.ValidateName(name); err != nil {
			report.Problems = append(report.Problems, Problem{Entry: f.Name, Err: fmt.Errorf("%w: %w", ErrInvalidEntry, err)})
		}
		if f.FileInfo().IsDir() {
			report.Dirs++
			continue
		}
		report.Files++
		report.CompressedBytes += f.CompressedSize64
		report.UncompressedBytes += f.UncompressedSize64
		if err := drain(f); err != nil {
			report.Problems = append(report.Problems, Problem{Entry: f.Name, Err: err})
		}
	}
	return report, nil
}

// drain reads an entry to the end, which makes archive/zip check its CRC.
func drain(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// CompareTree checks that the file entries of the archive at path are exactly
// the keys of files, with contents equal to the files they map to. Directory
// entries are ignored. Problems come back sorted by entry name.
func CompareTree(ctx context.Context, path string, files map[string]string) ([]Problem, error) {
	want, err := HashFiles(ctx, files)
	if err != nil {
		return nil, err
	}
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer zrc.Close()

	var problems []Problem
	found := make(map[string]struct{}, len(zrc.File))
	for _, f := range zrc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found[f.Name] = struct{}{}
		hash, ok := want[f.Name]
		if !ok {
			problems = append(problems, Problem{Entry: f.Name, Err: ErrUnexpectedEntry})
			continue
		}
		rc, err := f.Open()
		if err != nil {
			problems = append(problems, Problem{Entry: f.Name, Err: err})
			continue
		}
		got, err := GetHash(rc)
		rc.Close()
		switch {
		case err != nil:
			problems = append(problems, Problem{Entry: f.Name, Err: err})
		case got != hash:
			problems = append(problems, Problem{Entry: f.Name, Err: ErrContentMismatch})
		}
	}
	for name := range want {
		if _, ok := found[name]; !ok {
			problems = append(problems, Problem{Entry: name, Err: ErrEntryMissing})
		}
	}
	slices.SortFunc(problems, func(a, b Problem) int { return strings.Compare(a.Entry, b.Entry) })
	return problems, nil
}
