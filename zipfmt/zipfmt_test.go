package zipfmt

import (
	"archive/zip"
	"bytes"
	"errors"
	"hash/crc32"
	"io"
	"io/fs"
	"testing"
	"time"
)

// buildArchive writes stored entries for files behind prefix and returns the
// archive bytes along with the records it placed.
func buildArchive(t *testing.T, prefix []byte, files map[string]string, order []string) ([]byte, []CentralRecord) {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(prefix)
	var records []CentralRecord
	for _, name := range order {
		data := files[name]
		h := Header{
			Name:             name,
			Method:           Store,
			Modified:         time.Date(2020, 5, 17, 10, 30, 4, 0, time.UTC),
			CRC32:            crc32.ChecksumIEEE([]byte(data)),
			CompressedSize:   uint64(len(data)),
			UncompressedSize: uint64(len(data)),
			Mode:             0o640,
		}
		records = append(records, CentralRecord{Header: h, Offset: uint64(buf.Len())})
		buf.Write(AppendLocalHeader(nil, &h))
		buf.WriteString(data)
	}
	if _, err := WriteDirectory(&buf, records, uint64(buf.Len())); err != nil {
		t.Fatalf("WriteDirectory: %v", err)
	}
	return buf.Bytes(), records
}

func TestArchiveReadableByStandardReader(t *testing.T) {
	files := map[string]string{"a.txt": "hi", "sub/b.txt": "there", "ünï.txt": "utf"}
	order := []string{"a.txt", "sub/b.txt", "ünï.txt"}
	data, _ := buildArchive(t, nil, files, order)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != len(order) {
		t.Fatalf("got %d members, want %d", len(zr.File), len(order))
	}
	for i, f := range zr.File {
		if f.Name != order[i] {
			t.Errorf("member %d = %q, want %q", i, f.Name, order[i])
		}
		if f.Mode().Perm() != 0o640 {
			t.Errorf("%s mode = %v, want 0640", f.Name, f.Mode())
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		if string(got) != files[f.Name] {
			t.Errorf("%s = %q, want %q", f.Name, got, files[f.Name])
		}
	}
	if zr.File[2].NonUTF8 {
		t.Errorf("non-ASCII name should carry the UTF-8 flag")
	}
}

func TestEmptyArchive(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteDirectory(&buf, nil, 0)
	if err != nil {
		t.Fatalf("WriteDirectory: %v", err)
	}
	if n != endLen {
		t.Errorf("wrote %d bytes, want %d", n, endLen)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 0 {
		t.Errorf("got %d members, want 0", len(zr.File))
	}
}

func TestReadDirectory(t *testing.T) {
	files := map[string]string{"one": "1", "dir/two": "22"}
	order := []string{"one", "dir/two"}

	tests := []struct {
		name   string
		prefix []byte
	}{
		{name: "plain", prefix: nil},
		{name: "behind prefix", prefix: []byte("#!/usr/bin/env python3\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, want := buildArchive(t, tt.prefix, files, order)
			if tt.prefix != nil {
				// archives written by other tools store offsets relative to
				// the zip data; rewrite the directory that way
				data = rebase(t, data, len(tt.prefix))
			}
			dir, err := ReadDirectory(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				t.Fatalf("ReadDirectory: %v", err)
			}
			if len(dir.Records) != len(want) {
				t.Fatalf("got %d records, want %d", len(dir.Records), len(want))
			}
			for i, rec := range dir.Records {
				w := want[i]
				if rec.Name != w.Name || rec.Offset != w.Offset || rec.CRC32 != w.CRC32 ||
					rec.CompressedSize != w.CompressedSize || rec.UncompressedSize != w.UncompressedSize {
					t.Errorf("record %d = %+v, want %+v", i, rec, w)
				}
				if rec.Mode != 0o640 {
					t.Errorf("record %d mode = %v, want 0640", i, rec.Mode)
				}
				if !rec.Modified.Equal(w.Modified) {
					t.Errorf("record %d modified = %v, want %v", i, rec.Modified, w.Modified)
				}
			}
			wantOffset := int64(want[len(want)-1].Offset) + int64(LocalHeaderLen(&want[len(want)-1].Header)) + 2
			if dir.Offset != wantOffset {
				t.Errorf("directory offset = %d, want %d", dir.Offset, wantOffset)
			}
		})
	}
}

// rebase rewrites the directory offsets of an archive written behind a prefix
// of n bytes so they are relative to the end of that prefix.
func rebase(t *testing.T, data []byte, n int) []byte {
	t.Helper()
	dir, err := ReadDirectory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ReadDirectory: %v", err)
	}
	out := append([]byte(nil), data[:dir.Offset]...)
	records := append([]CentralRecord(nil), dir.Records...)
	for i := range records {
		records[i].Offset -= uint64(n)
	}
	var buf bytes.Buffer
	if _, err := WriteDirectory(&buf, records, uint64(dir.Offset)-uint64(n)); err != nil {
		t.Fatalf("WriteDirectory: %v", err)
	}
	return append(out, buf.Bytes()...)
}

func TestReadDirectoryRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "text", data: []byte("#!/bin/sh\necho not an archive\n")},
		{name: "truncated end record", data: []byte{0x50, 0x4b, 0x05, 0x06, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDirectory(bytes.NewReader(tt.data), int64(len(tt.data)))
			if !errors.Is(err, ErrFormat) {
				t.Errorf("ReadDirectory error = %v, want ErrFormat", err)
			}
		})
	}
}

func TestZip64Records(t *testing.T) {
	rec := CentralRecord{
		Header: Header{
			Name:             "big.bin",
			Method:           Deflate,
			CRC32:            0xdeadbeef,
			CompressedSize:   5 << 30,
			UncompressedSize: 6 << 30,
			Mode:             0o644,
		},
		Offset: 1 << 33,
	}
	if !rec.IsZip64() {
		t.Fatalf("IsZip64 = false for sizes over 4GiB")
	}
	if got, want := LocalHeaderLen(&rec.Header), localHeaderLen+len(rec.Name)+20; got != want {
		t.Errorf("LocalHeaderLen = %d, want %d", got, want)
	}
	if got := len(AppendLocalHeader(nil, &rec.Header)); got != LocalHeaderLen(&rec.Header) {
		t.Errorf("local header encodes %d bytes, LocalHeaderLen says %d", got, LocalHeaderLen(&rec.Header))
	}

	raw := AppendCentralHeader(nil, &rec)
	parsed, n, err := parseCentralHeader(raw)
	if err != nil {
		t.Fatalf("parseCentralHeader: %v", err)
	}
	if n != len(raw) {
		t.Errorf("consumed %d bytes, want %d", n, len(raw))
	}
	if parsed.CompressedSize != rec.CompressedSize || parsed.UncompressedSize != rec.UncompressedSize || parsed.Offset != rec.Offset {
		t.Errorf("parsed %+v, want %+v", parsed, rec)
	}
	if parsed.Method != Deflate {
		t.Errorf("method = %v, want deflate", parsed.Method)
	}

	end := AppendDirectoryEnd(nil, 70000, 100, 1<<33)
	if len(end) != zip64EndLen+zip64LocatorLen+endLen {
		t.Fatalf("end records = %d bytes, want %d", len(end), zip64EndLen+zip64LocatorLen+endLen)
	}
}

func TestZip64DirectoryEndRoundTrip(t *testing.T) {
	records := make([]CentralRecord, 0xffff+1)
	for i := range records {
		records[i] = CentralRecord{Header: Header{Name: "f", Mode: 0o644}}
	}
	var buf bytes.Buffer
	if _, err := WriteDirectory(&buf, records, 0); err != nil {
		t.Fatalf("WriteDirectory: %v", err)
	}
	dir, err := ReadDirectory(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("ReadDirectory: %v", err)
	}
	if len(dir.Records) != len(records) {
		t.Errorf("got %d records, want %d", len(dir.Records), len(records))
	}
}

func TestDOSTime(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "zero clamps to epoch",
			in:   time.Time{},
			want: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "before 1980 clamps",
			in:   time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "odd seconds round down",
			in:   time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
			want: time.Date(2024, 2, 29, 23, 59, 58, 0, time.UTC),
		},
		{
			name: "exact",
			in:   time.Date(2001, 9, 9, 1, 46, 40, 0, time.UTC),
			want: time.Date(2001, 9, 9, 1, 46, 40, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromDOSTime(DOSTime(tt.in))
			if !got.Equal(tt.want) {
				t.Errorf("FromDOSTime(DOSTime(%v)) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDirectoryMode(t *testing.T) {
	rec := CentralRecord{Header: Header{Name: "dir/", Mode: fs.ModeDir | 0o755}}
	parsed, _, err := parseCentralHeader(AppendCentralHeader(nil, &rec))
	if err != nil {
		t.Fatalf("parseCentralHeader: %v", err)
	}
	if !parsed.Mode.IsDir() || parsed.Mode.Perm() != 0o755 {
		t.Errorf("mode = %v, want drwxr-xr-x", parsed.Mode)
	}
}
