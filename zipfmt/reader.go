package zipfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// ErrFormat reports that the input does not end in a readable central directory.
var ErrFormat = errors.New("zipfmt: not a valid zip archive")

// Directory is the parsed central directory of an existing archive.
type Directory struct {
	Records []CentralRecord
	// Offset is the absolute position of the first central directory header,
	// which is also where new entries may start when appending.
	Offset int64
	Size   int64
}

// ReadDirectory locates the end-of-central-directory record in the last
// bytes of r and parses every central directory header it points to. Record
// offsets are returned as absolute positions even when the archive was
// written behind a prefix.
func ReadDirectory(r io.ReaderAt, size int64) (*Directory, error) {
	endPos, end, err := findDirectoryEnd(r, size)
	if err != nil {
		return nil, err
	}
	count := uint64(binary.LittleEndian.Uint16(end[10:]))
	dirSize := uint64(binary.LittleEndian.Uint32(end[12:]))
	dirOffset := uint64(binary.LittleEndian.Uint32(end[16:]))
	trailer := int64(0)

	if count == uint16max || dirSize == uint32max || dirOffset == uint32max {
		count, dirSize, dirOffset, err = readZip64End(r, endPos)
		if err != nil {
			return nil, err
		}
		trailer = zip64EndLen + zip64LocatorLen
	}

	// Archives with a prepended stub store offsets relative to the start of
	// the zip data; shift them to absolute file positions.
	start := endPos - trailer - int64(dirSize)
	if start < 0 || int64(dirOffset) > start {
		return nil, fmt.Errorf("%w: central directory out of range", ErrFormat)
	}
	base := start - int64(dirOffset)

	raw := make([]byte, dirSize)
	if _, err := r.ReadAt(raw, start); err != nil {
		return nil, fmt.Errorf("%w: read central directory: %v", ErrFormat, err)
	}

	dir := &Directory{Offset: start, Size: int64(dirSize)}
	for len(raw) > 0 {
		rec, n, err := parseCentralHeader(raw)
		if err != nil {
			return nil, err
		}
		rec.Offset += uint64(base)
		dir.Records = append(dir.Records, rec)
		raw = raw[n:]
	}
	if uint64(len(dir.Records)) != count {
		return nil, fmt.Errorf("%w: directory lists %d records, found %d", ErrFormat, count, len(dir.Records))
	}
	return dir, nil
}

func findDirectoryEnd(r io.ReaderAt, size int64) (int64, []byte, error) {
	if size < endLen {
		return 0, nil, ErrFormat
	}
	// The record is followed by a comment of at most 64KiB.
	tail := int64(endLen + uint16max)
	if tail > size {
		tail = size
	}
	buf := make([]byte, tail)
	if _, err := r.ReadAt(buf, size-tail); err != nil && !errors.Is(err, io.EOF) {
		return 0, nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	for i := len(buf) - endLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) != endSig {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(buf[i+20:]))
		if i+endLen+commentLen != len(buf) {
			continue
		}
		return size - tail + int64(i), buf[i : i+endLen], nil
	}
	return 0, nil, ErrFormat
}

func readZip64End(r io.ReaderAt, endPos int64) (count, size, offset uint64, err error) {
	locPos := endPos - zip64LocatorLen
	if locPos < 0 {
		return 0, 0, 0, ErrFormat
	}
	loc := make([]byte, zip64LocatorLen)
	if _, err := r.ReadAt(loc, locPos); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if binary.LittleEndian.Uint32(loc) != zip64LocatorSig {
		return 0, 0, 0, fmt.Errorf("%w: missing zip64 locator", ErrFormat)
	}
	recPos := int64(binary.LittleEndian.Uint64(loc[8:]))
	// The locator stores a zip-relative position; the record itself always
	// sits directly before the locator.
	if recPos != locPos-zip64EndLen {
		recPos = locPos - zip64EndLen
	}
	rec := make([]byte, zip64EndLen)
	if _, err := r.ReadAt(rec, recPos); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if binary.LittleEndian.Uint32(rec) != zip64EndSig {
		return 0, 0, 0, fmt.Errorf("%w: missing zip64 end record", ErrFormat)
	}
	count = binary.LittleEndian.Uint64(rec[32:])
	size = binary.LittleEndian.Uint64(rec[40:])
	offset = binary.LittleEndian.Uint64(rec[48:])
	return count, size, offset, nil
}

func parseCentralHeader(b []byte) (CentralRecord, int, error) {
	if len(b) < centralHeaderLen || binary.LittleEndian.Uint32(b) != centralHeaderSig {
		return CentralRecord{}, 0, fmt.Errorf("%w: bad central directory header", ErrFormat)
	}
	creator := binary.LittleEndian.Uint16(b[4:]) >> 8
	flags := binary.LittleEndian.Uint16(b[8:])
	method := binary.LittleEndian.Uint16(b[10:])
	clock := binary.LittleEndian.Uint16(b[12:])
	date := binary.LittleEndian.Uint16(b[14:])
	crc := binary.LittleEndian.Uint32(b[16:])
	csize := uint64(binary.LittleEndian.Uint32(b[20:]))
	usize := uint64(binary.LittleEndian.Uint32(b[24:]))
	nameLen := int(binary.LittleEndian.Uint16(b[28:]))
	extraLen := int(binary.LittleEndian.Uint16(b[30:]))
	commentLen := int(binary.LittleEndian.Uint16(b[32:]))
	external := binary.LittleEndian.Uint32(b[38:])
	offset := uint64(binary.LittleEndian.Uint32(b[42:]))

	n := centralHeaderLen + nameLen + extraLen + commentLen
	if len(b) < n {
		return CentralRecord{}, 0, fmt.Errorf("%w: truncated central directory header", ErrFormat)
	}
	name := string(b[centralHeaderLen : centralHeaderLen+nameLen])
	extra := b[centralHeaderLen+nameLen : centralHeaderLen+nameLen+extraLen]

	needUSize, needCSize, needOffset := usize == uint32max, csize == uint32max, offset == uint32max
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra)
		fieldLen := int(binary.LittleEndian.Uint16(extra[2:]))
		if len(extra) < 4+fieldLen {
			break
		}
		field := extra[4 : 4+fieldLen]
		extra = extra[4+fieldLen:]
		if id != zip64ExtraID {
			continue
		}
		if needUSize && len(field) >= 8 {
			usize, field = binary.LittleEndian.Uint64(field), field[8:]
		}
		if needCSize && len(field) >= 8 {
			csize, field = binary.LittleEndian.Uint64(field), field[8:]
		}
		if needOffset && len(field) >= 8 {
			offset = binary.LittleEndian.Uint64(field)
		}
	}

	var mode fs.FileMode
	switch {
	case creator == creatorUnix:
		mode = fileMode(external >> 16)
	case external&msdosDir != 0:
		mode = fs.ModeDir | 0o755
	default:
		mode = 0o644
	}

	rec := CentralRecord{
		Header: Header{
			Name:             name,
			Method:           Method(method),
			Flags:            flags &^ flagUTF8,
			Modified:         FromDOSTime(date, clock),
			CRC32:            crc,
			CompressedSize:   csize,
			UncompressedSize: usize,
			Mode:             mode,
		},
		Offset: offset,
	}
	return rec, n, nil
}
