// Package zipfmt encodes the ZIP records parzip emits (local file headers,
// central directory headers and the end-of-central-directory records, with
// their Zip64 forms) and parses an existing central directory back so an
// archive can be appended to.
package zipfmt

import (
	"encoding/binary"
	"io"
	"io/fs"
	"strconv"
	"time"
)

const (
	localHeaderSig   = 0x04034b50
	centralHeaderSig = 0x02014b50
	endSig           = 0x06054b50
	zip64EndSig      = 0x06064b50
	zip64LocatorSig  = 0x07064b50

	localHeaderLen   = 30
	centralHeaderLen = 46
	endLen           = 22
	zip64EndLen      = 56
	zip64LocatorLen  = 20

	zip64ExtraID = 0x0001

	versionDefault = 20
	versionZip64   = 45
	creatorUnix    = 3

	flagUTF8 = 0x800

	uint16max = 0xffff
	uint32max = 0xffffffff

	// unix file type bits stored in the high half of the external attributes
	sIFMT  = 0xf000
	sIFDIR = 0x4000
	sIFREG = 0x8000
	sIFLNK = 0xa000

	msdosDir = 0x10
)

// Method identifies how an entry's payload is encoded.
type Method uint16

const (
	Store   Method = 0
	Deflate Method = 8
)

func (m Method) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	default:
		return "method(" + strconv.Itoa(int(m)) + ")"
	}
}

// Header is the per-entry metadata shared by local and central headers.
type Header struct {
	Name             string
	Method           Method
	Flags            uint16
	Modified         time.Time
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	Mode             fs.FileMode
}

// IsZip64 reports whether either size needs the Zip64 extra field.
func (h *Header) IsZip64() bool {
	return h.CompressedSize >= uint32max || h.UncompressedSize >= uint32max
}

func (h *Header) flags() uint16 {
	flags := h.Flags
	for i := 0; i < len(h.Name); i++ {
		if h.Name[i] >= 0x80 {
			return flags | flagUTF8
		}
	}
	return flags
}

// CentralRecord is one central directory entry. Offset is the absolute
// position of the entry's local file header in the output.
type CentralRecord struct {
	Header
	Offset uint64
}

func (r *CentralRecord) needsZip64() bool {
	return r.IsZip64() || r.Offset >= uint32max
}

// LocalHeaderLen returns the encoded size of h's local file header.
func LocalHeaderLen(h *Header) int {
	n := localHeaderLen + len(h.Name)
	if h.IsZip64() {
		n += 20
	}
	return n
}

// AppendLocalHeader appends the local file header for h to buf. The header
// carries the final CRC and sizes, so no data descriptor follows the payload.
func AppendLocalHeader(buf []byte, h *Header) []byte {
	version := uint16(versionDefault)
	csize, usize := uint32(h.CompressedSize), uint32(h.UncompressedSize)
	var extra []byte
	if h.IsZip64() {
		version = versionZip64
		csize, usize = uint32max, uint32max
		extra = le16(extra, zip64ExtraID)
		extra = le16(extra, 16)
		extra = le64(extra, h.UncompressedSize)
		extra = le64(extra, h.CompressedSize)
	}
	date, clock := DOSTime(h.Modified)

	buf = le32(buf, localHeaderSig)
	buf = le16(buf, version)
	buf = le16(buf, h.flags())
	buf = le16(buf, uint16(h.Method))
	buf = le16(buf, clock)
	buf = le16(buf, date)
	buf = le32(buf, h.CRC32)
	buf = le32(buf, csize)
	buf = le32(buf, usize)
	buf = le16(buf, uint16(len(h.Name)))
	buf = le16(buf, uint16(len(extra)))
	buf = append(buf, h.Name...)
	return append(buf, extra...)
}

// AppendCentralHeader appends the central directory header for r to buf.
func AppendCentralHeader(buf []byte, r *CentralRecord) []byte {
	version := uint16(versionDefault)
	csize, usize, offset := uint32(r.CompressedSize), uint32(r.UncompressedSize), uint32(r.Offset)
	var extra []byte
	if r.needsZip64() {
		version = versionZip64
		// field order is fixed by the format: uncompressed, compressed, offset
		var fields []byte
		if r.UncompressedSize >= uint32max || r.IsZip64() {
			fields = le64(fields, r.UncompressedSize)
			usize = uint32max
		}
		if r.CompressedSize >= uint32max || r.IsZip64() {
			fields = le64(fields, r.CompressedSize)
			csize = uint32max
		}
		if r.Offset >= uint32max {
			fields = le64(fields, r.Offset)
			offset = uint32max
		}
		extra = le16(extra, zip64ExtraID)
		extra = le16(extra, uint16(len(fields)))
		extra = append(extra, fields...)
	}
	date, clock := DOSTime(r.Modified)
	external := unixMode(r.Mode) << 16
	if r.Mode.IsDir() {
		external |= msdosDir
	}

	buf = le32(buf, centralHeaderSig)
	buf = le16(buf, creatorUnix<<8|version)
	buf = le16(buf, version)
	buf = le16(buf, r.flags())
	buf = le16(buf, uint16(r.Method))
	buf = le16(buf, clock)
	buf = le16(buf, date)
	buf = le32(buf, r.CRC32)
	buf = le32(buf, csize)
	buf = le32(buf, usize)
	buf = le16(buf, uint16(len(r.Name)))
	buf = le16(buf, uint16(len(extra)))
	buf = le16(buf, 0) // comment length
	buf = le16(buf, 0) // disk number start
	buf = le16(buf, 0) // internal attributes
	buf = le32(buf, external)
	buf = le32(buf, offset)
	buf = append(buf, r.Name...)
	return append(buf, extra...)
}

// AppendDirectoryEnd appends the end-of-central-directory record for a
// directory of count records occupying size bytes at offset. The Zip64 end
// record and locator are emitted first whenever a field saturates.
func AppendDirectoryEnd(buf []byte, count, size, offset uint64) []byte {
	count16, size32, offset32 := uint16(count), uint32(size), uint32(offset)
	if count >= uint16max || size >= uint32max || offset >= uint32max {
		zip64End := offset + size
		buf = le32(buf, zip64EndSig)
		buf = le64(buf, zip64EndLen-12) // size of the remaining record
		buf = le16(buf, creatorUnix<<8|versionZip64)
		buf = le16(buf, versionZip64)
		buf = le32(buf, 0) // this disk
		buf = le32(buf, 0) // disk with the directory
		buf = le64(buf, count)
		buf = le64(buf, count)
		buf = le64(buf, size)
		buf = le64(buf, offset)

		buf = le32(buf, zip64LocatorSig)
		buf = le32(buf, 0)
		buf = le64(buf, zip64End)
		buf = le32(buf, 1) // total disks

		count16, size32, offset32 = uint16max, uint32max, uint32max
	}
	buf = le32(buf, endSig)
	buf = le16(buf, 0)
	buf = le16(buf, 0)
	buf = le16(buf, count16)
	buf = le16(buf, count16)
	buf = le32(buf, size32)
	buf = le32(buf, offset32)
	return le16(buf, 0) // comment length
}

// WriteDirectory writes the central directory for records followed by the end
// records, assuming the directory starts at offset. It returns the bytes written.
func WriteDirectory(w io.Writer, records []CentralRecord, offset uint64) (int64, error) {
	var written int64
	buf := make([]byte, 0, 4096)
	for i := range records {
		buf = AppendCentralHeader(buf[:0], &records[i])
		n, err := w.Write(buf)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	buf = AppendDirectoryEnd(buf[:0], uint64(len(records)), uint64(written), offset)
	n, err := w.Write(buf)
	written += int64(n)
	return written, err
}

// DOSTime converts t to the MS-DOS date and time fields. Times before 1980
// clamp to 1980-01-01 00:00:00, the earliest representable instant.
func DOSTime(t time.Time) (date, clock uint16) {
	if t.IsZero() || t.Year() < 1980 {
		return 1<<5 | 1, 0
	}
	if t.Year() > 2107 {
		t = time.Date(2107, 12, 31, 23, 59, 58, 0, t.Location())
	}
	date = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	clock = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return date, clock
}

// FromDOSTime is the inverse of DOSTime, in UTC.
func FromDOSTime(date, clock uint16) time.Time {
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0xf),
		int(date&0x1f),
		int(clock>>11),
		int(clock>>5&0x3f),
		int(clock&0x1f)*2,
		0,
		time.UTC,
	)
}

func unixMode(mode fs.FileMode) uint32 {
	m := uint32(mode.Perm())
	switch {
	case mode.IsDir():
		m |= sIFDIR
	case mode&fs.ModeSymlink != 0:
		m |= sIFLNK
	default:
		m |= sIFREG
	}
	return m
}

func fileMode(m uint32) fs.FileMode {
	mode := fs.FileMode(m & 0o777)
	switch m & sIFMT {
	case sIFDIR:
		mode |= fs.ModeDir
	case sIFLNK:
		mode |= fs.ModeSymlink
	}
	return mode
}

func le16(b []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(b, v) }
func le32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }
func le64(b []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(b, v) }
