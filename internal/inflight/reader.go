package inflight

import (
	"bytes"
	"time"
)

// Header is the fixed-layout preamble of an HPROF file.
type Header struct {
	Format    string
	IDSize    int
	Timestamp time.Time
}

// Reader decodes HPROF's big-endian tagged-record format directly out of
// a borrowed byte slice (normally a memory-mapped file). Unlike a
// stream-based reader, ReadBytes returns sub-slices of the original
// buffer rather than copies, which is what lets Profile hand out string
// and array views that alias the mapped file instead of copying it.
type Reader struct {
	data   []byte
	pos    int
	idSize int
}

// NewReader wraps data for sequential big-endian decoding.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, idSize: 8}
}

// SetIDSize sets the width (4 or 8 bytes) used by ReadID.
func (r *Reader) SetIDSize(n int) { r.idSize = n }

// IDSize returns the currently configured identifier width.
func (r *Reader) IDSize() int { return r.idSize }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.data) - r.pos }

// Seek repositions the reader at an absolute offset.
func (r *Reader) Seek(pos int) { r.pos = pos }

// ReadHeader parses the null-terminated format string, 4-byte id_size,
// and 8-byte timestamp that begin every HPROF file, and configures the
// reader's id size for subsequent reads.
func (r *Reader) ReadHeader() (*Header, error) {
	format, err := r.readNullTerminatedString()
	if err != nil {
		return nil, errFormat("failed to read hprof format string", err)
	}

	idSize, err := r.ReadU4()
	if err != nil {
		return nil, errFormat("failed to read id size", err)
	}
	if idSize != 4 && idSize != 8 {
		return nil, errFormatf("unsupported id size %d", idSize)
	}
	r.SetIDSize(int(idSize))

	ts, err := r.ReadU8()
	if err != nil {
		return nil, errFormat("failed to read timestamp", err)
	}

	return &Header{
		Format:    format,
		IDSize:    int(idSize),
		Timestamp: time.UnixMilli(int64(ts)),
	}, nil
}

// ReadRecordHeader reads the {tag, time-delta, body-length} prefix shared
// by every top-level HPROF record.
func (r *Reader) ReadRecordHeader() (tag RecordTag, timeDelta uint32, length uint32, err error) {
	b, err := r.ReadU1()
	if err != nil {
		return 0, 0, 0, err
	}
	tag = RecordTag(b)

	timeDelta, err = r.ReadU4()
	if err != nil {
		return 0, 0, 0, err
	}

	length, err = r.ReadU4()
	if err != nil {
		return 0, 0, 0, err
	}
	return tag, timeDelta, length, nil
}

// ReadU1 reads a single byte.
func (r *Reader) ReadU1() (byte, error) {
	if r.Len() < 1 {
		return 0, errFormatf("unexpected end of data at offset %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadU2 reads a big-endian uint16.
func (r *Reader) ReadU2() (uint16, error) {
	buf, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

// ReadU4 reads a big-endian uint32.
func (r *Reader) ReadU4() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

// ReadU8 reads a big-endian uint64.
func (r *Reader) ReadU8() (uint64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// ReadID reads an identifier using the reader's configured id size (4 or
// 8 bytes), zero-extended to uint64. The all-zero value is the null
// reference (ids.go's NullID).
func (r *Reader) ReadID() (uint64, error) {
	if r.idSize == 4 {
		v, err := r.ReadU4()
		return uint64(v), err
	}
	return r.ReadU8()
}

// ReadBytes returns the next n bytes as a sub-slice of the underlying
// buffer (no copy). The returned slice is valid only as long as the
// backing MappedFile stays open.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, errFormatf("unexpected end of data: need %d bytes at offset %d, have %d", n, r.pos, r.Len())
	}
	buf := r.data[r.pos : r.pos+n]
	r.pos += n
	return buf, nil
}

// Skip advances the read position by n bytes without inspecting them,
// used to fast-forward past record bodies this package doesn't care
// about.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.Len() < n {
		return errFormatf("cannot skip %d bytes at offset %d, have %d", n, r.pos, r.Len())
	}
	r.pos += n
	return nil
}

func (r *Reader) readNullTerminatedString() (string, error) {
	idx := bytes.IndexByte(r.data[r.pos:], 0)
	if idx < 0 {
		return "", errFormatf("format string at offset %d is not null-terminated", r.pos)
	}
	s := string(r.data[r.pos : r.pos+idx])
	r.pos += idx + 1
	return s, nil
}
