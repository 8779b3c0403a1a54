package frame

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// wireType mirrors the protobuf wire format's low 3 tag bits.
type wireType int

const (
	wireVarint wireType = 0
	wireFixed64 wireType = 1
	wireBytes   wireType = 2
	wireFixed32 wireType = 5
)

// ErrTruncated is returned by the wire reader on a short buffer.
var ErrTruncated = errors.New("frame: truncated wire data")

// reader walks a field-tagged, length-delimited buffer one (tag, value) pair
// at a time. It never allocates beyond slicing the input, matching the
// "parse message fields by tag" approach in design note 9.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader { return &reader{buf: buf} }

func (r *reader) done() bool { return r.pos >= len(r.buf) }

func (r *reader) varint() (uint64, error) {
	var x uint64
	var shift uint
	for {
		if r.pos >= len(r.buf) {
			return 0, ErrTruncated
		}
		b := r.buf[r.pos]
		r.pos++
		x |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return x, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("frame: varint overflow")
		}
	}
}

func (r *reader) tag() (field int, wt wireType, err error) {
	v, err := r.varint()
	if err != nil {
		return 0, 0, err
	}
	return int(v >> 3), wireType(v & 0x7), nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.varint()
	if err != nil {
		return nil, err
	}
	end := r.pos + int(n)
	if n > uint64(len(r.buf)) || end > len(r.buf) || end < r.pos {
		return nil, ErrTruncated
	}
	out := r.buf[r.pos:end]
	r.pos = end
	return out, nil
}

func (r *reader) fixed32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) fixed64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) skip(wt wireType) error {
	switch wt {
	case wireVarint:
		_, err := r.varint()
		return err
	case wireBytes:
		_, err := r.bytes()
		return err
	case wireFixed32:
		_, err := r.fixed32()
		return err
	case wireFixed64:
		_, err := r.fixed64()
		return err
	default:
		return errors.Errorf("frame: unknown wire type %d", wt)
	}
}

// writer builds a field-tagged buffer the mirror-image way; used by Encode
// to build self-consistent fixtures (no backup archive written by this
// program is ever re-encrypted, per the core's Non-goals, but plaintext
// frame fixtures are useful for round-trip tests).
type writer struct {
	buf []byte
}

func (w *writer) putVarint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

func (w *writer) putTag(field int, wt wireType) {
	w.putVarint(uint64(field)<<3 | uint64(wt))
}

func (w *writer) putBytes(field int, b []byte) {
	w.putTag(field, wireBytes)
	w.putVarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) putString(field int, s string) { w.putBytes(field, []byte(s)) }

func (w *writer) putVarintField(field int, v uint64) {
	w.putTag(field, wireVarint)
	w.putVarint(v)
}

func (w *writer) putBool(field int, v bool) {
	if v {
		w.putVarintField(field, 1)
	} else {
		w.putVarintField(field, 0)
	}
}

func (w *writer) putFixed32(field int, v uint32) {
	w.putTag(field, wireFixed32)
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	w.buf = append(w.buf, b...)
}

func (w *writer) putFixed64(field int, v uint64) {
	w.putTag(field, wireFixed64)
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	w.buf = append(w.buf, b...)
}

func (w *writer) putSubmessage(field int, sub []byte) { w.putBytes(field, sub) }
