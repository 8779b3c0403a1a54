// Package frame implements the FrameCodec: the tagged Frame record model and
// its decoder for the backup's length-delimited, field-tagged binary
// encoding. See DESIGN.md for why this is a hand-rolled wire reader rather
// than generated protobuf code.
package frame

import (
	"math"

	"github.com/pkg/errors"
)

// Kind discriminates which single field of a Frame is populated.
type Kind int

const (
	KindHeader Kind = iota
	KindStatement
	KindPreference
	KindAttachment
	KindVersion
	KindEnd
	KindAvatar
	KindSticker
	KindKeyValue
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "Header"
	case KindStatement:
		return "Statement"
	case KindPreference:
		return "Preference"
	case KindAttachment:
		return "Attachment"
	case KindVersion:
		return "Version"
	case KindEnd:
		return "End"
	case KindAvatar:
		return "Avatar"
	case KindSticker:
		return "Sticker"
	case KindKeyValue:
		return "KeyValue"
	default:
		return "Unknown"
	}
}

// ErrMalformedFrame covers every violation of the "exactly one populated
// variant" invariant, plus an unrecognized Statement parameter shape.
var ErrMalformedFrame = errors.New("frame: malformed frame")

// ValueKind discriminates which field of a TypedValue is populated.
type ValueKind int

const (
	ValueInt64 ValueKind = iota
	ValueFloat64
	ValueString
	ValueBytes
	ValueNull
)

// TypedValue is one of {i64, f64, string, bytes, null}, used for Statement
// bind parameters.
type TypedValue struct {
	Kind    ValueKind
	Int64   int64
	Float64 float64
	String  string
	Bytes   []byte
}

// Header is the unencrypted first frame; its salt and iv bootstrap the
// Decrypter.
type Header struct {
	IV   []byte
	Salt []byte
}

// Statement carries raw SQL text plus its ordered bind parameters.
type Statement struct {
	SQL    string
	Params []TypedValue
}

// PreferenceValueKind discriminates which field of a PreferenceValue is
// populated. Unlike the real Signal SharedPreference message (a single
// string plus a string-set escape hatch), this project's Preference message
// is modeled after KeyValue's richer scalar set (see SPEC_FULL.md §3); the wire
// schema is this project's own, since spec.md's data model calls for
// {string, bool, int, float, blob} plus a string-set flag.
type PreferenceValueKind int

const (
	PreferenceString PreferenceValueKind = iota
	PreferenceBool
	PreferenceInt64
	PreferenceFloat32
	PreferenceBlob
	PreferenceStringSet
)

type PreferenceValue struct {
	Kind       PreferenceValueKind
	String     string
	Bool       bool
	Int64      int64
	Float32    float32
	Blob       []byte
	StringSet  []string
}

// Preference is a single namespaced key/value setting.
type Preference struct {
	File  string
	Key   string
	Value PreferenceValue
}

// KeyValue carries one of {blob, bool, float32, i32, i64, string}.
type KeyValue struct {
	Key string

	HasBlob bool
	Blob    []byte

	HasBool bool
	Bool    bool

	HasFloat bool
	Float    float32

	HasInt32 bool
	Int32    int32

	HasInt64 bool
	Int64    int64

	HasString bool
	String    string
}

// Attachment declares a blob body filled in by FrameReader's second I/O step.
type Attachment struct {
	ID     uint64
	Row    uint64
	Length uint32
	Body   []byte
}

// Avatar declares a blob body filled in by FrameReader's second I/O step.
type Avatar struct {
	Name   string
	Length uint32
	Body   []byte
}

// Sticker declares a blob body filled in by FrameReader's second I/O step.
type Sticker struct {
	Row    uint64
	Length uint32
	Body   []byte
}

// Version is a schema/version marker.
type Version struct {
	Version uint32
}

// Frame is the tagged union record described in spec.md's Data Model: a
// well-formed Frame has exactly one populated variant.
type Frame struct {
	Kind Kind

	Header     *Header
	Statement  *Statement
	Preference *Preference
	Attachment *Attachment
	Version    *Version
	Avatar     *Avatar
	Sticker    *Sticker
	KeyValue   *KeyValue
}

// BlobLength returns the declared length of a blob-bearing frame's second
// I/O step, and whether this frame kind carries one at all.
func (f *Frame) BlobLength() (uint32, bool) {
	switch f.Kind {
	case KindAttachment:
		return f.Attachment.Length, true
	case KindAvatar:
		return f.Avatar.Length, true
	case KindSticker:
		return f.Sticker.Length, true
	default:
		return 0, false
	}
}

// SetBody attaches a decrypted blob body to an Attachment/Avatar/Sticker
// frame. Calling it on any other kind is a programmer error.
func (f *Frame) SetBody(body []byte) {
	switch f.Kind {
	case KindAttachment:
		f.Attachment.Body = body
	case KindAvatar:
		f.Avatar.Body = body
	case KindSticker:
		f.Sticker.Body = body
	default:
		panic("frame: SetBody called on a variant without a body field")
	}
}

const (
	fieldHeader     = 1
	fieldStatement  = 2
	fieldPreference = 3
	fieldAttachment = 4
	fieldVersion    = 5
	fieldEnd        = 6
	fieldAvatar     = 7
	fieldSticker    = 8
	fieldKeyValue   = 9
)

// Decode parses a single decrypted record buffer into a Frame, enforcing
// that exactly one top-level variant is present.
func Decode(data []byte) (*Frame, error) {
	r := newReader(data)

	var out Frame
	set := 0

	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return nil, errors.Wrap(err, "frame: read tag")
		}

		switch field {
		case fieldHeader:
			sub, err := r.bytes()
			if err != nil {
				return nil, errors.Wrap(err, "frame: read header")
			}
			h, err := decodeHeader(sub)
			if err != nil {
				return nil, err
			}
			out.Kind, out.Header = KindHeader, h
			set++
		case fieldStatement:
			sub, err := r.bytes()
			if err != nil {
				return nil, errors.Wrap(err, "frame: read statement")
			}
			s, err := decodeStatement(sub)
			if err != nil {
				return nil, err
			}
			out.Kind, out.Statement = KindStatement, s
			set++
		case fieldPreference:
			sub, err := r.bytes()
			if err != nil {
				return nil, errors.Wrap(err, "frame: read preference")
			}
			p, err := decodePreference(sub)
			if err != nil {
				return nil, err
			}
			out.Kind, out.Preference = KindPreference, p
			set++
		case fieldAttachment:
			sub, err := r.bytes()
			if err != nil {
				return nil, errors.Wrap(err, "frame: read attachment")
			}
			a, err := decodeAttachment(sub)
			if err != nil {
				return nil, err
			}
			out.Kind, out.Attachment = KindAttachment, a
			set++
		case fieldVersion:
			sub, err := r.bytes()
			if err != nil {
				return nil, errors.Wrap(err, "frame: read version")
			}
			v, err := decodeVersion(sub)
			if err != nil {
				return nil, err
			}
			out.Kind, out.Version = KindVersion, v
			set++
		case fieldEnd:
			if err := r.skip(wt); err != nil {
				return nil, errors.Wrap(err, "frame: read end")
			}
			out.Kind = KindEnd
			set++
		case fieldAvatar:
			sub, err := r.bytes()
			if err != nil {
				return nil, errors.Wrap(err, "frame: read avatar")
			}
			a, err := decodeAvatar(sub)
			if err != nil {
				return nil, err
			}
			out.Kind, out.Avatar = KindAvatar, a
			set++
		case fieldSticker:
			sub, err := r.bytes()
			if err != nil {
				return nil, errors.Wrap(err, "frame: read sticker")
			}
			s, err := decodeSticker(sub)
			if err != nil {
				return nil, err
			}
			out.Kind, out.Sticker = KindSticker, s
			set++
		case fieldKeyValue:
			sub, err := r.bytes()
			if err != nil {
				return nil, errors.Wrap(err, "frame: read key_value")
			}
			kv, err := decodeKeyValue(sub)
			if err != nil {
				return nil, err
			}
			out.Kind, out.KeyValue = KindKeyValue, kv
			set++
		default:
			if err := r.skip(wt); err != nil {
				return nil, errors.Wrap(err, "frame: skip unknown field")
			}
		}
	}

	if set != 1 {
		return nil, errors.Wrapf(ErrMalformedFrame, "expected exactly one populated variant, got %d", set)
	}
	return &out, nil
}

func decodeHeader(data []byte) (*Header, error) {
	r := newReader(data)
	h := &Header{}
	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch field {
		case 1:
			h.IV, err = r.bytes()
		case 2:
			h.Salt, err = r.bytes()
		default:
			err = r.skip(wt)
		}
		if err != nil {
			return nil, err
		}
	}
	return h, nil
}

func decodeStatement(data []byte) (*Statement, error) {
	r := newReader(data)
	s := &Statement{}
	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch field {
		case 1:
			var b []byte
			b, err = r.bytes()
			s.SQL = string(b)
		case 2:
			var sub []byte
			sub, err = r.bytes()
			if err == nil {
				var p TypedValue
				p, err = decodeParameter(sub)
				if err == nil {
					s.Params = append(s.Params, p)
				}
			}
		default:
			err = r.skip(wt)
		}
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func decodeParameter(data []byte) (TypedValue, error) {
	r := newReader(data)
	var v TypedValue
	set := 0
	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return v, err
		}
		switch field {
		case 1: // stringParamter
			b, err := r.bytes()
			if err != nil {
				return v, err
			}
			v = TypedValue{Kind: ValueString, String: string(b)}
			set++
		case 2: // integerParameter
			n, err := r.varint()
			if err != nil {
				return v, err
			}
			v = TypedValue{Kind: ValueInt64, Int64: int64(n)}
			set++
		case 3: // doubleParameter
			bits, err := r.fixed64()
			if err != nil {
				return v, err
			}
			v = TypedValue{Kind: ValueFloat64, Float64: math.Float64frombits(bits)}
			set++
		case 4: // blobParameter
			b, err := r.bytes()
			if err != nil {
				return v, err
			}
			v = TypedValue{Kind: ValueBytes, Bytes: b}
			set++
		case 5: // nullparameter
			if err := r.skip(wt); err != nil {
				return v, err
			}
			v = TypedValue{Kind: ValueNull}
			set++
		default:
			if err := r.skip(wt); err != nil {
				return v, err
			}
		}
	}
	if set != 1 {
		return v, errors.Wrapf(ErrMalformedFrame, "statement parameter: expected exactly one type, got %d", set)
	}
	return v, nil
}

func decodePreference(data []byte) (*Preference, error) {
	r := newReader(data)
	p := &Preference{}
	var stringSet bool
	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch field {
		case 1:
			var b []byte
			b, err = r.bytes()
			p.File = string(b)
		case 2:
			var b []byte
			b, err = r.bytes()
			p.Key = string(b)
		case 3:
			var b []byte
			b, err = r.bytes()
			p.Value = PreferenceValue{Kind: PreferenceString, String: string(b)}
		case 4:
			var n uint64
			n, err = r.varint()
			p.Value = PreferenceValue{Kind: PreferenceBool, Bool: n != 0}
		case 5:
			var n uint64
			n, err = r.varint()
			p.Value = PreferenceValue{Kind: PreferenceInt64, Int64: int64(n)}
		case 6:
			var bits uint32
			bits, err = r.fixed32()
			p.Value = PreferenceValue{Kind: PreferenceFloat32, Float32: math.Float32frombits(bits)}
		case 7:
			var b []byte
			b, err = r.bytes()
			p.Value = PreferenceValue{Kind: PreferenceBlob, Blob: b}
		case 8:
			var n uint64
			n, err = r.varint()
			stringSet = n != 0
		case 9:
			var b []byte
			b, err = r.bytes()
			p.Value.StringSet = append(p.Value.StringSet, string(b))
		default:
			err = r.skip(wt)
		}
		if err != nil {
			return nil, err
		}
	}
	if stringSet {
		p.Value.Kind = PreferenceStringSet
	}
	return p, nil
}

func decodeAttachment(data []byte) (*Attachment, error) {
	r := newReader(data)
	a := &Attachment{}
	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch field {
		case 1:
			a.Row, err = r.varint()
		case 2:
			a.ID, err = r.varint()
		case 3:
			var n uint64
			n, err = r.varint()
			a.Length = uint32(n)
		default:
			err = r.skip(wt)
		}
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func decodeVersion(data []byte) (*Version, error) {
	r := newReader(data)
	v := &Version{}
	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch field {
		case 1:
			var n uint64
			n, err = r.varint()
			v.Version = uint32(n)
		default:
			err = r.skip(wt)
		}
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

func decodeAvatar(data []byte) (*Avatar, error) {
	r := newReader(data)
	a := &Avatar{}
	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch field {
		case 1:
			var b []byte
			b, err = r.bytes()
			a.Name = string(b)
		case 2:
			var n uint64
			n, err = r.varint()
			a.Length = uint32(n)
		default:
			err = r.skip(wt)
		}
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func decodeSticker(data []byte) (*Sticker, error) {
	r := newReader(data)
	s := &Sticker{}
	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch field {
		case 1:
			s.Row, err = r.varint()
		case 2:
			var n uint64
			n, err = r.varint()
			s.Length = uint32(n)
		default:
			err = r.skip(wt)
		}
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func decodeKeyValue(data []byte) (*KeyValue, error) {
	r := newReader(data)
	kv := &KeyValue{}
	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch field {
		case 1:
			var b []byte
			b, err = r.bytes()
			kv.Key = string(b)
		case 2:
			kv.HasBlob = true
			kv.Blob, err = r.bytes()
		case 3:
			kv.HasBool = true
			var n uint64
			n, err = r.varint()
			kv.Bool = n != 0
		case 4:
			kv.HasFloat = true
			var bits uint32
			bits, err = r.fixed32()
			kv.Float = math.Float32frombits(bits)
		case 5:
			kv.HasInt32 = true
			var n uint64
			n, err = r.varint()
			kv.Int32 = int32(n)
		case 6:
			kv.HasInt64 = true
			var n uint64
			n, err = r.varint()
			kv.Int64 = int64(n)
		case 7:
			kv.HasString = true
			var b []byte
			b, err = r.bytes()
			kv.String = string(b)
		default:
			err = r.skip(wt)
		}
		if err != nil {
			return nil, err
		}
	}
	return kv, nil
}
