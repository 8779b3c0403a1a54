package frame

import "math"

// Encode serializes a Frame back to the wire format Decode expects. It is
// the mirror image of Decode and exists to build self-consistent fixtures
// for this package's and reader's tests; this program never re-encrypts or
// re-emits a backup archive (see Non-goals), so Encode is test-only.
func Encode(f *Frame) []byte {
	w := &writer{}
	switch f.Kind {
	case KindHeader:
		w.putSubmessage(fieldHeader, encodeHeader(f.Header))
	case KindStatement:
		w.putSubmessage(fieldStatement, encodeStatement(f.Statement))
	case KindPreference:
		w.putSubmessage(fieldPreference, encodePreference(f.Preference))
	case KindAttachment:
		w.putSubmessage(fieldAttachment, encodeAttachment(f.Attachment))
	case KindVersion:
		w.putSubmessage(fieldVersion, encodeVersion(f.Version))
	case KindEnd:
		w.putBool(fieldEnd, true)
	case KindAvatar:
		w.putSubmessage(fieldAvatar, encodeAvatar(f.Avatar))
	case KindSticker:
		w.putSubmessage(fieldSticker, encodeSticker(f.Sticker))
	case KindKeyValue:
		w.putSubmessage(fieldKeyValue, encodeKeyValue(f.KeyValue))
	}
	return w.buf
}

func encodeHeader(h *Header) []byte {
	w := &writer{}
	if h.IV != nil {
		w.putBytes(1, h.IV)
	}
	if h.Salt != nil {
		w.putBytes(2, h.Salt)
	}
	return w.buf
}

func encodeStatement(s *Statement) []byte {
	w := &writer{}
	w.putString(1, s.SQL)
	for _, p := range s.Params {
		w.putSubmessage(2, encodeParameter(p))
	}
	return w.buf
}

func encodeParameter(v TypedValue) []byte {
	w := &writer{}
	switch v.Kind {
	case ValueString:
		w.putString(1, v.String)
	case ValueInt64:
		w.putVarintField(2, uint64(v.Int64))
	case ValueFloat64:
		w.putFixed64(3, math.Float64bits(v.Float64))
	case ValueBytes:
		w.putBytes(4, v.Bytes)
	case ValueNull:
		w.putBool(5, true)
	}
	return w.buf
}

func encodePreference(p *Preference) []byte {
	w := &writer{}
	w.putString(1, p.File)
	w.putString(2, p.Key)
	switch p.Value.Kind {
	case PreferenceString:
		w.putString(3, p.Value.String)
	case PreferenceBool:
		w.putBool(4, p.Value.Bool)
	case PreferenceInt64:
		w.putVarintField(5, uint64(p.Value.Int64))
	case PreferenceFloat32:
		w.putFixed32(6, math.Float32bits(p.Value.Float32))
	case PreferenceBlob:
		w.putBytes(7, p.Value.Blob)
	case PreferenceStringSet:
		w.putBool(8, true)
		for _, s := range p.Value.StringSet {
			w.putString(9, s)
		}
	}
	return w.buf
}

func encodeAttachment(a *Attachment) []byte {
	w := &writer{}
	w.putVarintField(1, a.Row)
	w.putVarintField(2, a.ID)
	w.putVarintField(3, uint64(a.Length))
	return w.buf
}

func encodeVersion(v *Version) []byte {
	w := &writer{}
	w.putVarintField(1, uint64(v.Version))
	return w.buf
}

func encodeAvatar(a *Avatar) []byte {
	w := &writer{}
	w.putString(1, a.Name)
	w.putVarintField(2, uint64(a.Length))
	return w.buf
}

func encodeSticker(s *Sticker) []byte {
	w := &writer{}
	w.putVarintField(1, s.Row)
	w.putVarintField(2, uint64(s.Length))
	return w.buf
}

func encodeKeyValue(kv *KeyValue) []byte {
	w := &writer{}
	w.putString(1, kv.Key)
	if kv.HasBlob {
		w.putBytes(2, kv.Blob)
	}
	if kv.HasBool {
		w.putBool(3, kv.Bool)
	}
	if kv.HasFloat {
		w.putFixed32(4, math.Float32bits(kv.Float))
	}
	if kv.HasInt32 {
		w.putVarintField(5, uint64(uint32(kv.Int32)))
	}
	if kv.HasInt64 {
		w.putVarintField(6, uint64(kv.Int64))
	}
	if kv.HasString {
		w.putString(7, kv.String)
	}
	return w.buf
}
