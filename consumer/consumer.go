// Package consumer defines FrameConsumer: the callback interface
// reader.FrameReader's caller implements to receive decoded frames in
// on-disk order.
package consumer

import "github.com/nlowe/bkarchive/frame"

// FrameConsumer receives one callback per decoded frame, in the exact order
// the frames appear in the backup stream. Implementations must return
// promptly; reader.FrameReader will not read the next frame until the
// current callback returns (spec.md §5's ordering invariant).
type FrameConsumer interface {
	OnStatement(s *frame.Statement) error
	OnPreference(p *frame.Preference) error
	OnKeyValue(kv *frame.KeyValue) error
	OnVersion(v *frame.Version) error
	OnAttachment(a *frame.Attachment) error
	OnAvatar(a *frame.Avatar) error
	OnSticker(s *frame.Sticker) error
	OnEnd() error
}

// Dispatch routes a decoded frame to the matching FrameConsumer callback. It
// is the single place that maps frame.Kind to a FrameConsumer method, shared
// by every output backend's driving loop.
func Dispatch(c FrameConsumer, f *frame.Frame) error {
	switch f.Kind {
	case frame.KindStatement:
		return c.OnStatement(f.Statement)
	case frame.KindPreference:
		return c.OnPreference(f.Preference)
	case frame.KindKeyValue:
		return c.OnKeyValue(f.KeyValue)
	case frame.KindVersion:
		return c.OnVersion(f.Version)
	case frame.KindAttachment:
		return c.OnAttachment(f.Attachment)
	case frame.KindAvatar:
		return c.OnAvatar(f.Avatar)
	case frame.KindSticker:
		return c.OnSticker(f.Sticker)
	case frame.KindEnd:
		return c.OnEnd()
	case frame.KindHeader:
		// reader.FrameReader never yields a second Header; Dispatch is
		// only ever called with the frames Next() returns.
		return nil
	default:
		return nil
	}
}

// Funcs is a nil-safe, field-by-field FrameConsumer adapter for callers that
// only care about a subset of frame types, grounded on the signal-back
// reference reader's ConsumeFuncs.
type Funcs struct {
	Statement  func(*frame.Statement) error
	Preference func(*frame.Preference) error
	KeyValue   func(*frame.KeyValue) error
	Version    func(*frame.Version) error
	Attachment func(*frame.Attachment) error
	Avatar     func(*frame.Avatar) error
	Sticker    func(*frame.Sticker) error
	End        func() error
}

var _ FrameConsumer = Funcs{}

func (f Funcs) OnStatement(s *frame.Statement) error {
	if f.Statement == nil {
		return nil
	}
	return f.Statement(s)
}

func (f Funcs) OnPreference(p *frame.Preference) error {
	if f.Preference == nil {
		return nil
	}
	return f.Preference(p)
}

func (f Funcs) OnKeyValue(kv *frame.KeyValue) error {
	if f.KeyValue == nil {
		return nil
	}
	return f.KeyValue(kv)
}

func (f Funcs) OnVersion(v *frame.Version) error {
	if f.Version == nil {
		return nil
	}
	return f.Version(v)
}

func (f Funcs) OnAttachment(a *frame.Attachment) error {
	if f.Attachment == nil {
		return nil
	}
	return f.Attachment(a)
}

func (f Funcs) OnAvatar(a *frame.Avatar) error {
	if f.Avatar == nil {
		return nil
	}
	return f.Avatar(a)
}

func (f Funcs) OnSticker(s *frame.Sticker) error {
	if f.Sticker == nil {
		return nil
	}
	return f.Sticker(s)
}

func (f Funcs) OnEnd() error {
	if f.End == nil {
		return nil
	}
	return f.End()
}
