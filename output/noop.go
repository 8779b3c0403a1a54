// Package output provides the consumer.FrameConsumer implementations the
// cmd entrypoint chooses between via --output-type: none, raw (SQLite +
// blob store) and csv.
package output

import (
	"github.com/nlowe/bkarchive/consumer"
	"github.com/nlowe/bkarchive/frame"
)

// Noop discards every frame. Used for --output-type none, e.g. to validate
// that a backup decrypts and parses without writing anything to disk.
type Noop struct{}

var _ consumer.FrameConsumer = Noop{}

func (Noop) OnStatement(*frame.Statement) error   { return nil }
func (Noop) OnPreference(*frame.Preference) error { return nil }
func (Noop) OnKeyValue(*frame.KeyValue) error     { return nil }
func (Noop) OnVersion(*frame.Version) error       { return nil }
func (Noop) OnAttachment(*frame.Attachment) error { return nil }
func (Noop) OnAvatar(*frame.Avatar) error         { return nil }
func (Noop) OnSticker(*frame.Sticker) error       { return nil }
func (Noop) OnEnd() error                         { return nil }
