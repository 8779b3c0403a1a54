// Package backup writes the end-of-run Report: a versioned JSON document
// summarizing a single decrypt run, grounded on the teacher's
// backup.Manifest/store.Metadata versioned-JSON pattern (util.ParseVersionJSON
// plus a MarshalJSON that stamps the current version).
package backup

import (
	"encoding/json"
	"io/ioutil"

	"github.com/pkg/errors"

	"github.com/nlowe/bkarchive/frame"
	"github.com/nlowe/bkarchive/util"
)

// ReportVersion is the current on-disk schema version for Report.
const ReportVersion = 1

// ErrBadVersion is returned by ReadReport when the JSON's "version" field
// does not match a version this build knows how to read.
var ErrBadVersion = errors.New("backup: unrecognized report version")

// FrameCounts tallies how many frames of each variant were seen during a run.
type FrameCounts struct {
	Statement  int `json:"statement"`
	Preference int `json:"preference"`
	KeyValue   int `json:"keyValue"`
	Attachment int `json:"attachment"`
	Avatar     int `json:"avatar"`
	Sticker    int `json:"sticker"`
	Version    int `json:"version"`
}

// Report is the JSON document written to <OutputPath>/report.json at the end
// of a run (or best-effort, on fatal error).
type Report struct {
	Version      int         `json:"version"`
	Source       string      `json:"source"`
	Frames       FrameCounts `json:"frames"`
	FrameCount   int         `json:"frameCount"`
	ByteCount    int64       `json:"byteCount"`
	EndFrameSeen bool        `json:"endFrameSeen"`
	Error        string      `json:"error,omitempty"`
}

// NewReport returns a Report for source (the input archive path), with
// Version already set.
func NewReport(source string) *Report {
	return &Report{Version: ReportVersion, Source: source}
}

// Record tallies a single decoded frame's kind, mirroring reader.FrameReader's
// frame-by-frame bookkeeping but broken down per variant for the report.
func (r *Report) Record(kind frame.Kind) {
	switch kind {
	case frame.KindStatement:
		r.Frames.Statement++
	case frame.KindPreference:
		r.Frames.Preference++
	case frame.KindKeyValue:
		r.Frames.KeyValue++
	case frame.KindAttachment:
		r.Frames.Attachment++
	case frame.KindAvatar:
		r.Frames.Avatar++
	case frame.KindSticker:
		r.Frames.Sticker++
	case frame.KindVersion:
		r.Frames.Version++
	case frame.KindEnd:
		r.EndFrameSeen = true
	}
}

// MarshalJSON stamps the current ReportVersion before encoding, the same way
// the teacher's Manifest.MarshalJSON stamps its own version field.
func (r *Report) MarshalJSON() ([]byte, error) {
	type alias Report
	r.Version = ReportVersion
	return json.Marshal((*alias)(r))
}

// JSON returns the pretty-printed JSON encoding of the report.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteFile writes the report's JSON encoding to path.
func (r *Report) WriteFile(path string) error {
	data, err := r.JSON()
	if err != nil {
		return errors.Wrap(err, "backup: marshal report")
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "backup: write report")
	}
	return nil
}

// ReadReport parses a report.json file, checking its version field the same
// way ReadManifestData does before trusting the rest of the document.
func ReadReport(data []byte) (*Report, error) {
	ver, ok := util.ParseVersionJSON(data)
	if !ok {
		return nil, errors.New("backup: malformed report data")
	}
	if ver != ReportVersion {
		return nil, errors.Wrapf(ErrBadVersion, "got version %d", ver)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "backup: unmarshal report")
	}
	return &r, nil
}
