package backup

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlowe/bkarchive/frame"
)

func TestReportRecordTalliesByKind(t *testing.T) {
	r := NewReport("backup.dat")
	r.Record(frame.KindStatement)
	r.Record(frame.KindStatement)
	r.Record(frame.KindAttachment)
	r.Record(frame.KindEnd)

	assert.Equal(t, 2, r.Frames.Statement)
	assert.Equal(t, 1, r.Frames.Attachment)
	assert.True(t, r.EndFrameSeen)
}

func TestReportRoundTripsThroughJSON(t *testing.T) {
	r := NewReport("backup.dat")
	r.Record(frame.KindKeyValue)
	r.FrameCount = 5
	r.ByteCount = 1024

	data, err := r.JSON()
	require.NoError(t, err)

	got, err := ReadReport(data)
	require.NoError(t, err)
	assert.Equal(t, r.Source, got.Source)
	assert.Equal(t, r.Frames, got.Frames)
	assert.Equal(t, r.FrameCount, got.FrameCount)
	assert.Equal(t, r.ByteCount, got.ByteCount)
}

func TestReportRejectsUnknownVersion(t *testing.T) {
	_, err := ReadReport([]byte(`{"version": 99}`))
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestReportWriteFile(t *testing.T) {
	r := NewReport("backup.dat")
	r.Error = "boom"

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, r.WriteFile(path))

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)

	got, err := ReadReport(data)
	require.NoError(t, err)
	assert.Equal(t, "boom", got.Error)
}
