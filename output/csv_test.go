package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlowe/bkarchive/frame"
	"github.com/nlowe/bkarchive/store"
)

func newTestCSV(t *testing.T) (*CSV, string) {
	t.Helper()
	outDir := t.TempDir()
	blobs, err := store.NewFileStore(filepath.Join(outDir, "blobs"))
	require.NoError(t, err)

	c, err := NewCSV(outDir, blobs)
	require.NoError(t, err)
	return c, outDir
}

func readCSV(t *testing.T, dir, name string) [][]string {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, name+".csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVStatement(t *testing.T) {
	c, dir := newTestCSV(t)
	require.NoError(t, c.OnStatement(&frame.Statement{
		SQL:    "insert into thread values (?, ?)",
		Params: []frame.TypedValue{{Kind: frame.ValueInt64, Int64: 42}, {Kind: frame.ValueString, String: "hi"}},
	}))
	require.NoError(t, c.OnEnd())

	rows := readCSV(t, dir, "statements")
	require.Len(t, rows, 2)
	assert.Equal(t, "insert into thread values (?, ?)", rows[1][0])
}

func TestCSVAttachmentRoutesBlobAndRecordsKey(t *testing.T) {
	c, dir := newTestCSV(t)
	require.NoError(t, c.OnAttachment(&frame.Attachment{ID: 7, Row: 3, Length: 5, Body: []byte("hello")}))
	require.NoError(t, c.OnEnd())

	rows := readCSV(t, dir, "attachments")
	require.Len(t, rows, 2)
	assert.Equal(t, "7", rows[1][0])
	assert.Equal(t, "3", rows[1][1])
	assert.NotEmpty(t, rows[1][3])

	written, _ := c.blobs.Stats()
	assert.Equal(t, 1, written)
}

func TestCSVAvatarKeyedByName(t *testing.T) {
	c, dir := newTestCSV(t)
	require.NoError(t, c.OnAvatar(&frame.Avatar{Name: "alice", Length: 3, Body: []byte("abc")}))
	require.NoError(t, c.OnEnd())

	rows := readCSV(t, dir, "avatars")
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[1][0])
}

func TestCSVMultipleFramesShareOneWriter(t *testing.T) {
	c, dir := newTestCSV(t)
	require.NoError(t, c.OnKeyValue(&frame.KeyValue{Key: "a", HasString: true, String: "1"}))
	require.NoError(t, c.OnKeyValue(&frame.KeyValue{Key: "b", HasInt64: true, Int64: 2}))
	require.NoError(t, c.OnEnd())

	rows := readCSV(t, dir, "key_value")
	require.Len(t, rows, 3)
}
