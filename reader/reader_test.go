package reader

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlowe/bkarchive/crypto"
	"github.com/nlowe/bkarchive/frame"
)

// fixtureWriter is a second, independent implementation of the AES-CTR/HMAC
// wire format used only to build encrypted test streams. It deliberately
// does not reuse crypto.Decrypter (decrypting is never the same call path as
// encrypting a fixture) so that a bug in one does not hide a matching bug in
// the other.
type fixtureWriter struct {
	cipherKey, macKey []byte
	iv                [crypto.IVSize]byte
	mac               hash.Hash
}

func newFixtureWriter(t *testing.T, passphrase, salt, iv []byte) *fixtureWriter {
	t.Helper()
	ck, mk, err := crypto.DeriveKeys(passphrase, salt)
	require.NoError(t, err)

	fw := &fixtureWriter{cipherKey: ck, macKey: mk}
	copy(fw.iv[:], iv)
	fw.mac = hmac.New(sha256.New, mk)
	return fw
}

func (fw *fixtureWriter) xor(plain []byte) []byte {
	block, err := aes.NewCipher(fw.cipherKey)
	if err != nil {
		panic(err)
	}
	s := cipher.NewCTR(block, fw.iv[:])
	out := make([]byte, len(plain))
	s.XORKeyStream(out, plain)
	return out
}

func (fw *fixtureWriter) rekey() {
	fw.mac = hmac.New(sha256.New, fw.macKey)
	counter := binary.BigEndian.Uint32(fw.iv[:4])
	counter++
	binary.BigEndian.PutUint32(fw.iv[:4], counter)
}

// writeFrame appends one encrypted, MAC-trailed framed record to buf. Its
// on-wire length is 4 + declared length. The length prefix and the payload
// are encrypted as one keystream, so the payload continues at keystream
// offset 4.
func (fw *fixtureWriter) writeFrame(buf *bytes.Buffer, payload []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)+crypto.MacSize))

	cipherAll := fw.xor(append(lenBuf[:], payload...))
	cipherLen := cipherAll[:4]
	cipherBody := cipherAll[4:]

	fw.mac.Write(cipherLen)
	fw.mac.Write(cipherBody)
	mac := fw.mac.Sum(nil)[:crypto.MacSize]

	buf.Write(cipherLen)
	buf.Write(cipherBody)
	buf.Write(mac)
	fw.rekey()
}

func (fw *fixtureWriter) writeBlob(buf *bytes.Buffer, data []byte) {
	fw.mac.Write(fw.iv[:])
	cipherData := fw.xor(data)
	fw.mac.Write(cipherData)
	mac := fw.mac.Sum(nil)[:crypto.MacSize]

	buf.Write(cipherData)
	buf.Write(mac)
	fw.rekey()
}

func writeHeader(buf *bytes.Buffer, h *frame.Header) {
	payload := frame.Encode(&frame.Frame{Kind: frame.KindHeader, Header: h})
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)
}

var (
	testPassphrase = []byte("012345678901234567890123456789") // 30 digits
	testSalt       = []byte("fixture-salt")
	testIV         = []byte{0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
)

func TestReaderHeaderAndEnd(t *testing.T) {
	var buf bytes.Buffer
	writeHeader(&buf, &frame.Header{IV: testIV, Salt: testSalt})

	fw := newFixtureWriter(t, testPassphrase, testSalt, testIV)
	fw.writeFrame(&buf, frame.Encode(&frame.Frame{Kind: frame.KindEnd}))

	r, err := New(bytes.NewReader(buf.Bytes()), testPassphrase, int64(buf.Len()), DefaultConfig())
	require.NoError(t, err)

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, frame.KindEnd, f.Kind)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderStatementFrame(t *testing.T) {
	var buf bytes.Buffer
	writeHeader(&buf, &frame.Header{IV: testIV, Salt: testSalt})

	fw := newFixtureWriter(t, testPassphrase, testSalt, testIV)
	stmt := &frame.Frame{
		Kind: frame.KindStatement,
		Statement: &frame.Statement{
			SQL:    "INSERT INTO t VALUES (?,?,?)",
			Params: []frame.TypedValue{{Kind: frame.ValueInt64, Int64: 7}, {Kind: frame.ValueString, String: "hi"}, {Kind: frame.ValueNull}},
		},
	}
	fw.writeFrame(&buf, frame.Encode(stmt))
	fw.writeFrame(&buf, frame.Encode(&frame.Frame{Kind: frame.KindEnd}))

	r, err := New(bytes.NewReader(buf.Bytes()), testPassphrase, int64(buf.Len()), DefaultConfig())
	require.NoError(t, err)

	f, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, frame.KindStatement, f.Kind)
	assert.Equal(t, stmt.Statement.SQL, f.Statement.SQL)
	require.Len(t, f.Statement.Params, 3)
	assert.Equal(t, "hi", f.Statement.Params[1].String)

	f, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, frame.KindEnd, f.Kind)
}

// TestReaderAttachmentByteCounter covers scenario S4: an attachment frame
// with a 1024 byte body advances the byte counter by 4 + frameLen (framed
// record) + 1024 + 10 (blob body + trailer). After the closing End frame the
// counter must equal headerLen + 4 + 16 (bootstrap) plus that, plus
// 4 + the End frame's declared length.
func TestReaderAttachmentByteCounter(t *testing.T) {
	var buf bytes.Buffer
	headerPayload := frame.Encode(&frame.Frame{Kind: frame.KindHeader, Header: &frame.Header{IV: testIV, Salt: testSalt}})
	writeHeader(&buf, &frame.Header{IV: testIV, Salt: testSalt})
	expectedByteCount := int64(len(headerPayload)) + 4 + 16

	fw := newFixtureWriter(t, testPassphrase, testSalt, testIV)

	attachmentFramePayload := frame.Encode(&frame.Frame{Kind: frame.KindAttachment, Attachment: &frame.Attachment{ID: 1, Row: 2, Length: 1024}})
	fw.writeFrame(&buf, attachmentFramePayload)
	expectedByteCount += 4 + int64(len(attachmentFramePayload)+crypto.MacSize)

	blob := make([]byte, 1024)
	for i := range blob {
		blob[i] = byte(i)
	}
	fw.writeBlob(&buf, blob)
	expectedByteCount += 1024 + crypto.MacSize

	endFramePayload := frame.Encode(&frame.Frame{Kind: frame.KindEnd})
	fw.writeFrame(&buf, endFramePayload)
	expectedByteCount += 4 + int64(len(endFramePayload)+crypto.MacSize)

	r, err := New(bytes.NewReader(buf.Bytes()), testPassphrase, int64(buf.Len()), DefaultConfig())
	require.NoError(t, err)

	f, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, frame.KindAttachment, f.Kind)
	assert.Equal(t, blob, f.Attachment.Body)

	f, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, frame.KindEnd, f.Kind)

	assert.Equal(t, expectedByteCount, r.ByteCount())
	assert.Equal(t, 3, r.FrameCount())
}

// TestReaderWrongPassphrase covers scenario S2: a wrong passphrase must
// surface as a MAC failure, the frame-length sanity limit, or a decrypted
// length too short to hold a MAC, never a silent misparse.
func TestReaderWrongPassphrase(t *testing.T) {
	var buf bytes.Buffer
	writeHeader(&buf, &frame.Header{IV: testIV, Salt: testSalt})

	fw := newFixtureWriter(t, testPassphrase, testSalt, testIV)
	fw.writeFrame(&buf, frame.Encode(&frame.Frame{Kind: frame.KindEnd}))

	wrongPassphrase := []byte("999999999999999999999999999999")[:30]
	r, err := New(bytes.NewReader(buf.Bytes()), wrongPassphrase, int64(buf.Len()), DefaultConfig())
	require.NoError(t, err)

	_, err = r.Next()
	require.Error(t, err)
	isSanity := errors.Is(err, ErrSanityLimit)
	isMac := errors.Is(err, crypto.ErrMac)
	isMalformed := errors.Is(err, frame.ErrMalformedFrame)
	assert.True(t, isSanity || isMac || isMalformed, "expected sanity/mac/malformed error, got %v", err)
}

func TestReaderMacDisabledTolerant(t *testing.T) {
	var buf bytes.Buffer
	writeHeader(&buf, &frame.Header{IV: testIV, Salt: testSalt})

	fw := newFixtureWriter(t, testPassphrase, testSalt, testIV)
	fw.writeFrame(&buf, frame.Encode(&frame.Frame{Kind: frame.KindEnd}))

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	cfg := DefaultConfig()
	cfg.VerifyMAC = false
	r, err := New(bytes.NewReader(corrupted), testPassphrase, int64(len(corrupted)), cfg)
	require.NoError(t, err)

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, frame.KindEnd, f.Kind)
}

func TestReaderRejectsSecondHeader(t *testing.T) {
	var buf bytes.Buffer
	writeHeader(&buf, &frame.Header{IV: testIV, Salt: testSalt})

	fw := newFixtureWriter(t, testPassphrase, testSalt, testIV)
	fw.writeFrame(&buf, frame.Encode(&frame.Frame{Kind: frame.KindHeader, Header: &frame.Header{IV: testIV, Salt: testSalt}}))

	r, err := New(bytes.NewReader(buf.Bytes()), testPassphrase, int64(buf.Len()), DefaultConfig())
	require.NoError(t, err)

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrUnexpectedHeader)
}

func TestReaderUnexpectedEnd(t *testing.T) {
	var buf bytes.Buffer
	writeHeader(&buf, &frame.Header{IV: testIV, Salt: testSalt})

	fw := newFixtureWriter(t, testPassphrase, testSalt, testIV)
	fw.writeFrame(&buf, frame.Encode(&frame.Frame{Kind: frame.KindVersion, Version: &frame.Version{Version: 1}}))

	r, err := New(bytes.NewReader(buf.Bytes()), testPassphrase, int64(buf.Len()), DefaultConfig())
	require.NoError(t, err)

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, frame.KindVersion, f.Kind)

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrUnexpectedEnd)
}
