// Package reader implements the FrameReader: the I/O loop that turns a
// decrypted backup stream into a lazy sequence of frame.Frame values.
package reader

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/nlowe/bkarchive/crypto"
	"github.com/nlowe/bkarchive/frame"
)

// DefaultMaxFrameSize is the non-blob frame sanity limit (spec.md §6).
const DefaultMaxFrameSize = 100 * 1024 * 1024

var (
	// ErrSanityLimit is returned when a declared frame length exceeds
	// Config.MaxFrameSize - typically caused by a wrong passphrase
	// decrypting the length prefix into garbage.
	ErrSanityLimit = errors.New("reader: frame length exceeds sanity limit (wrong password?)")
	// ErrUnexpectedHeader is returned when a Header frame appears anywhere
	// but the first position.
	ErrUnexpectedHeader = errors.New("reader: unexpected header frame")
	// ErrUnexpectedEnd is returned when the stream is exhausted without
	// having yielded an End frame. Some callers may choose to tolerate it.
	ErrUnexpectedEnd = errors.New("reader: stream ended without an End frame")
	// ErrInvalidHeader is returned by New when the first frame is missing,
	// malformed, or not a Header - the standard "wrong password" hint.
	ErrInvalidHeader = errors.New("reader: invalid header frame")
)

// Config carries the core's two recognized knobs (spec.md §6).
type Config struct {
	// VerifyMAC defaults to true; when false, MAC state is still finalized
	// per frame but mismatches are not treated as fatal.
	VerifyMAC bool
	// MaxFrameSize bounds non-blob frame length. Defaults to 100 MiB.
	MaxFrameSize int
}

// DefaultConfig returns the core's default configuration.
func DefaultConfig() Config {
	return Config{VerifyMAC: true, MaxFrameSize: DefaultMaxFrameSize}
}

// FrameReader is the single-threaded, non-shareable driver of one backup
// stream. It must not be reused after any error; counters and the HMAC
// accumulator are left out of sync with the underlying reader.
type FrameReader struct {
	r   *bufio.Reader
	dec *crypto.Decrypter
	cfg Config

	frameCount int
	byteCount  int64
	fileSize   int64
	done       bool
}

// New bootstraps a FrameReader: it reads the unencrypted Header frame,
// derives the cipher/MAC keys from passphrase+salt+iv, and primes the byte
// counter (see spec.md §4.5 for the +16 accounting fudge).
func New(r io.Reader, passphrase []byte, fileSize int64, cfg Config) (*FrameReader, error) {
	fr := &FrameReader{r: bufio.NewReader(r), cfg: cfg, fileSize: fileSize}
	if fr.cfg.MaxFrameSize <= 0 {
		fr.cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	if err := fr.bootstrap(passphrase); err != nil {
		return nil, err
	}
	return fr, nil
}

func (fr *FrameReader) bootstrap(passphrase []byte) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		return errors.Wrapf(ErrInvalidHeader, "read header length: %v", err)
	}
	l := binary.BigEndian.Uint32(lenBuf[:])

	payload := make([]byte, l)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return errors.Wrapf(ErrInvalidHeader, "read header payload: %v", err)
	}

	f, err := frame.Decode(payload)
	if err != nil {
		return errors.Wrapf(ErrInvalidHeader, "parse header frame: %v", err)
	}
	if f.Kind != frame.KindHeader {
		return errors.Wrapf(ErrInvalidHeader, "first frame is %s, not Header", f.Kind)
	}

	dec, err := crypto.NewDecrypter(passphrase, f.Header.Salt, f.Header.IV, fr.cfg.VerifyMAC)
	if err != nil {
		return errors.Wrapf(ErrInvalidHeader, "derive keys: %v", err)
	}

	fr.dec = dec
	fr.frameCount = 1
	// See spec.md §4.5: 16 bytes of unencrypted trailer observed in real
	// backups are not semantically required, but the counter reproduces it.
	fr.byteCount = int64(l) + 4 + 16
	return nil
}

// Next implements next_frame (spec.md §4.4): it recovers the length prefix
// via PeekDecrypt, decrypts prefix+payload in one combined call so the
// keystream and HMAC stay aligned, verifies the trailing MAC, and - for
// Attachment/Avatar/Sticker frames - reads the attached blob body as a
// second I/O step. Returns io.EOF only once the End frame has been
// returned; any other error is terminal and the reader must not be reused.
func (fr *FrameReader) Next() (*frame.Frame, error) {
	if fr.done {
		return nil, io.EOF
	}

	var encLen [4]byte
	if _, err := io.ReadFull(fr.r, encLen[:]); err != nil {
		fr.done = true
		if err == io.EOF {
			return nil, errors.Wrap(ErrUnexpectedEnd, "stream truncated before an End frame")
		}
		return nil, errors.Wrap(err, "reader: read frame length")
	}

	plainLen, err := fr.dec.PeekDecrypt(encLen[:])
	if err != nil {
		return nil, err
	}
	l := binary.BigEndian.Uint32(plainLen)

	if l < crypto.MacSize {
		return nil, errors.Wrapf(frame.ErrMalformedFrame, "frame %d: length %d smaller than mac size", fr.frameCount+1, l)
	}
	if int(l) > fr.cfg.MaxFrameSize {
		return nil, errors.Wrapf(ErrSanityLimit, "frame %d: declared length %d exceeds maximum %d", fr.frameCount+1, l, fr.cfg.MaxFrameSize)
	}

	bodyLen := int(l) - crypto.MacSize
	encBody := make([]byte, bodyLen)
	if _, err := io.ReadFull(fr.r, encBody); err != nil {
		return nil, errors.Wrapf(err, "reader: read frame %d body", fr.frameCount+1)
	}

	combined := make([]byte, 0, 4+bodyLen)
	combined = append(combined, encLen[:]...)
	combined = append(combined, encBody...)
	plain, err := fr.dec.Decrypt(combined)
	if err != nil {
		return nil, err
	}
	payload := plain[4:]

	var mac [crypto.MacSize]byte
	if _, err := io.ReadFull(fr.r, mac[:]); err != nil {
		return nil, errors.Wrapf(err, "reader: read frame %d mac", fr.frameCount+1)
	}
	if err := fr.dec.VerifyMAC(mac[:]); err != nil {
		return nil, errors.Wrapf(err, "frame %d", fr.frameCount+1)
	}
	fr.dec.IncreaseIV()
	fr.byteCount += int64(4 + int(l))

	f, err := frame.Decode(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", fr.frameCount+1)
	}

	if blobLen, ok := f.BlobLength(); ok {
		body, err := fr.readBody(blobLen)
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d body", fr.frameCount+1)
		}
		f.SetBody(body)
	}

	if f.Kind == frame.KindHeader {
		return nil, errors.Wrapf(ErrUnexpectedHeader, "frame %d", fr.frameCount+1)
	}

	fr.frameCount++
	if f.Kind == frame.KindEnd {
		fr.done = true
	}
	return f, nil
}

// readBody implements the blob-body second I/O step. Unlike Next's combined
// peek+decrypt for the length prefix, a blob body has no length prefix of
// its own to thread the keystream through, so it primes the HMAC with the
// raw IV directly instead (design note §9's documented asymmetry).
func (fr *FrameReader) readBody(length uint32) ([]byte, error) {
	fr.dec.MacUpdateWithIV()

	data := make([]byte, length)
	if _, err := io.ReadFull(fr.r, data); err != nil {
		return nil, errors.Wrap(err, "reader: read blob body")
	}
	plain, err := fr.dec.Decrypt(data)
	if err != nil {
		return nil, err
	}

	var mac [crypto.MacSize]byte
	if _, err := io.ReadFull(fr.r, mac[:]); err != nil {
		return nil, errors.Wrap(err, "reader: read blob mac")
	}
	if err := fr.dec.VerifyMAC(mac[:]); err != nil {
		return nil, err
	}
	fr.dec.IncreaseIV()

	fr.byteCount += int64(length) + crypto.MacSize
	return plain, nil
}

// FrameCount returns the number of frames consumed so far, including the
// bootstrap Header.
func (fr *FrameReader) FrameCount() int { return fr.frameCount }

// ByteCount returns the running byte-accounting counter described in
// spec.md §4.5. It is a progress-reporting convenience only.
func (fr *FrameReader) ByteCount() int64 { return fr.byteCount }

// FileSize returns the total size of the underlying file, as reported at
// construction time.
func (fr *FrameReader) FileSize() int64 { return fr.fileSize }
