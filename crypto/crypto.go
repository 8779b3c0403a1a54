// Package crypto implements the backup archive's key derivation and the
// stateful AES-256-CTR/HMAC-SHA256 stream used to authenticate and decrypt
// every frame.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"hash"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the length in bytes of both the cipher key and the MAC key.
	KeySize = 32
	// IVSize is the length in bytes of the CTR-mode IV. The first 4 bytes are
	// the big-endian frame counter; the rest come from the header and never
	// change.
	IVSize = 16
	// MacSize is the length in bytes of the truncated HMAC-SHA256 trailer.
	MacSize = 10

	kdfRounds  = 250000
	hkdfInfo   = "Backup Export"
	passphrase = 30 // expected digit count of a backup passphrase
)

// ErrBadPassphrase is returned by ValidatePassphrase when the passphrase is
// not exactly 30 ASCII digits. DeriveKeys does not validate its input.
var ErrBadPassphrase = errors.New("crypto: passphrase must be exactly 30 digits")

// ErrMac is returned by Decrypter.VerifyMAC on authentication failure.
var ErrMac = errors.New("crypto: hmac verification failed")

// ValidatePassphrase checks the passphrase has already been stripped to its
// 30 ASCII digits. Whitespace/punctuation stripping is the caller's job
// (see config.go); this only enforces the final shape.
func ValidatePassphrase(p []byte) error {
	if len(p) != passphrase {
		return ErrBadPassphrase
	}
	for _, c := range p {
		if c < '0' || c > '9' {
			return ErrBadPassphrase
		}
	}
	return nil
}

// DeriveKeys implements the KeyDeriver: an iterated SHA-512 stretch of
// passphrase+salt, followed by an HKDF-SHA256 expand, producing a 32-byte
// cipher key and a 32-byte MAC key. It must reproduce the reference
// implementation bit-for-bit; see the component design notes in DESIGN.md.
func DeriveKeys(passphrase, salt []byte) (cipherKey, macKey []byte, err error) {
	raw := stretch(passphrase, salt)

	okm := make([]byte, 2*KeySize)
	expand := hkdf.New(sha256.New, raw[:], make([]byte, sha256.Size), []byte(hkdfInfo))
	if _, err = io.ReadFull(expand, okm); err != nil {
		return nil, nil, errors.Wrap(err, "crypto: hkdf expand")
	}
	return okm[:KeySize], okm[KeySize:], nil
}

// stretch performs the 250,000-round SHA-512 key stretch described by the
// KeyDeriver: hash0 = SHA512(passphrase || salt), then 250,000 rounds of
// hash(i+1) = SHA512(hash(i) || passphrase) for the first round only, and
// hash(i+1) = SHA512(hash(i)) thereafter. The first 32 bytes of the final
// digest are the raw key.
func stretch(passphrase, salt []byte) (raw [KeySize]byte) {
	h := sha512.New()
	h.Write(passphrase)
	h.Write(salt)
	digest := h.Sum(nil)

	for i := 0; i < kdfRounds; i++ {
		h.Reset()
		h.Write(digest)
		if i == 0 {
			h.Write(passphrase)
		}
		digest = h.Sum(nil)
	}

	copy(raw[:], digest[:KeySize])
	return
}

// Decrypter is the stateful AES-256-CTR decryptor coupled to a per-frame
// HMAC-SHA256 authenticator, with a monotonically incrementing 32-bit
// counter embedded in the high 4 bytes of the IV. It is a single-writer
// resource: callers must not use it from more than one goroutine, and must
// stop using it entirely after the first error (see reader.FrameReader).
type Decrypter struct {
	cipherKey []byte
	macKey    []byte
	iv        [IVSize]byte
	mac       hash.Hash
	verify    bool
}

// NewDecrypter builds a Decrypter from a passphrase and the salt/iv carried
// by the backup's Header frame.
func NewDecrypter(passphrase, salt, iv []byte, verifyMAC bool) (*Decrypter, error) {
	if len(iv) != IVSize {
		return nil, errors.Errorf("crypto: header iv must be %d bytes, got %d", IVSize, len(iv))
	}
	cipherKey, macKey, err := DeriveKeys(passphrase, salt)
	if err != nil {
		return nil, err
	}

	d := &Decrypter{cipherKey: cipherKey, macKey: macKey, verify: verifyMAC}
	copy(d.iv[:], iv)
	d.mac = hmac.New(sha256.New, macKey)
	return d, nil
}

func (d *Decrypter) stream() (cipher.Stream, error) {
	block, err := aes.NewCipher(d.cipherKey)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: bad cipher key")
	}
	return cipher.NewCTR(block, d.iv[:]), nil
}

// PeekDecrypt decrypts ciphertext under the current IV without advancing
// the IV and without feeding the HMAC accumulator. It exists solely so
// FrameReader can recover the 4-byte length prefix before committing to a
// single combined Decrypt call over prefix+payload (see the doc comment on
// FrameReader.Next for why this split must not be done any other way).
func (d *Decrypter) PeekDecrypt(ciphertext []byte) ([]byte, error) {
	s, err := d.stream()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	s.XORKeyStream(out, ciphertext)
	return out, nil
}

// Decrypt feeds ciphertext into the per-frame HMAC accumulator, then
// decrypts it under the current IV. Callers reading a framed record must
// pass the length prefix concatenated with the payload in one call so the
// keystream and the MAC both observe the same byte sequence PeekDecrypt saw
// a prefix of.
func (d *Decrypter) Decrypt(ciphertext []byte) ([]byte, error) {
	d.mac.Write(ciphertext)
	s, err := d.stream()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	s.XORKeyStream(out, ciphertext)
	return out, nil
}

// MacUpdateWithIV feeds the current full 16-byte IV into the HMAC
// accumulator. It must be called exactly once, at the start of reading a
// blob body (attachment/avatar/sticker), and never for framed records -
// those already seed the HMAC via Decrypt's prefix bytes.
func (d *Decrypter) MacUpdateWithIV() {
	d.mac.Write(d.iv[:])
}

// VerifyMAC finalizes the current HMAC-SHA256, truncates it to MacSize
// bytes, and compares it in constant time to expected. When verification is
// disabled, the digest is still computed (so behavior stays structurally
// identical) but never compared, and this always returns nil.
func (d *Decrypter) VerifyMAC(expected []byte) error {
	sum := d.mac.Sum(nil)[:MacSize]
	if !d.verify {
		return nil
	}
	if subtle.ConstantTimeCompare(sum, expected) != 1 {
		return ErrMac
	}
	return nil
}

// IncreaseIV resets the HMAC accumulator (re-keyed with the MAC key) and
// increments the big-endian 32-bit counter in the first 4 bytes of the IV,
// wrapping modulo 2^32. Called exactly once per frame and once per blob
// body, after MAC verification.
func (d *Decrypter) IncreaseIV() {
	d.mac = hmac.New(sha256.New, d.macKey)
	counter := binary.BigEndian.Uint32(d.iv[:4])
	counter++
	binary.BigEndian.PutUint32(d.iv[:4], counter)
}
