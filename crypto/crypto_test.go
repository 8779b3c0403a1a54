package crypto

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPassphrase = []byte("012345678901234567890123456789") // 30 digits

func TestValidatePassphrase(t *testing.T) {
	assert.NoError(t, ValidatePassphrase([]byte("123456789012345678901234567890")))
	assert.Error(t, ValidatePassphrase([]byte("12345")))
	assert.Error(t, ValidatePassphrase([]byte("12345678901234567890123456789a")))
}

func TestDeriveKeysDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x42}, 32)

	c1, m1, err := DeriveKeys(testPassphrase, salt)
	require.NoError(t, err)
	c2, m2, err := DeriveKeys(testPassphrase, salt)
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Equal(t, m1, m2)
	assert.Len(t, c1, KeySize)
	assert.Len(t, m1, KeySize)
	assert.NotEqual(t, c1, m1, "cipher and mac keys must differ")
}

func TestDeriveKeysSaltSensitive(t *testing.T) {
	c1, _, err := DeriveKeys(testPassphrase, bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	c2, _, err := DeriveKeys(testPassphrase, bytes.Repeat([]byte{0x02}, 32))
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)
}

func zeroIV() []byte {
	iv := make([]byte, IVSize)
	return iv
}

// TestDecryptRoundTrip exercises the exact peek+combined-decrypt sequence
// FrameReader uses: peek the length, then decrypt length||payload together.
func TestDecryptRoundTrip(t *testing.T) {
	salt := bytes.Repeat([]byte{0x09}, 32)
	iv := zeroIV()

	enc, err := NewDecrypter(testPassphrase, salt, iv, true)
	require.NoError(t, err)
	dec, err := NewDecrypter(testPassphrase, salt, iv, true)
	require.NoError(t, err)

	plainLen := make([]byte, 4)
	binary.BigEndian.PutUint32(plainLen, 42)
	plainPayload := []byte("hello, encrypted world!!")
	plaintext := append(append([]byte{}, plainLen...), plainPayload...)

	ciphertext, err := enc.Decrypt(plaintext) // symmetric: CTR encrypt == decrypt
	require.NoError(t, err)

	peeked, err := dec.PeekDecrypt(ciphertext[:4])
	require.NoError(t, err)
	assert.Equal(t, plainLen, peeked)

	recovered, err := dec.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestVerifyMACDisabledTolerant(t *testing.T) {
	salt := bytes.Repeat([]byte{0x09}, 32)
	iv := zeroIV()

	d, err := NewDecrypter(testPassphrase, salt, iv, false)
	require.NoError(t, err)

	_, err = d.Decrypt([]byte("some ciphertext"))
	require.NoError(t, err)

	assert.NoError(t, d.VerifyMAC(bytes.Repeat([]byte{0xff}, MacSize)))
}

func TestVerifyMACEnabledRejectsCorruption(t *testing.T) {
	salt := bytes.Repeat([]byte{0x09}, 32)
	iv := zeroIV()

	d, err := NewDecrypter(testPassphrase, salt, iv, true)
	require.NoError(t, err)

	_, err = d.Decrypt([]byte("some ciphertext"))
	require.NoError(t, err)

	assert.ErrorIs(t, d.VerifyMAC(bytes.Repeat([]byte{0xff}, MacSize)), ErrMac)
}

// TestCounterOverflow exercises S6: a stream with initial counter
// 0xFFFFFFFF decrypts a second frame at counter 0x00000000 without error.
func TestCounterOverflow(t *testing.T) {
	salt := bytes.Repeat([]byte{0x05}, 32)
	iv := zeroIV()
	binary.BigEndian.PutUint32(iv[:4], 0xFFFFFFFF)

	d, err := NewDecrypter(testPassphrase, salt, iv, true)
	require.NoError(t, err)

	_, err = d.Decrypt([]byte("frame at max counter"))
	require.NoError(t, err)
	d.IncreaseIV()

	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(d.iv[:4]))

	_, err = d.Decrypt([]byte("frame at wrapped counter"))
	require.NoError(t, err)
}

// TestKeystreamDeterminism exercises property 5: advancing the counter N
// times then decrypting gives the same plaintext as a fresh reader that has
// consumed N frames of matching cipher sizes.
func TestKeystreamDeterminism(t *testing.T) {
	salt := bytes.Repeat([]byte{0x07}, 32)
	iv := zeroIV()

	fresh, err := NewDecrypter(testPassphrase, salt, iv, true)
	require.NoError(t, err)
	advanced, err := NewDecrypter(testPassphrase, salt, iv, true)
	require.NoError(t, err)

	frameSizes := []int{16, 32, 8}
	for _, size := range frameSizes[:len(frameSizes)-1] {
		ct := bytes.Repeat([]byte{0xAB}, size)
		_, err := fresh.Decrypt(ct)
		require.NoError(t, err)
		fresh.IncreaseIV()

		_, err = advanced.Decrypt(ct)
		require.NoError(t, err)
		advanced.IncreaseIV()
	}

	last := bytes.Repeat([]byte{0xCD}, frameSizes[len(frameSizes)-1])
	p1, err := fresh.Decrypt(last)
	require.NoError(t, err)
	p2, err := advanced.Decrypt(last)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}
