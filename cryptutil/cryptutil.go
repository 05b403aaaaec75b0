// Package cryptutil provides the AES-128-CBC encryption and PKCS7
// padding MPAT uses to protect a session's payload in transit. It is
// deliberately narrow: one key size, one mode, one padding scheme, no
// negotiation.
package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeySize and IVSize are fixed by spec.md §3: a 16-byte symmetric key
// and a 16-byte initialization vector.
const (
	KeySize = 16
	IVSize  = 16
	// blockSize is AES's block size, and also the PKCS7 padding unit.
	blockSize = aes.BlockSize
)

// ErrInvalidPadding is returned when PKCS7 padding fails to validate;
// spec.md §4.7 calls this a DecryptionFailure.
var ErrInvalidPadding = errors.New("cryptutil: invalid PKCS7 padding")

// ErrEmptyInput is returned by Unpad on zero-length input, which can
// never be validly padded.
var ErrEmptyInput = errors.New("cryptutil: cannot unpad empty input")

// NewKeyAndIV generates a fresh random key and IV using crypto/rand.
func NewKeyAndIV() (key [KeySize]byte, iv [IVSize]byte, err error) {
	if _, err = rand.Read(key[:]); err != nil {
		return key, iv, fmt.Errorf("cryptutil: generating key: %w", err)
	}
	if _, err = rand.Read(iv[:]); err != nil {
		return key, iv, fmt.Errorf("cryptutil: generating iv: %w", err)
	}
	return key, iv, nil
}

// Pad applies PKCS7 padding so that len(data) is a multiple of the AES
// block size, per spec.md §4.4 step 2.
func Pad(data []byte) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// Unpad strips and validates PKCS7 padding, returning ErrInvalidPadding
// if the trailing bytes are not a well-formed pad.
func Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-padLen], nil
}

// Encrypt pads plaintext and encrypts it with AES-128-CBC under key/iv,
// per spec.md §4.4 steps 1-2.
func Encrypt(key [KeySize]byte, iv [IVSize]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptutil: building cipher: %w", err)
	}
	padded := Pad(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Decrypt decrypts ciphertext with AES-128-CBC under key/iv and strips
// PKCS7 padding, per spec.md §4.7 steps 3-4.
func Decrypt(key [KeySize]byte, iv [IVSize]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return nil, fmt.Errorf("cryptutil: ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptutil: building cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(plaintext, ciphertext)
	return Unpad(plaintext)
}
