package common

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
)

// codeSpace is the number of distinct verification codes (000000-999999).
const codeSpace = 1_000_000

// codeLimit is the largest multiple of codeSpace that fits in a uint32.
// Samples at or above it are rejected so every code is equally likely.
const codeLimit = (1 << 32) / codeSpace * codeSpace

// MakeRandHexString reads size random bytes from r and returns them
// hex-encoded, so the result is twice as long as size.
func MakeRandHexString(r io.Reader, size int) (string, error) {
	b, err := GenerateRandByteArray(r, size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateRandByteArray reads exactly n random bytes from r.
func GenerateRandByteArray(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("random source: %w", err)
	}
	return b, nil
}

// NewVerificationCode returns a zero-padded 6 digit code drawn uniformly
// from 000000-999999 using rejection sampling over r.
func NewVerificationCode(r io.Reader) (string, error) {
	var buf [4]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", fmt.Errorf("random source: %w", err)
		}
		v := binary.BigEndian.Uint32(buf[:])
		if v < codeLimit {
			return fmt.Sprintf("%0*d", VerificationCodeDigits, v%codeSpace), nil
		}
	}
}

// WipeByteArray overwrites b with zeros. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
