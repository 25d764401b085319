// Package otp generates numeric one-time codes and compares them against stored digests.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// DefaultLength is used when a non-positive length is requested.
const DefaultLength = 6

// Generate returns a uniformly random numeric code of the given length, zero-padded.
// Lengths above 18 digits overflow int64 and are not supported.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}

// Hash returns the hex SHA-256 digest stored in place of the code.
func Hash(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// Equal compares a presented code with a stored digest in constant time.
func Equal(code, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(code)), []byte(digest)) == 1
}
