// Package auth provides the bearer tokens rooms hand out to public keys.
//
// A client asks for a challenge and receives a fresh token sealed to its
// session key. Only the key holder can open it and claim it with a second
// call carrying the token in its Authorization header. Only token hashes are
// stored.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// TokenSize is the number of random bytes in a token.
const TokenSize = 32

// PublicKeyLength is the hex length of a session public key: a one byte
// 0x05 prefix followed by a 32 byte key.
const PublicKeyLength = 66

// NewToken returns a random hex encoded token.
func NewToken() (string, error) {
	buf := make([]byte, TokenSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the sha256 hex digest stored in place of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidPublicKey reports whether s is a 66 character hex public key with the
// 05 prefix.
func ValidPublicKey(s string) bool {
	if len(s) != PublicKeyLength || s[:2] != "05" {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
