// Package commitment binds a hidden binary choice to a SHA-256 digest so
// it cannot be changed after the opponent's moves are visible.
package commitment

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	DigestLen  = sha256.Size * 2
	NonceBytes = 16
)

// Hash returns the hex digest of "<choice>:<nonce>". Any non-empty nonce
// is accepted; its length is only bounded by the request body limit.
func Hash(choice int, nonce string) string {
	sum := sha256.Sum256([]byte(strconv.Itoa(choice) + ":" + nonce))
	return hex.EncodeToString(sum[:])
}

// Normalize canonicalises a submitted digest.
func Normalize(digest string) string {
	return strings.ToLower(strings.TrimSpace(digest))
}

// Valid reports whether digest looks like a SHA-256 hex digest.
func Valid(digest string) bool {
	d := Normalize(digest)
	if len(d) != DigestLen {
		return false
	}
	_, err := hex.DecodeString(d)
	return err == nil
}

// Verify recomputes the digest of (choice, nonce) and compares it with the
// stored commitment in constant time.
func Verify(commitment string, choice int, nonce string) bool {
	want := Normalize(commitment)
	got := Hash(choice, nonce)
	if len(want) != len(got) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// NewNonce returns a random hex nonce.
func NewNonce() (string, error) {
	b := make([]byte, NonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Seal picks a fresh nonce for choice and returns it with its commitment.
func Seal(choice int) (nonce, digest string, err error) {
	nonce, err = NewNonce()
	if err != nil {
		return "", "", err
	}
	return nonce, Hash(choice, nonce), nil
}
