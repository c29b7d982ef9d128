// Package secrets generates opaque secret strings for API keys and
// invitation tokens. Every secret carries a short purpose prefix so a leaked
// value can be triaged without a database lookup.
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Purpose identifies what a generated secret is used for.
type Purpose string

const (
	// PurposeAPIKey prefixes API key secrets.
	PurposeAPIKey Purpose = "ck"
	// PurposeInvitation prefixes invitation tokens.
	PurposeInvitation Purpose = "inv"
)

// HintLength is the number of trailing characters re-exposed when listing
// stored secrets.
const HintLength = 4

// New returns a new secret of size random bytes, hex-encoded and prefixed
// with the purpose tag, e.g. "ck_9f2d4c...".
//
// The only failure mode of crypto/rand is exhaustion of the system source;
// the process cannot safely continue issuing secrets in that state, so New
// panics instead of returning an error.
func New(purpose Purpose, size int) string {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("secrets: random source failed: %v", err))
	}
	return string(purpose) + "_" + hex.EncodeToString(b)
}

// Hint returns the trailing characters of a secret that are safe to
// re-display alongside redacted listings.
func Hint(secret string) string {
	if len(secret) <= HintLength {
		return secret
	}
	return secret[len(secret)-HintLength:]
}
