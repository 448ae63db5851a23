// Package pkce implements the random-string and PKCE (RFC 7636) primitives
// used by the OAuth authorization flow. Everything here is a pure function
// over crypto/rand output; no state, no logging.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// VerifierLength is the length of generated PKCE code verifiers.
	// 64 base64url characters carry 384 bits of entropy, comfortably inside
	// the RFC 7636 range of 43-128 characters.
	VerifierLength = 64

	// StateLength is the length of generated OAuth state parameters.
	StateLength = 32

	// ChallengeMethodS256 is the only code_challenge_method this package
	// produces. Plain challenges are deliberately unsupported.
	ChallengeMethodS256 = "S256"
)

// GenerateRandomString returns a URL-safe random string of exactly length
// characters, sourced from crypto/rand. Random bytes are base64url-encoded
// and trimmed, so every output character is from the unreserved set.
func GenerateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("pkce: invalid random string length %d", length)
	}

	// base64 yields 4 output characters per 3 input bytes; over-provision so
	// the encoded form is always at least `length` characters before trimming.
	b := make([]byte, (length*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("pkce: failed to read random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}

// GenerateVerifier returns a new PKCE code verifier.
func GenerateVerifier() (string, error) {
	return GenerateRandomString(VerifierLength)
}

// GenerateState returns a random state parameter for OAuth.
// The state links an authorization callback back to the request that
// produced it and deters CSRF.
func GenerateState() (string, error) {
	return GenerateRandomString(StateLength)
}

// CreateCodeChallenge derives the S256 code challenge for a verifier:
// base64url(SHA256(verifier)) without padding. Deterministic and pure.
func CreateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ValidateCodeChallenge checks that SHA256(verifier) matches the challenge.
func ValidateCodeChallenge(verifier, challenge string) bool {
	return CreateCodeChallenge(verifier) == challenge
}
