package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateRandomStringLength(t *testing.T) {
	for _, length := range []int{1, 16, 32, 43, 64, 128} {
		s, err := GenerateRandomString(length)
		if err != nil {
			t.Fatalf("GenerateRandomString(%d) error = %v", length, err)
		}
		if len(s) != length {
			t.Errorf("GenerateRandomString(%d) returned %d characters", length, len(s))
		}
	}
}

func TestGenerateRandomStringCharset(t *testing.T) {
	s, err := GenerateRandomString(256)
	if err != nil {
		t.Fatalf("GenerateRandomString() error = %v", err)
	}

	const urlSafe = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for _, r := range s {
		if !strings.ContainsRune(urlSafe, r) {
			t.Errorf("output contains non-URL-safe character %q", r)
		}
	}
}

func TestGenerateRandomStringInvalidLength(t *testing.T) {
	if _, err := GenerateRandomString(0); err == nil {
		t.Error("GenerateRandomString(0) expected error")
	}
	if _, err := GenerateRandomString(-5); err == nil {
		t.Error("GenerateRandomString(-5) expected error")
	}
}

func TestGenerateRandomStringUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := GenerateRandomString(32)
		if err != nil {
			t.Fatalf("GenerateRandomString() error = %v", err)
		}
		if seen[s] {
			t.Fatalf("duplicate random string after %d iterations", i)
		}
		seen[s] = true
	}
}

func TestCreateCodeChallenge(t *testing.T) {
	verifier, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("GenerateVerifier() error = %v", err)
	}
	if len(verifier) != VerifierLength {
		t.Errorf("verifier length = %d, want %d", len(verifier), VerifierLength)
	}

	challenge := CreateCodeChallenge(verifier)

	hash := sha256.Sum256([]byte(verifier))
	expected := base64.RawURLEncoding.EncodeToString(hash[:])
	if challenge != expected {
		t.Errorf("CreateCodeChallenge() = %q, want %q", challenge, expected)
	}

	// No padding, URL-safe alphabet only.
	if strings.ContainsAny(challenge, "=+/") {
		t.Errorf("challenge contains forbidden characters: %q", challenge)
	}
}

func TestCreateCodeChallengeDeterministic(t *testing.T) {
	// Known vector from RFC 7636 appendix B.
	const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	const want = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if got := CreateCodeChallenge(verifier); got != want {
		t.Errorf("CreateCodeChallenge(%q) = %q, want %q", verifier, got, want)
	}
	if got := CreateCodeChallenge(verifier); got != CreateCodeChallenge(verifier) {
		t.Error("CreateCodeChallenge is not deterministic")
	}
}

func TestValidateCodeChallenge(t *testing.T) {
	verifier, _ := GenerateVerifier()
	challenge := CreateCodeChallenge(verifier)

	if !ValidateCodeChallenge(verifier, challenge) {
		t.Error("ValidateCodeChallenge rejected a matching pair")
	}
	if ValidateCodeChallenge("other-verifier", challenge) {
		t.Error("ValidateCodeChallenge accepted a mismatched verifier")
	}
}

func TestGenerateState(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	if len(state) != StateLength {
		t.Errorf("state length = %d, want %d", len(state), StateLength)
	}
}
