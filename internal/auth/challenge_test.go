package auth

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSealToken_RoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if !ValidPublicKey(pub) {
		t.Fatalf("generated key %q is not a valid public key", pub)
	}

	sealed, err := SealToken("secret-token", pub)
	if err != nil {
		t.Fatalf("SealToken failed: %v", err)
	}
	if bytes.Contains(sealed.Ciphertext, []byte("secret-token")) {
		t.Error("ciphertext contains the plain token")
	}
	if len(sealed.EphemeralPublicKey) != 32 {
		t.Errorf("len(EphemeralPublicKey) = %d, want 32", len(sealed.EphemeralPublicKey))
	}

	got, err := OpenToken(priv, sealed)
	if err != nil {
		t.Fatalf("OpenToken failed: %v", err)
	}
	if got != "secret-token" {
		t.Errorf("OpenToken() = %q, want %q", got, "secret-token")
	}
}

func TestSealToken_FreshEphemeralKey(t *testing.T) {
	_, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	a, err := SealToken("t", pub)
	if err != nil {
		t.Fatalf("SealToken failed: %v", err)
	}
	b, err := SealToken("t", pub)
	if err != nil {
		t.Fatalf("SealToken failed: %v", err)
	}
	if bytes.Equal(a.EphemeralPublicKey, b.EphemeralPublicKey) {
		t.Error("two seals share an ephemeral key")
	}
}

func TestOpenToken_WrongKey(t *testing.T) {
	_, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	other, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	sealed, err := SealToken("secret-token", pub)
	if err != nil {
		t.Fatalf("SealToken failed: %v", err)
	}

	if _, err := OpenToken(other, sealed); !errors.Is(err, ErrInvalidChallenge) {
		t.Errorf("OpenToken with another key: err = %v, want ErrInvalidChallenge", err)
	}

	truncated := SealedToken{Ciphertext: sealed.Ciphertext[:4], EphemeralPublicKey: sealed.EphemeralPublicKey}
	if _, err := OpenToken(other, truncated); !errors.Is(err, ErrInvalidChallenge) {
		t.Errorf("OpenToken with truncated ciphertext: err = %v, want ErrInvalidChallenge", err)
	}
}

func TestSealToken_InvalidKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"malformed", "05abc"},
		{"low order point", "05" + strings.Repeat("00", 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SealToken("t", tt.key); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("SealToken(%q): err = %v, want ErrInvalidKey", tt.key, err)
			}
		})
	}
}
