package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

var (
	// ErrInvalidKey is returned when a public key cannot receive a sealed token.
	ErrInvalidKey = errors.New("invalid session key")

	// ErrInvalidChallenge is returned when a sealed token cannot be opened.
	ErrInvalidChallenge = errors.New("invalid challenge")
)

// sealKeyLabel keys the HMAC that derives the AES key from the X25519
// shared secret.
var sealKeyLabel = []byte("LOKI")

// SealedToken is a token encrypted to a session public key.
type SealedToken struct {
	Ciphertext         []byte // GCM nonce followed by the sealed token
	EphemeralPublicKey []byte // one-time X25519 public key of the sender
}

// SealToken encrypts token to publicKey so that only the holder of the
// matching private key can read it. A fresh ephemeral key pair is used for
// every call.
func SealToken(token, publicKey string) (SealedToken, error) {
	recipient, err := x25519PublicKey(publicKey)
	if err != nil {
		return SealedToken{}, err
	}

	ephemeral := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ephemeral); err != nil {
		return SealedToken{}, fmt.Errorf("read ephemeral key: %w", err)
	}
	ephemeralPub, err := curve25519.X25519(ephemeral, curve25519.Basepoint)
	if err != nil {
		return SealedToken{}, fmt.Errorf("derive ephemeral key: %w", err)
	}
	shared, err := curve25519.X25519(ephemeral, recipient)
	if err != nil {
		// Low order points produce an all-zero secret.
		return SealedToken{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	aead, err := sealCipher(shared)
	if err != nil {
		return SealedToken{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return SealedToken{}, fmt.Errorf("read nonce: %w", err)
	}

	return SealedToken{
		Ciphertext:         aead.Seal(nonce, nonce, []byte(token), nil),
		EphemeralPublicKey: ephemeralPub,
	}, nil
}

// OpenToken decrypts a sealed token with the recipient's X25519 private key.
func OpenToken(privateKey []byte, sealed SealedToken) (string, error) {
	shared, err := curve25519.X25519(privateKey, sealed.EphemeralPublicKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}
	aead, err := sealCipher(shared)
	if err != nil {
		return "", err
	}
	if len(sealed.Ciphertext) < aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrInvalidChallenge)
	}

	nonce, box := sealed.Ciphertext[:aead.NonceSize()], sealed.Ciphertext[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}
	return string(plain), nil
}

// GenerateKeyPair returns a new X25519 private key and its public key in
// session form.
func GenerateKeyPair() ([]byte, string, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, "", fmt.Errorf("read private key: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, "", fmt.Errorf("derive public key: %w", err)
	}
	return priv, "05" + hex.EncodeToString(pub), nil
}

func x25519PublicKey(publicKey string) ([]byte, error) {
	if !ValidPublicKey(publicKey) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, publicKey)
	}
	key, err := hex.DecodeString(publicKey[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// sealCipher derives the AES-256-GCM cipher for a shared secret.
func sealCipher(shared []byte) (cipher.AEAD, error) {
	mac := hmac.New(sha256.New, sealKeyLabel)
	mac.Write(shared)

	block, err := aes.NewCipher(mac.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nil
}
