package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinSecretLength guards against weak vault secrets.
	MinSecretLength = 32

	keyDerivationIterations = 150_000
	derivedKeyLength        = 32
)

// keyDerivationSalt is fixed so every process derives the same key from the
// configured secret; per-message uniqueness comes from the GCM nonce.
var keyDerivationSalt = []byte("crmsync.token.vault.v1")

// Cipher encrypts token payloads with AES-256-GCM under a key derived from
// the configured secret via PBKDF2-SHA256.
type Cipher struct {
	key []byte
}

func NewCipher(secret string) (*Cipher, error) {
	trimmed := strings.TrimSpace(secret)
	if len(trimmed) < MinSecretLength {
		return nil, fmt.Errorf("security: vault secret must be at least %d characters", MinSecretLength)
	}
	key := pbkdf2.Key([]byte(trimmed), keyDerivationSalt, keyDerivationIterations, derivedKeyLength, sha256.New)
	return &Cipher{key: key}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns
// base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	if c == nil || len(c.key) == 0 {
		return "", fmt.Errorf("security: cipher is not configured")
	}
	if len(plaintext) == 0 {
		return "", fmt.Errorf("security: plaintext is required")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("security: create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// Decrypt reverses Encrypt. Any tampering, truncation, or key mismatch
// surfaces as an error; callers decide how fatal that is.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	if c == nil || len(c.key) == 0 {
		return nil, fmt.Errorf("security: cipher is not configured")
	}
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, fmt.Errorf("security: ciphertext is required")
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	if len(raw) <= gcm.NonceSize() {
		return nil, fmt.Errorf("security: ciphertext is truncated")
	}

	nonce := raw[:gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, raw[gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}
