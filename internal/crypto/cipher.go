package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// tokenVersion is the first byte of every sealed token. Bumped if the
// token layout ever changes.
const tokenVersion byte = 0x01

// ErrDecryptionFailed indicates a sealed token failed integrity
// verification or was produced under a different key. The affected row
// is unusable; callers must surface the failure rather than substitute
// default data.
var ErrDecryptionFailed = errors.New("decryption failed")

// Cipher seals arbitrary byte payloads into opaque printable tokens
// using XChaCha20-Poly1305 under the installation key. Tokens are
// self-contained and tamper-evident, safe to store in a text column.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a cipher from a raw 32-byte key, typically the one
// returned by LoadOrCreateKey.
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext into a sealed token:
// base64url(version || nonce || ciphertext).
func (c *Cipher) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	buf := make([]byte, 0, 1+len(nonce)+len(plaintext)+c.aead.Overhead())
	buf = append(buf, tokenVersion)
	buf = append(buf, nonce...)
	buf = c.aead.Seal(buf, nonce, plaintext, nil)

	return base64.URLEncoding.EncodeToString(buf), nil
}

// Open decrypts a sealed token produced by Seal. Any tampering, a
// wrong key, or an unknown version yields ErrDecryptionFailed.
func (c *Cipher) Open(token string) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed token encoding", ErrDecryptionFailed)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < 1+nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: token too short", ErrDecryptionFailed)
	}
	if raw[0] != tokenVersion {
		return nil, fmt.Errorf("%w: unsupported token version %#x", ErrDecryptionFailed, raw[0])
	}

	nonce := raw[1 : 1+nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, raw[1+nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: integrity check failed", ErrDecryptionFailed)
	}

	return plaintext, nil
}
