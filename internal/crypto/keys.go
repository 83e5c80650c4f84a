package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeyFileName is the name of the key file inside a storage directory.
const KeyFileName = ".encryption_key"

// ErrKeyUnavailable indicates the encryption key is missing or corrupt.
// Nothing in the store can be decrypted without it, so callers should
// treat this as fatal for the whole subsystem.
var ErrKeyUnavailable = errors.New("encryption key unavailable")

// LoadOrCreateKey reads the installation key from dir, generating and
// persisting a fresh one on first run. The key file is written with
// owner-only permissions where the platform supports them.
func LoadOrCreateKey(dir string) ([]byte, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	keyPath := filepath.Join(dir, KeyFileName)

	key, err := os.ReadFile(keyPath)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("%w: key file %s has invalid length %d", ErrKeyUnavailable, keyPath, len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	return key, nil
}
