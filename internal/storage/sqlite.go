package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/wabimail/wabimail-core/internal/crypto"
)

// DatabaseFileName is the name of the database file inside a storage
// directory.
const DatabaseFileName = "wabimail_data.db"

// timeLayout is the column format for all timestamps this store writes
// itself. UTC RFC 3339 strings compare correctly as text, which the
// retention sweep and newest-first ordering rely on.
const timeLayout = time.RFC3339

// SecureStorage owns the encrypted relational store for one storage
// directory: the database connection, the installation key, and the
// cipher. Higher-level stores borrow this instance rather than opening
// their own.
type SecureStorage struct {
	dir    string
	dbPath string
	db     *sql.DB
	cipher *crypto.Cipher
	logger *logrus.Logger
}

// Open initializes a secure storage instance rooted at dir: loads or
// creates the encryption key, opens the database, and bootstraps the
// schema. The database file is exclusively owned by the returned
// instance; a second process opening the same directory is unsupported
// and surfaces as a busy/locked error.
func Open(dir string, logger *logrus.Logger) (*SecureStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	key, err := crypto.LoadOrCreateKey(dir)
	if err != nil {
		return nil, err
	}
	cipher, err := crypto.NewCipher(key)
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, DatabaseFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// All table operations are serialized through one connection; the
	// database's own transaction semantics then provide per-statement
	// atomicity without extra locking.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.WithField("dir", dir).Info("Secure storage initialized")

	return &SecureStorage{
		dir:    dir,
		dbPath: dbPath,
		db:     db,
		cipher: cipher,
		logger: logger,
	}, nil
}

// Close releases the database handle. Safe to call more than once and
// after a partial failure, so the directory can be backed up or
// deleted afterwards.
func (s *SecureStorage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.logger.Debug("Secure storage closed")
	return nil
}

// Dir returns the storage directory this instance is rooted at.
func (s *SecureStorage) Dir() string {
	return s.dir
}

// EncryptString seals a plain string as UTF-8 text.
func (s *SecureStorage) EncryptString(value string) (string, error) {
	return s.cipher.Seal([]byte(value))
}

// DecryptString opens a token sealed by EncryptString.
func (s *SecureStorage) DecryptString(token string) (string, error) {
	plaintext, err := s.cipher.Open(token)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptData seals a structured value using its canonical JSON
// encoding. Exposed so higher layers can encrypt arbitrary payloads
// under the same key without duplicating cipher logic.
func (s *SecureStorage) EncryptData(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return s.cipher.Seal(raw)
}

// DecryptData opens a token sealed by EncryptData and decodes it into
// out.
func (s *SecureStorage) DecryptData(token string, out any) error {
	raw, err := s.cipher.Open(token)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// fmtTime formats a timestamp for storage.
func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp, accepting both our own RFC 3339
// format and SQLite's CURRENT_TIMESTAMP layout.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
