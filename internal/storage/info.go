package storage

import (
	"fmt"
	"io"
	"os"
)

// StorageInfo describes the state of a storage directory.
type StorageInfo struct {
	StorageDir        string `json:"storage_dir"`
	DatabasePath      string `json:"database_path"`
	DatabaseSizeBytes int64  `json:"database_size_bytes"`
	AccountsCount     int    `json:"accounts_count"`
	TokensCount       int    `json:"tokens_count"`
	SettingsCount     int    `json:"settings_count"`
	MailCacheCount    int    `json:"mail_cache_count"`
	EncryptionEnabled bool   `json:"encryption_enabled"`
}

// GetStorageInfo returns paths, per-table row counts, and the database
// file size.
func (s *SecureStorage) GetStorageInfo() (*StorageInfo, error) {
	info := &StorageInfo{
		StorageDir:        s.dir,
		DatabasePath:      s.dbPath,
		EncryptionEnabled: true,
	}

	counts := []struct {
		table string
		dest  *int
	}{
		{"accounts", &info.AccountsCount},
		{"oauth2_tokens", &info.TokensCount},
		{"app_settings", &info.SettingsCount},
		{"mail_cache", &info.MailCacheCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	if stat, err := os.Stat(s.dbPath); err == nil {
		info.DatabaseSizeBytes = stat.Size()
	}

	return info, nil
}

// BackupData byte-copies the whole database file to path. All
// sensitive content inside is already encrypted, so the copy is safe
// to move off-device; it stays useless without the separately held
// key file.
func (s *SecureStorage) BackupData(path string) error {
	src, err := os.Open(s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}

	s.logger.WithField("path", path).Info("Database backed up")
	return nil
}
