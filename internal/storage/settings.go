package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SettingDefaults enumerates the recognized setting keys and their
// default values. The external contract stays a flat dot-path string
// key, but the set of keys the application reads is declared up front.
var SettingDefaults = map[string]any{
	"ui.theme":                    "wabi",
	"ui.language":                 "ja",
	"mail.check_interval_minutes": 15,
	"mail.cache_retention_days":   30,
	"compose.signature_enabled":   true,
}

// SaveAppSetting upserts a setting value under a dot-path key. The
// value is sealed; there is no delete beyond overwrite.
func (s *SecureStorage) SaveAppSetting(key string, value any) error {
	sealed, err := s.EncryptData(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt setting %q: %w", key, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO app_settings (key, encrypted_payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			encrypted_payload = excluded.encrypted_payload,
			updated_at = excluded.updated_at
	`, key, sealed, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save setting %q: %w", key, err)
	}

	return nil
}

// LoadAppSetting decrypts the setting stored under key into out.
// Returns found == false, with out untouched, when the key has never
// been saved; the caller keeps its default in that case.
func (s *SecureStorage) LoadAppSetting(key string, out any) (bool, error) {
	var sealed string
	err := s.db.QueryRow("SELECT encrypted_payload FROM app_settings WHERE key = ?", key).Scan(&sealed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load setting %q: %w", key, err)
	}

	if err := s.DecryptData(sealed, out); err != nil {
		return false, err
	}
	return true, nil
}
