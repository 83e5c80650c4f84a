package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wabimail/wabimail-core/pkg/types"
)

// MailCacheRecord is one row of the mail_cache table. The message
// content is sealed in EncryptedPayload; account, folder, uid, flags
// and timestamps stay plaintext so listing never decrypts.
type MailCacheRecord struct {
	AccountID        string
	Folder           string
	UID              string
	EncryptedPayload string
	Flags            []types.MessageFlag
	DateReceived     time.Time
	CachedAt         time.Time
}

// UpsertMailCache inserts or overwrites the row identified by
// (account, folder, uid), sealing payload into the encrypted column.
// Re-caching the same message is idempotent; the latest payload wins.
func (s *SecureStorage) UpsertMailCache(rec *MailCacheRecord, payload any) error {
	sealed, err := s.EncryptData(payload)
	if err != nil {
		return fmt.Errorf("failed to encrypt message payload: %w", err)
	}

	flagsJSON, err := json.Marshal(rec.Flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}

	if rec.CachedAt.IsZero() {
		rec.CachedAt = time.Now()
	}

	// NUL-joined so folder or uid values containing the separator of a
	// printable join cannot collide with a different tuple.
	rowID := rec.AccountID + "\x00" + rec.Folder + "\x00" + rec.UID
	_, err = s.db.Exec(`
		INSERT INTO mail_cache (id, account_id, folder, uid, encrypted_payload, flags, date_received, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, folder, uid) DO UPDATE SET
			encrypted_payload = excluded.encrypted_payload,
			flags = excluded.flags,
			date_received = excluded.date_received,
			cached_at = excluded.cached_at
	`, rowID, rec.AccountID, rec.Folder, rec.UID, sealed, string(flagsJSON), fmtTime(rec.DateReceived), fmtTime(rec.CachedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert cached message: %w", err)
	}

	return nil
}

// GetMailCache retrieves one cached row. Returns (nil, nil) when the
// row does not exist.
func (s *SecureStorage) GetMailCache(accountID, folder, uid string) (*MailCacheRecord, error) {
	row := s.db.QueryRow(`
		SELECT account_id, folder, uid, encrypted_payload, flags, date_received, cached_at
		FROM mail_cache WHERE account_id = ? AND folder = ? AND uid = ?
	`, accountID, folder, uid)

	rec, err := scanMailCache(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cached message: %w", err)
	}
	return rec, nil
}

// ListMailCache returns cached rows for an account, newest received
// first. An empty folder selects all folders. limit <= 0 means no
// limit.
func (s *SecureStorage) ListMailCache(accountID, folder string, limit, offset int) ([]MailCacheRecord, error) {
	query := `
		SELECT account_id, folder, uid, encrypted_payload, flags, date_received, cached_at
		FROM mail_cache WHERE account_id = ?
	`
	args := []any{accountID}

	if folder != "" {
		query += " AND folder = ?"
		args = append(args, folder)
	}
	query += " ORDER BY date_received DESC"
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached messages: %w", err)
	}
	defer rows.Close()

	var records []MailCacheRecord
	for rows.Next() {
		rec, err := scanMailCache(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cached message: %w", err)
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

// DeleteMailCache removes one cached message. Returns false when the
// row did not exist.
func (s *SecureStorage) DeleteMailCache(accountID, folder, uid string) (bool, error) {
	result, err := s.db.Exec(
		"DELETE FROM mail_cache WHERE account_id = ? AND folder = ? AND uid = ?",
		accountID, folder, uid,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete cached message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// DeleteFolderCache removes every cached message in one folder and
// returns the number of rows removed.
func (s *SecureStorage) DeleteFolderCache(accountID, folder string) (int64, error) {
	result, err := s.db.Exec(
		"DELETE FROM mail_cache WHERE account_id = ? AND folder = ?", accountID, folder,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete folder cache: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAccountCache removes every cached message for an account and
// returns the number of rows removed.
func (s *SecureStorage) DeleteAccountCache(accountID string) (int64, error) {
	result, err := s.db.Exec("DELETE FROM mail_cache WHERE account_id = ?", accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete account cache: %w", err)
	}
	return result.RowsAffected()
}

// CleanupMailCache removes rows cached before cutoff. Age is measured
// from cache-insertion time, not receipt time, so a resynced old
// message is not evicted prematurely.
func (s *SecureStorage) CleanupMailCache(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM mail_cache WHERE cached_at < ?", fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up mail cache: %w", err)
	}
	return result.RowsAffected()
}

func scanMailCache(scan func(dest ...any) error) (*MailCacheRecord, error) {
	var (
		rec          MailCacheRecord
		flagsJSON    sql.NullString
		dateReceived sql.NullString
		cachedAt     sql.NullString
	)
	err := scan(&rec.AccountID, &rec.Folder, &rec.UID, &rec.EncryptedPayload, &flagsJSON, &dateReceived, &cachedAt)
	if err != nil {
		return nil, err
	}

	if flagsJSON.Valid && flagsJSON.String != "" {
		if err := json.Unmarshal([]byte(flagsJSON.String), &rec.Flags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal flags: %w", err)
		}
	}
	if dateReceived.Valid {
		if rec.DateReceived, err = parseTime(dateReceived.String); err != nil {
			return nil, err
		}
	}
	if cachedAt.Valid {
		if rec.CachedAt, err = parseTime(cachedAt.String); err != nil {
			return nil, err
		}
	}

	return &rec, nil
}
