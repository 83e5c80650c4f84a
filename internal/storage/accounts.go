package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wabimail/wabimail-core/pkg/types"
)

// ErrDuplicateEmail indicates a save would violate the unique-email
// invariant. Reported as a caller-visible failure rather than a raw
// database error so the UI can show an actionable message.
var ErrDuplicateEmail = errors.New("email address already registered")

// AccountRecord is one row of the accounts table. EncryptedPayload
// holds the sealed sensitive part of the account (server settings,
// credentials, display name, signature); the remaining columns are
// plaintext so listing and email lookup never decrypt.
type AccountRecord struct {
	ID               string
	Name             string
	EmailAddress     string
	AccountType      types.AccountType
	AuthType         types.AuthType
	EncryptedPayload string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SaveAccount upserts an account row, sealing payload into the
// encrypted column. A save that collides with another account's email
// returns ErrDuplicateEmail.
func (s *SecureStorage) SaveAccount(rec *AccountRecord, payload any) error {
	sealed, err := s.EncryptData(payload)
	if err != nil {
		return fmt.Errorf("failed to encrypt account payload: %w", err)
	}

	now := fmtTime(time.Now())
	_, err = s.db.Exec(`
		INSERT INTO accounts (id, name, email, account_type, auth_type, encrypted_payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			account_type = excluded.account_type,
			auth_type = excluded.auth_type,
			encrypted_payload = excluded.encrypted_payload,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Name, rec.EmailAddress, string(rec.AccountType), string(rec.AuthType), sealed, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "accounts.email") {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, rec.EmailAddress)
		}
		return fmt.Errorf("failed to save account: %w", err)
	}

	s.logger.WithField("account_id", rec.ID).Debug("Account saved")
	return nil
}

// LoadAccount retrieves an account row by id. Returns (nil, nil) when
// the account does not exist.
func (s *SecureStorage) LoadAccount(accountID string) (*AccountRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, name, email, account_type, auth_type, encrypted_payload, created_at, updated_at
		FROM accounts WHERE id = ?
	`, accountID)

	rec, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return rec, nil
}

// FindAccountByEmail retrieves an account row by email address,
// case-insensitively. Returns (nil, nil) when no account matches.
func (s *SecureStorage) FindAccountByEmail(email string) (*AccountRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, name, email, account_type, auth_type, encrypted_payload, created_at, updated_at
		FROM accounts WHERE email = ?
	`, email)

	rec, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return rec, nil
}

// ListAccounts returns the plaintext summary of every account, oldest
// first. No payloads are decrypted.
func (s *SecureStorage) ListAccounts() ([]types.AccountSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, name, email, account_type, auth_type, created_at, updated_at
		FROM accounts ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var summaries []types.AccountSummary
	for rows.Next() {
		var (
			sum                   types.AccountSummary
			accountType, authType string
			createdAt, updatedAt  string
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.EmailAddress, &accountType, &authType, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		sum.AccountType = types.AccountType(accountType)
		sum.AuthType = types.AuthType(authType)
		if sum.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if sum.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

// DeleteAccount removes an account together with its OAuth2 token and
// cached mail, in one transaction. Returns false when the account did
// not exist.
func (s *SecureStorage) DeleteAccount(accountID string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM oauth2_tokens WHERE account_id = ?", accountID); err != nil {
		return false, fmt.Errorf("failed to delete account tokens: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM mail_cache WHERE account_id = ?", accountID); err != nil {
		return false, fmt.Errorf("failed to delete account mail cache: %w", err)
	}
	result, err := tx.Exec("DELETE FROM accounts WHERE id = ?", accountID)
	if err != nil {
		return false, fmt.Errorf("failed to delete account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit account delete: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		s.logger.WithField("account_id", accountID).Warn("Account to delete not found")
		return false, nil
	}

	s.logger.WithField("account_id", accountID).Info("Account deleted")
	return true, nil
}

func scanAccount(row *sql.Row) (*AccountRecord, error) {
	var (
		rec                   AccountRecord
		accountType, authType string
		createdAt, updatedAt  string
	)
	err := row.Scan(&rec.ID, &rec.Name, &rec.EmailAddress, &accountType, &authType, &rec.EncryptedPayload, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.AccountType = types.AccountType(accountType)
	rec.AuthType = types.AuthType(authType)
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
