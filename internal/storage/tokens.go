package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/wabimail/wabimail-core/internal/tokens"
	"github.com/wabimail/wabimail-core/pkg/types"
)

// SaveOAuth2Token upserts the single live token for an account. The
// token payload is sealed; only the computed absolute expiry is stored
// in plaintext for inspection.
func (s *SecureStorage) SaveOAuth2Token(accountID string, token *types.OAuth2Token) error {
	token.AccountID = accountID
	if token.SavedAt.IsZero() {
		token.SavedAt = time.Now()
	}

	sealed, err := s.EncryptData(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	now := fmtTime(time.Now())
	_, err = s.db.Exec(`
		INSERT INTO oauth2_tokens (account_id, encrypted_payload, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			encrypted_payload = excluded.encrypted_payload,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, accountID, sealed, fmtTime(token.ExpiresAt()), now, now)
	if err != nil {
		return fmt.Errorf("failed to save OAuth2 token: %w", err)
	}

	s.logger.WithField("account_id", accountID).Debug("OAuth2 token saved")
	return nil
}

// LoadOAuth2Token retrieves the stored token for an account. Returns
// (nil, nil) when no token exists, and also when the stored token is
// already past its expiry margin — the credential lifecycle manager is
// the primary expiry enforcer, this check is defensive and shares its
// margin constant.
func (s *SecureStorage) LoadOAuth2Token(accountID string) (*types.OAuth2Token, error) {
	var sealed string
	err := s.db.QueryRow(
		"SELECT encrypted_payload FROM oauth2_tokens WHERE account_id = ?", accountID,
	).Scan(&sealed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth2 token: %w", err)
	}

	var token types.OAuth2Token
	if err := s.DecryptData(sealed, &token); err != nil {
		return nil, err
	}

	if tokens.IsTokenExpired(&token) {
		s.logger.WithField("account_id", accountID).Warn("Stored OAuth2 token is expired")
		return nil, nil
	}

	return &token, nil
}

// DeleteOAuth2Token removes the stored token for an account. Returns
// false when there was none.
func (s *SecureStorage) DeleteOAuth2Token(accountID string) (bool, error) {
	result, err := s.db.Exec("DELETE FROM oauth2_tokens WHERE account_id = ?", accountID)
	if err != nil {
		return false, fmt.Errorf("failed to delete OAuth2 token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}
