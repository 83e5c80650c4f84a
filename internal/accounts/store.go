package accounts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wabimail/wabimail-core/internal/crypto"
	"github.com/wabimail/wabimail-core/internal/storage"
	"github.com/wabimail/wabimail-core/pkg/types"
)

// ValidationError reports caller-supplied account data that violates a
// domain invariant. It is an expected condition the UI shows verbatim,
// never a crash.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// accountPayload is the sensitive part of an account row, sealed into
// the encrypted column.
type accountPayload struct {
	Settings    types.ServerSettings `json:"settings"`
	Credentials map[string]string    `json:"credentials,omitempty"`
	DisplayName string               `json:"display_name,omitempty"`
	Signature   string               `json:"signature,omitempty"`
	IsActive    bool                 `json:"is_active"`
	IsDefault   bool                 `json:"is_default"`
	SyncEnabled bool                 `json:"sync_enabled"`
}

// Store validates and maps the account domain object to and from its
// encrypted row representation.
type Store struct {
	storage *storage.SecureStorage
	logger  *logrus.Logger
}

// NewStore creates an account store on top of an open secure storage
// instance.
func NewStore(st *storage.SecureStorage, logger *logrus.Logger) *Store {
	return &Store{storage: st, logger: logger}
}

// SaveAccount validates and persists an account. A case-insensitive
// email collision with a different account id is rejected with a
// ValidationError before the row-level uniqueness constraint can turn
// it into a generic database error.
func (s *Store) SaveAccount(account *types.Account) error {
	if err := account.Validate(); err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	existing, err := s.storage.FindAccountByEmail(account.EmailAddress)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != account.ID {
		return &ValidationError{
			Reason: fmt.Sprintf("email address %q is already registered", account.EmailAddress),
		}
	}

	err = s.storage.SaveAccount(accountToRecord(account), accountToPayload(account))
	if errors.Is(err, storage.ErrDuplicateEmail) {
		return &ValidationError{
			Reason: fmt.Sprintf("email address %q is already registered", account.EmailAddress),
		}
	}
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"account_id": account.ID,
		"email":      account.EmailAddress,
	}).Info("Account saved")
	return nil
}

// UpdateAccount persists changes to an account that must already
// exist, distinguishing "modify" from "add" even though the underlying
// store upserts.
func (s *Store) UpdateAccount(account *types.Account) error {
	existing, err := s.storage.LoadAccount(account.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return &ValidationError{
			Reason: fmt.Sprintf("account %s not found", account.ID),
		}
	}
	return s.SaveAccount(account)
}

// LoadAccount retrieves the full account by id, decrypting its
// payload. Returns (nil, nil) when the account does not exist.
func (s *Store) LoadAccount(accountID string) (*types.Account, error) {
	rec, err := s.storage.LoadAccount(accountID)
	if err != nil || rec == nil {
		return nil, err
	}
	return s.recordToAccount(rec)
}

// LoadAccountByEmail retrieves the full account matching the email
// address, case-insensitively. Returns (nil, nil) when no account
// matches.
func (s *Store) LoadAccountByEmail(email string) (*types.Account, error) {
	rec, err := s.storage.FindAccountByEmail(strings.TrimSpace(email))
	if err != nil || rec == nil {
		return nil, err
	}
	return s.recordToAccount(rec)
}

// ListAccounts returns the plaintext summary of every account.
func (s *Store) ListAccounts() ([]types.AccountSummary, error) {
	return s.storage.ListAccounts()
}

// LoadAllAccounts loads and decrypts every account. A row whose
// payload fails decryption is skipped with a warning so one corrupted
// row does not hide the rest.
func (s *Store) LoadAllAccounts() ([]*types.Account, error) {
	summaries, err := s.storage.ListAccounts()
	if err != nil {
		return nil, err
	}

	accounts := make([]*types.Account, 0, len(summaries))
	for _, sum := range summaries {
		account, err := s.LoadAccount(sum.ID)
		if err != nil {
			if errors.Is(err, crypto.ErrDecryptionFailed) {
				s.logger.WithError(err).WithField("account_id", sum.ID).Warn("Skipping undecryptable account")
				continue
			}
			return nil, err
		}
		if account != nil {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

// DeleteAccount removes an account and, via the secure store, its
// token and cached mail. Returns false when the account did not exist.
func (s *Store) DeleteAccount(accountID string) (bool, error) {
	return s.storage.DeleteAccount(accountID)
}

// AccountsByType returns the accounts of one account kind. The filter
// runs in memory over a full load; account counts are small, unlike
// mail.
func (s *Store) AccountsByType(accountType types.AccountType) ([]*types.Account, error) {
	all, err := s.LoadAllAccounts()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Account
	for _, account := range all {
		if account.AccountType == accountType {
			filtered = append(filtered, account)
		}
	}
	return filtered, nil
}

// AccountsByAuthType returns the accounts using one authentication
// kind.
func (s *Store) AccountsByAuthType(authType types.AuthType) ([]*types.Account, error) {
	all, err := s.LoadAllAccounts()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Account
	for _, account := range all {
		if account.AuthType == authType {
			filtered = append(filtered, account)
		}
	}
	return filtered, nil
}

func accountToRecord(account *types.Account) *storage.AccountRecord {
	return &storage.AccountRecord{
		ID:           account.ID,
		Name:         account.Name,
		EmailAddress: account.EmailAddress,
		AccountType:  account.AccountType,
		AuthType:     account.AuthType,
	}
}

func accountToPayload(account *types.Account) *accountPayload {
	return &accountPayload{
		Settings:    account.Settings,
		Credentials: account.Credentials,
		DisplayName: account.DisplayName,
		Signature:   account.Signature,
		IsActive:    account.IsActive,
		IsDefault:   account.IsDefault,
		SyncEnabled: account.SyncEnabled,
	}
}

func (s *Store) recordToAccount(rec *storage.AccountRecord) (*types.Account, error) {
	var payload accountPayload
	if err := s.storage.DecryptData(rec.EncryptedPayload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decrypt account %s: %w", rec.ID, err)
	}

	return &types.Account{
		ID:           rec.ID,
		Name:         rec.Name,
		EmailAddress: rec.EmailAddress,
		AccountType:  rec.AccountType,
		AuthType:     rec.AuthType,
		Settings:     payload.Settings,
		Credentials:  payload.Credentials,
		DisplayName:  payload.DisplayName,
		Signature:    payload.Signature,
		IsActive:     payload.IsActive,
		IsDefault:    payload.IsDefault,
		SyncEnabled:  payload.SyncEnabled,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}, nil
}
