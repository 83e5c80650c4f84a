package tokens

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wabimail/wabimail-core/internal/crypto"
	"github.com/wabimail/wabimail-core/pkg/types"
)

const tokenFileSuffix = "_token.enc"

// FileStore keeps one sealed token file per account under a tokens/
// directory with its own key file. It exists so the credential
// subsystem can hold a token before an account row exists in the
// relational store.
type FileStore struct {
	dir    string
	cipher *crypto.Cipher
	logger *logrus.Logger
}

// NewFileStore initializes a file-based token store under
// baseDir/tokens, creating the directory and its encryption key on
// first use.
func NewFileStore(baseDir string, logger *logrus.Logger) (*FileStore, error) {
	dir := filepath.Join(baseDir, "tokens")

	key, err := crypto.LoadOrCreateKey(dir)
	if err != nil {
		return nil, err
	}
	cipher, err := crypto.NewCipher(key)
	if err != nil {
		return nil, err
	}

	logger.WithField("dir", dir).Debug("Token store initialized")
	return &FileStore{dir: dir, cipher: cipher, logger: logger}, nil
}

// Dir returns the directory token files are written to.
func (fs *FileStore) Dir() string {
	return fs.dir
}

func (fs *FileStore) tokenPath(accountID string) string {
	return filepath.Join(fs.dir, accountID+tokenFileSuffix)
}

// SaveToken seals and writes the token for an account, stamping the
// save time it expires from. An existing token is replaced wholesale.
func (fs *FileStore) SaveToken(accountID string, token *types.OAuth2Token) error {
	token.AccountID = accountID
	token.SavedAt = time.Now()

	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	sealed, err := fs.cipher.Seal(raw)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	if err := os.WriteFile(fs.tokenPath(accountID), []byte(sealed), 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	fs.logger.WithField("account_id", accountID).Info("Token saved")
	return nil
}

// LoadToken reads and unseals the token for an account. Returns
// (nil, nil) when no token file exists.
func (fs *FileStore) LoadToken(accountID string) (*types.OAuth2Token, error) {
	sealed, err := os.ReadFile(fs.tokenPath(accountID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	raw, err := fs.cipher.Open(string(sealed))
	if err != nil {
		return nil, err
	}

	var token types.OAuth2Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &token, nil
}

// DeleteToken removes the token file for an account. Returns false
// when there was none.
func (fs *FileStore) DeleteToken(accountID string) (bool, error) {
	err := os.Remove(fs.tokenPath(accountID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete token file: %w", err)
	}

	fs.logger.WithField("account_id", accountID).Info("Token deleted")
	return true, nil
}

// ListStoredTokens returns the account ids that have a stored token.
func (fs *FileStore) ListStoredTokens() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read token directory: %w", err)
	}

	var accountIDs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, tokenFileSuffix) {
			continue
		}
		accountIDs = append(accountIDs, strings.TrimSuffix(name, tokenFileSuffix))
	}
	return accountIDs, nil
}

// BackupTokens re-seals the whole token set as one blob and writes it
// to path.
func (fs *FileStore) BackupTokens(path string) error {
	accountIDs, err := fs.ListStoredTokens()
	if err != nil {
		return err
	}

	all := make(map[string]*types.OAuth2Token)
	for _, accountID := range accountIDs {
		token, err := fs.LoadToken(accountID)
		if err != nil {
			fs.logger.WithError(err).WithField("account_id", accountID).Warn("Skipping unreadable token in backup")
			continue
		}
		if token != nil {
			all[accountID] = token
		}
	}

	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to encode token backup: %w", err)
	}
	sealed, err := fs.cipher.Seal(raw)
	if err != nil {
		return fmt.Errorf("failed to encrypt token backup: %w", err)
	}

	if err := os.WriteFile(path, []byte(sealed), 0o600); err != nil {
		return fmt.Errorf("failed to write token backup: %w", err)
	}

	fs.logger.WithField("count", len(all)).Info("Tokens backed up")
	return nil
}

// RestoreTokens loads a backup blob written by BackupTokens and
// restores every token in it. Returns the number of tokens restored.
func (fs *FileStore) RestoreTokens(path string) (int, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read token backup: %w", err)
	}

	raw, err := fs.cipher.Open(string(sealed))
	if err != nil {
		return 0, err
	}

	var all map[string]*types.OAuth2Token
	if err := json.Unmarshal(raw, &all); err != nil {
		return 0, fmt.Errorf("failed to decode token backup: %w", err)
	}

	restored := 0
	for accountID, token := range all {
		if err := fs.SaveToken(accountID, token); err != nil {
			fs.logger.WithError(err).WithField("account_id", accountID).Warn("Failed to restore token")
			continue
		}
		restored++
	}

	fs.logger.WithField("count", restored).Info("Tokens restored")
	return restored, nil
}

// StorageInfo describes the token store state.
type StorageInfo struct {
	Directory         string   `json:"directory"`
	StoredAccounts    []string `json:"stored_accounts"`
	EncryptionEnabled bool     `json:"encryption_enabled"`
}

// GetStorageInfo returns the token store directory and the accounts
// with stored tokens.
func (fs *FileStore) GetStorageInfo() (*StorageInfo, error) {
	accountIDs, err := fs.ListStoredTokens()
	if err != nil {
		return nil, err
	}
	return &StorageInfo{
		Directory:         fs.dir,
		StoredAccounts:    accountIDs,
		EncryptionEnabled: true,
	}, nil
}
