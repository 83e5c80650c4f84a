package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wabimail/wabimail-core/internal/tokens"
	"github.com/wabimail/wabimail-core/pkg/types"
)

// CredentialState is the lifecycle state of an account's stored
// credential.
type CredentialState string

const (
	StateNoCredential CredentialState = "no_credential"
	StateValid        CredentialState = "valid"
	StateExpired      CredentialState = "expired"
	StateRefreshing   CredentialState = "refreshing"
	StateRevoked      CredentialState = "revoked"
)

// ErrCredentialRevoked indicates the remote authority rejected the
// refresh token itself. The stored credential is gone and the caller
// must re-authenticate instead of retrying.
var ErrCredentialRevoked = errors.New("credential revoked, re-authentication required")

// RefreshError is returned by a Refresher. Permanent marks a rejection
// of the refresh token itself, as opposed to a transient network
// failure that may succeed on retry.
type RefreshError struct {
	Permanent bool
	Err       error
}

func (e *RefreshError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("refresh rejected: %v", e.Err)
	}
	return fmt.Sprintf("refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Refresher exchanges a refresh token for fresh credential material.
// The network round-trip to the authority lives outside this core;
// implementations are handed the full stored token and return the
// replacement.
type Refresher interface {
	Refresh(token *types.OAuth2Token) (*types.OAuth2Token, error)
}

// TokenStore is the persistence the manager drives. Satisfied by
// tokens.FileStore.
type TokenStore interface {
	SaveToken(accountID string, token *types.OAuth2Token) error
	LoadToken(accountID string) (*types.OAuth2Token, error)
	DeleteToken(accountID string) (bool, error)
}

// Manager decides whether a stored credential is usable, drives
// refresh when it expired, and evicts it when refresh is rejected for
// good. Decrypted credentials are cached in an owned per-instance map
// so repeated calls do not re-read and re-decrypt token files; the
// cache is invalidated on refresh and revoke.
type Manager struct {
	store     TokenStore
	refresher Refresher
	logger    *logrus.Logger

	mu     sync.Mutex
	cache  map[string]*types.OAuth2Token
	states map[string]CredentialState
}

// NewManager creates a credential lifecycle manager. refresher may be
// nil, in which case expired credentials are reported as expired
// without a refresh attempt.
func NewManager(store TokenStore, refresher Refresher, logger *logrus.Logger) *Manager {
	return &Manager{
		store:     store,
		refresher: refresher,
		logger:    logger,
		cache:     make(map[string]*types.OAuth2Token),
		states:    make(map[string]CredentialState),
	}
}

// GetCredentials returns a usable credential for the account,
// refreshing it first when expired. Returns (nil, nil) when no
// credential is stored or an expired one cannot be refreshed right
// now; returns ErrCredentialRevoked when the refresh token was
// permanently rejected.
func (m *Manager) GetCredentials(accountID string) (*types.OAuth2Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.cache[accountID]
	if !ok {
		var err error
		token, err = m.store.LoadToken(accountID)
		if err != nil {
			return nil, err
		}
		if token == nil {
			m.states[accountID] = StateNoCredential
			return nil, nil
		}
		m.cache[accountID] = token
	}

	if !tokens.IsTokenExpired(token) {
		m.states[accountID] = StateValid
		return token, nil
	}

	m.states[accountID] = StateExpired
	if token.RefreshToken == "" {
		m.logger.WithField("account_id", accountID).Warn("Credential expired without refresh token")
		return nil, nil
	}
	if m.refresher == nil {
		return nil, nil
	}

	return m.refreshLocked(accountID, token)
}

// refreshLocked runs a refresh attempt for an expired credential.
// Callers hold m.mu.
func (m *Manager) refreshLocked(accountID string, token *types.OAuth2Token) (*types.OAuth2Token, error) {
	m.states[accountID] = StateRefreshing
	m.logger.WithField("account_id", accountID).Info("Refreshing credential")

	refreshed, err := m.refresher.Refresh(token)
	if err != nil {
		var re *RefreshError
		if errors.As(err, &re) && re.Permanent {
			// The authority rejected the refresh token itself; the
			// stored credential will never work again.
			m.revokeLocked(accountID)
			return nil, fmt.Errorf("%w: %v", ErrCredentialRevoked, err)
		}

		// Transient failure: keep the expired credential so a later
		// retry can still succeed.
		m.states[accountID] = StateExpired
		m.logger.WithError(err).WithField("account_id", accountID).Warn("Credential refresh failed, will retry later")
		return nil, nil
	}

	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if err := m.store.SaveToken(accountID, refreshed); err != nil {
		m.states[accountID] = StateExpired
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	m.cache[accountID] = refreshed
	m.states[accountID] = StateValid
	m.logger.WithField("account_id", accountID).Info("Credential refreshed")
	return refreshed, nil
}

// RevokeCredentials drops the cached and stored credential for an
// account, forcing re-authentication.
func (m *Manager) RevokeCredentials(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeLocked(accountID)
}

func (m *Manager) revokeLocked(accountID string) error {
	delete(m.cache, accountID)
	m.states[accountID] = StateRevoked

	if _, err := m.store.DeleteToken(accountID); err != nil {
		return fmt.Errorf("failed to delete revoked credential: %w", err)
	}
	m.logger.WithField("account_id", accountID).Info("Credential revoked")
	return nil
}

// IsAuthenticated reports whether the account currently has a usable
// credential, refreshing if necessary.
func (m *Manager) IsAuthenticated(accountID string) bool {
	token, err := m.GetCredentials(accountID)
	return err == nil && token != nil
}

// State returns the last observed lifecycle state for an account.
func (m *Manager) State(accountID string) CredentialState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.states[accountID]; ok {
		return state
	}
	return StateNoCredential
}

// AuthenticationInfo summarizes an account's credential status for
// diagnostics. Secrets are not included.
type AuthenticationInfo struct {
	AccountID       string          `json:"account_id"`
	State           CredentialState `json:"state"`
	IsAuthenticated bool            `json:"is_authenticated"`
	HasStoredToken  bool            `json:"has_stored_token"`
	HasRefreshToken bool            `json:"has_refresh_token"`
	Scopes          []string        `json:"scopes,omitempty"`
}

// AuthenticationInfo inspects the stored credential without triggering
// a refresh.
func (m *Manager) AuthenticationInfo(accountID string) (*AuthenticationInfo, error) {
	token, err := m.store.LoadToken(accountID)
	if err != nil {
		return nil, err
	}

	info := &AuthenticationInfo{
		AccountID: accountID,
		State:     m.State(accountID),
	}
	if token != nil {
		info.HasStoredToken = true
		info.HasRefreshToken = token.RefreshToken != ""
		info.Scopes = token.Scopes
		info.IsAuthenticated = !tokens.IsTokenExpired(token)
	}
	return info, nil
}
