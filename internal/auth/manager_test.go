package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wabimail/wabimail-core/internal/tokens"
	"github.com/wabimail/wabimail-core/pkg/types"
)

// fakeRefresher scripts the outcome of the next refresh call.
type fakeRefresher struct {
	calls  int
	result *types.OAuth2Token
	err    error
}

func (f *fakeRefresher) Refresh(token *types.OAuth2Token) (*types.OAuth2Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestManager(t *testing.T, refresher Refresher) (*Manager, *tokens.FileStore) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store, err := tokens.NewFileStore(t.TempDir(), logger)
	require.NoError(t, err)

	return NewManager(store, refresher, logger), store
}

func validToken() *types.OAuth2Token {
	return &types.OAuth2Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresIn:    3600,
		SavedAt:      time.Now(),
	}
}

// expiredToken backdates the last refresh so the token reads as expired
// even though saving re-stamps SavedAt.
func expiredToken() *types.OAuth2Token {
	refreshed := time.Now().Add(-2 * time.Hour)
	return &types.OAuth2Token{
		AccessToken:  "stale-access",
		RefreshToken: "refresh",
		ExpiresIn:    3600,
		RefreshedAt:  &refreshed,
	}
}

func TestGetCredentialsNoCredential(t *testing.T) {
	m, _ := newTestManager(t, nil)

	token, err := m.GetCredentials("acct-1")
	require.NoError(t, err)
	assert.Nil(t, token)
	assert.Equal(t, StateNoCredential, m.State("acct-1"))
	assert.False(t, m.IsAuthenticated("acct-1"))
}

func TestGetCredentialsValidPassthrough(t *testing.T) {
	refresher := &fakeRefresher{}
	m, store := newTestManager(t, refresher)
	require.NoError(t, store.SaveToken("acct-1", validToken()))

	token, err := m.GetCredentials("acct-1")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "access", token.AccessToken)
	assert.Equal(t, StateValid, m.State("acct-1"))
	assert.Zero(t, refresher.calls)
}

func TestRefreshSuccessPersistsAndValidates(t *testing.T) {
	refreshedAt := time.Now()
	refresher := &fakeRefresher{result: &types.OAuth2Token{
		AccessToken:  "fresh-access",
		RefreshToken: "refresh",
		ExpiresIn:    3600,
		SavedAt:      time.Now().Add(-2 * time.Hour),
		RefreshedAt:  &refreshedAt,
	}}
	m, store := newTestManager(t, refresher)
	require.NoError(t, store.SaveToken("acct-1", expiredToken()))

	token, err := m.GetCredentials("acct-1")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "fresh-access", token.AccessToken)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, StateValid, m.State("acct-1"))

	// The replacement was persisted.
	stored, err := store.LoadToken("acct-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "fresh-access", stored.AccessToken)

	// A second call serves the cached credential without another refresh.
	_, err = m.GetCredentials("acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, refresher.calls)
}

func TestRefreshPreservesRefreshToken(t *testing.T) {
	// Some authorities omit the refresh token from the refresh response.
	refreshedAt := time.Now()
	refresher := &fakeRefresher{result: &types.OAuth2Token{
		AccessToken: "fresh-access",
		ExpiresIn:   3600,
		RefreshedAt: &refreshedAt,
	}}
	m, store := newTestManager(t, refresher)
	require.NoError(t, store.SaveToken("acct-1", expiredToken()))

	token, err := m.GetCredentials("acct-1")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "refresh", token.RefreshToken)
}

func TestTransientRefreshFailureKeepsToken(t *testing.T) {
	refresher := &fakeRefresher{err: &RefreshError{Err: errors.New("connection timed out")}}
	m, store := newTestManager(t, refresher)
	require.NoError(t, store.SaveToken("acct-1", expiredToken()))

	token, err := m.GetCredentials("acct-1")
	require.NoError(t, err)
	assert.Nil(t, token)
	assert.Equal(t, StateExpired, m.State("acct-1"))

	// The stored credential survives for a later retry.
	stored, err := store.LoadToken("acct-1")
	require.NoError(t, err)
	assert.NotNil(t, stored)

	// A retry after connectivity returns succeeds.
	refresher.err = nil
	refresher.result = validToken()
	token, err = m.GetCredentials("acct-1")
	require.NoError(t, err)
	assert.NotNil(t, token)
	assert.Equal(t, StateValid, m.State("acct-1"))
}

func TestPermanentRefreshFailureRevokes(t *testing.T) {
	refresher := &fakeRefresher{err: &RefreshError{
		Permanent: true,
		Err:       errors.New("invalid_grant"),
	}}
	m, store := newTestManager(t, refresher)
	require.NoError(t, store.SaveToken("acct-1", expiredToken()))

	token, err := m.GetCredentials("acct-1")
	assert.Nil(t, token)
	require.ErrorIs(t, err, ErrCredentialRevoked)
	assert.Equal(t, StateRevoked, m.State("acct-1"))

	// The rejected credential was deleted; re-authentication is required.
	stored, err := store.LoadToken("acct-1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestExpiredWithoutRefreshToken(t *testing.T) {
	refresher := &fakeRefresher{}
	m, store := newTestManager(t, refresher)

	token := expiredToken()
	token.RefreshToken = ""
	require.NoError(t, store.SaveToken("acct-1", token))

	got, err := m.GetCredentials("acct-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, StateExpired, m.State("acct-1"))
	assert.Zero(t, refresher.calls)
}

func TestRevokeCredentials(t *testing.T) {
	m, store := newTestManager(t, nil)
	require.NoError(t, store.SaveToken("acct-1", validToken()))

	// Warm the cache.
	token, err := m.GetCredentials("acct-1")
	require.NoError(t, err)
	require.NotNil(t, token)

	require.NoError(t, m.RevokeCredentials("acct-1"))
	assert.Equal(t, StateRevoked, m.State("acct-1"))

	stored, err := store.LoadToken("acct-1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestAuthenticationInfo(t *testing.T) {
	m, store := newTestManager(t, nil)

	info, err := m.AuthenticationInfo("acct-1")
	require.NoError(t, err)
	assert.False(t, info.HasStoredToken)
	assert.False(t, info.IsAuthenticated)

	token := validToken()
	token.Scopes = []string{"https://mail.example.com/"}
	require.NoError(t, store.SaveToken("acct-1", token))

	info, err = m.AuthenticationInfo("acct-1")
	require.NoError(t, err)
	assert.True(t, info.HasStoredToken)
	assert.True(t, info.HasRefreshToken)
	assert.True(t, info.IsAuthenticated)
	assert.Equal(t, []string{"https://mail.example.com/"}, info.Scopes)
}
