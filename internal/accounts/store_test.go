package accounts

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wabimail/wabimail-core/internal/storage"
	"github.com/wabimail/wabimail-core/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	st, err := storage.Open(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return NewStore(st, logger)
}

func gmailAccount(name, email string) *types.Account {
	return types.NewAccount(name, email, types.AccountTypeGmail, types.AuthTypeOAuth2)
}

func TestSaveAndLoadAccount(t *testing.T) {
	store := newTestStore(t)

	account := gmailAccount("Personal", "user@gmail.com")
	account.Signature = "-- \n静けさ"
	account.Credentials = map[string]string{"app_password": "abcd efgh"}
	require.NoError(t, store.SaveAccount(account))

	loaded, err := store.LoadAccount(account.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "user@gmail.com", loaded.EmailAddress)
	assert.Equal(t, "user", loaded.DisplayName)
	assert.Equal(t, "-- \n静けさ", loaded.Signature)
	assert.Equal(t, "abcd efgh", loaded.Credentials["app_password"])
	assert.Equal(t, 993, loaded.Settings.IncomingPort)
	assert.True(t, loaded.IsActive)

	missing, err := store.LoadAccount("no-such-account")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveAccountValidation(t *testing.T) {
	store := newTestStore(t)

	cases := []struct {
		name    string
		mutate  func(*types.Account)
		message string
	}{
		{
			name:    "missing name",
			mutate:  func(a *types.Account) { a.Name = "" },
			message: "name is required",
		},
		{
			name:    "malformed email",
			mutate:  func(a *types.Account) { a.EmailAddress = "not-an-email" },
			message: "invalid email address",
		},
		{
			name: "imap without incoming server",
			mutate: func(a *types.Account) {
				a.AccountType = types.AccountTypeIMAP
				a.Settings.IncomingServer = ""
			},
			message: "incoming server is required",
		},
		{
			name:    "port out of range",
			mutate:  func(a *types.Account) { a.Settings.IncomingPort = 70000 },
			message: "incoming port",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			account := gmailAccount("Test", "user@example.com")
			tc.mutate(account)

			err := store.SaveAccount(account)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestDuplicateEmailIsValidationError(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveAccount(gmailAccount("First", "user@example.com")))

	err := store.SaveAccount(gmailAccount("Second", "User@Example.COM"))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "already registered")

	summaries, err := store.ListAccounts()
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestResaveOwnEmailAllowed(t *testing.T) {
	store := newTestStore(t)

	account := gmailAccount("Personal", "user@example.com")
	require.NoError(t, store.SaveAccount(account))

	account.Name = "Renamed"
	require.NoError(t, store.SaveAccount(account))

	loaded, err := store.LoadAccount(account.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Renamed", loaded.Name)
}

func TestUpdateAccountRequiresExisting(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateAccount(gmailAccount("Ghost", "ghost@example.com"))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "not found")

	account := gmailAccount("Real", "real@example.com")
	require.NoError(t, store.SaveAccount(account))
	account.Signature = "updated"
	require.NoError(t, store.UpdateAccount(account))
}

func TestLoadAccountByEmail(t *testing.T) {
	store := newTestStore(t)

	account := gmailAccount("Personal", "user@example.com")
	require.NoError(t, store.SaveAccount(account))

	loaded, err := store.LoadAccountByEmail("  USER@example.com  ")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, account.ID, loaded.ID)
}

func TestAccountFilters(t *testing.T) {
	store := newTestStore(t)

	imap := types.NewAccount("Work", "work@example.com", types.AccountTypeIMAP, types.AuthTypePassword)
	imap.Settings.IncomingServer = "imap.example.com"
	imap.Settings.OutgoingServer = "smtp.example.com"

	require.NoError(t, store.SaveAccount(gmailAccount("Personal", "user@gmail.com")))
	require.NoError(t, store.SaveAccount(imap))

	gmails, err := store.AccountsByType(types.AccountTypeGmail)
	require.NoError(t, err)
	require.Len(t, gmails, 1)
	assert.Equal(t, "user@gmail.com", gmails[0].EmailAddress)

	passworded, err := store.AccountsByAuthType(types.AuthTypePassword)
	require.NoError(t, err)
	require.Len(t, passworded, 1)
	assert.Equal(t, "work@example.com", passworded[0].EmailAddress)
}

func TestDeleteAccount(t *testing.T) {
	store := newTestStore(t)

	account := gmailAccount("Personal", "user@example.com")
	require.NoError(t, store.SaveAccount(account))

	deleted, err := store.DeleteAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	loaded, err := store.LoadAccount(account.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	deleted, err = store.DeleteAccount(account.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
