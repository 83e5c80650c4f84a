package mailcache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wabimail/wabimail-core/internal/crypto"
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

	store, err := NewStore(st, logger)
	require.NoError(t, err)
	return store
}

func testMessage(uid, subject string) *types.MailMessage {
	return &types.MailMessage{
		UID:        uid,
		Subject:    subject,
		Sender:     "sender@example.com",
		Recipients: []string{"user@example.com"},
		BodyText:   "Hello from " + subject,
		Flags:      []types.MessageFlag{types.FlagSeen},
	}
}

func TestCacheAndLoadMessage(t *testing.T) {
	store := newTestStore(t)

	message := testMessage("42", "Weekly report")
	message.Attachments = []types.Attachment{{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Size:        3,
		Data:        []byte{0x25, 0x50, 0x44},
	}}
	require.NoError(t, store.CacheMessage("acct-1", "INBOX", message))

	loaded, err := store.LoadCachedMessage("acct-1", "INBOX", "42")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Weekly report", loaded.Subject)
	assert.Equal(t, "sender@example.com", loaded.Sender)
	assert.True(t, loaded.IsSeen())
	require.Len(t, loaded.Attachments, 1)
	assert.Equal(t, []byte{0x25, 0x50, 0x44}, loaded.Attachments[0].Data)

	// Second load is answered from the decrypted-message cache.
	again, err := store.LoadCachedMessage("acct-1", "INBOX", "42")
	require.NoError(t, err)
	assert.Same(t, loaded, again)

	missing, err := store.LoadCachedMessage("acct-1", "INBOX", "no-such-uid")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCacheMessageAssignsUID(t *testing.T) {
	store := newTestStore(t)

	message := testMessage("", "No UID from server")
	require.NoError(t, store.CacheMessage("acct-1", "INBOX", message))
	assert.NotEmpty(t, message.UID)
}

func TestRecacheOverwrites(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CacheMessage("acct-1", "INBOX", testMessage("42", "First")))

	updated := testMessage("42", "Second")
	updated.Flags = []types.MessageFlag{types.FlagSeen, types.FlagFlagged}
	require.NoError(t, store.CacheMessage("acct-1", "INBOX", updated))

	loaded, err := store.LoadCachedMessage("acct-1", "INBOX", "42")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Second", loaded.Subject)
	assert.True(t, loaded.HasFlag(types.FlagFlagged))

	stats, err := store.GetCacheStats("acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMessages)
}

func TestListCachedMessages(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	for i := 0; i < 3; i++ {
		message := testMessage(fmt.Sprintf("%d", i), fmt.Sprintf("Message %d", i))
		message.DateReceived = now.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.CacheMessage("acct-1", "INBOX", message))
	}

	summaries, err := store.ListCachedMessages("acct-1", "INBOX", 0, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "Message 2", summaries[0].Subject)
	assert.Contains(t, summaries[0].Snippet, "Hello from")
	assert.Equal(t, "Message 0", summaries[2].Subject)

	page, err := store.ListCachedMessages("acct-1", "INBOX", 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestListSkipsUndecryptableRows(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	dir := t.TempDir()
	st, err := storage.Open(dir, logger)
	require.NoError(t, err)
	store, err := NewStore(st, logger)
	require.NoError(t, err)
	require.NoError(t, store.CacheMessage("acct-1", "INBOX", testMessage("1", "Old key")))
	require.NoError(t, st.Close())

	// Replacing the key leaves the earlier row undecryptable.
	require.NoError(t, os.Remove(filepath.Join(dir, crypto.KeyFileName)))
	st, err = storage.Open(dir, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	store, err = NewStore(st, logger)
	require.NoError(t, err)
	require.NoError(t, store.CacheMessage("acct-1", "INBOX", testMessage("2", "New key")))

	summaries, err := store.ListCachedMessages("acct-1", "INBOX", 0, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "2", summaries[0].UID)
	assert.Equal(t, "New key", summaries[0].Subject)
}

func TestSearchCachedMessages(t *testing.T) {
	store := newTestStore(t)

	wabi := testMessage("1", "侘び寂びについて")
	wabi.BodyText = "簡素な美しさ"
	require.NoError(t, store.CacheMessage("acct-1", "INBOX", wabi))

	html := testMessage("2", "Newsletter")
	html.BodyText = ""
	html.BodyHTML = "<p>Quarterly <b>budget</b> review</p>"
	require.NoError(t, store.CacheMessage("acct-1", "INBOX", html))

	require.NoError(t, store.CacheMessage("acct-1", "Archive", testMessage("3", "Old budget thread")))

	// Substring match against an encrypted subject.
	matches, err := store.SearchCachedMessages("acct-1", "侘び", "", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "1", matches[0].UID)

	// HTML bodies are matched through their text rendering.
	matches, err = store.SearchCachedMessages("acct-1", "budget", "", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	// Folder scoping.
	matches, err = store.SearchCachedMessages("acct-1", "budget", "INBOX", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	// Case-insensitive sender match.
	matches, err = store.SearchCachedMessages("acct-1", "SENDER@EXAMPLE", "", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	matches, err = store.SearchCachedMessages("acct-1", "no such phrase", "", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDeleteCachedMessage(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CacheMessage("acct-1", "INBOX", testMessage("42", "Doomed")))

	deleted, err := store.DeleteCachedMessage("acct-1", "INBOX", "42")
	require.NoError(t, err)
	assert.True(t, deleted)

	loaded, err := store.LoadCachedMessage("acct-1", "INBOX", "42")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	deleted, err = store.DeleteCachedMessage("acct-1", "INBOX", "42")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteFolderAndAccountCache(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CacheMessage("acct-1", "INBOX", testMessage("1", "a")))
	require.NoError(t, store.CacheMessage("acct-1", "INBOX", testMessage("2", "b")))
	require.NoError(t, store.CacheMessage("acct-1", "Archive", testMessage("3", "c")))
	require.NoError(t, store.CacheMessage("acct-2", "INBOX", testMessage("4", "d")))

	deleted, err := store.DeleteFolderCache("acct-1", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = store.DeleteAccountCache("acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// Other accounts are untouched.
	loaded, err := store.LoadCachedMessage("acct-2", "INBOX", "4")
	require.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestCleanupOldCache(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CacheMessage("acct-1", "INBOX", testMessage("fresh", "Fresh")))

	// An entry cached long ago, inserted through the storage layer so
	// its cache timestamp can be backdated.
	require.NoError(t, store.storage.UpsertMailCache(&storage.MailCacheRecord{
		AccountID:    "acct-1",
		Folder:       "INBOX",
		UID:          "stale",
		DateReceived: time.Now(),
		CachedAt:     time.Now().Add(-60 * 24 * time.Hour),
	}, messageToPayload(testMessage("stale", "Stale"))))

	removed, err := store.CleanupOldCache(30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	loaded, err := store.LoadCachedMessage("acct-1", "INBOX", "fresh")
	require.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestCacheStats(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CacheMessage("acct-1", "INBOX", testMessage("1", "a")))
	require.NoError(t, store.CacheMessage("acct-1", "Archive", testMessage("2", "b")))
	require.NoError(t, store.CacheMessage("acct-2", "INBOX", testMessage("3", "c")))

	stats, err := store.GetCacheStats("acct-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, 2, stats.FolderCount)
	assert.Len(t, stats.Folders, 2)
	require.NotNil(t, stats.OldestCache)
	require.NotNil(t, stats.NewestCache)

	global, err := store.GetGlobalCacheStats()
	require.NoError(t, err)
	assert.Equal(t, 3, global.TotalMessages)
	assert.Equal(t, 2, global.AccountCount)
	assert.Equal(t, 3, global.FolderCount)
	assert.Len(t, global.Accounts, 2)
}
