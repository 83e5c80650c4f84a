package mailcache

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/wabimail/wabimail-core/internal/storage"
	"github.com/wabimail/wabimail-core/pkg/types"
)

// decryptedCacheSize bounds the in-memory cache of decrypted messages.
const decryptedCacheSize = 256

// Store caches mail messages encrypted at rest and serves offline
// listing, search, retention, and statistics. Repeated loads of the
// same message are answered from a bounded in-memory cache of
// decrypted messages so list/detail flows do not redo AEAD and JSON
// work per view.
type Store struct {
	storage   *storage.SecureStorage
	logger    *logrus.Logger
	decrypted *lru.Cache[string, *types.MailMessage]
}

// NewStore creates a mail cache store on top of an open secure
// storage instance.
func NewStore(st *storage.SecureStorage, logger *logrus.Logger) (*Store, error) {
	decrypted, err := lru.New[string, *types.MailMessage](decryptedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create decrypted-message cache: %w", err)
	}
	return &Store{storage: st, logger: logger, decrypted: decrypted}, nil
}

// attachmentPayload carries attachment bytes as hex text so the whole
// message payload stays one JSON document.
type attachmentPayload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	ContentID   string `json:"content_id,omitempty"`
	IsInline    bool   `json:"is_inline,omitempty"`
	Data        string `json:"data,omitempty"`
}

// messagePayload is the encrypted part of a mail_cache row.
type messagePayload struct {
	MessageID     string              `json:"message_id,omitempty"`
	UID           string              `json:"uid"`
	Subject       string              `json:"subject"`
	Sender        string              `json:"sender"`
	Recipients    []string            `json:"recipients,omitempty"`
	CcRecipients  []string            `json:"cc,omitempty"`
	BccRecipients []string            `json:"bcc,omitempty"`
	ReplyTo       string              `json:"reply_to,omitempty"`
	BodyText      string              `json:"body_text,omitempty"`
	BodyHTML      string              `json:"body_html,omitempty"`
	Attachments   []attachmentPayload `json:"attachments,omitempty"`
	InReplyTo     string              `json:"in_reply_to,omitempty"`
	References    []string            `json:"references,omitempty"`
	Size          int64               `json:"size,omitempty"`
	DateSent      *time.Time          `json:"date_sent,omitempty"`
	DateReceived  *time.Time          `json:"date_received,omitempty"`
}

// CacheMessage persists a message under (accountID, folder, uid),
// assigning a fallback UID when the protocol client supplied none.
// Caching the same message again overwrites the previous row.
func (s *Store) CacheMessage(accountID, folder string, message *types.MailMessage) error {
	if message.UID == "" {
		message.UID = uuid.NewString()
	}
	message.AccountID = accountID
	message.Folder = folder
	if message.DateReceived.IsZero() {
		message.DateReceived = time.Now()
	}

	rec := &storage.MailCacheRecord{
		AccountID:    accountID,
		Folder:       folder,
		UID:          message.UID,
		Flags:        message.Flags,
		DateReceived: message.DateReceived,
	}
	if err := s.storage.UpsertMailCache(rec, messageToPayload(message)); err != nil {
		return err
	}

	s.decrypted.Remove(cacheKey(accountID, folder, message.UID))
	s.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"folder":     folder,
		"uid":        message.UID,
	}).Debug("Message cached")
	return nil
}

// LoadCachedMessage retrieves one cached message. Returns (nil, nil)
// when the message is not cached.
func (s *Store) LoadCachedMessage(accountID, folder, uid string) (*types.MailMessage, error) {
	key := cacheKey(accountID, folder, uid)
	if message, ok := s.decrypted.Get(key); ok {
		return message, nil
	}

	rec, err := s.storage.GetMailCache(accountID, folder, uid)
	if err != nil || rec == nil {
		return nil, err
	}

	message, err := s.recordToMessage(rec)
	if err != nil {
		return nil, err
	}

	s.decrypted.Add(key, message)
	return message, nil
}

// ListCachedMessages returns summaries of the cached messages in a
// folder, newest received first, paginated via limit/offset. Rows
// whose payload fails decryption are skipped with a warning so one
// corrupted row does not abort the listing.
func (s *Store) ListCachedMessages(accountID, folder string, limit, offset int) ([]types.MessageSummary, error) {
	records, err := s.storage.ListMailCache(accountID, folder, limit, offset)
	if err != nil {
		return nil, err
	}

	summaries := make([]types.MessageSummary, 0, len(records))
	for i := range records {
		rec := &records[i]

		message, err := s.recordToMessage(rec)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"account_id": rec.AccountID,
				"folder":     rec.Folder,
				"uid":        rec.UID,
			}).Warn("Skipping undecryptable message in listing")
			continue
		}

		summaries = append(summaries, types.MessageSummary{
			AccountID:    rec.AccountID,
			Folder:       rec.Folder,
			UID:          rec.UID,
			Flags:        rec.Flags,
			DateReceived: rec.DateReceived,
			CachedAt:     rec.CachedAt,
			Subject:      message.Subject,
			Sender:       message.Sender,
			Snippet:      snippet(message),
		})
	}

	return summaries, nil
}

// DeleteCachedMessage removes one cached message. Returns false when
// it was not cached.
func (s *Store) DeleteCachedMessage(accountID, folder, uid string) (bool, error) {
	s.decrypted.Remove(cacheKey(accountID, folder, uid))
	return s.storage.DeleteMailCache(accountID, folder, uid)
}

// DeleteFolderCache removes all cached messages in one folder and
// returns how many were removed.
func (s *Store) DeleteFolderCache(accountID, folder string) (int64, error) {
	s.decrypted.Purge()
	deleted, err := s.storage.DeleteFolderCache(accountID, folder)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"folder":     folder,
		"deleted":    deleted,
	}).Info("Folder cache deleted")
	return deleted, nil
}

// DeleteAccountCache removes all cached messages for an account and
// returns how many were removed.
func (s *Store) DeleteAccountCache(accountID string) (int64, error) {
	s.decrypted.Purge()
	deleted, err := s.storage.DeleteAccountCache(accountID)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"deleted":    deleted,
	}).Info("Account cache deleted")
	return deleted, nil
}

// CleanupOldCache removes messages cached more than maxAgeDays ago,
// measured from cache-insertion time. Returns how many were removed.
func (s *Store) CleanupOldCache(maxAgeDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	deleted, err := s.storage.CleanupMailCache(cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.decrypted.Purge()
		s.logger.WithField("deleted", deleted).Info("Old cache entries removed")
	}
	return deleted, nil
}

// GetCacheStats returns message and folder counts for one account,
// broken down by folder.
func (s *Store) GetCacheStats(accountID string) (*storage.CacheStats, error) {
	return s.storage.MailCacheStats(accountID)
}

// GetGlobalCacheStats returns store-wide counts broken down by
// account.
func (s *Store) GetGlobalCacheStats() (*storage.CacheStats, error) {
	return s.storage.MailCacheStats("")
}

func cacheKey(accountID, folder, uid string) string {
	return accountID + "\x00" + folder + "\x00" + uid
}

func messageToPayload(message *types.MailMessage) *messagePayload {
	payload := &messagePayload{
		MessageID:     message.MessageID,
		UID:           message.UID,
		Subject:       message.Subject,
		Sender:        message.Sender,
		Recipients:    message.Recipients,
		CcRecipients:  message.CcRecipients,
		BccRecipients: message.BccRecipients,
		ReplyTo:       message.ReplyTo,
		BodyText:      message.BodyText,
		BodyHTML:      message.BodyHTML,
		InReplyTo:     message.InReplyTo,
		References:    message.References,
		Size:          message.Size,
		DateSent:      message.DateSent,
	}
	if !message.DateReceived.IsZero() {
		received := message.DateReceived
		payload.DateReceived = &received
	}
	for _, att := range message.Attachments {
		ap := attachmentPayload{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
			ContentID:   att.ContentID,
			IsInline:    att.IsInline,
		}
		if len(att.Data) > 0 {
			ap.Data = hex.EncodeToString(att.Data)
		}
		payload.Attachments = append(payload.Attachments, ap)
	}
	return payload
}

func (s *Store) recordToMessage(rec *storage.MailCacheRecord) (*types.MailMessage, error) {
	var payload messagePayload
	if err := s.storage.DecryptData(rec.EncryptedPayload, &payload); err != nil {
		return nil, err
	}

	message := &types.MailMessage{
		MessageID:     payload.MessageID,
		UID:           rec.UID,
		AccountID:     rec.AccountID,
		Folder:        rec.Folder,
		Subject:       payload.Subject,
		Sender:        payload.Sender,
		Recipients:    payload.Recipients,
		CcRecipients:  payload.CcRecipients,
		BccRecipients: payload.BccRecipients,
		ReplyTo:       payload.ReplyTo,
		BodyText:      payload.BodyText,
		BodyHTML:      payload.BodyHTML,
		InReplyTo:     payload.InReplyTo,
		References:    payload.References,
		Size:          payload.Size,
		DateSent:      payload.DateSent,
		Flags:         rec.Flags,
		DateReceived:  rec.DateReceived,
		CachedAt:      rec.CachedAt,
	}
	if payload.DateReceived != nil {
		message.DateReceived = *payload.DateReceived
	}

	for _, ap := range payload.Attachments {
		att := types.Attachment{
			Filename:    ap.Filename,
			ContentType: ap.ContentType,
			Size:        ap.Size,
			ContentID:   ap.ContentID,
			IsInline:    ap.IsInline,
		}
		if ap.Data != "" {
			data, err := hex.DecodeString(ap.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode attachment data: %w", err)
			}
			att.Data = data
		}
		message.Attachments = append(message.Attachments, att)
	}

	return message, nil
}
