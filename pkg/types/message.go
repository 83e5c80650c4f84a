package types

import (
	"time"

	"github.com/emersion/go-imap"
)

// MessageFlag is an IMAP-style message flag. The values reuse the
// canonical system flag strings so cached flag sets round-trip through
// the protocol clients unchanged.
type MessageFlag string

const (
	FlagSeen     MessageFlag = imap.SeenFlag
	FlagAnswered MessageFlag = imap.AnsweredFlag
	FlagFlagged  MessageFlag = imap.FlaggedFlag
	FlagDeleted  MessageFlag = imap.DeletedFlag
	FlagDraft    MessageFlag = imap.DraftFlag
	FlagRecent   MessageFlag = imap.RecentFlag

	// Client-local flags.
	FlagStarred  MessageFlag = "\\Starred"
	FlagArchived MessageFlag = "\\Archived"
)

// Attachment describes a file attached to a message. Data is only
// populated when the caller chose to cache the payload bytes.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	ContentID   string `json:"content_id,omitempty"`
	IsInline    bool   `json:"is_inline,omitempty"`
	Data        []byte `json:"-"`
}

// MailMessage is a parsed mail message as handed over by a protocol
// client. Within an account it is identified by (Folder, UID).
type MailMessage struct {
	MessageID string `json:"message_id"`
	UID       string `json:"uid"`
	AccountID string `json:"account_id"`
	Folder    string `json:"folder"`

	Subject       string   `json:"subject"`
	Sender        string   `json:"sender"`
	Recipients    []string `json:"recipients"`
	CcRecipients  []string `json:"cc,omitempty"`
	BccRecipients []string `json:"bcc,omitempty"`
	ReplyTo       string   `json:"reply_to,omitempty"`

	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html,omitempty"`

	Attachments []Attachment  `json:"attachments,omitempty"`
	Flags       []MessageFlag `json:"flags,omitempty"`

	InReplyTo  string     `json:"in_reply_to,omitempty"`
	References []string   `json:"references,omitempty"`
	Size       int64      `json:"size,omitempty"`
	DateSent   *time.Time `json:"date_sent,omitempty"`

	DateReceived time.Time `json:"date_received"`
	CachedAt     time.Time `json:"cached_at,omitempty"`
}

// HasFlag reports whether the message carries the given flag.
func (m *MailMessage) HasFlag(flag MessageFlag) bool {
	for _, f := range m.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// IsSeen reports whether the message has been read.
func (m *MailMessage) IsSeen() bool {
	return m.HasFlag(FlagSeen)
}

// MessageSummary is the plaintext subset of a cached message row,
// optionally extended with a decrypted snippet for list views.
type MessageSummary struct {
	AccountID    string        `json:"account_id"`
	Folder       string        `json:"folder"`
	UID          string        `json:"uid"`
	Flags        []MessageFlag `json:"flags,omitempty"`
	DateReceived time.Time     `json:"date_received"`
	CachedAt     time.Time     `json:"cached_at"`
	Subject      string        `json:"subject,omitempty"`
	Sender       string        `json:"sender,omitempty"`
	Snippet      string        `json:"snippet,omitempty"`
}
