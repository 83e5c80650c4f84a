package mailcache

import (
	"strings"

	"github.com/jaytaylor/html2text"

	"github.com/wabimail/wabimail-core/pkg/types"
)

const (
	defaultSearchLimit = 100
	snippetLength      = 200
)

// SearchCachedMessages performs a case-insensitive substring search
// across subject, sender, recipients, and both body variants. An empty
// folder searches all folders of the account; limit <= 0 applies the
// default.
//
// Because message payloads are encrypted, candidate rows must be
// decrypted one by one — search cost is linear in the account's cached
// rows, not index-assisted. Rows that fail decryption are skipped with
// a warning so one corrupted row does not abort the query.
func (s *Store) SearchCachedMessages(accountID, query, folder string, limit int) ([]*types.MailMessage, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	records, err := s.storage.ListMailCache(accountID, folder, 0, 0)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)

	var matches []*types.MailMessage
	for i := range records {
		rec := &records[i]

		message, err := s.recordToMessage(rec)
		if err != nil {
			s.logger.WithError(err).WithFields(map[string]any{
				"account_id": rec.AccountID,
				"folder":     rec.Folder,
				"uid":        rec.UID,
			}).Warn("Skipping undecryptable message in search")
			continue
		}

		if messageMatches(message, needle) {
			matches = append(matches, message)
			if len(matches) >= limit {
				break
			}
		}
	}

	s.logger.WithFields(map[string]any{
		"account_id": accountID,
		"matches":    len(matches),
	}).Debug("Cache search finished")
	return matches, nil
}

// messageMatches checks the lowercased needle against every searchable
// field of the message.
func messageMatches(message *types.MailMessage, needle string) bool {
	fields := []string{
		message.Subject,
		message.Sender,
		message.BodyText,
		searchableHTML(message.BodyHTML),
	}
	fields = append(fields, message.Recipients...)

	for _, field := range fields {
		if field == "" {
			continue
		}
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// searchableHTML converts an HTML body to plain text so markup does
// not pollute matching. Falls back to the raw HTML if conversion
// fails.
func searchableHTML(body string) string {
	if body == "" {
		return ""
	}
	text, err := html2text.FromString(body, html2text.Options{TextOnly: true})
	if err != nil {
		return body
	}
	return text
}

// snippet derives a short list-view preview from the message body,
// preferring the plain-text variant.
func snippet(message *types.MailMessage) string {
	text := message.BodyText
	if text == "" && message.BodyHTML != "" {
		text = searchableHTML(message.BodyHTML)
	}

	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength]) + "..."
	}
	return text
}
