package types

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountType identifies the kind of mail service an account talks to.
type AccountType string

const (
	AccountTypeGmail AccountType = "gmail" // provider-managed, OAuth2
	AccountTypeIMAP  AccountType = "imap"
	AccountTypePOP3  AccountType = "pop3"
)

// AuthType identifies how an account authenticates against its servers.
type AuthType string

const (
	AuthTypePassword    AuthType = "password"
	AuthTypeOAuth2      AuthType = "oauth2"
	AuthTypeAppPassword AuthType = "app_password"
	AuthTypeNone        AuthType = "none"
)

// ServerSettings holds the connection settings for an account.
type ServerSettings struct {
	IncomingServer   string `json:"incoming_server"`
	IncomingPort     int    `json:"incoming_port"`
	IncomingSecurity string `json:"incoming_security"` // SSL, TLS, STARTTLS, NONE
	OutgoingServer   string `json:"outgoing_server"`
	OutgoingPort     int    `json:"outgoing_port"`
	OutgoingSecurity string `json:"outgoing_security"`
	RequiresAuth     bool   `json:"requires_auth"`
}

// DefaultServerSettings returns settings preconfigured for implicit-TLS
// IMAP and STARTTLS submission.
func DefaultServerSettings() ServerSettings {
	return ServerSettings{
		IncomingPort:     993,
		IncomingSecurity: "SSL",
		OutgoingPort:     587,
		OutgoingSecurity: "STARTTLS",
		RequiresAuth:     true,
	}
}

// Account is a configured mail account. The email address uniquely
// identifies an account across the store, case-insensitively.
type Account struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	EmailAddress string         `json:"email_address"`
	AccountType  AccountType    `json:"account_type"`
	AuthType     AuthType       `json:"auth_type"`
	Settings     ServerSettings `json:"settings"`

	Credentials map[string]string `json:"credentials,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	Signature   string            `json:"signature,omitempty"`

	IsActive    bool       `json:"is_active"`
	IsDefault   bool       `json:"is_default"`
	SyncEnabled bool       `json:"sync_enabled"`
	LastSync    *time.Time `json:"last_sync,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// NewAccount creates an account with a fresh identifier and default
// connection settings.
func NewAccount(name, emailAddress string, accountType AccountType, authType AuthType) *Account {
	a := &Account{
		ID:           uuid.NewString(),
		Name:         name,
		EmailAddress: emailAddress,
		AccountType:  accountType,
		AuthType:     authType,
		Settings:     DefaultServerSettings(),
		IsActive:     true,
		SyncEnabled:  true,
	}
	a.applyDefaults()
	return a
}

// applyDefaults fills the display name from the local part of the
// address when it was left empty.
func (a *Account) applyDefaults() {
	if a.DisplayName == "" && a.EmailAddress != "" {
		if at := strings.Index(a.EmailAddress, "@"); at > 0 {
			a.DisplayName = a.EmailAddress[:at]
		}
	}
}

// Validate checks the account for domain invariants: required fields,
// a plausible email address, servers required by the account type, and
// ports within [1, 65535].
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("account name is required")
	}
	if strings.TrimSpace(a.EmailAddress) == "" {
		return fmt.Errorf("email address is required")
	}
	if _, err := mail.ParseAddress(a.EmailAddress); err != nil {
		return fmt.Errorf("invalid email address %q", a.EmailAddress)
	}

	switch a.AccountType {
	case AccountTypeGmail, AccountTypeIMAP, AccountTypePOP3:
	default:
		return fmt.Errorf("unknown account type %q", a.AccountType)
	}
	switch a.AuthType {
	case AuthTypePassword, AuthTypeOAuth2, AuthTypeAppPassword, AuthTypeNone:
	default:
		return fmt.Errorf("unknown auth type %q", a.AuthType)
	}

	// Provider-managed accounts carry preset endpoints; the generic
	// types need explicit servers.
	if a.AccountType == AccountTypeIMAP || a.AccountType == AccountTypePOP3 {
		if strings.TrimSpace(a.Settings.IncomingServer) == "" {
			return fmt.Errorf("incoming server is required")
		}
	}
	if a.AccountType == AccountTypeIMAP {
		if strings.TrimSpace(a.Settings.OutgoingServer) == "" {
			return fmt.Errorf("outgoing server is required")
		}
	}

	if a.Settings.IncomingPort < 1 || a.Settings.IncomingPort > 65535 {
		return fmt.Errorf("incoming port must be between 1 and 65535")
	}
	if a.Settings.OutgoingPort < 1 || a.Settings.OutgoingPort > 65535 {
		return fmt.Errorf("outgoing port must be between 1 and 65535")
	}

	return nil
}

// AccountSummary is the plaintext subset of an account row, listable
// without decrypting the payload.
type AccountSummary struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	EmailAddress string      `json:"email_address"`
	AccountType  AccountType `json:"account_type"`
	AuthType     AuthType    `json:"auth_type"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
