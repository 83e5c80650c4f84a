package types

import "time"

// OAuth2Token is the credential material handed over by an external
// authorization flow, plus the bookkeeping this core stamps on it.
// At most one live token exists per account; refresh replaces it
// wholesale.
type OAuth2Token struct {
	AccountID    string   `json:"account_id,omitempty"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenURI     string   `json:"token_uri,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`

	// ExpiresIn is the lifetime in seconds granted by the authority.
	ExpiresIn int64 `json:"expires_in"`

	SavedAt     time.Time  `json:"saved_at,omitempty"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
}

// IssuedAt returns the timestamp the current lifetime counts from:
// the last refresh if there was one, otherwise the save time.
func (t *OAuth2Token) IssuedAt() time.Time {
	if t.RefreshedAt != nil {
		return *t.RefreshedAt
	}
	return t.SavedAt
}

// ExpiresAt returns the absolute expiry time, without any safety margin.
func (t *OAuth2Token) ExpiresAt() time.Time {
	return t.IssuedAt().Add(time.Duration(t.ExpiresIn) * time.Second)
}
