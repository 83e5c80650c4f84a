package tokens

import (
	"time"

	"github.com/wabimail/wabimail-core/pkg/types"
)

// ExpiryMargin is how long before the server-side expiry a token is
// already treated as expired, so a credential is refreshed slightly
// before the remote authority would reject it. This constant is the
// single source of truth for the margin; both the secure store's
// defensive check and the credential lifecycle manager use it.
const ExpiryMargin = 5 * time.Minute

// DefaultLifetime is assumed when a token carries no lifetime.
const DefaultLifetime = 3600 // seconds

// IsTokenExpired reports whether the token is past its lifetime minus
// the safety margin. A token without an issue timestamp is treated as
// expired.
func IsTokenExpired(token *types.OAuth2Token) bool {
	return isTokenExpiredAt(token, time.Now())
}

func isTokenExpiredAt(token *types.OAuth2Token, now time.Time) bool {
	issued := token.IssuedAt()
	if issued.IsZero() {
		return true
	}

	lifetime := token.ExpiresIn
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}

	expiresAt := issued.Add(time.Duration(lifetime) * time.Second)
	return !now.Before(expiresAt.Add(-ExpiryMargin))
}
