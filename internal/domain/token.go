package domain

import "time"

// Session is an opaque browser session. Token is the lookup key itself.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// APIToken is a long-lived CLI credential. ID is the hex SHA-256 of the plaintext;
// the plaintext itself is never stored.
type APIToken struct {
	ID         string
	UserID     string
	Name       string
	Prefix     string
	ExpiresAt  time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}
