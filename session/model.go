package session

import "time"

// Snapshot is the request context captured when a session is created. It is
// written once and never updated.
type Snapshot struct {
	IP        string
	Country   string
	Region    string
	City      string
	UserAgent string
}

// Session is a persisted sign-in. SecretHash is the SHA-256 of the bearer
// secret; the secret itself is never stored.
type Session struct {
	ID     string
	UserID string
	Role   string

	// ImpersonatedByID is set only on sessions issued through an
	// impersonation grant.
	ImpersonatedByID string
	RememberMe       bool

	Snapshot   Snapshot
	SecretHash [32]byte

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Impersonated reports whether the session was issued to an impersonator.
func (s *Session) Impersonated() bool {
	return s.ImpersonatedByID != ""
}

// ExpiredAt reports whether the session is past its expiry at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
