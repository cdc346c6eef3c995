package authcore

import (
	"context"
	"slices"
	"strings"

	"github.com/MrEthical07/authcore/identity"
)

// Policy is the application-level feature-flag snapshot. It is passed to
// every call that consults it, so callers and tests control it explicitly.
type Policy struct {
	LoginEnabled        bool
	RegistrationEnabled bool
	TwoFactorEnabled    bool
	// AllowedProviders restricts sign-in providers. Empty allows all.
	AllowedProviders []string
}

// DefaultPolicy enables everything.
func DefaultPolicy() Policy {
	return Policy{
		LoginEnabled:        true,
		RegistrationEnabled: true,
		TwoFactorEnabled:    true,
	}
}

// ProviderAllowed reports whether provider passes the allow-list.
func (p Policy) ProviderAllowed(provider string) bool {
	if len(p.AllowedProviders) == 0 {
		return true
	}
	return slices.ContainsFunc(p.AllowedProviders, func(name string) bool {
		return strings.EqualFold(strings.TrimSpace(name), provider)
	})
}

// NetworkPolicy gates requests by client IP and registrations by email domain.
type NetworkPolicy interface {
	IPAllowed(ip string) bool
	EmailDomainAllowed(email string) bool
}

type allowAllNetwork struct{}

func (allowAllNetwork) IPAllowed(string) bool          { return true }
func (allowAllNetwork) EmailDomainAllowed(string) bool { return true }

// GeoLocation is the coarse location copied into a session snapshot.
type GeoLocation struct {
	Country string
	Region  string
	City    string
}

// GeoResolver maps a client IP to a location. Lookup failures never block
// session creation.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (GeoLocation, error)
}

// NotificationKind names a security notification template.
type NotificationKind string

const (
	NotifyAccountLocked      NotificationKind = "account-locked"
	NotifyPasswordChanged    NotificationKind = "password-changed"
	NotifyTwoFactorDisabled  NotificationKind = "two-factor-disabled"
	NotifyTwoFactorEnabled   NotificationKind = "two-factor-enabled"
	NotifyImpersonationGrant NotificationKind = "impersonation-granted"
)

// Notification is one outbound message request.
type Notification struct {
	Kind NotificationKind
	To   string
	Name string
	Data map[string]string
}

// Mailer delivers notifications. Delivery failures are logged and never
// change the outcome of the operation that triggered them.
type Mailer interface {
	Send(ctx context.Context, n Notification) error
}

func displayName(u identity.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
