package identity

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store lookups when the requested record does not exist.
var ErrNotFound = errors.New("identity record not found")

// Role is the coarse privilege level of a user.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
	RoleInternal   Role = "internal"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin, RoleInternal:
		return true
	}
	return false
}

// Provider names used by credential accounts and the provider allow-list.
const (
	ProviderPassword      = "password"
	ProviderTOTP          = "totp"
	ProviderBackupCode    = "backup-code"
	ProviderImpersonation = "impersonation"
)

// User is an identity owned by the store. The auth core never deletes users.
type User struct {
	ID         string
	Email      string
	Name       string
	Role       Role
	VerifiedAt *time.Time
}

// CredentialAccount links a user to one sign-in provider.
// PasswordHash is empty for accounts that are not password-capable.
type CredentialAccount struct {
	ID           string
	UserID       string
	Provider     string
	PasswordHash string
}

// HasPassword reports whether the account can be used for password sign-in.
func (a CredentialAccount) HasPassword() bool {
	return a.PasswordHash != ""
}

// SecurityConfig is the per-user security row. BannedAt set with a nil
// BanExpiresAt is a permanent lock; a non-nil BanExpiresAt is a temporary
// lock that lapses at that instant.
type SecurityConfig struct {
	UserID                 string
	FailedAttemptsCount    int
	LastFailedAttemptAt    *time.Time
	BannedAt               *time.Time
	BanReason              string
	BanExpiresAt           *time.Time
	RequiresTwoFactorAuth  bool
	RequiresPasswordChange bool
}

// IsBanned reports whether any lock is recorded, expired or not.
func (c SecurityConfig) IsBanned() bool {
	return c.BannedAt != nil
}

// IsPermanentlyBanned reports whether the lock has no expiry.
func (c SecurityConfig) IsPermanentlyBanned() bool {
	return c.BannedAt != nil && c.BanExpiresAt == nil
}

// LockoutTier maps a failed-attempt count to a lock.
type LockoutTier struct {
	ID              string
	AttemptCount    int
	LockDuration    time.Duration
	IsLockPermanent bool
}

// TwoFactorEnrollment holds a shared TOTP secret. A pending enrollment has
// IsEnabled=false until the user confirms a code.
type TwoFactorEnrollment struct {
	ID        string
	UserID    string
	Secret    string
	IsEnabled bool
	// LastUsedCounter is the newest TOTP time step accepted for this
	// enrollment. A code at or below it is a replay.
	LastUsedCounter int64
	CreatedAt       time.Time
}

// BackupCode is one hashed single-use recovery code.
type BackupCode struct {
	UserID   string
	CodeHash string
	Used     bool
}

// Store is the narrow repository boundary the auth core reads and writes through.
//
// UpdateSecurityConfig must be atomic per user: the row is loaded (created
// lazily when absent), mutate is applied and the result persisted as one
// serialised step. If mutate returns an error nothing is written.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)

	ListCredentialAccounts(ctx context.Context, userID string) ([]CredentialAccount, error)
	UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error

	GetSecurityConfig(ctx context.Context, userID string) (SecurityConfig, error)
	UpdateSecurityConfig(ctx context.Context, userID string, mutate func(*SecurityConfig) error) (SecurityConfig, error)

	ListLockoutTiers(ctx context.Context) ([]LockoutTier, error)

	ListTwoFactorEnrollments(ctx context.Context, userID string) ([]TwoFactorEnrollment, error)
	SaveTwoFactorEnrollment(ctx context.Context, enrollment TwoFactorEnrollment) error
	DeleteTwoFactorEnrollments(ctx context.Context, userID string) error
	// AdvanceTOTPCounter stores counter as the enrollment's last used step
	// only if it is greater than the stored one, and reports whether it was.
	// The compare and the write must be atomic.
	AdvanceTOTPCounter(ctx context.Context, enrollmentID string, counter int64) (bool, error)

	ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)
	DeleteBackupCodes(ctx context.Context, userID string) error
}

// EnabledEnrollment returns the first enabled enrollment, if any.
func EnabledEnrollment(enrollments []TwoFactorEnrollment) (TwoFactorEnrollment, bool) {
	for _, e := range enrollments {
		if e.IsEnabled {
			return e, true
		}
	}
	return TwoFactorEnrollment{}, false
}

// PasswordAccount returns the first password-capable account.
// The second result reports whether any account with the password provider
// exists, even one without a hash.
func PasswordAccount(accounts []CredentialAccount) (CredentialAccount, bool, bool) {
	var found bool
	for _, a := range accounts {
		if a.Provider != ProviderPassword {
			continue
		}
		found = true
		if a.HasPassword() {
			return a, true, true
		}
	}
	return CredentialAccount{}, found, false
}
