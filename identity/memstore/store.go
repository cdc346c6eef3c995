// Package memstore is an in-process identity.Store. Every operation is
// serialised by a single mutex, which makes UpdateSecurityConfig atomic per
// user. It is intended for tests, the load generator and single-node demos.
package memstore

import (
	"context"
	"crypto/subtle"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/google/uuid"
)

// Store keeps every record in memory.
type Store struct {
	mu sync.Mutex

	users       map[string]identity.User
	byEmail     map[string]string
	accounts    map[string][]identity.CredentialAccount
	security    map[string]identity.SecurityConfig
	tiers       []identity.LockoutTier
	enrollments map[string][]identity.TwoFactorEnrollment
	backupCodes map[string][]identity.BackupCode
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]identity.User),
		byEmail:     make(map[string]string),
		accounts:    make(map[string][]identity.CredentialAccount),
		security:    make(map[string]identity.SecurityConfig),
		enrollments: make(map[string][]identity.TwoFactorEnrollment),
		backupCodes: make(map[string][]identity.BackupCode),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AddUser inserts or replaces a user. An empty ID is filled with a UUID.
func (s *Store) AddUser(u identity.User) identity.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if old, ok := s.users[u.ID]; ok {
		delete(s.byEmail, normalizeEmail(old.Email))
	}
	s.users[u.ID] = u
	if u.Email != "" {
		s.byEmail[normalizeEmail(u.Email)] = u.ID
	}
	return u
}

// SetRole changes a user's role.
func (s *Store) SetRole(userID string, role identity.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[userID]; ok {
		u.Role = role
		s.users[userID] = u
	}
}

// AddCredentialAccount links an account to its user. An empty ID is filled with a UUID.
func (s *Store) AddCredentialAccount(a identity.CredentialAccount) identity.CredentialAccount {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.accounts[a.UserID] = append(s.accounts[a.UserID], a)
	return a
}

// SetLockoutTiers replaces the configured lockout tiers.
func (s *Store) SetLockoutTiers(tiers []identity.LockoutTier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tiers = append([]identity.LockoutTier(nil), tiers...)
	for i := range s.tiers {
		if s.tiers[i].ID == "" {
			s.tiers[i].ID = uuid.NewString()
		}
	}
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListCredentialAccounts(_ context.Context, userID string) ([]identity.CredentialAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]identity.CredentialAccount(nil), s.accounts[userID]...), nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, accountID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, accounts := range s.accounts {
		for i := range accounts {
			if accounts[i].ID == accountID {
				accounts[i].PasswordHash = passwordHash
				s.accounts[userID] = accounts
				return nil
			}
		}
	}
	return identity.ErrNotFound
}

func (s *Store) GetSecurityConfig(_ context.Context, userID string) (identity.SecurityConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return identity.SecurityConfig{}, identity.ErrNotFound
	}
	return copySecurity(s.loadSecurityLocked(userID)), nil
}

func (s *Store) UpdateSecurityConfig(
	_ context.Context,
	userID string,
	mutate func(*identity.SecurityConfig) error,
) (identity.SecurityConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return identity.SecurityConfig{}, identity.ErrNotFound
	}

	cfg := copySecurity(s.loadSecurityLocked(userID))
	if err := mutate(&cfg); err != nil {
		return identity.SecurityConfig{}, err
	}
	cfg.UserID = userID
	s.security[userID] = copySecurity(cfg)
	return cfg, nil
}

func (s *Store) loadSecurityLocked(userID string) identity.SecurityConfig {
	cfg, ok := s.security[userID]
	if !ok {
		cfg = identity.SecurityConfig{UserID: userID}
		s.security[userID] = cfg
	}
	return cfg
}

func (s *Store) ListLockoutTiers(context.Context) ([]identity.LockoutTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]identity.LockoutTier(nil), s.tiers...), nil
}

func (s *Store) ListTwoFactorEnrollments(_ context.Context, userID string) ([]identity.TwoFactorEnrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]identity.TwoFactorEnrollment(nil), s.enrollments[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SaveTwoFactorEnrollment(_ context.Context, enrollment identity.TwoFactorEnrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}

	list := s.enrollments[enrollment.UserID]
	for i := range list {
		if list[i].ID == enrollment.ID {
			list[i] = enrollment
			return nil
		}
	}
	s.enrollments[enrollment.UserID] = append(list, enrollment)
	return nil
}

func (s *Store) DeleteTwoFactorEnrollments(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.enrollments, userID)
	return nil
}

func (s *Store) AdvanceTOTPCounter(_ context.Context, enrollmentID string, counter int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, list := range s.enrollments {
		for i := range list {
			if list[i].ID != enrollmentID {
				continue
			}
			if counter <= list[i].LastUsedCounter {
				return false, nil
			}
			list[i].LastUsedCounter = counter
			return true, nil
		}
	}
	return false, identity.ErrNotFound
}

func (s *Store) ReplaceBackupCodes(_ context.Context, userID string, codeHashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make([]identity.BackupCode, 0, len(codeHashes))
	for _, h := range codeHashes {
		codes = append(codes, identity.BackupCode{UserID: userID, CodeHash: h})
	}
	s.backupCodes[userID] = codes
	return nil
}

// ConsumeBackupCode compares the hash against every unused code and marks
// exactly one match as used.
func (s *Store) ConsumeBackupCode(_ context.Context, userID, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := s.backupCodes[userID]
	match := -1
	for i := range codes {
		if codes[i].Used {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(codes[i].CodeHash), []byte(codeHash)) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return false, nil
	}
	codes[match].Used = true
	return true, nil
}

func (s *Store) DeleteBackupCodes(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.backupCodes, userID)
	return nil
}

// RemainingBackupCodes counts unused codes for userID.
func (s *Store) RemainingBackupCodes(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, c := range s.backupCodes[userID] {
		if !c.Used {
			n++
		}
	}
	return n
}

func copySecurity(c identity.SecurityConfig) identity.SecurityConfig {
	c.LastFailedAttemptAt = copyTime(c.LastFailedAttemptAt)
	c.BannedAt = copyTime(c.BannedAt)
	c.BanExpiresAt = copyTime(c.BanExpiresAt)
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var _ identity.Store = (*Store)(nil)
