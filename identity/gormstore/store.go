// Package gormstore implements identity.Store on PostgreSQL through gorm.
//
// The security-config update takes a row lock (SELECT ... FOR UPDATE) inside
// a transaction, so concurrent failed sign-ins for one user are serialised by
// the database rather than by the caller.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrDatabase wraps driver failures.
var ErrDatabase = errors.New("identity database error")

// Config controls the connection pool opened by Open.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// Open connects to PostgreSQL and applies pool settings.
func Open(cfg Config) (*gorm.DB, error) {
	level := cfg.LogLevel
	if level == 0 {
		level = logger.Warn
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// AutoMigrate creates the tables this store reads. Production schemas are
// owned by the host application's migrations; this is for development and
// integration tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userModel{},
		&credentialAccountModel{},
		&securityConfigModel{},
		&lockoutTierModel{},
		&twoFactorEnrollmentModel{},
		&backupCodeModel{},
	)
}

// Store is a gorm-backed identity.Store.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return identity.ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrDatabase, err)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (identity.User, error) {
	var m userModel
	err := s.db.WithContext(ctx).
		Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&m).Error
	if err != nil {
		return identity.User{}, wrap(err)
	}
	return m.toDomain(), nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (identity.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", userID).Error; err != nil {
		return identity.User{}, wrap(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListCredentialAccounts(ctx context.Context, userID string) ([]identity.CredentialAccount, error) {
	var rows []credentialAccountModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, wrap(err)
	}

	out := make([]identity.CredentialAccount, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	res := s.db.WithContext(ctx).
		Model(&credentialAccountModel{}).
		Where("id = ?", accountID).
		Update("password_hash", passwordHash)
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *Store) GetSecurityConfig(ctx context.Context, userID string) (identity.SecurityConfig, error) {
	var m securityConfigModel
	err := s.db.WithContext(ctx).First(&m, "user_id = ?", userID).Error
	if err == nil {
		return m.toDomain(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return identity.SecurityConfig{}, wrap(err)
	}
	if _, err := s.GetUserByID(ctx, userID); err != nil {
		return identity.SecurityConfig{}, err
	}
	return identity.SecurityConfig{UserID: userID}, nil
}

func (s *Store) UpdateSecurityConfig(
	ctx context.Context,
	userID string,
	mutate func(*identity.SecurityConfig) error,
) (identity.SecurityConfig, error) {
	var (
		result    identity.SecurityConfig
		mutateErr error
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner userModel
		if err := tx.Select("id").First(&owner, "id = ?", userID).Error; err != nil {
			return err
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&securityConfigModel{UserID: userID}).Error; err != nil {
			return err
		}

		var m securityConfigModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&m, "user_id = ?", userID).Error; err != nil {
			return err
		}

		cfg := m.toDomain()
		if err := mutate(&cfg); err != nil {
			mutateErr = err
			return err
		}
		cfg.UserID = userID

		updated := securityFromDomain(cfg)
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		result = cfg
		return nil
	})
	if err != nil {
		if mutateErr != nil {
			return identity.SecurityConfig{}, mutateErr
		}
		return identity.SecurityConfig{}, wrap(err)
	}
	return result, nil
}

func (s *Store) ListLockoutTiers(ctx context.Context) ([]identity.LockoutTier, error) {
	var rows []lockoutTierModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, wrap(err)
	}

	out := make([]identity.LockoutTier, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// SaveLockoutTier inserts or updates one tier. Administration of tiers is a
// host concern; this exists for seeding.
func (s *Store) SaveLockoutTier(ctx context.Context, tier identity.LockoutTier) (identity.LockoutTier, error) {
	if tier.ID == "" {
		tier.ID = uuid.NewString()
	}
	m := lockoutTierModel{
		ID:                  tier.ID,
		AttemptCount:        tier.AttemptCount,
		LockDurationMinutes: int(tier.LockDuration / time.Minute),
		IsLockPermanent:     tier.IsLockPermanent,
	}
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return identity.LockoutTier{}, wrap(err)
	}
	return tier, nil
}

func (s *Store) ListTwoFactorEnrollments(ctx context.Context, userID string) ([]identity.TwoFactorEnrollment, error) {
	var rows []twoFactorEnrollmentModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, wrap(err)
	}

	out := make([]identity.TwoFactorEnrollment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) SaveTwoFactorEnrollment(ctx context.Context, enrollment identity.TwoFactorEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	m := twoFactorEnrollmentModel{
		ID:              enrollment.ID,
		UserID:          enrollment.UserID,
		Secret:          enrollment.Secret,
		IsEnabled:       enrollment.IsEnabled,
		LastUsedCounter: enrollment.LastUsedCounter,
		CreatedAt:       enrollment.CreatedAt,
	}
	return wrap(s.db.WithContext(ctx).Save(&m).Error)
}

func (s *Store) DeleteTwoFactorEnrollments(ctx context.Context, userID string) error {
	return wrap(s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&twoFactorEnrollmentModel{}).Error)
}

// AdvanceTOTPCounter is a conditional UPDATE; of two requests presenting the
// same step only one sees a row affected.
func (s *Store) AdvanceTOTPCounter(ctx context.Context, enrollmentID string, counter int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&twoFactorEnrollmentModel{}).
		Where("id = ? AND last_used_counter < ?", enrollmentID, counter).
		Update("last_used_counter", counter)
	if res.Error != nil {
		return false, wrap(res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&twoFactorEnrollmentModel{}).Where("id = ?", enrollmentID).Count(&n).Error; err != nil {
		return false, wrap(err)
	}
	if n == 0 {
		return false, identity.ErrNotFound
	}
	return false, nil
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error {
	return wrap(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&backupCodeModel{}).Error; err != nil {
			return err
		}
		if len(codeHashes) == 0 {
			return nil
		}
		rows := make([]backupCodeModel, 0, len(codeHashes))
		for _, h := range codeHashes {
			rows = append(rows, backupCodeModel{UserID: userID, CodeHash: h})
		}
		return tx.Create(&rows).Error
	}))
}

// ConsumeBackupCode flips exactly one unused matching row. The outer
// used=false predicate is re-evaluated after the row lock, so two concurrent
// consumers of the same code cannot both succeed.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	db := s.db.WithContext(ctx)
	candidate := db.Model(&backupCodeModel{}).
		Select("id").
		Where("user_id = ? AND code_hash = ? AND used = ?", userID, codeHash, false).
		Limit(1)

	res := db.Model(&backupCodeModel{}).
		Where("id = (?) AND used = ?", candidate, false).
		Update("used", true)
	if res.Error != nil {
		return false, wrap(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) DeleteBackupCodes(ctx context.Context, userID string) error {
	return wrap(s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&backupCodeModel{}).Error)
}

var _ identity.Store = (*Store)(nil)
