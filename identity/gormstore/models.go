package gormstore

import (
	"time"

	"github.com/MrEthical07/authcore/identity"
)

type userModel struct {
	ID         string     `gorm:"primaryKey;type:uuid"`
	Email      *string    `gorm:"size:320;uniqueIndex"`
	Name       string     `gorm:"size:200"`
	Role       string     `gorm:"size:20;not null;default:user"`
	VerifiedAt *time.Time `gorm:"column:verified_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime"`
}

func (userModel) TableName() string { return "users" }

type credentialAccountModel struct {
	ID           string    `gorm:"primaryKey;type:uuid"`
	UserID       string    `gorm:"type:uuid;not null;index"`
	Provider     string    `gorm:"size:64;not null"`
	PasswordHash *string   `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (credentialAccountModel) TableName() string { return "credential_accounts" }

type securityConfigModel struct {
	UserID                 string     `gorm:"primaryKey;type:uuid"`
	FailedAttemptsCount    int        `gorm:"not null;default:0"`
	LastFailedAttemptAt    *time.Time
	BannedAt               *time.Time
	BanReason              *string `gorm:"type:text"`
	BanExpiresAt           *time.Time
	RequiresTwoFactorAuth  bool      `gorm:"not null;default:false"`
	RequiresPasswordChange bool      `gorm:"not null;default:false"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime"`
}

func (securityConfigModel) TableName() string { return "user_security_configs" }

type lockoutTierModel struct {
	ID                  string `gorm:"primaryKey;type:uuid"`
	AttemptCount        int    `gorm:"not null"`
	LockDurationMinutes int    `gorm:"not null;default:0"`
	IsLockPermanent     bool   `gorm:"not null;default:false"`
}

func (lockoutTierModel) TableName() string { return "lockout_tiers" }

type twoFactorEnrollmentModel struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	UserID    string    `gorm:"type:uuid;not null;index"`
	Secret    string    `gorm:"size:500;not null"`
	IsEnabled       bool      `gorm:"not null;default:false"`
	LastUsedCounter int64     `gorm:"not null;default:0"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (twoFactorEnrollmentModel) TableName() string { return "two_factor_enrollments" }

type backupCodeModel struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	UserID   string `gorm:"type:uuid;not null;index:idx_backup_codes_user_hash,priority:1"`
	CodeHash string `gorm:"size:64;not null;index:idx_backup_codes_user_hash,priority:2"`
	Used     bool   `gorm:"not null;default:false"`
}

func (backupCodeModel) TableName() string { return "backup_codes" }

func (m userModel) toDomain() identity.User {
	u := identity.User{
		ID:         m.ID,
		Name:       m.Name,
		Role:       identity.Role(m.Role),
		VerifiedAt: m.VerifiedAt,
	}
	if m.Email != nil {
		u.Email = *m.Email
	}
	return u
}

func (m credentialAccountModel) toDomain() identity.CredentialAccount {
	a := identity.CredentialAccount{
		ID:       m.ID,
		UserID:   m.UserID,
		Provider: m.Provider,
	}
	if m.PasswordHash != nil {
		a.PasswordHash = *m.PasswordHash
	}
	return a
}

func (m securityConfigModel) toDomain() identity.SecurityConfig {
	c := identity.SecurityConfig{
		UserID:                 m.UserID,
		FailedAttemptsCount:    m.FailedAttemptsCount,
		LastFailedAttemptAt:    m.LastFailedAttemptAt,
		BannedAt:               m.BannedAt,
		BanExpiresAt:           m.BanExpiresAt,
		RequiresTwoFactorAuth:  m.RequiresTwoFactorAuth,
		RequiresPasswordChange: m.RequiresPasswordChange,
	}
	if m.BanReason != nil {
		c.BanReason = *m.BanReason
	}
	return c
}

func securityFromDomain(c identity.SecurityConfig) securityConfigModel {
	m := securityConfigModel{
		UserID:                 c.UserID,
		FailedAttemptsCount:    c.FailedAttemptsCount,
		LastFailedAttemptAt:    c.LastFailedAttemptAt,
		BannedAt:               c.BannedAt,
		BanExpiresAt:           c.BanExpiresAt,
		RequiresTwoFactorAuth:  c.RequiresTwoFactorAuth,
		RequiresPasswordChange: c.RequiresPasswordChange,
	}
	if c.BanReason != "" {
		reason := c.BanReason
		m.BanReason = &reason
	}
	return m
}

func (m lockoutTierModel) toDomain() identity.LockoutTier {
	return identity.LockoutTier{
		ID:              m.ID,
		AttemptCount:    m.AttemptCount,
		LockDuration:    time.Duration(m.LockDurationMinutes) * time.Minute,
		IsLockPermanent: m.IsLockPermanent,
	}
}

func (m twoFactorEnrollmentModel) toDomain() identity.TwoFactorEnrollment {
	return identity.TwoFactorEnrollment{
		ID:        m.ID,
		UserID:    m.UserID,
		Secret:    m.Secret,
		IsEnabled:       m.IsEnabled,
		LastUsedCounter: m.LastUsedCounter,
		CreatedAt:       m.CreatedAt,
	}
}
