package lockout

import (
	"testing"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func escalatingTiers() []identity.LockoutTier {
	return []identity.LockoutTier{
		{ID: "perm10", AttemptCount: 10, IsLockPermanent: true},
		{ID: "temp5", AttemptCount: 5, LockDuration: 15 * time.Minute},
		{ID: "temp8", AttemptCount: 8, LockDuration: time.Hour},
	}
}

func TestSortTiersTemporaryBeforePermanent(t *testing.T) {
	tiers := []identity.LockoutTier{
		{ID: "p3", AttemptCount: 3, IsLockPermanent: true},
		{ID: "t9", AttemptCount: 9},
		{ID: "t2", AttemptCount: 2},
	}

	sorted := SortTiers(tiers)
	require.Len(t, sorted, 3)
	assert.Equal(t, []string{"t2", "t9", "p3"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
	assert.Equal(t, "p3", tiers[0].ID, "input must not be reordered")
}

func TestOnFailedAttemptNoMatch(t *testing.T) {
	res := OnFailedAttempt(identity.SecurityConfig{FailedAttemptsCount: 1}, escalatingTiers(), testNow)

	assert.Equal(t, 2, res.NewCount)
	assert.False(t, res.Decision.Locks())
}

func TestOnFailedAttemptTemporaryTier(t *testing.T) {
	res := OnFailedAttempt(identity.SecurityConfig{FailedAttemptsCount: 4}, escalatingTiers(), testNow)

	assert.Equal(t, 5, res.NewCount)
	assert.Equal(t, DecisionTemporary, res.Decision.Kind)
	assert.Equal(t, testNow.Add(15*time.Minute), res.Decision.ExpiresAt)
	assert.Equal(t, "temp5", res.Decision.Tier.ID)
}

func TestOnFailedAttemptPermanentTier(t *testing.T) {
	res := OnFailedAttempt(identity.SecurityConfig{FailedAttemptsCount: 9}, escalatingTiers(), testNow)

	assert.Equal(t, 10, res.NewCount)
	assert.Equal(t, DecisionPermanent, res.Decision.Kind)
	assert.True(t, res.Decision.ExpiresAt.IsZero())
}

func TestOnFailedAttemptCountPastLastTierDoesNotLock(t *testing.T) {
	res := OnFailedAttempt(identity.SecurityConfig{FailedAttemptsCount: 10}, escalatingTiers(), testNow)

	assert.Equal(t, 11, res.NewCount)
	assert.False(t, res.Decision.Locks())
}

func TestOnFailedAttemptEqualCountPrefersTemporary(t *testing.T) {
	tiers := []identity.LockoutTier{
		{ID: "perm", AttemptCount: 3, IsLockPermanent: true},
		{ID: "temp", AttemptCount: 3, LockDuration: time.Minute},
	}

	res := OnFailedAttempt(identity.SecurityConfig{FailedAttemptsCount: 2}, tiers, testNow)
	assert.Equal(t, DecisionTemporary, res.Decision.Kind)
	assert.Equal(t, "temp", res.Decision.Tier.ID)
}

func TestApplyTemporaryLock(t *testing.T) {
	cfg := identity.SecurityConfig{FailedAttemptsCount: 4}
	res := OnFailedAttempt(cfg, escalatingTiers(), testNow)

	Apply(&cfg, res, testNow)

	require.NotNil(t, cfg.BannedAt)
	require.NotNil(t, cfg.BanExpiresAt)
	assert.Equal(t, 5, cfg.FailedAttemptsCount)
	assert.Equal(t, AutoLockReason, cfg.BanReason)
	assert.Equal(t, TemporarilyLocked, StateAt(cfg, testNow))
	assert.Equal(t, Unlocked, StateAt(cfg, testNow.Add(16*time.Minute)))
}

func TestApplyNeverDowngradesPermanentBan(t *testing.T) {
	bannedAt := testNow.Add(-time.Hour)
	cfg := identity.SecurityConfig{FailedAttemptsCount: 4, BannedAt: &bannedAt, BanReason: "fraud"}
	res := OnFailedAttempt(cfg, escalatingTiers(), testNow)
	require.Equal(t, DecisionTemporary, res.Decision.Kind)

	Apply(&cfg, res, testNow)

	assert.True(t, cfg.IsPermanentlyBanned())
	assert.Equal(t, "fraud", cfg.BanReason)
	assert.Equal(t, 5, cfg.FailedAttemptsCount)
}

func TestReconcileBanStateClearsExpiredTemporaryLock(t *testing.T) {
	bannedAt := testNow.Add(-time.Hour)
	expires := testNow.Add(-time.Minute)
	cfg := identity.SecurityConfig{FailedAttemptsCount: 5, BannedAt: &bannedAt, BanExpiresAt: &expires, BanReason: AutoLockReason}

	out, changed := ReconcileBanState(cfg, testNow)

	assert.True(t, changed)
	assert.Nil(t, out.BannedAt)
	assert.Nil(t, out.BanExpiresAt)
	assert.Empty(t, out.BanReason)
	assert.Equal(t, 5, out.FailedAttemptsCount, "counter is kept so later tiers still escalate")
	assert.NotNil(t, cfg.BannedAt, "input must not be mutated")
}

func TestReconcileBanStateLeavesActiveLocks(t *testing.T) {
	bannedAt := testNow.Add(-time.Hour)
	future := testNow.Add(time.Minute)

	_, changed := ReconcileBanState(identity.SecurityConfig{BannedAt: &bannedAt, BanExpiresAt: &future}, testNow)
	assert.False(t, changed)

	_, changed = ReconcileBanState(identity.SecurityConfig{BannedAt: &bannedAt}, testNow)
	assert.False(t, changed)
}
