package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/lockout"
)

// LockoutDeps captures what the failed-password flow needs from the host.
type LockoutDeps struct {
	Now                  func() time.Time
	ListLockoutTiers     func(ctx context.Context) ([]identity.LockoutTier, error)
	UpdateSecurityConfig func(ctx context.Context, userID string, mutate func(*identity.SecurityConfig) error) (identity.SecurityConfig, error)
}

// RunRecordPasswordFailure increments the failed-attempt counter and applies
// the matching tier in one atomic store update. The update is detached from
// ctx cancellation: a failure that reached this point is always counted.
func RunRecordPasswordFailure(ctx context.Context, userID string, deps LockoutDeps) (lockout.Result, identity.SecurityConfig, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx = context.WithoutCancel(ctx)

	tiers, err := deps.ListLockoutTiers(ctx)
	if err != nil {
		return lockout.Result{}, identity.SecurityConfig{}, err
	}

	var result lockout.Result
	cfg, err := deps.UpdateSecurityConfig(ctx, userID, func(cfg *identity.SecurityConfig) error {
		now := deps.Now()
		*cfg, _ = lockout.ReconcileBanState(*cfg, now)
		result = lockout.OnFailedAttempt(*cfg, tiers, now)
		lockout.Apply(cfg, result, now)
		return nil
	})
	if err != nil {
		return lockout.Result{}, identity.SecurityConfig{}, err
	}
	return result, cfg, nil
}
