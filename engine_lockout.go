package authcore

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/lockout"
	"go.uber.org/zap"
)

// reconcileBanState loads the user's security row and clears a temporary
// lock whose expiry has passed. The clearing is persisted through the
// store's atomic update so it cannot race a concurrent lock decision.
func (e *Engine) reconcileBanState(ctx context.Context, userID string) (identity.SecurityConfig, error) {
	cfg, err := e.identity.GetSecurityConfig(ctx, userID)
	if err != nil {
		return identity.SecurityConfig{}, backendErr(err)
	}
	if _, changed := lockout.ReconcileBanState(cfg, e.now()); !changed {
		return cfg, nil
	}

	var cleared bool
	cfg, err = e.identity.UpdateSecurityConfig(ctx, userID, func(c *identity.SecurityConfig) error {
		*c, cleared = lockout.ReconcileBanState(*c, e.now())
		return nil
	})
	if err != nil {
		return identity.SecurityConfig{}, backendErr(err)
	}
	if cleared {
		e.metricInc(MetricAccountUnlocked)
		e.emitAudit(ctx, auditRecord{
			category: auditCategoryLockout,
			action:   auditActionUnlock,
			userID:   userID,
			metadata: func() map[string]string {
				return map[string]string{"reason": "expired"}
			},
		})
	}
	return cfg, nil
}

func banError(cfg identity.SecurityConfig, now time.Time) *BanError {
	switch lockout.StateAt(cfg, now) {
	case lockout.PermanentlyLocked:
		return &BanError{Permanent: true, Reason: cfg.BanReason}
	case lockout.TemporarilyLocked:
		return &BanError{Reason: cfg.BanReason, ExpiresAt: *cfg.BanExpiresAt}
	default:
		return nil
	}
}

// checkBan is the ban gate shared by every sign-in mode. It runs before any
// credential is verified.
func (e *Engine) checkBan(ctx context.Context, userID, action string) (identity.SecurityConfig, error) {
	cfg, err := e.reconcileBanState(ctx, userID)
	if err != nil {
		return identity.SecurityConfig{}, err
	}

	ban := banError(cfg, e.now())
	if ban == nil {
		return cfg, nil
	}

	code := AuditErrTemporarilyBanned
	if ban.Permanent {
		code = AuditErrPermanentlyBanned
	}
	e.metricInc(MetricSignInBanned)
	e.emitAudit(ctx, auditRecord{
		category: auditCategorySignIn,
		action:   action,
		code:     code,
		err:      ban,
		userID:   userID,
		metadata: func() map[string]string {
			m := map[string]string{}
			if ban.Reason != "" {
				m["reason"] = ban.Reason
			}
			if !ban.ExpiresAt.IsZero() {
				m["expires_at"] = ban.ExpiresAt.UTC().Format(time.RFC3339)
			}
			return m
		},
	})
	return cfg, ban
}

// recordPasswordFailure counts one failed password against user and applies
// any lock the tiers call for. The update survives caller cancellation.
func (e *Engine) recordPasswordFailure(ctx context.Context, user identity.User) {
	res, cfg, err := flows.RunRecordPasswordFailure(ctx, user.ID, e.flows.Lockout)
	if err != nil {
		e.logger.Error("failed to record password failure",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return
	}
	if res.Decision.Locks() {
		e.onLocked(ctx, user, res, cfg)
	}
}

func (e *Engine) onLocked(ctx context.Context, user identity.User, res lockout.Result, cfg identity.SecurityConfig) {
	ctx = context.WithoutCancel(ctx)
	e.metricInc(MetricAccountLocked)

	revoked, err := e.sessions.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		e.logger.Error("failed to revoke sessions after lock",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	e.emitAudit(ctx, auditRecord{
		category: auditCategoryLockout,
		action:   auditActionLock,
		userID:   user.ID,
		metadata: func() map[string]string {
			m := map[string]string{
				"decision": res.Decision.Kind.String(),
				"tier":     res.Decision.Tier.ID,
				"attempts": strconv.Itoa(res.NewCount),
				"revoked":  strconv.Itoa(revoked),
			}
			if !res.Decision.ExpiresAt.IsZero() {
				m["expires_at"] = res.Decision.ExpiresAt.UTC().Format(time.RFC3339)
			}
			return m
		},
	})

	data := map[string]string{"reason": cfg.BanReason}
	if cfg.BanExpiresAt != nil {
		data["until"] = cfg.BanExpiresAt.UTC().Format(time.RFC1123)
	}
	e.notify(ctx, Notification{
		Kind: NotifyAccountLocked,
		To:   user.Email,
		Name: displayName(user),
		Data: data,
	})
}

// resetFailedAttempts zeroes the counter after a proven password.
func (e *Engine) resetFailedAttempts(ctx context.Context, userID string, cfg identity.SecurityConfig) {
	if cfg.FailedAttemptsCount == 0 {
		return
	}
	_, err := e.identity.UpdateSecurityConfig(ctx, userID, func(c *identity.SecurityConfig) error {
		c.FailedAttemptsCount = 0
		return nil
	})
	if err != nil {
		e.logger.Warn("failed to reset failed-attempt counter",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
