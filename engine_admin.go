package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/permission"
)

// authorizeAdmin loads both users and applies the role-ordering check and,
// when configured, the actor's sudo window. Denials are audited under
// category/action.
func (e *Engine) authorizeAdmin(ctx context.Context, actorID, targetID, category, action string) (identity.User, identity.User, error) {
	actor, err := e.loadUser(ctx, actorID)
	if err != nil {
		return identity.User{}, identity.User{}, err
	}
	target, err := e.loadUser(ctx, targetID)
	if err != nil {
		return identity.User{}, identity.User{}, err
	}

	deny := func(err error) (identity.User, identity.User, error) {
		e.emitAudit(ctx, auditRecord{
			category: category,
			action:   action,
			err:      err,
			userID:   target.ID,
			actorID:  actor.ID,
		})
		return identity.User{}, identity.User{}, err
	}

	if err := permission.EnsureHigherRole(actor.Role, target.Role); err != nil {
		return deny(fmt.Errorf("%w: %v", ErrInsufficientRole, err))
	}
	if e.config.Admin.RequireSudo {
		if err := e.requireSudo(ctx, actor.ID); err != nil {
			if errors.Is(err, ErrSudoRequired) {
				return deny(err)
			}
			return identity.User{}, identity.User{}, err
		}
	}
	return actor, target, nil
}

func (e *Engine) adminUpdate(ctx context.Context, actorID, targetID, action string, mutate func(*identity.SecurityConfig), metadata func() map[string]string) (identity.User, error) {
	_, target, err := e.authorizeAdmin(ctx, actorID, targetID, auditCategoryAdmin, action)
	if err != nil {
		return identity.User{}, err
	}
	_, err = e.identity.UpdateSecurityConfig(ctx, target.ID, func(c *identity.SecurityConfig) error {
		mutate(c)
		return nil
	})
	if err != nil {
		return identity.User{}, backendErr(err)
	}

	e.metricInc(MetricAdminMutation)
	e.emitAudit(ctx, auditRecord{
		category: auditCategoryAdmin,
		action:   action,
		userID:   target.ID,
		actorID:  actorID,
		metadata: metadata,
	})
	return target, nil
}

// BanUser locks targetID. A zero duration bans permanently. Every session of
// the target is revoked.
func (e *Engine) BanUser(ctx context.Context, actorID, targetID, reason string, duration time.Duration) error {
	if err := e.ready(); err != nil {
		return err
	}
	if duration < 0 {
		return ErrValidation
	}

	now := e.now().UTC()
	reason = strings.TrimSpace(reason)
	var expiresAt *time.Time
	if duration > 0 {
		t := now.Add(duration)
		expiresAt = &t
	}

	_, err := e.adminUpdate(ctx, actorID, targetID, auditActionBan, func(c *identity.SecurityConfig) {
		c.BannedAt = &now
		c.BanReason = reason
		c.BanExpiresAt = expiresAt
	}, func() map[string]string {
		m := map[string]string{"permanent": strconv.FormatBool(expiresAt == nil)}
		if expiresAt != nil {
			m["expires_at"] = expiresAt.Format(time.RFC3339)
		}
		return m
	})
	if err != nil {
		return err
	}

	_, err = e.revokeAll(ctx, targetID, actorID)
	return err
}

// UnbanUser clears every ban field and the failed-attempt counter.
func (e *Engine) UnbanUser(ctx context.Context, actorID, targetID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, err := e.adminUpdate(ctx, actorID, targetID, auditActionUnban, func(c *identity.SecurityConfig) {
		c.BannedAt = nil
		c.BanReason = ""
		c.BanExpiresAt = nil
		c.FailedAttemptsCount = 0
	}, nil)
	return err
}

// RequireTwoFactor sets or clears the admin-imposed two-factor flag.
func (e *Engine) RequireTwoFactor(ctx context.Context, actorID, targetID string, required bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, err := e.adminUpdate(ctx, actorID, targetID, auditActionRequireTwoFactor, func(c *identity.SecurityConfig) {
		c.RequiresTwoFactorAuth = required
	}, func() map[string]string {
		return map[string]string{"required": strconv.FormatBool(required)}
	})
	return err
}

// RequirePasswordChange sets or clears the must-change-password flag.
func (e *Engine) RequirePasswordChange(ctx context.Context, actorID, targetID string, required bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, err := e.adminUpdate(ctx, actorID, targetID, auditActionRequirePasswordChange, func(c *identity.SecurityConfig) {
		c.RequiresPasswordChange = required
	}, func() map[string]string {
		return map[string]string{"required": strconv.FormatBool(required)}
	})
	return err
}

// DisableTwoFactor removes the target's enrollments and backup codes.
func (e *Engine) DisableTwoFactor(ctx context.Context, actorID, targetID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, target, err := e.authorizeAdmin(ctx, actorID, targetID, auditCategoryAdmin, auditActionDisable)
	if err != nil {
		return err
	}
	if err := e.disableTwoFactor(ctx, target, actorID); err != nil {
		return err
	}
	e.metricInc(MetricAdminMutation)
	return nil
}

// KickSessions revokes every session of targetID.
func (e *Engine) KickSessions(ctx context.Context, actorID, targetID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if _, _, err := e.authorizeAdmin(ctx, actorID, targetID, auditCategoryAdmin, auditActionKick); err != nil {
		return 0, err
	}
	n, err := e.revokeAll(ctx, targetID, actorID)
	if err != nil {
		return 0, err
	}
	e.metricInc(MetricAdminMutation)
	e.emitAudit(ctx, auditRecord{
		category: auditCategoryAdmin,
		action:   auditActionKick,
		userID:   targetID,
		actorID:  actorID,
		metadata: func() map[string]string {
			return map[string]string{"revoked": strconv.Itoa(n)}
		},
	})
	return n, nil
}
