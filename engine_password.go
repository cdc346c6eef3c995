package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/password"
	"go.uber.org/zap"
)

// ChangePassword replaces the password of userID after verifying current.
// On success every session of the user is revoked, including the one that
// made the request, and the sudo window is closed.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == "" || current == "" || next == "" {
		return ErrValidation
	}

	err := e.changePassword(ctx, userID, current, next)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		return err
	}
	e.metricInc(MetricPasswordChangeSuccess)
	return nil
}

func (e *Engine) changePassword(ctx context.Context, userID, current, next string) error {
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := e.checkBan(ctx, user.ID, auditActionChange); err != nil {
		return err
	}

	accounts, err := e.identity.ListCredentialAccounts(ctx, user.ID)
	if err != nil {
		return backendErr(err)
	}
	account, _, ok := identity.PasswordAccount(accounts)
	if !ok {
		e.emitAudit(ctx, auditRecord{
			category: auditCategoryPassword,
			action:   auditActionChange,
			code:     AuditErrNoAccountPassword,
			userID:   user.ID,
		})
		return ErrInvalidCredentials
	}

	_, match, err := e.matchPassword(ctx, user, current, auditCategoryPassword, auditActionChange)
	if err != nil {
		return err
	}
	if !match {
		return ErrInvalidCredentials
	}

	if current == next {
		e.emitAudit(ctx, auditRecord{
			category: auditCategoryPassword,
			action:   auditActionChange,
			err:      ErrPasswordReuse,
			userID:   user.ID,
		})
		return ErrPasswordReuse
	}

	hash, err := e.verifier.Hash(next)
	if err != nil {
		if errors.Is(err, password.ErrPasswordPolicy) {
			perr := fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
			e.emitAudit(ctx, auditRecord{
				category: auditCategoryPassword,
				action:   auditActionChange,
				err:      perr,
				userID:   user.ID,
			})
			return perr
		}
		return fmt.Errorf("%w: %v", ErrPasswordVerification, err)
	}

	if err := e.identity.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return backendErr(err)
	}

	// The password is committed; the remaining steps must not be skipped by
	// a cancelled request.
	ctx = context.WithoutCancel(ctx)

	_, err = e.identity.UpdateSecurityConfig(ctx, user.ID, func(c *identity.SecurityConfig) error {
		c.RequiresPasswordChange = false
		c.FailedAttemptsCount = 0
		return nil
	})
	if err != nil {
		e.logger.Warn("failed to clear password-change flag",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	revoked, err := e.revokeAll(ctx, user.ID, "")
	if err != nil {
		e.logger.Error("failed to revoke sessions after password change",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return err
	}
	if err := e.sudo.Clear(ctx, user.ID); err != nil {
		e.logger.Warn("failed to clear sudo window", zap.String("user_id", user.ID), zap.Error(err))
	}

	e.emitAudit(ctx, auditRecord{
		category: auditCategoryPassword,
		action:   auditActionChange,
		userID:   user.ID,
		metadata: func() map[string]string {
			return map[string]string{"revoked_sessions": strconv.Itoa(revoked)}
		},
	})
	e.notify(ctx, Notification{
		Kind: NotifyPasswordChanged,
		To:   user.Email,
		Name: displayName(user),
	})
	return nil
}
