package authcore

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authcore/identity"
	"go.uber.org/zap"
)

// VerifyPassword re-checks the password of an already signed-in user and,
// on a match, opens the sudo window. A mismatch returns (false, nil) and
// counts toward the lockout tiers like a failed sign-in.
func (e *Engine) VerifyPassword(ctx context.Context, userID, password string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if userID == "" || password == "" || len(password) > e.config.Password.MaxPasswordBytes {
		return false, ErrValidation
	}

	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if _, err := e.checkBan(ctx, user.ID, auditActionVerify); err != nil {
		return false, err
	}

	secCfg, match, err := e.matchPassword(ctx, user, password, auditCategorySudo, auditActionVerify)
	if err != nil || !match {
		return false, err
	}

	if err := e.sudo.Mark(ctx, user.ID); err != nil {
		return false, backendErr(err)
	}
	e.resetFailedAttempts(ctx, user.ID, secCfg)

	e.metricInc(MetricSudoVerified)
	e.emitAudit(ctx, auditRecord{
		category: auditCategorySudo,
		action:   auditActionVerify,
		userID:   user.ID,
	})
	return true, nil
}

// RequireRecentVerification reports whether userID verified their password
// within the sudo window.
func (e *Engine) RequireRecentVerification(ctx context.Context, userID string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	ok, err := e.sudo.Recent(ctx, userID)
	if err != nil {
		return false, backendErr(err)
	}
	return ok, nil
}

func (e *Engine) requireSudo(ctx context.Context, userID string) error {
	ok, err := e.RequireRecentVerification(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSudoRequired
	}
	return nil
}

// matchPassword verifies pw against the user's password account. A
// mismatch is recorded against the lockout tiers and audited under
// category/action. Users without a password account never match.
func (e *Engine) matchPassword(ctx context.Context, user identity.User, pw, category, action string) (identity.SecurityConfig, bool, error) {
	accounts, err := e.identity.ListCredentialAccounts(ctx, user.ID)
	if err != nil {
		return identity.SecurityConfig{}, false, backendErr(err)
	}
	account, _, ok := identity.PasswordAccount(accounts)
	if !ok {
		e.equalizeTiming(pw)
		e.emitAudit(ctx, auditRecord{
			category: category,
			action:   action,
			code:     AuditErrNoAccountPassword,
			userID:   user.ID,
		})
		return identity.SecurityConfig{}, false, nil
	}

	match, err := e.verifier.Verify(pw, account.PasswordHash)
	if err != nil {
		e.metricInc(MetricPasswordVerifierError)
		e.logger.Error("password verifier fault",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		e.emitAudit(ctx, auditRecord{
			category: category,
			action:   action,
			code:     AuditErrMatchPassword,
			err:      err,
			userID:   user.ID,
		})
		return identity.SecurityConfig{}, false, fmt.Errorf("%w: %v", ErrPasswordVerification, err)
	}
	if !match {
		e.metricInc(MetricPasswordMismatch)
		e.recordPasswordFailure(ctx, user)
		e.emitAudit(ctx, auditRecord{
			category: category,
			action:   action,
			code:     AuditErrMatchPassword,
			userID:   user.ID,
		})
		return identity.SecurityConfig{}, false, nil
	}

	secCfg, err := e.identity.GetSecurityConfig(ctx, user.ID)
	if err != nil {
		return identity.SecurityConfig{}, false, backendErr(err)
	}
	return secCfg, true, nil
}
