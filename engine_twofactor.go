package authcore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/flows"
	"go.uber.org/zap"
)

// TOTPEnrollment is a pending secret awaiting confirmation. URL is an
// otpauth:// URI suitable for a QR code.
type TOTPEnrollment struct {
	Secret string
	URL    string
}

// BeginTOTPEnrollment stores a new pending secret for userID. Pending
// secrets never gate sign-in until confirmed.
func (e *Engine) BeginTOTPEnrollment(ctx context.Context, userID string) (TOTPEnrollment, error) {
	if err := e.ready(); err != nil {
		return TOTPEnrollment{}, err
	}

	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return TOTPEnrollment{}, err
	}
	enrollments, err := e.identity.ListTwoFactorEnrollments(ctx, user.ID)
	if err != nil {
		return TOTPEnrollment{}, backendErr(err)
	}
	if _, ok := identity.EnabledEnrollment(enrollments); ok {
		return TOTPEnrollment{}, ErrTwoFactorAlreadyEnabled
	}

	account := user.Email
	if account == "" {
		account = user.ID
	}
	gen, err := e.totp.Generate(account)
	if err != nil {
		return TOTPEnrollment{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	err = e.identity.SaveTwoFactorEnrollment(ctx, identity.TwoFactorEnrollment{
		UserID:    user.ID,
		Secret:    gen.Secret,
		CreatedAt: e.now().UTC(),
	})
	if err != nil {
		return TOTPEnrollment{}, backendErr(err)
	}

	e.emitAudit(ctx, auditRecord{
		category: auditCategoryTwoFactor,
		action:   auditActionEnroll,
		status:   AuditPending,
		userID:   user.ID,
	})
	return TOTPEnrollment{Secret: gen.Secret, URL: gen.URL}, nil
}

// ConfirmTOTPEnrollment enables the newest pending enrollment once code
// proves the authenticator is set up, and returns the first batch of
// backup codes.
func (e *Engine) ConfirmTOTPEnrollment(ctx context.Context, userID, code string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	enrollments, err := e.identity.ListTwoFactorEnrollments(ctx, user.ID)
	if err != nil {
		return nil, backendErr(err)
	}
	if _, ok := identity.EnabledEnrollment(enrollments); ok {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	var pending *identity.TwoFactorEnrollment
	for i := len(enrollments) - 1; i >= 0; i-- {
		if !enrollments[i].IsEnabled {
			pending = &enrollments[i]
			break
		}
	}
	if pending == nil {
		return nil, ErrTwoFactorNotPending
	}

	step, err := e.checkTOTP(ctx, user.ID, *pending, code, auditActionConfirm)
	if err != nil {
		return nil, err
	}

	pending.IsEnabled = true
	pending.LastUsedCounter = step
	if err := e.identity.SaveTwoFactorEnrollment(ctx, *pending); err != nil {
		return nil, backendErr(err)
	}

	codes, err := flows.RunGenerateBackupCodes(ctx, user.ID, e.flows.BackupCodes)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditRecord{
		category: auditCategoryTwoFactor,
		action:   auditActionConfirm,
		userID:   user.ID,
	})
	e.notify(ctx, Notification{
		Kind: NotifyTwoFactorEnabled,
		To:   user.Email,
		Name: displayName(user),
	})
	return codes, nil
}

// RegenerateBackupCodes replaces every backup code of userID with a fresh
// batch. A current TOTP code is required.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	enrollments, err := e.identity.ListTwoFactorEnrollments(ctx, userID)
	if err != nil {
		return nil, backendErr(err)
	}
	enrollment, ok := identity.EnabledEnrollment(enrollments)
	if !ok {
		return nil, ErrTwoFactorNotEnabled
	}
	if _, err := e.checkTOTP(ctx, userID, enrollment, totpCode, auditActionRegenerateBackupCodes); err != nil {
		return nil, err
	}

	return flows.RunGenerateBackupCodes(ctx, userID, e.flows.BackupCodes)
}

func (e *Engine) checkTOTP(ctx context.Context, userID string, enrollment identity.TwoFactorEnrollment, code, action string) (int64, error) {
	step, valid, err := e.acceptTOTP(ctx, userID, enrollment, code)
	if err != nil {
		return 0, err
	}
	if !valid {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditRecord{
			category: auditCategoryTwoFactor,
			action:   action,
			err:      ErrInvalidTwoFactorCode,
			userID:   userID,
		})
		return 0, ErrInvalidTwoFactorCode
	}
	return step, nil
}

// acceptTOTP verifies code against enrollment and spends the matched time
// step, so each code verifies at most once. It returns the spent step.
func (e *Engine) acceptTOTP(ctx context.Context, userID string, enrollment identity.TwoFactorEnrollment, code string) (int64, bool, error) {
	step, valid, err := e.totp.Verify(enrollment.Secret, code, e.now())
	if err != nil {
		e.logger.Error("stored totp secret unusable",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0, false, fmt.Errorf("two-factor verification: %w", err)
	}
	if !valid {
		return 0, false, nil
	}

	advanced := step > enrollment.LastUsedCounter
	if advanced {
		advanced, err = e.identity.AdvanceTOTPCounter(ctx, enrollment.ID, step)
		if err != nil {
			return 0, false, backendErr(err)
		}
	}
	if !advanced {
		e.logger.Info("totp code replayed", zap.String("user_id", userID), zap.Int64("step", step))
		return 0, false, nil
	}
	return step, true, nil
}

// disableTwoFactor removes every enrollment and backup code of user.
func (e *Engine) disableTwoFactor(ctx context.Context, user identity.User, actorID string) error {
	if err := e.identity.DeleteTwoFactorEnrollments(ctx, user.ID); err != nil {
		return backendErr(err)
	}
	if err := e.identity.DeleteBackupCodes(ctx, user.ID); err != nil {
		return backendErr(err)
	}

	e.emitAudit(ctx, auditRecord{
		category: auditCategoryTwoFactor,
		action:   auditActionDisable,
		userID:   user.ID,
		actorID:  actorID,
		metadata: func() map[string]string {
			return map[string]string{"by_admin": strconv.FormatBool(actorID != "")}
		},
	})
	e.notify(ctx, Notification{
		Kind: NotifyTwoFactorDisabled,
		To:   user.Email,
		Name: displayName(user),
	})
	return nil
}
