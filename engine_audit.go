package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/audit"
)

const (
	auditCategorySignIn        = "sign-in"
	auditCategoryLockout       = "lockout"
	auditCategorySession       = "session"
	auditCategoryTwoFactor     = "two-factor"
	auditCategoryImpersonation = "impersonation"
	auditCategoryAdmin         = "admin"
	auditCategoryPassword      = "password"
	auditCategoryRegistration  = "registration"
	auditCategorySudo          = "sudo"
)

const (
	auditActionPassword              = "password"
	auditActionTwoFactor             = "two-factor"
	auditActionImpersonation         = "impersonation"
	auditActionLock                  = "lock"
	auditActionUnlock                = "unlock"
	auditActionCreate                = "create"
	auditActionRevoke                = "revoke"
	auditActionRevokeAll             = "revoke-all"
	auditActionRevokeMany            = "revoke-many"
	auditActionEnroll                = "enroll"
	auditActionConfirm               = "confirm"
	auditActionRegenerateBackupCodes = "regenerate-backup-codes"
	auditActionDisable               = "disable"
	auditActionGrant                 = "grant"
	auditActionBan                   = "ban"
	auditActionUnban                 = "unban"
	auditActionRequireTwoFactor      = "require-2fa"
	auditActionRequirePasswordChange = "require-password-change"
	auditActionKick                  = "kick"
	auditActionChange                = "change"
	auditActionCheck                 = "check"
	auditActionVerify                = "verify"
	auditActionHashUpgrade           = "hash-upgrade"
)

// AuditErrorCode is the stable error vocabulary carried by failed and
// pending audit events.
type AuditErrorCode string

const (
	AuditErrValidation                AuditErrorCode = "validation"
	AuditErrNoUser                    AuditErrorCode = "no-user"
	AuditErrNoAccount                 AuditErrorCode = "no-account"
	AuditErrNoAccountPassword         AuditErrorCode = "no-account-password"
	AuditErrMatchPassword             AuditErrorCode = "match-password-error"
	AuditErrPermanentlyBanned         AuditErrorCode = "account-permanently-banned"
	AuditErrTemporarilyBanned         AuditErrorCode = "account-temporarily-banned"
	AuditErrEnterTwoFactor            AuditErrorCode = "enter-2fa"
	AuditErrInvalidTwoFactor          AuditErrorCode = "invalid-2fa"
	AuditErrInvalidBackupCode         AuditErrorCode = "invalid-backup-code"
	AuditErrTwoFactorRateLimited      AuditErrorCode = "2fa-rate-limited"
	AuditErrInvalidImpersonationToken AuditErrorCode = "invalid-impersonation-token"
	AuditErrImpersonationPermission   AuditErrorCode = "impersonation-permission-error"
	AuditErrLoginDisabled             AuditErrorCode = "login-disabled"
	AuditErrProviderNotAllowed        AuditErrorCode = "provider-not-allowed"
	AuditErrRegisterDisabled          AuditErrorCode = "register-disabled"
	AuditErrEmailDomainNotAllowed     AuditErrorCode = "not-allowed-email-domain"
	AuditErrBlockedIP                 AuditErrorCode = "blocked-ip-address"
	AuditErrInsufficientRole          AuditErrorCode = "insufficient-role"
	AuditErrSudoRequired              AuditErrorCode = "sudo-required"
	AuditErrSessionNotFound           AuditErrorCode = "session-not-found"
	AuditErrCurrentSession            AuditErrorCode = "current-session"
	AuditErrPasswordPolicy            AuditErrorCode = "password-policy"
	AuditErrPasswordReuse             AuditErrorCode = "password-reuse"
	AuditErrUnavailable               AuditErrorCode = "backend-unavailable"
	AuditErrInternal                  AuditErrorCode = "internal-error"
)

// providerCode renders "provider-not-allowed:<name>".
func providerCode(provider string) AuditErrorCode {
	return AuditErrProviderNotAllowed + AuditErrorCode(":"+provider)
}

type auditRecord struct {
	category  string
	action    string
	status    audit.Status
	code      AuditErrorCode
	err       error
	userID    string
	actorID   string
	sessionID string
	metadata  func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if rec.metadata != nil {
		metadata = rec.metadata()
	}

	status := rec.status
	if status == "" {
		status = audit.StatusSuccess
		if rec.err != nil || rec.code != "" {
			status = audit.StatusFailure
		}
	}

	code := rec.code
	if code == "" {
		code = auditErrorCode(rec.err)
	}

	e.audit.Emit(ctx, audit.Event{
		Timestamp: e.now().UTC(),
		Category:  rec.category,
		Action:    rec.action,
		Status:    status,
		Error:     string(code),
		UserID:    rec.userID,
		ActorID:   rec.actorID,
		SessionID: rec.sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Metadata:  metadata,
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var provider *ProviderError
	if errors.As(err, &provider) {
		return providerCode(provider.Provider)
	}

	switch {
	case errors.Is(err, ErrValidation):
		return AuditErrValidation
	case errors.Is(err, ErrPasswordVerification),
		errors.Is(err, ErrInvalidCredentials):
		return AuditErrMatchPassword
	case errors.Is(err, ErrUserNotFound):
		return AuditErrNoUser
	case errors.Is(err, ErrAccountPermanentlyBanned):
		return AuditErrPermanentlyBanned
	case errors.Is(err, ErrAccountTemporarilyBanned):
		return AuditErrTemporarilyBanned
	case errors.Is(err, ErrInvalidTwoFactorCode),
		errors.Is(err, ErrChallengeInvalid),
		errors.Is(err, ErrChallengeAttemptsExceeded),
		errors.Is(err, ErrTwoFactorNotEnabled),
		errors.Is(err, ErrTwoFactorNotPending):
		return AuditErrInvalidTwoFactor
	case errors.Is(err, ErrInvalidBackupCode):
		return AuditErrInvalidBackupCode
	case errors.Is(err, ErrTwoFactorRateLimited):
		return AuditErrTwoFactorRateLimited
	case errors.Is(err, ErrInvalidImpersonationToken):
		return AuditErrInvalidImpersonationToken
	case errors.Is(err, ErrImpersonationPermission):
		return AuditErrImpersonationPermission
	case errors.Is(err, ErrLoginDisabled):
		return AuditErrLoginDisabled
	case errors.Is(err, ErrRegistrationDisabled):
		return AuditErrRegisterDisabled
	case errors.Is(err, ErrEmailDomainNotAllowed):
		return AuditErrEmailDomainNotAllowed
	case errors.Is(err, ErrIPBlocked):
		return AuditErrBlockedIP
	case errors.Is(err, ErrInsufficientRole):
		return AuditErrInsufficientRole
	case errors.Is(err, ErrSudoRequired):
		return AuditErrSudoRequired
	case errors.Is(err, ErrSessionNotFound):
		return AuditErrSessionNotFound
	case errors.Is(err, ErrCannotRevokeCurrentSession):
		return AuditErrCurrentSession
	case errors.Is(err, ErrPasswordPolicy):
		return AuditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return AuditErrPasswordReuse
	case errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, ErrBackupCodeUnavailable),
		errors.Is(err, ErrSessionCreationFailed):
		return AuditErrUnavailable
	default:
		return AuditErrInternal
	}
}
