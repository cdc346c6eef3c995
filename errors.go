package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEngineNotReady is returned when a method is called on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrValidation is the generic rejection for malformed input. It never names the field.
	ErrValidation = errors.New("invalid request")
	// ErrInvalidCredentials covers unknown users, accounts without a password and
	// wrong passwords. The cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordVerification is a verifier fault, never a mismatch.
	ErrPasswordVerification = errors.New("password verification failed")
	ErrBackendUnavailable   = errors.New("authentication backend unavailable")
	ErrUserNotFound         = errors.New("user not found")

	ErrAccountPermanentlyBanned = errors.New("account permanently banned")
	ErrAccountTemporarilyBanned = errors.New("account temporarily banned")

	ErrLoginDisabled         = errors.New("login disabled")
	ErrProviderNotAllowed    = errors.New("provider not allowed")
	ErrRegistrationDisabled  = errors.New("registration disabled")
	ErrEmailDomainNotAllowed = errors.New("email domain not allowed")
	ErrIPBlocked             = errors.New("ip address blocked")

	ErrChallengeInvalid          = errors.New("two-factor challenge invalid or expired")
	ErrChallengeAttemptsExceeded = errors.New("two-factor challenge attempts exceeded")
	ErrInvalidTwoFactorCode      = errors.New("invalid two-factor code")
	ErrTwoFactorRateLimited      = errors.New("too many invalid two-factor codes")
	ErrInvalidBackupCode         = errors.New("invalid backup code")
	ErrBackupCodeUnavailable     = errors.New("backup code backend unavailable")
	ErrTwoFactorNotEnabled       = errors.New("two-factor authentication not enabled")
	ErrTwoFactorAlreadyEnabled   = errors.New("two-factor authentication already enabled")
	ErrTwoFactorNotPending       = errors.New("no pending two-factor enrollment")

	ErrInvalidImpersonationToken = errors.New("invalid impersonation token")
	ErrImpersonationPermission   = errors.New("impersonation not permitted")

	ErrInsufficientRole = errors.New("insufficient role")
	ErrSudoRequired     = errors.New("recent password verification required")

	ErrSessionNotFound            = errors.New("session not found")
	ErrSessionCreationFailed      = errors.New("session creation failed")
	ErrCannotRevokeCurrentSession = errors.New("cannot revoke the current session through bulk revocation")

	ErrPasswordPolicy = errors.New("password policy violation")
	ErrPasswordReuse  = errors.New("new password must be different from current password")

	ErrAccessTokenDisabled = errors.New("access tokens disabled")
	ErrAccessTokenInvalid  = errors.New("invalid access token")
)

// BanError is returned when a sign-in reaches a locked account. It unwraps to
// ErrAccountPermanentlyBanned or ErrAccountTemporarilyBanned.
type BanError struct {
	Permanent bool
	Reason    string
	// ExpiresAt is zero for permanent bans.
	ExpiresAt time.Time
}

func (e *BanError) Error() string {
	msg := ErrAccountTemporarilyBanned.Error()
	if e.Permanent {
		msg = ErrAccountPermanentlyBanned.Error()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *BanError) Unwrap() error {
	if e.Permanent {
		return ErrAccountPermanentlyBanned
	}
	return ErrAccountTemporarilyBanned
}

// ProviderError names the sign-in provider rejected by the allow-list.
type ProviderError struct {
	Provider string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProviderNotAllowed.Error(), e.Provider)
}

func (e *ProviderError) Unwrap() error { return ErrProviderNotAllowed }

// PublicMessage translates err into text safe to show an end user. Ban
// reasons are the only detail surfaced on purpose.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}

	var ban *BanError
	if errors.As(err, &ban) {
		var msg string
		if ban.Permanent {
			msg = "Your account has been permanently suspended."
		} else {
			msg = fmt.Sprintf("Your account is temporarily locked until %s.", ban.ExpiresAt.UTC().Format(time.RFC1123))
		}
		if ban.Reason != "" {
			msg += " Reason: " + ban.Reason
		}
		return msg
	}

	switch {
	case errors.Is(err, ErrValidation):
		return "The request is invalid."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrLoginDisabled):
		return "Sign-in is currently disabled."
	case errors.Is(err, ErrProviderNotAllowed):
		return "This sign-in method is not available."
	case errors.Is(err, ErrRegistrationDisabled):
		return "Registration is currently disabled."
	case errors.Is(err, ErrEmailDomainNotAllowed):
		return "This email domain is not allowed."
	case errors.Is(err, ErrIPBlocked):
		return "Requests from your network are not allowed."
	case errors.Is(err, ErrChallengeInvalid),
		errors.Is(err, ErrChallengeAttemptsExceeded):
		return "Your sign-in attempt expired. Please sign in again."
	case errors.Is(err, ErrInvalidTwoFactorCode):
		return "Invalid two-factor code."
	case errors.Is(err, ErrInvalidBackupCode):
		return "Invalid backup code."
	case errors.Is(err, ErrTwoFactorRateLimited):
		return "Too many invalid codes. Please wait before trying again."
	case errors.Is(err, ErrInvalidImpersonationToken):
		return "The impersonation link is invalid or has expired."
	case errors.Is(err, ErrImpersonationPermission),
		errors.Is(err, ErrInsufficientRole):
		return "You do not have permission to perform this action."
	case errors.Is(err, ErrSudoRequired):
		return "Please confirm your password to continue."
	case errors.Is(err, ErrCannotRevokeCurrentSession):
		return "You cannot revoke the session you are currently using."
	case errors.Is(err, ErrPasswordPolicy):
		return "The new password does not meet the password requirements."
	case errors.Is(err, ErrPasswordReuse):
		return "The new password must differ from the current one."
	case errors.Is(err, ErrSessionNotFound):
		return "Your session has ended. Please sign in again."
	default:
		return "Something went wrong. Please try again later."
	}
}
