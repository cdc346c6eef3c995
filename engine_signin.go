package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/permission"
	"go.uber.org/zap"
)

const maxEmailBytes = 320

// SignInMode is one of [PasswordSignIn], [TwoFactorSignIn] or
// [ImpersonationSignIn].
type SignInMode interface {
	signInMode()
}

// PasswordSignIn starts a sign-in from an email and password.
type PasswordSignIn struct {
	Email      string
	Password   string
	RememberMe bool
}

// TwoFactorSignIn continues a sign-in that returned a two-factor challenge.
// Exactly one of TOTPCode and BackupCode must be set.
type TwoFactorSignIn struct {
	ChallengeToken string
	TOTPCode       string
	BackupCode     string
}

// ImpersonationSignIn redeems an impersonation grant.
type ImpersonationSignIn struct {
	GrantID string
}

func (PasswordSignIn) signInMode()      {}
func (TwoFactorSignIn) signInMode()     {}
func (ImpersonationSignIn) signInMode() {}

type OutcomeKind int

const (
	OutcomeAuthenticated OutcomeKind = iota + 1
	OutcomeRetry
)

type ChallengeKind string

const ChallengeTwoFactor ChallengeKind = "two-factor"

// Challenge is handed back with OutcomeRetry. Token is opaque and must be
// sent back in a [TwoFactorSignIn].
type Challenge struct {
	Kind      ChallengeKind
	Token     string
	ExpiresAt time.Time
}

// SignInOutcome is the non-error result of [Engine.SignIn]. Session is set
// for OutcomeAuthenticated and Challenge for OutcomeRetry.
type SignInOutcome struct {
	Kind    OutcomeKind
	UserID  string
	Session *IssuedSession

	Challenge *Challenge

	// PasswordChangeRequired and TwoFactorSetupRequired carry admin-imposed
	// flags the caller should act on after sign-in.
	PasswordChangeRequired bool
	TwoFactorSetupRequired bool
}

// SignIn runs one step of the sign-in state machine. A rejected attempt
// returns a nil outcome and a typed error; [PublicMessage] translates it for
// end users.
func (e *Engine) SignIn(ctx context.Context, policy Policy, mode SignInMode) (*SignInOutcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	action := signInAction(mode)

	var (
		out *SignInOutcome
		err error
	)
	if ip := clientIPFromContext(ctx); ip != "" && !e.network.IPAllowed(ip) {
		e.metricInc(MetricSignInPolicyRejected)
		e.emitAudit(ctx, auditRecord{
			category: auditCategorySignIn,
			action:   action,
			err:      ErrIPBlocked,
		})
		err = ErrIPBlocked
	} else {
		switch m := mode.(type) {
		case PasswordSignIn:
			out, err = e.signInPassword(ctx, policy, m)
		case TwoFactorSignIn:
			out, err = e.signInTwoFactor(ctx, policy, m)
		case ImpersonationSignIn:
			out, err = e.signInImpersonation(ctx, policy, m)
		default:
			e.metricInc(MetricSignInValidation)
			e.emitAudit(ctx, auditRecord{
				category: auditCategorySignIn,
				action:   action,
				err:      ErrValidation,
			})
			err = ErrValidation
		}
	}

	switch {
	case err != nil:
		e.metricInc(MetricSignInFailure)
	case out.Kind == OutcomeAuthenticated:
		e.metricInc(MetricSignInSuccess)
	}
	e.metrics.Observe(MetricSignInLatency, time.Since(start))

	return out, err
}

func signInAction(mode SignInMode) string {
	switch mode.(type) {
	case TwoFactorSignIn:
		return auditActionTwoFactor
	case ImpersonationSignIn:
		return auditActionImpersonation
	default:
		return auditActionPassword
	}
}

func (e *Engine) signInPassword(ctx context.Context, policy Policy, req PasswordSignIn) (*SignInOutcome, error) {
	email := strings.TrimSpace(req.Email)
	if !validEmail(email) || req.Password == "" || len(req.Password) > e.config.Password.MaxPasswordBytes {
		e.metricInc(MetricSignInValidation)
		e.emitAudit(ctx, auditRecord{
			category: auditCategorySignIn,
			action:   auditActionPassword,
			err:      ErrValidation,
		})
		return nil, ErrValidation
	}

	user, err := e.identity.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			return nil, backendErr(err)
		}
		return nil, e.rejectCredentials(ctx, req.Password, "", AuditErrNoUser)
	}

	accounts, err := e.identity.ListCredentialAccounts(ctx, user.ID)
	if err != nil {
		return nil, backendErr(err)
	}
	account, hasProvider, ok := identity.PasswordAccount(accounts)
	if !ok {
		code := AuditErrNoAccount
		if hasProvider {
			code = AuditErrNoAccountPassword
		}
		return nil, e.rejectCredentials(ctx, req.Password, user.ID, code)
	}

	secCfg, err := e.checkBan(ctx, user.ID, auditActionPassword)
	if err != nil {
		return nil, err
	}

	match, err := e.verifier.Verify(req.Password, account.PasswordHash)
	if err != nil {
		e.metricInc(MetricPasswordVerifierError)
		e.logger.Error("password verifier fault",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		e.emitAudit(ctx, auditRecord{
			category: auditCategorySignIn,
			action:   auditActionPassword,
			code:     AuditErrMatchPassword,
			err:      err,
			userID:   user.ID,
			metadata: func() map[string]string {
				return map[string]string{"fault": "verifier"}
			},
		})
		return nil, fmt.Errorf("%w: %v", ErrPasswordVerification, err)
	}
	if !match {
		e.metricInc(MetricPasswordMismatch)
		e.recordPasswordFailure(ctx, user)
		e.emitAudit(ctx, auditRecord{
			category: auditCategorySignIn,
			action:   auditActionPassword,
			code:     AuditErrMatchPassword,
			userID:   user.ID,
		})
		return nil, ErrInvalidCredentials
	}

	if err := e.checkPolicy(ctx, policy, user, identity.ProviderPassword, auditActionPassword); err != nil {
		return nil, err
	}

	e.resetFailedAttempts(ctx, user.ID, secCfg)
	e.upgradeHash(ctx, user, account, req.Password)

	enrollments, err := e.identity.ListTwoFactorEnrollments(ctx, user.ID)
	if err != nil {
		return nil, backendErr(err)
	}
	_, enrolled := identity.EnabledEnrollment(enrollments)

	if enrolled && policy.TwoFactorEnabled {
		// A challenge nobody can answer is refused up front.
		if !policy.ProviderAllowed(identity.ProviderBackupCode) {
			if err := e.checkPolicy(ctx, policy, user, identity.ProviderTOTP, auditActionPassword); err != nil {
				return nil, err
			}
		}
		return e.issueChallenge(ctx, user, req.RememberMe)
	}
	return e.completeSignIn(ctx, user, secCfg, sessionOptions{rememberMe: req.RememberMe}, auditActionPassword, enrolled)
}

// rejectCredentials is the single exit for every identity-resolution
// failure. It costs one password hash so the response time does not reveal
// which step failed.
func (e *Engine) rejectCredentials(ctx context.Context, pw, userID string, code AuditErrorCode) error {
	e.equalizeTiming(pw)
	e.emitAudit(ctx, auditRecord{
		category: auditCategorySignIn,
		action:   auditActionPassword,
		code:     code,
		userID:   userID,
	})
	return ErrInvalidCredentials
}

func validEmail(email string) bool {
	if email == "" || len(email) > maxEmailBytes {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// checkPolicy applies the feature-flag snapshot. Superadmins may sign in
// while login is globally disabled.
func (e *Engine) checkPolicy(ctx context.Context, policy Policy, user identity.User, provider, action string) error {
	if !policy.LoginEnabled && user.Role != identity.RoleSuperAdmin {
		e.metricInc(MetricSignInPolicyRejected)
		e.emitAudit(ctx, auditRecord{
			category: auditCategorySignIn,
			action:   action,
			err:      ErrLoginDisabled,
			userID:   user.ID,
		})
		return ErrLoginDisabled
	}
	if !policy.ProviderAllowed(provider) {
		perr := &ProviderError{Provider: provider}
		e.metricInc(MetricSignInPolicyRejected)
		e.emitAudit(ctx, auditRecord{
			category: auditCategorySignIn,
			action:   action,
			err:      perr,
			userID:   user.ID,
		})
		return perr
	}
	return nil
}

func (e *Engine) issueChallenge(ctx context.Context, user identity.User, rememberMe bool) (*SignInOutcome, error) {
	token, err := internal.NewOpaqueIDString()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ttl := e.config.TwoFactor.ChallengeTTL
	expiresAt := e.now().Add(ttl)
	err = e.challenges.Save(ctx, token, &stores.Challenge{
		UserID:     user.ID,
		RememberMe: rememberMe,
		ExpiresAt:  expiresAt.Unix(),
	}, ttl)
	if err != nil {
		return nil, backendErr(err)
	}

	e.metricInc(MetricTwoFactorRequired)
	e.emitAudit(ctx, auditRecord{
		category: auditCategorySignIn,
		action:   auditActionPassword,
		status:   AuditPending,
		code:     AuditErrEnterTwoFactor,
		userID:   user.ID,
	})

	return &SignInOutcome{
		Kind:   OutcomeRetry,
		UserID: user.ID,
		Challenge: &Challenge{
			Kind:      ChallengeTwoFactor,
			Token:     token,
			ExpiresAt: expiresAt,
		},
	}, nil
}

func (e *Engine) signInTwoFactor(ctx context.Context, policy Policy, req TwoFactorSignIn) (*SignInOutcome, error) {
	totpCode := strings.TrimSpace(req.TOTPCode)
	backupCode := strings.TrimSpace(req.BackupCode)
	if req.ChallengeToken == "" || (totpCode == "") == (backupCode == "") {
		e.metricInc(MetricSignInValidation)
		e.emitAudit(ctx, auditRecord{
			category: auditCategorySignIn,
			action:   auditActionTwoFactor,
			err:      ErrValidation,
		})
		return nil, ErrValidation
	}

	ch, err := e.challenges.Get(ctx, req.ChallengeToken)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) || errors.Is(err, stores.ErrChallengeExpired) {
			e.metricInc(MetricTwoFactorFailure)
			e.emitAudit(ctx, auditRecord{
				category: auditCategorySignIn,
				action:   auditActionTwoFactor,
				err:      ErrChallengeInvalid,
			})
			return nil, ErrChallengeInvalid
		}
		return nil, backendErr(err)
	}

	user, err := e.loadUser(ctx, ch.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.discardChallenge(ctx, req.ChallengeToken)
			return nil, ErrChallengeInvalid
		}
		return nil, err
	}

	// A lock may have landed between the password step and now.
	secCfg, err := e.checkBan(ctx, user.ID, auditActionTwoFactor)
	if err != nil {
		e.discardChallenge(ctx, req.ChallengeToken)
		return nil, err
	}

	provider := identity.ProviderTOTP
	if backupCode != "" {
		provider = identity.ProviderBackupCode
	}
	if err := e.checkPolicy(ctx, policy, user, provider, auditActionTwoFactor); err != nil {
		return nil, err
	}
	if err := e.checkFactorLimit(ctx, user.ID); err != nil {
		return nil, err
	}

	if totpCode != "" {
		enrollments, err := e.identity.ListTwoFactorEnrollments(ctx, user.ID)
		if err != nil {
			return nil, backendErr(err)
		}
		enrollment, ok := identity.EnabledEnrollment(enrollments)
		if !ok {
			e.discardChallenge(ctx, req.ChallengeToken)
			e.emitAudit(ctx, auditRecord{
				category: auditCategorySignIn,
				action:   auditActionTwoFactor,
				err:      ErrTwoFactorNotEnabled,
				userID:   user.ID,
			})
			return nil, ErrTwoFactorNotEnabled
		}
		_, valid, err := e.acceptTOTP(ctx, user.ID, enrollment, totpCode)
		if err != nil {
			return nil, err
		}
		if !valid {
			return nil, e.failChallenge(ctx, req.ChallengeToken, user.ID, ErrInvalidTwoFactorCode)
		}
	} else {
		err := flows.RunConsumeBackupCode(ctx, user.ID, backupCode, e.flows.BackupCodes)
		switch {
		case errors.Is(err, ErrInvalidBackupCode):
			return nil, e.failChallenge(ctx, req.ChallengeToken, user.ID, ErrInvalidBackupCode)
		case err != nil:
			return nil, err
		}
	}

	if err := e.failures.Reset(ctx, user.ID); err != nil {
		e.logger.Warn("failed to reset two-factor failure count",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	consumed, err := e.challenges.Delete(ctx, req.ChallengeToken)
	if err != nil {
		return nil, backendErr(err)
	}
	if !consumed {
		e.emitAudit(ctx, auditRecord{
			category: auditCategorySignIn,
			action:   auditActionTwoFactor,
			err:      ErrChallengeInvalid,
			userID:   user.ID,
			metadata: func() map[string]string {
				return map[string]string{"reason": "already-consumed"}
			},
		})
		return nil, ErrChallengeInvalid
	}

	e.metricInc(MetricTwoFactorSuccess)
	return e.completeSignIn(ctx, user, secCfg, sessionOptions{rememberMe: ch.RememberMe}, auditActionTwoFactor, true)
}

// failChallenge spends one attempt on the challenge. The counter advances
// even if the caller gives up. Once no attempts remain the challenge is gone
// and the error also matches ErrChallengeAttemptsExceeded.
func (e *Engine) failChallenge(ctx context.Context, token, userID string, cause error) error {
	remaining, err := e.challenges.RecordFailure(context.WithoutCancel(ctx), token, e.config.TwoFactor.MaxChallengeAttempts)
	if err != nil && !errors.Is(err, stores.ErrChallengeNotFound) {
		e.logger.Error("failed to record two-factor failure",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	if err := e.failures.RecordFailure(context.WithoutCancel(ctx), userID); err != nil && !errors.Is(err, stores.ErrFactorLimited) {
		e.logger.Error("failed to count two-factor failure for user",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	e.metricInc(MetricTwoFactorFailure)
	e.emitAudit(ctx, auditRecord{
		category: auditCategorySignIn,
		action:   auditActionTwoFactor,
		err:      cause,
		userID:   userID,
		metadata: func() map[string]string {
			return map[string]string{"remaining": strconv.Itoa(remaining)}
		},
	})

	if err == nil && remaining > 0 {
		return cause
	}
	e.metricInc(MetricChallengeExhausted)
	return fmt.Errorf("%w: %w", ErrChallengeAttemptsExceeded, cause)
}

// checkFactorLimit rejects the continuation while userID has too many wrong
// codes across challenges. The challenge itself is left in place.
func (e *Engine) checkFactorLimit(ctx context.Context, userID string) error {
	err := e.failures.Check(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, stores.ErrFactorLimited) {
		return backendErr(err)
	}
	e.metricInc(MetricTwoFactorFailure)
	e.emitAudit(ctx, auditRecord{
		category: auditCategorySignIn,
		action:   auditActionTwoFactor,
		err:      ErrTwoFactorRateLimited,
		userID:   userID,
	})
	return ErrTwoFactorRateLimited
}

func (e *Engine) discardChallenge(ctx context.Context, token string) {
	if _, err := e.challenges.Delete(context.WithoutCancel(ctx), token); err != nil {
		e.logger.Warn("failed to discard two-factor challenge", zap.Error(err))
	}
}

func (e *Engine) signInImpersonation(ctx context.Context, policy Policy, req ImpersonationSignIn) (*SignInOutcome, error) {
	if strings.TrimSpace(req.GrantID) == "" {
		e.metricInc(MetricSignInValidation)
		e.emitAudit(ctx, auditRecord{
			category: auditCategorySignIn,
			action:   auditActionImpersonation,
			err:      ErrValidation,
		})
		return nil, ErrValidation
	}

	// The grant is gone from here on, whatever the outcome.
	grant, err := e.grants.Redeem(ctx, req.GrantID)
	if err != nil {
		if !errors.Is(err, stores.ErrGrantNotFound) {
			return nil, backendErr(err)
		}
		return nil, e.rejectImpersonation(ctx, "", "", ErrInvalidImpersonationToken)
	}

	impersonator, err := e.loadUser(ctx, grant.ImpersonatorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.rejectImpersonation(ctx, "", grant.ImpersonatorID, ErrInvalidImpersonationToken)
		}
		return nil, err
	}
	target, err := e.loadUser(ctx, grant.TargetID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.rejectImpersonation(ctx, "", impersonator.ID, ErrInvalidImpersonationToken)
		}
		return nil, err
	}

	// Roles are re-checked at redemption; either side may have changed since
	// the grant was issued.
	if err := permission.CanImpersonate(impersonator.Role, target.Role); err != nil {
		return nil, e.rejectImpersonation(ctx, target.ID, impersonator.ID,
			fmt.Errorf("%w: %v", ErrImpersonationPermission, err))
	}

	if _, err := e.checkBan(ctx, impersonator.ID, auditActionImpersonation); err != nil {
		e.metricInc(MetricImpersonationFailure)
		return nil, err
	}
	targetCfg, err := e.checkBan(ctx, target.ID, auditActionImpersonation)
	if err != nil {
		e.metricInc(MetricImpersonationFailure)
		return nil, err
	}

	if err := e.checkPolicy(ctx, policy, impersonator, identity.ProviderImpersonation, auditActionImpersonation); err != nil {
		return nil, err
	}

	out, err := e.completeSignIn(ctx, target, targetCfg, sessionOptions{
		impersonatorID: impersonator.ID,
		ttl:            e.config.Impersonation.SessionTTL,
	}, auditActionImpersonation, true)
	if err != nil {
		e.metricInc(MetricImpersonationFailure)
		return nil, err
	}
	e.metricInc(MetricImpersonationSuccess)
	return out, nil
}

func (e *Engine) rejectImpersonation(ctx context.Context, targetID, actorID string, err error) error {
	e.metricInc(MetricImpersonationFailure)
	e.emitAudit(ctx, auditRecord{
		category: auditCategorySignIn,
		action:   auditActionImpersonation,
		err:      err,
		userID:   targetID,
		actorID:  actorID,
	})
	return err
}

// completeSignIn is the shared tail of every mode: issue the session and
// record the outcome.
func (e *Engine) completeSignIn(ctx context.Context, user identity.User, secCfg identity.SecurityConfig, opts sessionOptions, action string, enrolled bool) (*SignInOutcome, error) {
	issued, err := e.issueSession(ctx, user, opts)
	if err != nil {
		e.emitAudit(ctx, auditRecord{
			category: auditCategorySignIn,
			action:   action,
			err:      err,
			userID:   user.ID,
			actorID:  opts.impersonatorID,
		})
		return nil, err
	}

	e.emitAudit(ctx, auditRecord{
		category:  auditCategorySignIn,
		action:    action,
		userID:    user.ID,
		actorID:   opts.impersonatorID,
		sessionID: issued.Session.ID,
		metadata: func() map[string]string {
			m := map[string]string{
				"remember_me": strconv.FormatBool(opts.rememberMe),
			}
			if issued.Session.Snapshot.Country != "" {
				m["country"] = issued.Session.Snapshot.Country
			}
			return m
		},
	})

	out := &SignInOutcome{
		Kind:    OutcomeAuthenticated,
		UserID:  user.ID,
		Session: issued,
	}
	if opts.impersonatorID == "" {
		out.PasswordChangeRequired = secCfg.RequiresPasswordChange
		out.TwoFactorSetupRequired = secCfg.RequiresTwoFactorAuth && !enrolled
	}
	return out, nil
}

// upgradeHash replaces a legacy or under-strength hash after a proven
// password. Failures leave the old hash in place.
func (e *Engine) upgradeHash(ctx context.Context, user identity.User, account identity.CredentialAccount, pw string) {
	if !e.config.Password.UpgradeOnLogin || !e.verifier.NeedsUpgrade(account.PasswordHash) {
		return
	}
	hash, err := e.verifier.Hash(pw)
	if err == nil {
		err = e.identity.UpdatePasswordHash(context.WithoutCancel(ctx), account.ID, hash)
	}
	if err != nil {
		e.logger.Warn("password hash upgrade failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return
	}
	e.metricInc(MetricPasswordHashUpgraded)
	e.emitAudit(ctx, auditRecord{
		category: auditCategoryPassword,
		action:   auditActionHashUpgrade,
		userID:   user.ID,
	})
}
