// Package authcore is an authentication decision engine. It turns a
// credential presentation (password, TOTP code, backup code or an
// impersonation grant) into an issued session or a typed rejection, while
// enforcing tiered account lockout, two-factor step-up and role-bounded
// impersonation.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. Durable state lives behind the
// [identity.Store] boundary and in Redis; the Engine holds none between
// calls.
//
// # Sign-in
//
// [Engine.SignIn] takes a [Policy] snapshot and one [SignInMode]:
//
//   - [PasswordSignIn] checks ban state before the password, records
//     failures against the lockout tiers atomically, and returns
//     OutcomeRetry with a [Challenge] when an enabled TOTP enrollment exists.
//   - [TwoFactorSignIn] redeems that challenge with a TOTP or backup code.
//     Each challenge allows a bounded number of wrong codes.
//   - [ImpersonationSignIn] redeems a one-shot grant created by
//     [Engine.CreateImpersonationGrant].
//
// Unknown users, accounts without a password and wrong passwords all return
// the same [ErrInvalidCredentials]. Use [PublicMessage] to render any error
// for end users.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Let an audit sink or mailer failure change a decision.
//   - Import any sub-package that re-imports authcore (no import cycles).
package authcore
