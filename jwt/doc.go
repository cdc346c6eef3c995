// Package jwt mints and verifies short-lived access tokens bound to issued
// sessions. Tokens carry the session ID, the user's role and, for
// impersonation sessions, the impersonator in the "act" claim.
package jwt
