// Package session provides Redis-backed session persistence.
//
// # Token format
//
// Clients hold "<id>.<secret>". The store keeps only SHA-256(secret), so a
// leaked Redis snapshot cannot be replayed as bearer tokens.
//
// # Write-once records
//
// A session, including its creation-time [Snapshot], is written exactly once
// with SET NX and a native TTL. There is no update path; sessions end by
// revocation or expiry.
//
// # What this package must NOT do
//
//   - Import the root package, jwt, or permission.
//   - Make authorization decisions.
//   - Store plaintext secrets in [Session] fields.
package session
