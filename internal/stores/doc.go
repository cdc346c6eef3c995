// Package stores provides Redis-backed, short-lived record stores for the
// sign-in flows: two-factor challenges, the per-user second-factor failure limiter,
// impersonation grants and sudo marks.
//
// # Design
//
// Each store persists a small record with a native TTL and also checks expiry
// lazily on read. Challenge failure counting uses WATCH/MULTI optimistic
// transactions with retry on contention. Grant creation and redemption are Lua
// scripts, so "one grant per impersonator" and "redeem exactly once" hold
// under concurrency. Grant keys carry a {prefix} hash tag so the scripts
// work on Redis Cluster.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Make authentication decisions. Callers interpret the records.
package stores
