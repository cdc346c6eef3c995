// Package lockout holds the progressive lockout policy: tier ordering, the
// failed-attempt decision and lazy ban-expiry reconciliation.
//
// # Design
//
// Every function here is pure. The caller applies a [Result] inside the
// identity store's atomic security-config update, so the increment and the
// lock decision commit together.
//
// # What this package must NOT do
//
//   - Perform I/O or read the clock itself (callers pass now).
//   - Import authcore.
package lockout
