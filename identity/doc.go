// Package identity defines the persistent records the authentication core
// consumes (users, credential accounts, per-user security configuration,
// lockout tiers, two-factor enrollments, backup codes) and the [Store]
// repository interface through which it reads and writes them.
//
// # Architecture boundaries
//
// Schema management, user CRUD and deletion belong to the host application.
// This package only names the operations the core needs. Implementations live
// in sub-packages (memstore, gormstore) or in the host application.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling package (no upward imports).
//   - Make authentication decisions.
//   - Store plaintext backup codes or passwords.
package identity
