// Package internal holds helpers private to the module: opaque identifiers
// and "<id>.<secret>" bearer tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: dependency-injected flow functions (failure recording, backup codes)
//   - lockout: tier evaluation and lazy ban expiry
//   - logging: zap logger construction for binaries
//   - stores: Redis stores for challenges, impersonation grants and sudo marks
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
package internal
