// Package middleware exposes HTTP adapters over authcore.Engine: request
// context capture, session guards and the sudo gate.
//
// # Middleware
//
//   - [ClientContext] copies the client IP and User-Agent into the request
//     context so sign-in, audit and the session snapshot can read them.
//   - [RequireSession] resolves an opaque session token from the
//     Authorization header or session cookie.
//   - [RequireAccessToken] verifies a short-lived access JWT without Redis.
//   - [RequireRecentVerification] rejects callers outside their sudo window.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every decision
// is delegated to the Engine; nothing here touches Redis or parses tokens.
package middleware
