// Package permission orders roles and answers the two privilege questions the
// engine asks: may an actor mutate a target, and may an actor impersonate a
// target.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import the root package or session.
package permission
