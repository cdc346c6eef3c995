// Package flows contains dependency-injected flow functions used by the Engine.
//
// Each flow function accepts a typed dependency struct of closures and
// returns results without side effects beyond those dependencies. The Engine
// owns every resource; flows only sequence calls.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through the dependency closures.
package flows
