// Package password verifies and produces stored credential hashes.
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes ($2a$, $2b$, $2y$) verify but are always reported by
// [Verifier.NeedsUpgrade], so the caller re-hashes after the next successful
// sign-in.
//
// The package also owns backup-code generation and hashing, since those
// codes are password-equivalent secrets.
//
// # What this package must NOT do
//
//   - Store or retrieve hashes. Callers supply plaintext and receive hashes.
//   - Log plaintext passwords or hash parameters.
package password
