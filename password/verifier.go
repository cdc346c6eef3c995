package password

import (
	"fmt"
	"strings"
)

// Verifier is the credential verifier used by the sign-in flows. New hashes
// are always Argon2id; bcrypt hashes are accepted and flagged for upgrade.
type Verifier struct {
	argon *Argon2
}

// NewVerifier builds a Verifier whose new hashes use cfg.
func NewVerifier(cfg Config) (*Verifier, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Verifier{argon: a}, nil
}

// Hash returns an Argon2id PHC string.
func (v *Verifier) Hash(password string) (string, error) {
	return v.argon.Hash(password)
}

// Verify dispatches on the stored hash's prefix. (false, nil) is a mismatch;
// any error means the hash itself could not be checked.
func (v *Verifier) Verify(password, encodedHash string) (bool, error) {
	switch {
	case isBcrypt(encodedHash):
		return verifyBcrypt(password, encodedHash)
	case strings.HasPrefix(encodedHash, argon2Prefix):
		return v.argon.Verify(password, encodedHash)
	default:
		return false, fmt.Errorf("%w: unknown hash scheme", ErrMalformedHash)
	}
}

// NeedsUpgrade reports whether encodedHash should be replaced after a
// successful verification.
func (v *Verifier) NeedsUpgrade(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	upgrade, err := v.argon.NeedsUpgrade(encodedHash)
	return err == nil && upgrade
}
