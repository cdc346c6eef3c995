package password

import "errors"

var (
	// ErrMalformedHash is returned when a stored hash cannot be parsed. It is
	// never reported as a mismatch.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrPasswordPolicy is returned by Hash for inputs outside the length bounds.
	ErrPasswordPolicy = errors.New("password does not satisfy length policy")
)
