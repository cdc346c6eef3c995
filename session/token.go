package session

import (
	"crypto/subtle"
	"errors"

	"github.com/MrEthical07/authcore/internal"
)

// ErrMalformedToken is returned for tokens that are not "<id>.<secret>".
var ErrMalformedToken = errors.New("malformed session token")

// Credentials is a freshly minted session identity. Token is handed to the
// client once; only Hash is persisted.
type Credentials struct {
	ID    string
	Token string
	Hash  [32]byte
}

// NewCredentials mints a random session ID and bearer secret.
func NewCredentials() (Credentials, error) {
	id, err := internal.NewOpaqueIDString()
	if err != nil {
		return Credentials{}, err
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		ID:    id,
		Token: internal.EncodeToken(id, secret),
		Hash:  internal.HashSecret(secret[:]),
	}, nil
}

// ParseToken splits a bearer token into its session ID and secret hash.
func ParseToken(token string) (string, [32]byte, error) {
	id, secret, err := internal.DecodeToken(token)
	if err != nil {
		return "", [32]byte{}, ErrMalformedToken
	}
	return id, internal.HashSecret(secret), nil
}

func hashesEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
