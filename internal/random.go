package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// OpaqueID is a 128-bit random identifier used for sessions, two-factor
// challenges and impersonation grants.
type OpaqueID [16]byte

const secretSize = 32

// ErrMalformedToken is returned when a presented token cannot be split into
// an identifier and a secret.
var ErrMalformedToken = errors.New("malformed token")

func NewOpaqueID() (OpaqueID, error) {
	var id OpaqueID
	_, err := rand.Read(id[:])
	return id, err
}

func (id OpaqueID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// NewOpaqueIDString is a convenience for callers that only need the text form.
func NewOpaqueIDString() (string, error) {
	id, err := NewOpaqueID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func ParseOpaqueID(s string) (OpaqueID, error) {
	var id OpaqueID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid opaque id size")
	}

	copy(id[:], raw)
	return id, nil
}

func NewSecret() ([secretSize]byte, error) {
	var secret [secretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashSecret(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// EncodeToken joins an identifier and its secret as "<id>.<secret>".
func EncodeToken(id string, secret [secretSize]byte) string {
	return id + "." + base64.RawURLEncoding.EncodeToString(secret[:])
}

// DecodeToken is the inverse of EncodeToken.
func DecodeToken(token string) (string, []byte, error) {
	id, encoded, ok := strings.Cut(token, ".")
	if !ok || id == "" || encoded == "" {
		return "", nil, ErrMalformedToken
	}
	if _, err := ParseOpaqueID(id); err != nil {
		return "", nil, ErrMalformedToken
	}
	secret, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(secret) != secretSize {
		return "", nil, ErrMalformedToken
	}
	return id, secret, nil
}
