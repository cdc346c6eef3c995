// Package twofactor verifies RFC 6238 time-based one-time passwords and
// generates enrollment secrets.
package twofactor

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrInvalidSecret is returned when a stored secret is not valid base32.
var ErrInvalidSecret = errors.New("invalid totp secret")

// Config controls code shape and the accepted time window.
type Config struct {
	Issuer string
	Period uint
	Digits otp.Digits
	// Skew is the number of periods accepted on either side of now.
	Skew      uint
	Algorithm otp.Algorithm
}

// DefaultConfig accepts six-digit SHA1 codes with a 30s period and one step of
// tolerance, which is what authenticator apps emit by default.
func DefaultConfig(issuer string) Config {
	return Config{
		Issuer:    issuer,
		Period:    30,
		Digits:    otp.DigitsSix,
		Skew:      1,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Enrollment is a freshly generated secret and its provisioning URL.
type Enrollment struct {
	Secret string
	URL    string
}

// TOTP verifies codes against per-user secrets.
type TOTP struct {
	cfg Config
}

// New returns a verifier for cfg, filling zero fields from DefaultConfig.
func New(cfg Config) *TOTP {
	def := DefaultConfig(cfg.Issuer)
	if cfg.Period == 0 {
		cfg.Period = def.Period
	}
	if cfg.Digits == 0 {
		cfg.Digits = def.Digits
	}
	return &TOTP{cfg: cfg}
}

// Generate creates a new secret for accountName.
func (t *TOTP) Generate(accountName string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.cfg.Issuer,
		AccountName: accountName,
		Period:      t.cfg.Period,
		Digits:      t.cfg.Digits,
		Algorithm:   t.cfg.Algorithm,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp key: %w", err)
	}
	return Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// Verify reports whether code is valid for secret at now and returns the
// time step it matched. Callers reject a step they have already accepted. A
// code of the wrong shape is a plain mismatch.
func (t *TOTP) Verify(secret, code string, now time.Time) (int64, bool, error) {
	code = strings.TrimSpace(code)
	if len(code) != t.cfg.Digits.Length() {
		return 0, false, nil
	}

	period := int64(t.cfg.Period)
	current := now.Unix() / period
	skew := int64(t.cfg.Skew)
	for step := current - skew; step <= current+skew; step++ {
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*period, 0).UTC(), t.opts())
		if err != nil {
			return 0, false, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true, nil
		}
	}
	return 0, false, nil
}

// Code returns the code for secret at now. Used by tests and tooling.
func (t *TOTP) Code(secret string, now time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, now.UTC(), t.opts())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return code, nil
}

func (t *TOTP) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    t.cfg.Period,
		Skew:      t.cfg.Skew,
		Digits:    t.cfg.Digits,
		Algorithm: t.cfg.Algorithm,
	}
}
