package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// Config is the full engine configuration. Build it with [DefaultConfig],
// override what you need, then hand it to [Builder.WithConfig]. The engine
// keeps its own deep copy.
type Config struct {
	Session       SessionConfig
	Password      PasswordConfig
	TwoFactor     TwoFactorConfig
	Impersonation ImpersonationConfig
	Sudo          SudoConfig
	Admin         AdminConfig
	AccessToken   AccessTokenConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Notifications NotificationsConfig
}

/* ==== SESSION CONFIG ==== */

// SessionConfig controls session lifetime and Redis key namespacing.
type SessionConfig struct {
	RedisPrefix string
	// DefaultTTL applies when the caller did not opt into "remember me".
	DefaultTTL    time.Duration
	RememberMeTTL time.Duration
}

/* ==== PASSWORD CONFIG ==== */

// PasswordConfig holds Argon2id cost parameters for new hashes.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	// UpgradeOnLogin rehashes legacy or weaker hashes after a successful match.
	UpgradeOnLogin bool
}

/* ==== TWO-FACTOR CONFIG ==== */

// TwoFactorConfig controls TOTP enrollment, the pending challenge and backup codes.
type TwoFactorConfig struct {
	Issuer               string
	ChallengeRedisPrefix string
	ChallengeTTL         time.Duration
	// MaxChallengeAttempts caps wrong codes per challenge. The challenge is
	// deleted when the cap is reached.
	MaxChallengeAttempts int
	FailureRedisPrefix   string
	// MaxUserFailures caps wrong codes per user across all challenges within
	// FailureWindow, which starts at the first failure.
	MaxUserFailures      int
	FailureWindow        time.Duration
	BackupCodeLength     int
}

// backupCodeBatchSize is the number of codes in every generated batch.
const backupCodeBatchSize = 8

/* ==== IMPERSONATION CONFIG ==== */

// ImpersonationConfig controls grant lifetime and the sessions they produce.
type ImpersonationConfig struct {
	RedisPrefix string
	GrantTTL    time.Duration
	SessionTTL  time.Duration
}

/* ==== SUDO CONFIG ==== */

// SudoConfig controls the re-verification window.
type SudoConfig struct {
	RedisPrefix string
	Window      time.Duration
}

/* ==== ADMIN CONFIG ==== */

// AdminConfig controls administrative mutations.
type AdminConfig struct {
	// RequireSudo makes every administrative mutation demand a recent
	// password re-verification by the actor.
	RequireSudo bool
}

/* ==== ACCESS TOKEN CONFIG ==== */

// AccessTokenConfig enables short-lived JWTs minted alongside each session.
type AccessTokenConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
}

/* ==== AUDIT CONFIG ==== */

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/* ==== METRICS CONFIG ==== */

// MetricsConfig controls in-process counters and the sign-in latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/* ==== NOTIFICATIONS CONFIG ==== */

// NotificationsConfig controls outbound mail triggered by security events.
type NotificationsConfig struct {
	Enabled bool
	// Timeout bounds a single Mailer.Send call.
	Timeout time.Duration
}

// DefaultConfig returns a production-leaning configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:   "as",
			DefaultTTL:    24 * time.Hour,
			RememberMeTTL: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:           64 * 1024,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:               "authcore",
			ChallengeRedisPrefix: "atc",
			ChallengeTTL:         5 * time.Minute,
			MaxChallengeAttempts: 5,
			FailureRedisPrefix:   "atf",
			MaxUserFailures:      10,
			FailureWindow:        15 * time.Minute,
			BackupCodeLength:     10,
		},
		Impersonation: ImpersonationConfig{
			RedisPrefix: "aig",
			GrantTTL:    2 * time.Minute,
			SessionTTL:  time.Hour,
		},
		Sudo: SudoConfig{
			RedisPrefix: "asu",
			Window:      30 * time.Minute,
		},
		Admin: AdminConfig{
			RequireSudo: true,
		},
		AccessToken: AccessTokenConfig{
			Enabled:       false,
			TTL:           5 * time.Minute,
			SigningMethod: string(jwt.MethodEd25519),
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Timeout: 5 * time.Second,
		},
	}
}

// Validate checks structural and cross-field consistency.
func (c *Config) Validate() error {
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.DefaultTTL <= 0 {
		return errors.New("Session DefaultTTL must be > 0")
	}
	if c.Session.RememberMeTTL < c.Session.DefaultTTL {
		return errors.New("Session RememberMeTTL must be >= DefaultTTL")
	}

	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}

	if c.TwoFactor.Issuer == "" {
		return errors.New("TwoFactor Issuer must not be empty")
	}
	if c.TwoFactor.ChallengeRedisPrefix == "" {
		return errors.New("TwoFactor ChallengeRedisPrefix must not be empty")
	}
	if c.TwoFactor.ChallengeTTL <= 0 || c.TwoFactor.ChallengeTTL > 30*time.Minute {
		return errors.New("TwoFactor ChallengeTTL must be > 0 and <= 30m")
	}
	if c.TwoFactor.MaxChallengeAttempts <= 0 {
		return errors.New("TwoFactor MaxChallengeAttempts must be > 0")
	}
	if c.TwoFactor.FailureRedisPrefix == "" {
		return errors.New("TwoFactor FailureRedisPrefix must not be empty")
	}
	if c.TwoFactor.MaxUserFailures < c.TwoFactor.MaxChallengeAttempts {
		return errors.New("TwoFactor MaxUserFailures must be >= MaxChallengeAttempts")
	}
	if c.TwoFactor.FailureWindow <= 0 {
		return errors.New("TwoFactor FailureWindow must be > 0")
	}
	if c.TwoFactor.BackupCodeLength < 8 {
		return errors.New("TwoFactor BackupCodeLength must be >= 8")
	}

	if c.Impersonation.RedisPrefix == "" {
		return errors.New("Impersonation RedisPrefix must not be empty")
	}
	if c.Impersonation.GrantTTL <= 0 || c.Impersonation.GrantTTL > 15*time.Minute {
		return errors.New("Impersonation GrantTTL must be > 0 and <= 15m")
	}
	if c.Impersonation.SessionTTL <= 0 {
		return errors.New("Impersonation SessionTTL must be > 0")
	}

	if c.Sudo.RedisPrefix == "" {
		return errors.New("Sudo RedisPrefix must not be empty")
	}
	if c.Sudo.Window <= 0 {
		return errors.New("Sudo Window must be > 0")
	}

	prefixes := map[string]string{}
	for name, prefix := range map[string]string{
		"Session":       c.Session.RedisPrefix,
		"TwoFactor":     c.TwoFactor.ChallengeRedisPrefix,
		"Impersonation": c.Impersonation.RedisPrefix,
		"Sudo":          c.Sudo.RedisPrefix,
	} {
		if other, ok := prefixes[prefix]; ok {
			return errors.New(name + " RedisPrefix collides with " + other)
		}
		prefixes[prefix] = name
	}

	if c.AccessToken.Enabled {
		if c.AccessToken.TTL <= 0 || c.AccessToken.TTL > time.Hour {
			return errors.New("AccessToken TTL must be > 0 and <= 1h")
		}
		switch jwt.SigningMethod(c.AccessToken.SigningMethod) {
		case jwt.MethodEd25519, jwt.MethodHS256:
		default:
			return errors.New("AccessToken SigningMethod is not supported")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Notifications.Enabled && c.Notifications.Timeout <= 0 {
		return errors.New("Notifications Timeout must be > 0 when enabled")
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.AccessToken.PrivateKey = cloneBytes(cfg.AccessToken.PrivateKey)
	out.AccessToken.PublicKey = cloneBytes(cfg.AccessToken.PublicKey)
	return out
}

func cloneBytes(v []byte) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
