package configfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "authcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Defaults().HTTP.Addr, cfg.HTTP.Addr)
	assert.Equal(t, authcore.DefaultConfig().Session.DefaultTTL, cfg.Engine.Session.DefaultTTL)
	assert.True(t, cfg.Policy.LoginEnabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeYAML(t, `
environment: production
http:
  addr: ":9000"
  trustforwarded: true
redis:
  addr: redis:6379
  db: 2
engine:
  session:
    defaultttl: 12h
  twofactor:
    maxchallengeattempts: 3
  admin:
    requiresudo: false
policy:
  registrationenabled: false
  allowedproviders: [password, totp]
network:
  deny_cidrs: ["203.0.113.0/24"]
  deny_domains: [mailinator.com]
logging:
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.TrustForwarded)
	assert.Equal(t, 15*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 12*time.Hour, cfg.Engine.Session.DefaultTTL)
	assert.Equal(t, authcore.DefaultConfig().Session.RememberMeTTL, cfg.Engine.Session.RememberMeTTL)
	assert.Equal(t, 3, cfg.Engine.TwoFactor.MaxChallengeAttempts)
	assert.False(t, cfg.Engine.Admin.RequireSudo)
	assert.False(t, cfg.Policy.RegistrationEnabled)
	assert.Equal(t, []string{"password", "totp"}, cfg.Policy.AllowedProviders)
	assert.Equal(t, []string{"203.0.113.0/24"}, cfg.Network.DenyCIDRs)
	assert.Equal(t, "console", cfg.Logging.Format)

	policy, err := cfg.NetworkPolicy()
	require.NoError(t, err)
	assert.False(t, policy.IPAllowed("203.0.113.5"))
	assert.False(t, policy.EmailDomainAllowed("a@mailinator.com"))
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeYAML(t, `
engine:
  session:
    defaultttl: 12h
`)
	t.Setenv("AUTHCORE_ENGINE_SESSION_DEFAULTTTL", "6h")
	t.Setenv("AUTHCORE_SMTP_PASSWORD", "s3cret")
	t.Setenv("AUTHCORE_POLICY_ALLOWEDPROVIDERS", "password,impersonation")
	t.Setenv("AUTHCORE_ENGINE_SUDO_WINDOW", "10m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6*time.Hour, cfg.Engine.Session.DefaultTTL)
	assert.Equal(t, "s3cret", cfg.SMTP.Password)
	assert.Equal(t, []string{"password", "impersonation"}, cfg.Policy.AllowedProviders)
	assert.Equal(t, 10*time.Minute, cfg.Engine.Sudo.Window)
}

func TestLoadRejectsInvalidEngineConfig(t *testing.T) {
	path := writeYAML(t, `
engine:
  twofactor:
    challengettl: 2h
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidNetworkList(t *testing.T) {
	path := writeYAML(t, `
network:
  allow_cidrs: ["10.0.0.0/64"]
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
