package configfile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/mailer"
	"github.com/MrEthical07/authcore/netpolicy"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "AUTHCORE"

type HTTPConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustForwarded bool
	// SessionCookieSecure sets the Secure attribute on the session cookie.
	SessionCookieSecure bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type GeoIPConfig struct {
	// DatabasePath points at a GeoLite2/GeoIP2 City or Country .mmdb file.
	// Empty disables geo enrichment.
	DatabasePath string
	Language     string
}

type MetricsConfig struct {
	// Addr serves the Prometheus text endpoint. Empty disables it.
	Addr string
	Path string
}

// File is the decoded configuration of an authcore service.
type File struct {
	Environment string
	HTTP        HTTPConfig
	Redis       RedisConfig
	Postgres    PostgresConfig
	SMTP        mailer.Config
	GeoIP       GeoIPConfig
	Network     netpolicy.Config
	Logging     logging.Config
	Metrics     MetricsConfig
	Engine      authcore.Config
	Policy      authcore.Policy
}

// Defaults returns the configuration used when no file or environment
// variable sets a key.
func Defaults() File {
	return File{
		Environment: "development",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{Addr: "127.0.0.1:6379"},
		Postgres: PostgresConfig{
			MaxOpen:         20,
			MaxIdle:         5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		SMTP: mailer.Config{
			Port:     587,
			FromName: "Security",
			AppName:  "authcore",
		},
		GeoIP:   GeoIPConfig{Language: "en"},
		Logging: logging.Config{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Path: "/metrics"},
		Engine:  authcore.DefaultConfig(),
		Policy:  authcore.DefaultPolicy(),
	}
}

// Load reads path (optional; "" skips the file) and applies environment
// overrides on top of [Defaults].
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Defaults()
	if err := registerDefaults(v, defaults); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("configfile: read %s: %w", path, err)
		}
	}

	cfg := defaults
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("configfile: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the engine section and the network lists.
func (f *File) Validate() error {
	if f == nil {
		return errors.New("configfile: nil config")
	}
	if err := f.Engine.Validate(); err != nil {
		return fmt.Errorf("configfile: engine: %w", err)
	}
	if _, err := netpolicy.New(f.Network); err != nil {
		return fmt.Errorf("configfile: network: %w", err)
	}
	return nil
}

// NetworkPolicy builds the policy described by the network section.
func (f *File) NetworkPolicy() (*netpolicy.Policy, error) {
	return netpolicy.New(f.Network)
}

// registerDefaults flattens d into dotted keys so AutomaticEnv can see keys
// that the YAML file never mentions.
func registerDefaults(v *viper.Viper, d File) error {
	var tree map[string]interface{}
	if err := mapstructure.Decode(d, &tree); err != nil {
		return fmt.Errorf("configfile: defaults: %w", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for k, val := range tree {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		switch typed := val.(type) {
		case map[string]interface{}:
			setDefaults(v, key, typed)
		case nil:
		default:
			v.SetDefault(key, typed)
		}
	}
}
