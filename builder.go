package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/twofactor"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder can be used for one Build only.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identity  identity.Store
	auditSink AuditSink
	logger    *zap.Logger
	mailer    Mailer
	network   NetworkPolicy
	geo       GeoResolver
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityStore sets the repository boundary. Required.
func (b *Builder) WithIdentityStore(store identity.Store) *Builder {
	b.identity = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithNetworkPolicy sets the IP and email-domain gate. Defaults to allow-all.
func (b *Builder) WithNetworkPolicy(p NetworkPolicy) *Builder {
	b.network = p
	return b
}

func (b *Builder) WithGeoResolver(r GeoResolver) *Builder {
	b.geo = r
	return b
}

// WithClock overrides the engine time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every store and flow.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identity == nil {
		return nil, errors.New("identity store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	network := b.network
	if network == nil {
		network = allowAllNetwork{}
	}

	verifier, err := password.NewVerifier(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	failures := stores.NewFactorLimiter(b.redis, stores.FactorLimiterConfig{
		Prefix:      cfg.TwoFactor.FailureRedisPrefix,
		MaxFailures: cfg.TwoFactor.MaxUserFailures,
		Window:      cfg.TwoFactor.FailureWindow,
	})

	engine := &Engine{
		config:     cfg,
		identity:   b.identity,
		sessions:   session.NewStore(b.redis, cfg.Session.RedisPrefix).WithClock(now),
		challenges: stores.NewChallengeStore(b.redis, cfg.TwoFactor.ChallengeRedisPrefix).WithClock(now),
		failures:   failures,
		grants:     stores.NewGrantStore(b.redis, cfg.Impersonation.RedisPrefix),
		sudo:       stores.NewSudoStore(b.redis, cfg.Sudo.RedisPrefix, cfg.Sudo.Window).WithClock(now),
		verifier:   verifier,
		totp:       twofactor.New(twofactor.DefaultConfig(cfg.TwoFactor.Issuer)),
		metrics:    NewMetrics(cfg.Metrics),
		logger:     logger,
		mailer:     b.mailer,
		network:    network,
		geo:        b.geo,
		now:        now,
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, logger)

	if cfg.AccessToken.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.AccessToken.TTL,
			SigningMethod: jwt.SigningMethod(cfg.AccessToken.SigningMethod),
			PrivateKey:    cloneBytes(cfg.AccessToken.PrivateKey),
			PublicKey:     cloneBytes(cfg.AccessToken.PublicKey),
			Issuer:        cfg.AccessToken.Issuer,
			Audience:      cfg.AccessToken.Audience,
			KeyID:         cfg.AccessToken.KeyID,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		engine.tokens = jm
	}

	engine.flows = flows.Deps{
		BackupCodes: flows.BackupCodeDeps{
			BackupCodeCount:    backupCodeBatchSize,
			BackupCodeLength:   cfg.TwoFactor.BackupCodeLength,
			ReplaceBackupCodes: b.identity.ReplaceBackupCodes,
			ConsumeBackupCode:  b.identity.ConsumeBackupCode,
			MetricInc: func(id int) {
				engine.metricInc(MetricID(id))
			},
			EmitGenerated: func(ctx context.Context, userID string, count int) {
				engine.emitAudit(ctx, auditRecord{
					category: auditCategoryTwoFactor,
					action:   auditActionRegenerateBackupCodes,
					userID:   userID,
					metadata: func() map[string]string {
						return map[string]string{"count": strconv.Itoa(count)}
					},
				})
			},
			Metrics: flows.BackupCodeMetrics{
				BackupCodeUsed:        int(MetricBackupCodeUsed),
				BackupCodeFailed:      int(MetricBackupCodeFailed),
				BackupCodeRegenerated: int(MetricBackupCodeRegenerated),
			},
			Errors: flows.BackupCodeErrors{
				EngineNotReady:        ErrEngineNotReady,
				BackupCodeUnavailable: ErrBackupCodeUnavailable,
				BackupCodeInvalid:     ErrInvalidBackupCode,
			},
		},
		Lockout: flows.LockoutDeps{
			Now:                  now,
			ListLockoutTiers:     b.identity.ListLockoutTiers,
			UpdateSecurityConfig: b.identity.UpdateSecurityConfig,
		},
	}

	b.built = true

	return engine, nil
}
