package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/twofactor"
	"go.uber.org/zap"
)

// Engine is the authentication decision engine. It is safe for concurrent
// use; all durable state lives in the identity store and Redis.
type Engine struct {
	config     Config
	identity   identity.Store
	sessions   *session.Store
	challenges *stores.ChallengeStore
	failures   *stores.FactorLimiter
	grants     *stores.GrantStore
	sudo       *stores.SudoStore
	verifier   *password.Verifier
	totp       *twofactor.TOTP
	tokens     *jwt.Manager
	flows      flows.Deps
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     *zap.Logger
	mailer     Mailer
	network    NetworkPolicy
	geo        GeoResolver
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Close flushes the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events dropped under dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditFailed reports events the sink rejected.
func (e *Engine) AuditFailed() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Failed()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks Redis reachability and returns the round-trip time.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Ping(ctx)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.identity == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return nil
}

func backendErr(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// loadUser maps identity.ErrNotFound to ErrUserNotFound and anything else to
// ErrBackendUnavailable.
func (e *Engine) loadUser(ctx context.Context, userID string) (identity.User, error) {
	u, err := e.identity.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, ErrUserNotFound
		}
		return identity.User{}, backendErr(err)
	}
	return u, nil
}

// equalizeTiming burns one password verification against a fixed hash so
// unknown users cost the same as wrong passwords.
func (e *Engine) equalizeTiming(pw string) {
	e.dummyOnce.Do(func() {
		h, err := e.verifier.Hash("authcore-timing-equalizer")
		if err != nil {
			e.logger.Warn("timing equalizer hash failed", zap.Error(err))
			return
		}
		e.dummyHash = h
	})
	if e.dummyHash != "" {
		_, _ = e.verifier.Verify(pw, e.dummyHash)
	}
}

// notify sends n with a bounded, cancellation-detached context. Failures
// are logged and counted only.
func (e *Engine) notify(ctx context.Context, n Notification) {
	if e.mailer == nil || !e.config.Notifications.Enabled || n.To == "" {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Notifications.Timeout)
	defer cancel()

	if err := e.mailer.Send(sendCtx, n); err != nil {
		e.metricInc(MetricNotificationFailed)
		e.logger.Named("mailer").Warn("notification delivery failed",
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
	}
}
