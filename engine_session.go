package authcore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
	"go.uber.org/zap"
)

// IssuedSession is a freshly created session together with the bearer
// token. Token is only ever available here; the store keeps its hash.
type IssuedSession struct {
	Session     *session.Session
	Token       string
	AccessToken string
}

type sessionOptions struct {
	rememberMe     bool
	impersonatorID string
	ttl            time.Duration
}

func (e *Engine) sessionTTL(opts sessionOptions) time.Duration {
	switch {
	case opts.ttl > 0:
		return opts.ttl
	case opts.rememberMe:
		return e.config.Session.RememberMeTTL
	default:
		return e.config.Session.DefaultTTL
	}
}

// snapshot captures request context for a new session. Geo failures leave
// the location blank.
func (e *Engine) snapshot(ctx context.Context) session.Snapshot {
	snap := session.Snapshot{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
	if e.geo == nil || snap.IP == "" {
		return snap
	}
	loc, err := e.geo.Resolve(ctx, snap.IP)
	if err != nil {
		e.logger.Debug("geo lookup failed", zap.String("ip", snap.IP), zap.Error(err))
		return snap
	}
	snap.Country = loc.Country
	snap.Region = loc.Region
	snap.City = loc.City
	return snap
}

func (e *Engine) issueSession(ctx context.Context, user identity.User, opts sessionOptions) (*IssuedSession, error) {
	creds, err := session.NewCredentials()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	now := e.now()
	sess := &session.Session{
		ID:               creds.ID,
		UserID:           user.ID,
		Role:             string(user.Role),
		ImpersonatedByID: opts.impersonatorID,
		RememberMe:       opts.rememberMe,
		Snapshot:         e.snapshot(ctx),
		SecretHash:       creds.Hash,
		CreatedAt:        now,
		ExpiresAt:        now.Add(e.sessionTTL(opts)),
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	issued := &IssuedSession{Session: sess, Token: creds.Token}
	if e.tokens != nil {
		access, err := e.tokens.CreateAccess(jwt.Subject{
			UserID:           sess.UserID,
			SessionID:        sess.ID,
			Role:             sess.Role,
			ImpersonatorID:   sess.ImpersonatedByID,
			SessionExpiresAt: sess.ExpiresAt,
		})
		if err != nil {
			if _, delErr := e.sessions.Delete(context.WithoutCancel(ctx), sess.ID); delErr != nil {
				e.logger.Warn("failed to discard session after token error", zap.Error(delErr))
			}
			return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
		}
		issued.AccessToken = access
	}

	e.metricInc(MetricSessionCreated)
	return issued, nil
}

// LookupSession resolves a bearer token. Unknown, expired and mismatched
// tokens all return ErrSessionNotFound.
func (e *Engine) LookupSession(ctx context.Context, token string) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	sess, err := e.sessions.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, backendErr(err)
	}
	return sess, nil
}

// ParseAccessToken verifies a JWT minted alongside a session. It does not
// consult Redis; callers needing revocation checks use LookupSession.
func (e *Engine) ParseAccessToken(token string) (*jwt.AccessClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrAccessTokenDisabled
	}
	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccessTokenInvalid, err)
	}
	return claims, nil
}

// RevokeSession deletes one session. Revoking a session that is already
// gone is not an error.
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	existed, err := e.sessions.Delete(ctx, sessionID)
	if err != nil {
		return backendErr(err)
	}
	if existed {
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditRecord{
		category:  auditCategorySession,
		action:    auditActionRevoke,
		sessionID: sessionID,
		metadata: func() map[string]string {
			return map[string]string{"existed": strconv.FormatBool(existed)}
		},
	})
	return nil
}

// RevokeAllSessions deletes every session of userID and returns how many
// were removed.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.revokeAll(ctx, userID, "")
}

func (e *Engine) revokeAll(ctx context.Context, userID, actorID string) (int, error) {
	n, err := e.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, backendErr(err)
	}
	e.metricInc(MetricSessionRevokedAll)
	e.emitAudit(ctx, auditRecord{
		category: auditCategorySession,
		action:   auditActionRevokeAll,
		userID:   userID,
		actorID:  actorID,
		metadata: func() map[string]string {
			return map[string]string{"revoked": strconv.Itoa(n)}
		},
	})
	return n, nil
}

// RevokeSessions deletes the listed sessions of userID. The caller's own
// session must not be in the set: a session cannot delete itself through
// the bulk path.
func (e *Engine) RevokeSessions(ctx context.Context, currentSessionID, userID string, sessionIDs []string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if currentSessionID != "" && slices.Contains(sessionIDs, currentSessionID) {
		e.emitAudit(ctx, auditRecord{
			category:  auditCategorySession,
			action:    auditActionRevokeMany,
			err:       ErrCannotRevokeCurrentSession,
			userID:    userID,
			sessionID: currentSessionID,
		})
		return 0, ErrCannotRevokeCurrentSession
	}

	n, err := e.sessions.DeleteMany(ctx, userID, sessionIDs)
	if err != nil {
		return 0, backendErr(err)
	}
	e.emitAudit(ctx, auditRecord{
		category:  auditCategorySession,
		action:    auditActionRevokeMany,
		userID:    userID,
		sessionID: currentSessionID,
		metadata: func() map[string]string {
			return map[string]string{
				"requested": strconv.Itoa(len(sessionIDs)),
				"revoked":   strconv.Itoa(n),
			}
		},
	})
	return n, nil
}

// RevokeSessionsWhere revokes every session of userID for which match
// returns true. If match selects currentSessionID the whole call is refused.
func (e *Engine) RevokeSessionsWhere(ctx context.Context, currentSessionID, userID string, match func(*session.Session) bool) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if match == nil {
		return 0, ErrValidation
	}

	all, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		return 0, backendErr(err)
	}
	var ids []string
	for _, s := range all {
		if match(s) {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return e.RevokeSessions(ctx, currentSessionID, userID, ids)
}

// ListSessions returns the live sessions of userID.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	out, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, backendErr(err)
	}
	return out, nil
}
