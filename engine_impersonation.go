package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/permission"
)

// ImpersonationGrant is a one-shot delegation. ID is redeemed through an
// [ImpersonationSignIn] before ExpiresAt.
type ImpersonationGrant struct {
	ID             string
	ImpersonatorID string
	TargetID       string
	ExpiresAt      time.Time
}

// CreateImpersonationGrant lets actorID obtain a session as targetID without
// the target's credentials. Any grant actorID still holds is invalidated.
func (e *Engine) CreateImpersonationGrant(ctx context.Context, actorID, targetID string) (ImpersonationGrant, error) {
	if err := e.ready(); err != nil {
		return ImpersonationGrant{}, err
	}
	if actorID == "" || targetID == "" || actorID == targetID {
		return ImpersonationGrant{}, ErrValidation
	}

	actor, target, err := e.authorizeAdmin(ctx, actorID, targetID, auditCategoryImpersonation, auditActionGrant)
	if err != nil {
		return ImpersonationGrant{}, err
	}
	if err := permission.CanImpersonate(actor.Role, target.Role); err != nil {
		err = fmt.Errorf("%w: %v", ErrImpersonationPermission, err)
		e.metricInc(MetricImpersonationFailure)
		e.emitAudit(ctx, auditRecord{
			category: auditCategoryImpersonation,
			action:   auditActionGrant,
			err:      err,
			userID:   target.ID,
			actorID:  actor.ID,
		})
		return ImpersonationGrant{}, err
	}

	id, err := internal.NewOpaqueIDString()
	if err != nil {
		return ImpersonationGrant{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	ttl := e.config.Impersonation.GrantTTL
	err = e.grants.Create(ctx, id, stores.Grant{ImpersonatorID: actor.ID, TargetID: target.ID}, ttl)
	if err != nil {
		return ImpersonationGrant{}, backendErr(err)
	}

	expiresAt := e.now().Add(ttl)
	e.metricInc(MetricImpersonationGranted)
	e.emitAudit(ctx, auditRecord{
		category: auditCategoryImpersonation,
		action:   auditActionGrant,
		userID:   target.ID,
		actorID:  actor.ID,
		metadata: func() map[string]string {
			return map[string]string{"expires_at": expiresAt.UTC().Format(time.RFC3339)}
		},
	})
	e.notify(ctx, Notification{
		Kind: NotifyImpersonationGrant,
		To:   target.Email,
		Name: displayName(target),
		Data: map[string]string{"actor": displayName(actor)},
	})

	return ImpersonationGrant{
		ID:             id,
		ImpersonatorID: actor.ID,
		TargetID:       target.ID,
		ExpiresAt:      expiresAt,
	}, nil
}
