package authcore

import (
	"context"
	"strings"
)

// CheckRegistration applies the registration gates for email. It does not
// create anything; account creation belongs to the caller.
func (e *Engine) CheckRegistration(ctx context.Context, policy Policy, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	reject := func(err error) error {
		e.metricInc(MetricRegistrationRejected)
		e.emitAudit(ctx, auditRecord{
			category: auditCategoryRegistration,
			action:   auditActionCheck,
			err:      err,
		})
		return err
	}

	if !policy.RegistrationEnabled {
		return reject(ErrRegistrationDisabled)
	}
	if ip := clientIPFromContext(ctx); ip != "" && !e.network.IPAllowed(ip) {
		return reject(ErrIPBlocked)
	}
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return reject(ErrValidation)
	}
	if !e.network.EmailDomainAllowed(email) {
		return reject(ErrEmailDomainNotAllowed)
	}
	return nil
}
