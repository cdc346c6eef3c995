package permission

import (
	"errors"

	"github.com/MrEthical07/authcore/identity"
)

var (
	// ErrInsufficientRole is returned when the actor does not outrank the target.
	ErrInsufficientRole = errors.New("actor role does not outrank target role")
	// ErrNotImpersonator is returned when the actor's role cannot impersonate at all.
	ErrNotImpersonator = errors.New("role cannot impersonate")
	// ErrNotImpersonable is returned when the target cannot be impersonated by the actor.
	ErrNotImpersonable = errors.New("target cannot be impersonated by actor")
)

var ranks = map[identity.Role]int{
	identity.RoleUser:       1,
	identity.RoleAdmin:      2,
	identity.RoleSuperAdmin: 3,
	identity.RoleInternal:   4,
}

// Rank returns the ordering weight of role. Unknown roles rank zero and so
// never outrank anything.
func Rank(role identity.Role) int {
	return ranks[role]
}

// EnsureHigherRole gates every administrative mutation: the actor must rank
// strictly above the target.
func EnsureHigherRole(actor, target identity.Role) error {
	if Rank(actor) == 0 || Rank(actor) <= Rank(target) {
		return ErrInsufficientRole
	}
	return nil
}

// CanImpersonate applies the impersonation matrix. Admins may impersonate
// users. Superadmins may impersonate users and admins. Nobody impersonates a
// superadmin or the internal role.
func CanImpersonate(actor, target identity.Role) error {
	switch actor {
	case identity.RoleAdmin:
		if target == identity.RoleUser {
			return nil
		}
	case identity.RoleSuperAdmin:
		if target == identity.RoleUser || target == identity.RoleAdmin {
			return nil
		}
	default:
		return ErrNotImpersonator
	}
	return ErrNotImpersonable
}
