package lockout

import (
	"sort"
	"time"

	"github.com/MrEthical07/authcore/identity"
)

// AutoLockReason is recorded as the ban reason for policy-driven locks.
const AutoLockReason = "Too many failed sign-in attempts"

// DecisionKind classifies the outcome of a failed attempt.
type DecisionKind uint8

const (
	DecisionNone DecisionKind = iota
	DecisionTemporary
	DecisionPermanent
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionTemporary:
		return "temporary"
	case DecisionPermanent:
		return "permanent"
	default:
		return "none"
	}
}

// Decision is the lock to apply, if any. ExpiresAt is zero unless Kind is
// DecisionTemporary.
type Decision struct {
	Kind      DecisionKind
	ExpiresAt time.Time
	Tier      identity.LockoutTier
}

// Locks reports whether the decision changes ban state.
func (d Decision) Locks() bool {
	return d.Kind != DecisionNone
}

// Result is the counter after increment together with the lock decision.
type Result struct {
	NewCount int
	Decision Decision
}

// SortTiers returns a copy ordered by (IsLockPermanent asc, AttemptCount asc).
func SortTiers(tiers []identity.LockoutTier) []identity.LockoutTier {
	out := append([]identity.LockoutTier(nil), tiers...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsLockPermanent != out[j].IsLockPermanent {
			return !out[i].IsLockPermanent
		}
		return out[i].AttemptCount < out[j].AttemptCount
	})
	return out
}

// OnFailedAttempt increments the counter and matches the first sorted tier
// whose AttemptCount equals the new count.
func OnFailedAttempt(cfg identity.SecurityConfig, tiers []identity.LockoutTier, now time.Time) Result {
	res := Result{NewCount: cfg.FailedAttemptsCount + 1}

	for _, tier := range SortTiers(tiers) {
		if tier.AttemptCount != res.NewCount {
			continue
		}
		if tier.IsLockPermanent {
			res.Decision = Decision{Kind: DecisionPermanent, Tier: tier}
		} else {
			res.Decision = Decision{
				Kind:      DecisionTemporary,
				ExpiresAt: now.Add(tier.LockDuration),
				Tier:      tier,
			}
		}
		break
	}
	return res
}

// Apply writes res into cfg. A permanent ban already in place is never
// downgraded to a temporary one.
func Apply(cfg *identity.SecurityConfig, res Result, now time.Time) {
	cfg.FailedAttemptsCount = res.NewCount
	failedAt := now
	cfg.LastFailedAttemptAt = &failedAt

	switch res.Decision.Kind {
	case DecisionPermanent:
		bannedAt := now
		cfg.BannedAt = &bannedAt
		cfg.BanExpiresAt = nil
		cfg.BanReason = AutoLockReason
	case DecisionTemporary:
		if cfg.IsPermanentlyBanned() {
			return
		}
		bannedAt := now
		expires := res.Decision.ExpiresAt
		cfg.BannedAt = &bannedAt
		cfg.BanExpiresAt = &expires
		cfg.BanReason = AutoLockReason
	}
}

// State is the tri-state lock view of a security config.
type State uint8

const (
	Unlocked State = iota
	TemporarilyLocked
	PermanentlyLocked
)

// StateAt evaluates cfg at now without mutating it. An expired temporary
// lock reads as Unlocked.
func StateAt(cfg identity.SecurityConfig, now time.Time) State {
	switch {
	case cfg.BannedAt == nil:
		return Unlocked
	case cfg.BanExpiresAt == nil:
		return PermanentlyLocked
	case cfg.BanExpiresAt.After(now):
		return TemporarilyLocked
	default:
		return Unlocked
	}
}

// ReconcileBanState clears an expired temporary lock. The second result
// reports whether anything changed and must be persisted.
func ReconcileBanState(cfg identity.SecurityConfig, now time.Time) (identity.SecurityConfig, bool) {
	if cfg.BannedAt == nil || cfg.BanExpiresAt == nil || cfg.BanExpiresAt.After(now) {
		return cfg, false
	}
	cfg.BannedAt = nil
	cfg.BanExpiresAt = nil
	cfg.BanReason = ""
	return cfg, true
}
