package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// BucketCount is the number of latency buckets, +Inf included.
const BucketCount = 8

type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricSignInSuccess, Name: "authcore_sign_in_success_total", Help: "Sign-in attempts that issued a session."},
	{ID: authcore.MetricSignInFailure, Name: "authcore_sign_in_failure_total", Help: "Sign-in attempts rejected with an error."},
	{ID: authcore.MetricSignInValidation, Name: "authcore_sign_in_validation_total", Help: "Sign-in requests rejected as malformed."},
	{ID: authcore.MetricSignInBanned, Name: "authcore_sign_in_banned_total", Help: "Sign-in attempts rejected by an active ban."},
	{ID: authcore.MetricSignInPolicyRejected, Name: "authcore_sign_in_policy_rejected_total", Help: "Sign-in attempts rejected by login or provider policy."},
	{ID: authcore.MetricPasswordMismatch, Name: "authcore_password_mismatch_total", Help: "Password verifications that did not match."},
	{ID: authcore.MetricPasswordVerifierError, Name: "authcore_password_verifier_error_total", Help: "Password verifications that failed for a non-mismatch reason."},
	{ID: authcore.MetricTwoFactorRequired, Name: "authcore_two_factor_required_total", Help: "Sign-ins that stopped at a two-factor challenge."},
	{ID: authcore.MetricTwoFactorSuccess, Name: "authcore_two_factor_success_total", Help: "Two-factor challenges completed."},
	{ID: authcore.MetricTwoFactorFailure, Name: "authcore_two_factor_failure_total", Help: "Wrong codes submitted against a two-factor challenge."},
	{ID: authcore.MetricChallengeExhausted, Name: "authcore_challenge_exhausted_total", Help: "Two-factor challenges deleted after the attempt cap."},
	{ID: authcore.MetricBackupCodeUsed, Name: "authcore_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: authcore.MetricBackupCodeFailed, Name: "authcore_backup_code_failed_total", Help: "Backup codes rejected."},
	{ID: authcore.MetricBackupCodeRegenerated, Name: "authcore_backup_code_regenerated_total", Help: "Backup-code batches issued."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Lock decisions applied by the lockout policy."},
	{ID: authcore.MetricAccountUnlocked, Name: "authcore_account_unlocked_total", Help: "Temporary bans cleared after expiry."},
	{ID: authcore.MetricImpersonationGranted, Name: "authcore_impersonation_granted_total", Help: "Impersonation grants created."},
	{ID: authcore.MetricImpersonationSuccess, Name: "authcore_impersonation_success_total", Help: "Impersonation grants redeemed into a session."},
	{ID: authcore.MetricImpersonationFailure, Name: "authcore_impersonation_failure_total", Help: "Impersonation redemptions rejected."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Sessions issued."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Sessions revoked individually or by filter."},
	{ID: authcore.MetricSessionRevokedAll, Name: "authcore_session_revoked_all_total", Help: "Revoke-all operations."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Successful password changes."},
	{ID: authcore.MetricPasswordChangeFailure, Name: "authcore_password_change_failure_total", Help: "Rejected password changes."},
	{ID: authcore.MetricPasswordHashUpgraded, Name: "authcore_password_hash_upgraded_total", Help: "Stored hashes upgraded after a successful match."},
	{ID: authcore.MetricSudoVerified, Name: "authcore_sudo_verified_total", Help: "Password re-verifications that opened a sudo window."},
	{ID: authcore.MetricAdminMutation, Name: "authcore_admin_mutation_total", Help: "Administrative security-config mutations applied."},
	{ID: authcore.MetricRegistrationRejected, Name: "authcore_registration_rejected_total", Help: "Registration checks that rejected the request."},
	{ID: authcore.MetricNotificationFailed, Name: "authcore_notification_failed_total", Help: "Security notifications the mailer failed to deliver."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricSignInLatency, Name: "authcore_sign_in_latency_seconds", Help: "End-to-end SignIn latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's latency
// buckets.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundValues mirrors HistogramBounds without the +Inf bucket.
var HistogramBoundValues = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling or
// truncating as needed.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
