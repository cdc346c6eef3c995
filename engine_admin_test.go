package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/identity"
)

func TestVerifyPasswordOpensSudoWindow(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	u := f.addUser(t, "admin@example.com", identity.RoleAdmin)
	ctx := context.Background()

	ok, err := f.engine.VerifyPassword(ctx, u.ID, "wrong-password-000")
	if err != nil || ok {
		t.Fatalf("expected mismatch, got %v, %v", ok, err)
	}
	if got := f.security(t, u.ID).FailedAttemptsCount; got != 1 {
		t.Fatalf("expected sudo mismatch to count, got %d", got)
	}
	if recent, _ := f.engine.RequireRecentVerification(ctx, u.ID); recent {
		t.Fatalf("expected no sudo window after mismatch")
	}

	ok, err = f.engine.VerifyPassword(ctx, u.ID, testPassword)
	if err != nil || !ok {
		t.Fatalf("expected match, got %v, %v", ok, err)
	}
	if recent, err := f.engine.RequireRecentVerification(ctx, u.ID); err != nil || !recent {
		t.Fatalf("expected sudo window, got %v, %v", recent, err)
	}

	f.clock.Advance(29 * time.Minute)
	if recent, _ := f.engine.RequireRecentVerification(ctx, u.ID); !recent {
		t.Fatalf("expected window to hold at 29m")
	}
	f.clock.Advance(2 * time.Minute)
	if recent, _ := f.engine.RequireRecentVerification(ctx, u.ID); recent {
		t.Fatalf("expected window closed after 30m")
	}
}

func TestAdminMutationsRequireSudo(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.RequireSudo = true
	f, done := newTestEngine(t, cfg)
	defer done()

	admin := f.addUser(t, "admin@example.com", identity.RoleAdmin)
	user := f.addUser(t, "user@example.com", identity.RoleUser)
	ctx := context.Background()

	if err := f.engine.RequireTwoFactor(ctx, admin.ID, user.ID, true); !errors.Is(err, ErrSudoRequired) {
		t.Fatalf("expected ErrSudoRequired, got %v", err)
	}
	if _, err := f.engine.CreateImpersonationGrant(ctx, admin.ID, user.ID); !errors.Is(err, ErrSudoRequired) {
		t.Fatalf("expected ErrSudoRequired for grant, got %v", err)
	}

	if ok, err := f.engine.VerifyPassword(ctx, admin.ID, testPassword); err != nil || !ok {
		t.Fatalf("VerifyPassword failed: %v, %v", ok, err)
	}
	if err := f.engine.RequireTwoFactor(ctx, admin.ID, user.ID, true); err != nil {
		t.Fatalf("RequireTwoFactor failed: %v", err)
	}
	if !f.security(t, user.ID).RequiresTwoFactorAuth {
		t.Fatalf("expected flag set")
	}
}

func TestAdminRoleOrdering(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	admin := f.addUser(t, "admin@example.com", identity.RoleAdmin)
	peer := f.addUser(t, "peer@example.com", identity.RoleAdmin)
	root := f.addUser(t, "root@example.com", identity.RoleSuperAdmin)
	ctx := context.Background()

	if err := f.engine.BanUser(ctx, admin.ID, peer.ID, "", 0); !errors.Is(err, ErrInsufficientRole) {
		t.Fatalf("expected ErrInsufficientRole against peer, got %v", err)
	}
	if err := f.engine.BanUser(ctx, admin.ID, root.ID, "", 0); !errors.Is(err, ErrInsufficientRole) {
		t.Fatalf("expected ErrInsufficientRole against superadmin, got %v", err)
	}
	if f.security(t, peer.ID).IsBanned() {
		t.Fatalf("expected denied ban to write nothing")
	}
	if !hasAudit(f.auditEvents(), auditActionBan, AuditErrInsufficientRole) {
		t.Fatalf("expected insufficient-role audit")
	}
}

func TestBanAndUnban(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	root := f.addUser(t, "root@example.com", identity.RoleSuperAdmin)
	user := f.addUser(t, "user@example.com", identity.RoleUser)
	ctx := context.Background()

	sessions := signInN(t, f, "user@example.com", 2)
	_, _ = f.signIn(ctx, "user@example.com", "wrong-password-000")

	if err := f.engine.BanUser(ctx, root.ID, user.ID, "abuse", time.Hour); err != nil {
		t.Fatalf("BanUser failed: %v", err)
	}
	for _, s := range sessions {
		if _, err := f.engine.LookupSession(ctx, s.Token); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected ban to revoke sessions, got %v", err)
		}
	}

	_, err := f.signIn(ctx, "user@example.com", testPassword)
	var ban *BanError
	if !errors.As(err, &ban) || ban.Reason != "abuse" {
		t.Fatalf("expected BanError with reason, got %v", err)
	}

	if err := f.engine.UnbanUser(ctx, root.ID, user.ID); err != nil {
		t.Fatalf("UnbanUser failed: %v", err)
	}
	cfg := f.security(t, user.ID)
	if cfg.IsBanned() || cfg.FailedAttemptsCount != 0 {
		t.Fatalf("expected ban and counter cleared, got %+v", cfg)
	}
	if _, err := f.signIn(ctx, "user@example.com", testPassword); err != nil {
		t.Fatalf("expected sign-in after unban, got %v", err)
	}
}

func TestKickSessionsAndDisableTwoFactor(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	root := f.addUser(t, "root@example.com", identity.RoleSuperAdmin)
	user := f.addUser(t, "user@example.com", identity.RoleUser)
	ctx := context.Background()

	signInN(t, f, "user@example.com", 2)
	n, err := f.engine.KickSessions(ctx, root.ID, user.ID)
	if err != nil {
		t.Fatalf("KickSessions failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sessions kicked, got %d", n)
	}

	f.enrollTOTP(t, user.ID)
	if err := f.engine.DisableTwoFactor(ctx, root.ID, user.ID); err != nil {
		t.Fatalf("DisableTwoFactor failed: %v", err)
	}
	if got := f.store.RemainingBackupCodes(user.ID); got != 0 {
		t.Fatalf("expected backup codes removed, got %d", got)
	}
	out, err := f.signIn(ctx, "user@example.com", testPassword)
	if err != nil || out.Kind != OutcomeAuthenticated {
		t.Fatalf("expected direct sign-in after disable, got %+v, %v", out, err)
	}

	kinds := f.mail.kinds()
	if len(kinds) == 0 || kinds[len(kinds)-1] != NotifyTwoFactorDisabled {
		t.Fatalf("expected two-factor-disabled notification, got %v", kinds)
	}
}

func TestRequirePasswordChange(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	root := f.addUser(t, "root@example.com", identity.RoleSuperAdmin)
	user := f.addUser(t, "user@example.com", identity.RoleUser)

	if err := f.engine.RequirePasswordChange(context.Background(), root.ID, user.ID, true); err != nil {
		t.Fatalf("RequirePasswordChange failed: %v", err)
	}
	out, err := f.signIn(context.Background(), "user@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !out.PasswordChangeRequired {
		t.Fatalf("expected PasswordChangeRequired")
	}
}

func TestCheckRegistration(t *testing.T) {
	f, done := newTestEngine(t, testConfig(), func(b *Builder) {
		b.WithNetworkPolicy(denyNetwork{
			ips:     map[string]bool{"198.51.100.9": true},
			domains: map[string]bool{"mailinator.com": true},
		})
	})
	defer done()

	ctx := context.Background()
	if err := f.engine.CheckRegistration(ctx, DefaultPolicy(), "new@example.com"); err != nil {
		t.Fatalf("expected registration allowed, got %v", err)
	}

	closed := DefaultPolicy()
	closed.RegistrationEnabled = false
	if err := f.engine.CheckRegistration(ctx, closed, "new@example.com"); !errors.Is(err, ErrRegistrationDisabled) {
		t.Fatalf("expected ErrRegistrationDisabled, got %v", err)
	}
	if err := f.engine.CheckRegistration(ctx, DefaultPolicy(), "x@mailinator.com"); !errors.Is(err, ErrEmailDomainNotAllowed) {
		t.Fatalf("expected ErrEmailDomainNotAllowed, got %v", err)
	}
	blocked := WithClientIP(ctx, "198.51.100.9")
	if err := f.engine.CheckRegistration(blocked, DefaultPolicy(), "new@example.com"); !errors.Is(err, ErrIPBlocked) {
		t.Fatalf("expected ErrIPBlocked, got %v", err)
	}

	events := f.auditEvents()
	for _, code := range []AuditErrorCode{AuditErrRegisterDisabled, AuditErrEmailDomainNotAllowed, AuditErrBlockedIP} {
		if !hasAudit(events, auditActionCheck, code) {
			t.Fatalf("expected audit code %q", code)
		}
	}
}
