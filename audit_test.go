package authcore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/authcore/identity"
)

type failingSink struct {
	calls atomic.Int64
}

func (s *failingSink) Emit(context.Context, AuditEvent) error {
	s.calls.Add(1)
	return errors.New("sink down")
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false
	f, done := newTestEngine(t, cfg)
	defer done()

	f.addUser(t, "alice@example.com", identity.RoleUser)
	_, _ = f.signIn(context.Background(), "alice@example.com", "wrong-password-000")

	if events := f.auditEvents(); len(events) != 0 {
		t.Fatalf("expected no audit events when disabled, got %d", len(events))
	}
}

func TestAuditSignInEventFields(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	u := f.addUser(t, "alice@example.com", identity.RoleUser)
	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "curl/8")
	out, err := f.signIn(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	var found bool
	for _, ev := range f.auditEvents() {
		if ev.Category != auditCategorySignIn || ev.Status != AuditSuccess {
			continue
		}
		found = true
		if ev.ID == "" || ev.Timestamp.IsZero() {
			t.Fatalf("expected id and timestamp, got %+v", ev)
		}
		if ev.UserID != u.ID || ev.SessionID != out.Session.Session.ID {
			t.Fatalf("expected user and session ids, got %+v", ev)
		}
		if ev.IP != "198.51.100.33" || ev.UserAgent != "curl/8" {
			t.Fatalf("expected request context, got ip=%q ua=%q", ev.IP, ev.UserAgent)
		}
		if ev.Metadata["remember_me"] != "false" {
			t.Fatalf("expected remember_me metadata, got %v", ev.Metadata)
		}
	}
	if !found {
		t.Fatal("expected a successful sign-in event")
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	u := f.addUser(t, "alice@example.com", identity.RoleUser)
	secret, codes := f.enrollTOTP(t, u.ID)
	ctx := context.Background()

	ch := startTwoFactor(t, f, "alice@example.com")
	out, err := f.engine.SignIn(ctx, DefaultPolicy(), TwoFactorSignIn{ChallengeToken: ch.Token, TOTPCode: f.totpCode(t, secret)})
	if err != nil {
		t.Fatalf("two-factor sign-in failed: %v", err)
	}
	_, _ = f.signIn(ctx, "alice@example.com", "wrong-password-000")

	accounts, err := f.store.ListCredentialAccounts(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListCredentialAccounts failed: %v", err)
	}
	needles := []string{testPassword, "wrong-password-000", secret, ch.Token, out.Session.Token, codes[0]}
	for _, acct := range accounts {
		needles = append(needles, acct.PasswordHash)
	}

	events := f.auditEvents()
	if len(events) == 0 {
		t.Fatal("expected audit events")
	}
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		for _, needle := range needles {
			if needle != "" && strings.Contains(string(raw), needle) {
				t.Fatalf("sensitive value leaked in audit event %s", raw)
			}
		}
	}
}

func TestAuditSinkFailureNeverAltersDecision(t *testing.T) {
	sink := &failingSink{}
	f, done := newTestEngine(t, testConfig(), func(b *Builder) {
		b.WithAuditSink(sink)
	})
	defer done()

	f.addUser(t, "alice@example.com", identity.RoleUser)
	out, err := f.signIn(context.Background(), "alice@example.com", testPassword)
	if err != nil || out.Kind != OutcomeAuthenticated {
		t.Fatalf("expected sign-in to succeed despite sink errors, got %+v, %v", out, err)
	}

	f.engine.Close()
	if sink.calls.Load() == 0 {
		t.Fatal("expected sink to be called")
	}
	if f.engine.AuditFailed() != uint64(sink.calls.Load()) {
		t.Fatalf("expected every sink error counted, got %d of %d", f.engine.AuditFailed(), sink.calls.Load())
	}
}
