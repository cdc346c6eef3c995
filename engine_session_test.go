package authcore

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/session"
)

func signInN(t *testing.T, f *fixture, email string, n int) []*IssuedSession {
	t.Helper()

	out := make([]*IssuedSession, 0, n)
	for i := 0; i < n; i++ {
		res, err := f.signIn(context.Background(), email, testPassword)
		if err != nil {
			t.Fatalf("SignIn %d failed: %v", i, err)
		}
		out = append(out, res.Session)
	}
	return out
}

func TestRevokeSessionIsIdempotent(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	f.addUser(t, "alice@example.com", identity.RoleUser)
	sessions := signInN(t, f, "alice@example.com", 1)
	id := sessions[0].Session.ID

	for i := 0; i < 2; i++ {
		if err := f.engine.RevokeSession(context.Background(), id); err != nil {
			t.Fatalf("RevokeSession %d failed: %v", i, err)
		}
	}
	if _, err := f.engine.LookupSession(context.Background(), sessions[0].Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRevokeSessionsRefusesCurrent(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	u := f.addUser(t, "alice@example.com", identity.RoleUser)
	sessions := signInN(t, f, "alice@example.com", 3)
	current := sessions[0].Session.ID

	_, err := f.engine.RevokeSessions(context.Background(), current, u.ID, []string{sessions[1].Session.ID, current})
	if !errors.Is(err, ErrCannotRevokeCurrentSession) {
		t.Fatalf("expected ErrCannotRevokeCurrentSession, got %v", err)
	}
	list, err := f.engine.ListSessions(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected refused call to revoke nothing, got %d sessions left", len(list))
	}

	n, err := f.engine.RevokeSessions(context.Background(), current, u.ID, []string{sessions[1].Session.ID, sessions[2].Session.ID})
	if err != nil {
		t.Fatalf("RevokeSessions failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked, got %d", n)
	}
	if _, err := f.engine.LookupSession(context.Background(), sessions[0].Token); err != nil {
		t.Fatalf("expected current session to survive, got %v", err)
	}
}

func TestRevokeSessionsWhere(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	u := f.addUser(t, "alice@example.com", identity.RoleUser)
	signInN(t, f, "alice@example.com", 1)
	mobile, err := f.signIn(WithUserAgent(context.Background(), "mobile"), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	n, err := f.engine.RevokeSessionsWhere(context.Background(), "", u.ID, func(s *session.Session) bool {
		return s.Snapshot.UserAgent == "mobile"
	})
	if err != nil {
		t.Fatalf("RevokeSessionsWhere failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 revoked, got %d", n)
	}
	if _, err := f.engine.LookupSession(context.Background(), mobile.Session.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected filtered session gone, got %v", err)
	}

	_, err = f.engine.RevokeSessionsWhere(context.Background(), "", u.ID, nil)
	if err != ErrValidation {
		t.Fatalf("expected ErrValidation for nil predicate, got %v", err)
	}
}

func TestRevokeAllSessions(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	u := f.addUser(t, "alice@example.com", identity.RoleUser)
	signInN(t, f, "alice@example.com", 3)

	n, err := f.engine.RevokeAllSessions(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("RevokeAllSessions failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked, got %d", n)
	}
}

func TestChangePasswordRevokesEverySession(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	u := f.addUser(t, "alice@example.com", identity.RoleUser)
	sessions := signInN(t, f, "alice@example.com", 2)

	const next = "a-brand-new-passphrase"
	if err := f.engine.ChangePassword(context.Background(), u.ID, testPassword, next); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	for _, s := range sessions {
		if _, err := f.engine.LookupSession(context.Background(), s.Token); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected session gone after password change, got %v", err)
		}
	}
	if _, err := f.signIn(context.Background(), "alice@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := f.signIn(context.Background(), "alice@example.com", next); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}

	kinds := f.mail.kinds()
	if len(kinds) != 1 || kinds[0] != NotifyPasswordChanged {
		t.Fatalf("expected password-changed notification, got %v", kinds)
	}
}

func TestChangePasswordRejections(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	u := f.addUser(t, "alice@example.com", identity.RoleUser)
	ctx := context.Background()

	if err := f.engine.ChangePassword(ctx, u.ID, "wrong-password-000", "another-passphrase"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := f.security(t, u.ID).FailedAttemptsCount; got != 1 {
		t.Fatalf("expected wrong current password to count, got %d", got)
	}
	if err := f.engine.ChangePassword(ctx, u.ID, testPassword, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := f.engine.ChangePassword(ctx, u.ID, testPassword, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestChangePasswordClearsRequiredFlag(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	u := f.addUser(t, "alice@example.com", identity.RoleUser)
	_, err := f.store.UpdateSecurityConfig(context.Background(), u.ID, func(c *identity.SecurityConfig) error {
		c.RequiresPasswordChange = true
		return nil
	})
	if err != nil {
		t.Fatalf("seed flag failed: %v", err)
	}

	if err := f.engine.ChangePassword(context.Background(), u.ID, testPassword, "a-brand-new-passphrase"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if f.security(t, u.ID).RequiresPasswordChange {
		t.Fatalf("expected flag cleared")
	}
}

func TestAccessTokenMintedWithSession(t *testing.T) {
	cfg := testConfig()
	cfg.AccessToken.Enabled = true
	cfg.AccessToken.SigningMethod = "hs256"
	cfg.AccessToken.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	f, done := newTestEngine(t, cfg)
	defer done()

	u := f.addUser(t, "alice@example.com", identity.RoleUser)
	out, err := f.signIn(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if out.Session.AccessToken == "" {
		t.Fatalf("expected access token")
	}

	claims, err := f.engine.ParseAccessToken(out.Session.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken failed: %v", err)
	}
	if claims.UID != u.ID || claims.SID != out.Session.Session.ID {
		t.Fatalf("expected claims for session, got %+v", claims)
	}
}

func TestAccessTokenDisabledByDefault(t *testing.T) {
	f, done := newTestEngine(t, testConfig())
	defer done()

	if _, err := f.engine.ParseAccessToken("anything"); !errors.Is(err, ErrAccessTokenDisabled) {
		t.Fatalf("expected ErrAccessTokenDisabled, got %v", err)
	}
}

type staticGeo map[string]GeoLocation

func (g staticGeo) Resolve(_ context.Context, ip string) (GeoLocation, error) {
	loc, ok := g[ip]
	if !ok {
		return GeoLocation{}, errors.New("no record")
	}
	return loc, nil
}

func TestSessionSnapshotCarriesGeo(t *testing.T) {
	f, done := newTestEngine(t, testConfig(), func(b *Builder) {
		b.WithGeoResolver(staticGeo{
			"203.0.113.7": {Country: "NZ", Region: "Auckland", City: "Auckland"},
		})
	})
	defer done()

	f.addUser(t, "alice@example.com", identity.RoleUser)

	known := WithUserAgent(WithClientIP(context.Background(), "203.0.113.7"), "agent")
	out, err := f.signIn(known, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	sess, err := f.engine.LookupSession(context.Background(), out.Session.Token)
	if err != nil {
		t.Fatalf("LookupSession failed: %v", err)
	}
	want := session.Snapshot{IP: "203.0.113.7", Country: "NZ", Region: "Auckland", City: "Auckland", UserAgent: "agent"}
	if sess.Snapshot != want {
		t.Fatalf("expected snapshot %+v, got %+v", want, sess.Snapshot)
	}

	// A failed lookup leaves the location blank without blocking sign-in.
	unknown := WithClientIP(context.Background(), "198.51.100.1")
	out, err = f.signIn(unknown, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignIn with unknown ip failed: %v", err)
	}
	if snap := out.Session.Session.Snapshot; snap.Country != "" || snap.IP != "198.51.100.1" {
		t.Fatalf("expected blank location, got %+v", snap)
	}
}
