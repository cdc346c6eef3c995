package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/identity/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct-horse-battery"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Notification
}

func (m *recordingMailer) Send(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *recordingMailer) kinds() []NotificationKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NotificationKind, 0, len(m.sent))
	for _, n := range m.sent {
		out = append(out, n.Kind)
	}
	return out
}

type denyNetwork struct {
	ips     map[string]bool
	domains map[string]bool
}

func (d denyNetwork) IPAllowed(ip string) bool { return !d.ips[ip] }

func (d denyNetwork) EmailDomainAllowed(email string) bool {
	for domain := range d.domains {
		if len(email) > len(domain) && email[len(email)-len(domain)-1:] == "@"+domain {
			return false
		}
	}
	return true
}

type fixture struct {
	engine *Engine
	store  *memstore.Store
	rdb    *redis.Client
	mr     *miniredis.Miniredis
	clock  *testClock
	audit  *ChannelSink
	mail   *recordingMailer
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Admin.RequireSudo = false
	return cfg
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestEngine(t testing.TB, cfg Config, opts ...func(*Builder)) (*fixture, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	f := &fixture{
		store: memstore.New(),
		rdb:   rdb,
		mr:    mr,
		clock: newTestClock(),
		audit: NewChannelSink(1024),
		mail:  &recordingMailer{},
	}

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(f.store).
		WithAuditSink(f.audit).
		WithMailer(f.mail).
		WithClock(f.clock.Now)
	for _, opt := range opts {
		opt(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	f.engine = engine

	return f, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func (f *fixture) addUser(t testing.TB, email string, role identity.Role) identity.User {
	t.Helper()

	hash, err := f.engine.verifier.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	u := f.store.AddUser(identity.User{Email: email, Name: email, Role: role})
	f.store.AddCredentialAccount(identity.CredentialAccount{
		UserID:       u.ID,
		Provider:     identity.ProviderPassword,
		PasswordHash: hash,
	})
	return u
}

func (f *fixture) security(t *testing.T, userID string) identity.SecurityConfig {
	t.Helper()

	cfg, err := f.store.GetSecurityConfig(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetSecurityConfig failed: %v", err)
	}
	return cfg
}

func (f *fixture) signIn(ctx context.Context, email, pw string) (*SignInOutcome, error) {
	return f.engine.SignIn(ctx, DefaultPolicy(), PasswordSignIn{Email: email, Password: pw})
}

// enrollTOTP runs the full enrollment and returns the secret and the first
// batch of backup codes.
func (f *fixture) enrollTOTP(t *testing.T, userID string) (string, []string) {
	t.Helper()

	ctx := context.Background()
	enrollment, err := f.engine.BeginTOTPEnrollment(ctx, userID)
	if err != nil {
		t.Fatalf("BeginTOTPEnrollment failed: %v", err)
	}
	code := f.totpCode(t, enrollment.Secret)
	codes, err := f.engine.ConfirmTOTPEnrollment(ctx, userID, code)
	if err != nil {
		t.Fatalf("ConfirmTOTPEnrollment failed: %v", err)
	}
	// The confirmation spent the current time step.
	f.clock.Advance(30 * time.Second)
	return enrollment.Secret, codes
}

func (f *fixture) totpCode(t *testing.T, secret string) string {
	t.Helper()

	code, err := f.engine.totp.Code(secret, f.clock.Now())
	if err != nil {
		t.Fatalf("totp code failed: %v", err)
	}
	return code
}

// auditEvents closes the engine so the dispatcher drains, then returns what
// the sink received.
func (f *fixture) auditEvents() []AuditEvent {
	f.engine.Close()

	var out []AuditEvent
	for {
		select {
		case ev := <-f.audit.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasAudit(events []AuditEvent, action string, code AuditErrorCode) bool {
	for _, ev := range events {
		if ev.Action == action && ev.Error == string(code) {
			return true
		}
	}
	return false
}

func bcryptHash(t *testing.T, pw string) string {
	t.Helper()

	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	return string(h)
}
