package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "as")
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSession(t *testing.T, userID string) (*Session, Credentials) {
	t.Helper()
	creds, err := NewCredentials()
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	now := time.Now().UTC()
	return &Session{
		ID:         creds.ID,
		UserID:     userID,
		Role:       "user",
		SecretHash: creds.Hash,
		Snapshot:   Snapshot{IP: "203.0.113.7", Country: "NL", UserAgent: "curl/8"},
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}, creds
}

func TestSaveAndLookupByToken(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess, creds := testSession(t, "u-1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	got, err := store.Lookup(ctx, creds.Token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.UserID != "u-1" || got.Snapshot.Country != "NL" || got.Snapshot.UserAgent != "curl/8" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestLookupWrongSecretIsNotFound(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess, _ := testSession(t, "u-1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	other, err := NewCredentials()
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	forged := sess.ID + other.Token[len(other.ID):]
	if _, err := store.Lookup(ctx, forged); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Lookup(ctx, "garbage"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed token, got %v", err)
	}
}

func TestSaveIsWriteOnce(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess, _ := testSession(t, "u-1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	overwrite := *sess
	overwrite.Snapshot.IP = "198.51.100.1"
	if err := store.Save(ctx, &overwrite); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Snapshot.IP != "203.0.113.7" {
		t.Fatalf("snapshot was overwritten: %q", got.Snapshot.IP)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess, _ := testSession(t, "u-1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	removed, err := store.Delete(ctx, sess.ID)
	if err != nil || !removed {
		t.Fatalf("first delete: removed=%v err=%v", removed, err)
	}
	removed, err = store.Delete(ctx, sess.ID)
	if err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}

	ids, err := store.IDsForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty index, got %v", ids)
	}
}

func TestGetLazilyExpires(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess, _ := testSession(t, "u-1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	store.WithClock(func() time.Time { return sess.ExpiresAt.Add(time.Second) })
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestRedisTTLExpiresSession(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess, _ := testSession(t, "u-1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAllForUserLeavesOtherUsers(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sess, _ := testSession(t, "u-1")
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}
	other, _ := testSession(t, "u-2")
	if err := store.Save(ctx, other); err != nil {
		t.Fatalf("save session: %v", err)
	}

	n, err := store.DeleteAllForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}

	if _, err := store.Get(ctx, other.ID); err != nil {
		t.Fatalf("other user's session should survive: %v", err)
	}
	list, err := store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no sessions, got %d", len(list))
	}
}

func TestDeleteManyIgnoresForeignIDs(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	mine, _ := testSession(t, "u-1")
	theirs, _ := testSession(t, "u-2")
	for _, s := range []*Session{mine, theirs} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}

	n, err := store.DeleteMany(ctx, "u-1", []string{mine.ID, theirs.ID})
	if err != nil {
		t.Fatalf("delete many: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
	if _, err := store.Get(ctx, theirs.ID); err != nil {
		t.Fatalf("foreign session must survive: %v", err)
	}
}

func TestListForUserPrunesStaleIndex(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess, _ := testSession(t, "u-1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
	mr.Del(store.key(sess.ID))

	list, err := store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}
	ids, _ := store.IDsForUser(ctx, "u-1")
	if len(ids) != 0 {
		t.Fatalf("expected pruned index, got %v", ids)
	}
}
