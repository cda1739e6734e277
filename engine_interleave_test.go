package goIdentity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// interleavingStore runs afterLookup once, right after the first username
// lookup returns, so a concurrent mutation lands between lookup and lock.
type interleavingStore struct {
	*fakeStore
	once        sync.Once
	afterLookup func()
}

func (s *interleavingStore) FindByUsername(ctx context.Context, username string) (IdentityRecord, error) {
	rec, err := s.fakeStore.FindByUsername(ctx, username)
	if err == nil && s.afterLookup != nil {
		s.once.Do(s.afterLookup)
	}
	return rec, err
}

func newInterleavingEngine(t *testing.T, store *interleavingStore) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(testConfig()).
		WithStore(store).
		WithSecureHash(newTestHasher(t)).
		WithClock(newFakeClock(1_000)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func TestRequestPasswordResetAfterConcurrentDelete(t *testing.T) {
	ctx := context.Background()
	store := &interleavingStore{fakeStore: newFakeStore()}
	engine := newInterleavingEngine(t, store)

	rec, err := engine.Register(ctx, RegisterRequest{Username: "alice", Password: "alice-password"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	store.afterLookup = func() {
		if err := engine.Delete(ctx, rec.ID); err != nil {
			t.Errorf("Delete failed: %v", err)
		}
	}

	if _, err := engine.RequestPasswordReset(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	stored, _ := store.get(rec.ID)
	if stored.Status != StatusDeleted {
		t.Fatalf("expected identity to stay deleted, got %v", stored.Status)
	}
	if stored.PasswordResetToken != "" {
		t.Fatal("expected no reset token on a deleted identity")
	}
	if _, err := engine.Credentials().FindActiveByID(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted identity invisible, got %v", err)
	}
}

func TestRequestPasswordResetAfterConcurrentPasswordChange(t *testing.T) {
	ctx := context.Background()
	store := &interleavingStore{fakeStore: newFakeStore()}
	engine := newInterleavingEngine(t, store)

	rec, err := engine.Register(ctx, RegisterRequest{Username: "alice", Password: "old-password"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	var changed IdentityRecord
	store.afterLookup = func() {
		if err := engine.ChangePassword(ctx, rec.ID, "old-password", "new-password"); err != nil {
			t.Errorf("ChangePassword failed: %v", err)
		}
		changed, _ = store.get(rec.ID)
	}

	token, err := engine.RequestPasswordReset(ctx, "alice")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	stored, _ := store.get(rec.ID)
	if stored.PasswordHash != changed.PasswordHash {
		t.Fatal("expected changed password hash to survive the reset request")
	}
	if stored.AuthKey != changed.AuthKey || stored.AuthKey == rec.AuthKey {
		t.Fatal("expected rotated auth key to survive the reset request")
	}
	if stored.PasswordResetToken != token {
		t.Fatal("expected reset token to be stored")
	}
	if _, err := engine.Authenticate(ctx, "alice", "old-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := engine.Authenticate(ctx, "alice", "new-password"); err != nil {
		t.Fatalf("Authenticate with new password failed: %v", err)
	}
}

func putLegacyIdentity(t *testing.T, store *fakeStore, id, username, plaintext string) string {
	t.Helper()

	raw, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	legacy := "$2y$" + string(raw)[4:]
	store.put(IdentityRecord{ID: id, Username: username, PasswordHash: legacy, Status: StatusActive})
	return legacy
}

func TestAuthenticateSkipsRehashAfterConcurrentDelete(t *testing.T) {
	ctx := context.Background()
	store := &interleavingStore{fakeStore: newFakeStore()}
	engine := newInterleavingEngine(t, store)

	legacy := putLegacyIdentity(t, store.fakeStore, "u1", "legacy", "legacy-password")
	store.afterLookup = func() {
		if err := engine.Delete(ctx, "u1"); err != nil {
			t.Errorf("Delete failed: %v", err)
		}
	}

	// The login was verified against the pre-delete read.
	if _, err := engine.Authenticate(ctx, "legacy", "legacy-password"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	stored, _ := store.get("u1")
	if stored.Status != StatusDeleted {
		t.Fatalf("expected identity to stay deleted, got %v", stored.Status)
	}
	if stored.PasswordHash != legacy {
		t.Fatal("expected deleted identity hash to be left alone")
	}
	if engine.MetricsSnapshot().Counters[MetricPasswordRehash] != 0 {
		t.Fatal("expected no rehash")
	}
}

func TestAuthenticateSkipsRehashAfterConcurrentPasswordChange(t *testing.T) {
	ctx := context.Background()
	store := &interleavingStore{fakeStore: newFakeStore()}
	engine := newInterleavingEngine(t, store)

	putLegacyIdentity(t, store.fakeStore, "u1", "legacy", "legacy-password")
	var changed IdentityRecord
	store.afterLookup = func() {
		if err := engine.ChangePassword(ctx, "u1", "legacy-password", "new-password"); err != nil {
			t.Errorf("ChangePassword failed: %v", err)
		}
		changed, _ = store.get("u1")
	}

	if _, err := engine.Authenticate(ctx, "legacy", "legacy-password"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	stored, _ := store.get("u1")
	if stored.PasswordHash != changed.PasswordHash {
		t.Fatal("expected changed password hash to survive the login")
	}
	if _, err := engine.Authenticate(ctx, "legacy", "legacy-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if engine.MetricsSnapshot().Counters[MetricPasswordRehash] != 0 {
		t.Fatal("expected no rehash")
	}
}
