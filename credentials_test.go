package goIdentity

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
)

func TestFindActiveSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clock := newFakeClock(1_000)
	m := newTestCredentials(t, store, clock)

	active := seedIdentity(t, m, store, "u1", "alice", "password-alice")
	deleted := seedIdentity(t, m, store, "u2", "bob", "password-bob")
	deleted.Status = StatusDeleted
	store.put(deleted)

	got, err := m.FindActiveByID(ctx, "u1")
	if err != nil || got.ID != active.ID {
		t.Fatalf("FindActiveByID(u1) = %v, %v", got.ID, err)
	}
	if _, err := m.FindActiveByID(ctx, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted identity to be invisible by id, got %v", err)
	}
	if _, err := m.FindActiveByUsername(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted identity to be invisible by username, got %v", err)
	}
	if _, err := m.FindActiveByAccessToken(ctx, deleted.AccessToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted identity to be invisible by access token, got %v", err)
	}
	if _, err := m.FindActiveByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	got, err = m.FindActiveByAccessToken(ctx, active.AccessToken)
	if err != nil || got.ID != "u1" {
		t.Fatalf("FindActiveByAccessToken = %v, %v", got.ID, err)
	}
}

func TestFindActiveByAccessTokenEmptySkipsStore(t *testing.T) {
	store := newFakeStore()
	m := newTestCredentials(t, store, newFakeClock(0))

	if _, err := m.FindActiveByAccessToken(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.findCalls.Load() != 0 {
		t.Fatalf("expected no store lookup for empty token, got %d", store.findCalls.Load())
	}
}

func TestFindActiveMapsStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.failFind = errBackendDown
	m := newTestCredentials(t, store, newFakeClock(0))

	_, err := m.FindActiveByUsername(context.Background(), "alice")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("store failure must not look like not-found")
	}

	store.failFind = context.DeadlineExceeded
	if _, err := m.FindActiveByID(context.Background(), "u1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected deadline to surface as ErrStoreUnavailable, got %v", err)
	}
}

func TestValidatePassword(t *testing.T) {
	store := newFakeStore()
	m := newTestCredentials(t, store, newFakeClock(0))
	rec := seedIdentity(t, m, store, "u1", "alice", "correct-horse")

	if !m.ValidatePassword(rec, "correct-horse") {
		t.Fatal("expected matching password to validate")
	}
	if m.ValidatePassword(rec, "wrong-horse") {
		t.Fatal("expected wrong password to fail")
	}
	if m.ValidatePassword(IdentityRecord{}, "correct-horse") {
		t.Fatal("expected empty hash to fail")
	}

	rec.PasswordHash = "$argon2id$garbage"
	if m.ValidatePassword(rec, "correct-horse") {
		t.Fatal("expected malformed hash to fail closed")
	}
}

func TestSetPasswordStampsUpdatedAt(t *testing.T) {
	clock := newFakeClock(500)
	m := newTestCredentials(t, newFakeStore(), clock)

	rec := IdentityRecord{ID: "u1", UpdatedAt: 1}
	clock.Set(777)
	if err := m.SetPassword(&rec, "long-enough-password"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if rec.UpdatedAt != 777 {
		t.Fatalf("expected UpdatedAt=777, got %d", rec.UpdatedAt)
	}
	if rec.PasswordHash == "" || strings.Contains(rec.PasswordHash, "long-enough-password") {
		t.Fatal("expected an opaque hash")
	}

	if err := m.SetPassword(&rec, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestAuthKeyGenerationAndValidation(t *testing.T) {
	m := newTestCredentials(t, newFakeStore(), newFakeClock(0))

	rec := IdentityRecord{ID: "u1"}
	if m.ValidateAuthKey(rec, "") {
		t.Fatal("empty key must never match")
	}

	if err := m.GenerateAuthKey(&rec); err != nil {
		t.Fatalf("GenerateAuthKey failed: %v", err)
	}
	first := rec.AuthKey
	// 256 bits of base64url is 43 characters.
	if len(first) != 43 {
		t.Fatalf("expected 43-char auth key, got %d", len(first))
	}
	if !m.ValidateAuthKey(rec, first) {
		t.Fatal("expected generated key to validate")
	}
	if m.ValidateAuthKey(rec, first[:len(first)-1]) {
		t.Fatal("expected prefix of key to fail")
	}
	if m.ValidateAuthKey(rec, "") {
		t.Fatal("expected empty candidate to fail")
	}

	if err := m.GenerateAuthKey(&rec); err != nil {
		t.Fatalf("GenerateAuthKey failed: %v", err)
	}
	if rec.AuthKey == first {
		t.Fatal("expected a fresh key on regeneration")
	}
	if m.ValidateAuthKey(rec, first) {
		t.Fatal("expected old key to stop validating")
	}
}

func TestEntropyFloorApplied(t *testing.T) {
	m, err := NewCredentialManager(newFakeStore(), newTestHasher(t), newFakeClock(0), CredentialConfig{AuthKeyEntropyBits: 8}, nil)
	if err != nil {
		t.Fatalf("NewCredentialManager failed: %v", err)
	}

	var rec IdentityRecord
	if err := m.GenerateAuthKey(&rec); err != nil {
		t.Fatalf("GenerateAuthKey failed: %v", err)
	}
	if len(rec.AuthKey) < 22 {
		t.Fatalf("expected at least 128 bits of key material, got %d chars", len(rec.AuthKey))
	}
}

func TestPasswordResetTokenFormat(t *testing.T) {
	m := newTestCredentials(t, newFakeStore(), newFakeClock(0))

	var rec IdentityRecord
	if err := m.GeneratePasswordResetToken(&rec, 1_700_000_000); err != nil {
		t.Fatalf("GeneratePasswordResetToken failed: %v", err)
	}

	i := strings.LastIndexByte(rec.PasswordResetToken, '_')
	if i <= 0 {
		t.Fatalf("expected <random>_<ts>, got %q", rec.PasswordResetToken)
	}
	ts, err := strconv.ParseInt(rec.PasswordResetToken[i+1:], 10, 64)
	if err != nil || ts != 1_700_000_000 {
		t.Fatalf("expected issuance suffix 1700000000, got %q", rec.PasswordResetToken[i+1:])
	}

	first := rec.PasswordResetToken
	if err := m.GeneratePasswordResetToken(&rec, 1_700_000_001); err != nil {
		t.Fatalf("GeneratePasswordResetToken failed: %v", err)
	}
	if rec.PasswordResetToken == first {
		t.Fatal("expected reissue to replace the pending token")
	}
}

func TestPasswordResetTokenValidityWindow(t *testing.T) {
	const issued, expiry = int64(1_000), int64(3_600)

	m := newTestCredentials(t, newFakeStore(), newFakeClock(0))
	var rec IdentityRecord
	if err := m.GeneratePasswordResetToken(&rec, issued); err != nil {
		t.Fatalf("GeneratePasswordResetToken failed: %v", err)
	}
	token := rec.PasswordResetToken

	cases := []struct {
		now  int64
		want bool
	}{
		{issued, true},
		{issued + expiry - 1, true},
		{issued + expiry, true},
		{issued + expiry + 1, false},
	}
	for _, tc := range cases {
		if got := m.IsPasswordResetTokenValid(token, tc.now, expiry); got != tc.want {
			t.Fatalf("now=%d: got %v want %v", tc.now, got, tc.want)
		}
	}

	for _, bad := range []string{"", "abc", "abc_", "_123", "abc_12x", "abc_-5"} {
		if IsPasswordResetTokenValid(bad, issued, expiry) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
}

func TestFindActiveByValidResetToken(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clock := newFakeClock(10_000)
	m := newTestCredentials(t, store, clock)

	rec := seedIdentity(t, m, store, "u1", "alice", "password-alice")
	if err := m.GeneratePasswordResetToken(&rec, 10_000); err != nil {
		t.Fatalf("GeneratePasswordResetToken failed: %v", err)
	}
	store.put(rec)
	token := rec.PasswordResetToken

	got, err := m.FindActiveByValidResetToken(ctx, token, 10_100, 3_600)
	if err != nil || got.ID != "u1" {
		t.Fatalf("expected lookup to succeed, got %v %v", got.ID, err)
	}

	calls := store.findCalls.Load()
	if _, err := m.FindActiveByValidResetToken(ctx, token, 10_000+3_601, 3_600); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid for expired token, got %v", err)
	}
	if _, err := m.FindActiveByValidResetToken(ctx, "garbled", 10_000, 3_600); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid for malformed token, got %v", err)
	}
	if store.findCalls.Load() != calls {
		t.Fatal("invalid tokens must not reach the store")
	}

	m.RemovePasswordResetToken(&rec)
	store.put(rec)
	if rec.PasswordResetToken != "" {
		t.Fatal("expected token to be cleared")
	}
	if _, err := m.FindActiveByValidResetToken(ctx, token, 10_100, 3_600); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected removed token lookup to fail with ErrNotFound, got %v", err)
	}
}

func TestSaveMapsErrors(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clock := newFakeClock(42)
	m := newTestCredentials(t, store, clock)

	rec := IdentityRecord{ID: "u1", Username: "alice", Status: StatusActive}
	if err := m.Save(ctx, &rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if rec.CreatedAt != 42 || rec.UpdatedAt != 42 {
		t.Fatalf("expected timestamps stamped at 42, got %d/%d", rec.CreatedAt, rec.UpdatedAt)
	}

	dup := IdentityRecord{ID: "u2", Username: "alice", Status: StatusActive}
	if err := m.Save(ctx, &dup); !errors.Is(err, ErrIdentityExists) {
		t.Fatalf("expected ErrIdentityExists, got %v", err)
	}

	store.failSave = errBackendDown
	if err := m.Save(ctx, &rec); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestNewCredentialManagerRequiresCollaborators(t *testing.T) {
	if _, err := NewCredentialManager(nil, newTestHasher(t), nil, CredentialConfig{}, nil); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady for nil store, got %v", err)
	}
	if _, err := NewCredentialManager(newFakeStore(), nil, nil, CredentialConfig{}, nil); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady for nil hasher, got %v", err)
	}
}

func TestFindActiveByValidResetTokenSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clock := newFakeClock(1_000)
	m := newTestCredentials(t, store, clock)

	rec := seedIdentity(t, m, store, "u1", "alice", "password-alice")
	if err := m.GeneratePasswordResetToken(&rec, clock.Now()); err != nil {
		t.Fatalf("GeneratePasswordResetToken failed: %v", err)
	}
	rec.Status = StatusDeleted
	store.put(rec)

	if !m.IsPasswordResetTokenValid(rec.PasswordResetToken, clock.Now(), 3600) {
		t.Fatal("expected the token itself to be unexpired")
	}
	if _, err := m.FindActiveByValidResetToken(ctx, rec.PasswordResetToken, clock.Now(), 3600); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted identity to be invisible by reset token, got %v", err)
	}
}
