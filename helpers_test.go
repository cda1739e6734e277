package goIdentity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/goIdentity/password"
)

// fakeStore returns records regardless of status so tests exercise the
// ACTIVE filter in CredentialManager.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]IdentityRecord

	findCalls  atomic.Int64
	allowSaves atomic.Int64

	failFind  error
	failSave  error
	failLoad  error
	failAllow error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]IdentityRecord{}}
}

func (s *fakeStore) put(rec IdentityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
}

func (s *fakeStore) get(id string) (IdentityRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec.Clone(), ok
}

func (s *fakeStore) find(match func(IdentityRecord) bool) (IdentityRecord, error) {
	s.findCalls.Add(1)
	if s.failFind != nil {
		return IdentityRecord{}, s.failFind
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if match(rec) {
			return rec.Clone(), nil
		}
	}
	return IdentityRecord{}, ErrNotFound
}

func (s *fakeStore) FindByID(_ context.Context, id string) (IdentityRecord, error) {
	return s.find(func(r IdentityRecord) bool { return r.ID == id })
}

func (s *fakeStore) FindByUsername(_ context.Context, username string) (IdentityRecord, error) {
	return s.find(func(r IdentityRecord) bool { return r.Username == username && r.Active() })
}

func (s *fakeStore) FindByAccessToken(_ context.Context, token string) (IdentityRecord, error) {
	return s.find(func(r IdentityRecord) bool { return r.AccessToken == token })
}

func (s *fakeStore) FindByPasswordResetToken(_ context.Context, token string) (IdentityRecord, error) {
	return s.find(func(r IdentityRecord) bool { return r.PasswordResetToken == token })
}

func (s *fakeStore) Save(_ context.Context, rec IdentityRecord) error {
	if s.failSave != nil {
		return s.failSave
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.records {
		if id != rec.ID && other.Username == rec.Username {
			return ErrIdentityExists
		}
	}
	rec.Allowance = nil
	if prev, ok := s.records[rec.ID]; ok {
		rec.Allowance = prev.Allowance
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *fakeStore) LoadAllowance(_ context.Context, id string) (Allowance, bool, error) {
	if s.failLoad != nil {
		return Allowance{}, false, s.failLoad
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Allowance{}, false, ErrNotFound
	}
	if rec.Allowance == nil {
		return Allowance{}, false, nil
	}
	return *rec.Allowance, true, nil
}

func (s *fakeStore) SaveAllowance(_ context.Context, id string, a Allowance) error {
	if s.failAllow != nil {
		return s.failAllow
	}
	if a.Remaining < 0 {
		return ErrInvalidAllowance
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Allowance = &a
	s.records[id] = rec
	s.allowSaves.Add(1)
	return nil
}

type fakeClock struct {
	now atomic.Int64
}

func newFakeClock(start int64) *fakeClock {
	c := &fakeClock{}
	c.now.Store(start)
	return c
}

func (c *fakeClock) Now() int64      { return c.now.Load() }
func (c *fakeClock) Set(v int64)     { c.now.Store(v) }
func (c *fakeClock) Advance(d int64) { c.now.Add(d) }

var errBackendDown = errors.New("connection refused")

func testPasswordConfig() password.Config {
	return password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T) *password.Argon2 {
	t.Helper()

	h, err := password.NewArgon2(testPasswordConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return h
}

func testConfig() Config {
	cfg := DefaultConfig()
	pc := testPasswordConfig()
	cfg.Password.Memory = pc.Memory
	cfg.Password.Time = pc.Time
	cfg.Password.Parallelism = pc.Parallelism
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestCredentials(t *testing.T, store IdentityStore, clock Clock) *CredentialManager {
	t.Helper()

	m, err := NewCredentialManager(store, newTestHasher(t), clock, CredentialConfig{
		AuthKeyEntropyBits:     256,
		AccessTokenEntropyBits: 256,
		ResetTokenEntropyBits:  256,
	}, nil)
	if err != nil {
		t.Fatalf("NewCredentialManager failed: %v", err)
	}
	return m
}

func newTestEngine(t *testing.T, store *fakeStore, clock *fakeClock, sink AuditSink) *Engine {
	t.Helper()

	b := New().
		WithConfig(testConfig()).
		WithStore(store).
		WithSecureHash(newTestHasher(t)).
		WithClock(clock)
	if sink != nil {
		b = b.WithAuditSink(sink)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func seedIdentity(t *testing.T, m *CredentialManager, store *fakeStore, id, username, plaintext string) IdentityRecord {
	t.Helper()

	rec := IdentityRecord{ID: id, Username: username, Status: StatusActive}
	if err := m.SetPassword(&rec, plaintext); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if err := m.GenerateAuthKey(&rec); err != nil {
		t.Fatalf("GenerateAuthKey failed: %v", err)
	}
	if err := m.GenerateAccessToken(&rec); err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	store.put(rec)
	return rec
}
