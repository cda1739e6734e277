// Package memory is an in-process goIdentity.IdentityStore for tests,
// single-node tools and local development.
package memory

import (
	"context"
	"sync"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// Store keeps identities in maps guarded by one RWMutex.
type Store struct {
	mu            sync.RWMutex
	byID          map[string]goIdentity.IdentityRecord
	byUsername    map[string]string
	byAccessToken map[string]string
	byResetToken  map[string]string
}

func New() *Store {
	return &Store{
		byID:          map[string]goIdentity.IdentityRecord{},
		byUsername:    map[string]string{},
		byAccessToken: map[string]string{},
		byResetToken:  map[string]string{},
	}
}

func (s *Store) FindByID(ctx context.Context, id string) (goIdentity.IdentityRecord, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.IdentityRecord{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(id)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (goIdentity.IdentityRecord, error) {
	return s.findByIndex(ctx, s.byUsername, username)
}

func (s *Store) FindByAccessToken(ctx context.Context, token string) (goIdentity.IdentityRecord, error) {
	return s.findByIndex(ctx, s.byAccessToken, token)
}

func (s *Store) FindByPasswordResetToken(ctx context.Context, token string) (goIdentity.IdentityRecord, error) {
	return s.findByIndex(ctx, s.byResetToken, token)
}

func (s *Store) findByIndex(ctx context.Context, index map[string]string, key string) (goIdentity.IdentityRecord, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.IdentityRecord{}, err
	}
	if key == "" {
		return goIdentity.IdentityRecord{}, goIdentity.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := index[key]
	if !ok {
		return goIdentity.IdentityRecord{}, goIdentity.ErrNotFound
	}
	return s.activeLocked(id)
}

func (s *Store) activeLocked(id string) (goIdentity.IdentityRecord, error) {
	rec, ok := s.byID[id]
	if !ok || !rec.Active() {
		return goIdentity.IdentityRecord{}, goIdentity.ErrNotFound
	}
	return rec.Clone(), nil
}

// Save upserts rec, keeping the stored allowance.
func (s *Store) Save(ctx context.Context, rec goIdentity.IdentityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byUsername[rec.Username]; ok && owner != rec.ID {
		return goIdentity.ErrIdentityExists
	}

	prev, existed := s.byID[rec.ID]
	if existed {
		reindex(s.byUsername, prev.Username, rec.Username, rec.ID)
		reindex(s.byAccessToken, prev.AccessToken, rec.AccessToken, rec.ID)
		reindex(s.byResetToken, prev.PasswordResetToken, rec.PasswordResetToken, rec.ID)
	} else {
		reindex(s.byUsername, "", rec.Username, rec.ID)
		reindex(s.byAccessToken, "", rec.AccessToken, rec.ID)
		reindex(s.byResetToken, "", rec.PasswordResetToken, rec.ID)
	}

	stored := rec.Clone()
	stored.Allowance = prev.Clone().Allowance
	s.byID[rec.ID] = stored
	return nil
}

func reindex(index map[string]string, old, next, id string) {
	if old != "" && old != next {
		delete(index, old)
	}
	if next != "" {
		index[next] = id
	}
}

func (s *Store) LoadAllowance(ctx context.Context, id string) (goIdentity.Allowance, bool, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.Allowance{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return goIdentity.Allowance{}, false, goIdentity.ErrNotFound
	}
	if rec.Allowance == nil {
		return goIdentity.Allowance{}, false, nil
	}
	return *rec.Allowance, true, nil
}

func (s *Store) SaveAllowance(ctx context.Context, id string, a goIdentity.Allowance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.Remaining < 0 {
		return goIdentity.ErrInvalidAllowance
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return goIdentity.ErrNotFound
	}
	rec.Allowance = &a
	s.byID[id] = rec
	return nil
}

// Len returns the number of stored identities, deleted ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
