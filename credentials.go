package goIdentity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/password"
)

// CredentialConfig sets the entropy of generated secrets. Values below 128
// bits are raised to 128.
type CredentialConfig struct {
	AuthKeyEntropyBits     int
	AccessTokenEntropyBits int
	ResetTokenEntropyBits  int
}

// CredentialManager resolves ACTIVE identities and validates or rotates
// their credentials. Mutating methods change the record in memory and stamp
// UpdatedAt; Save persists it.
type CredentialManager struct {
	store  IdentityStore
	hasher SecureHash
	clock  Clock
	cfg    CredentialConfig
	logger *slog.Logger
}

// NewCredentialManager wires the collaborators. A nil clock defaults to
// SystemClock and a nil logger discards output.
func NewCredentialManager(store IdentityStore, hasher SecureHash, clock Clock, cfg CredentialConfig, logger *slog.Logger) (*CredentialManager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: identity store required", ErrEngineNotReady)
	}
	if hasher == nil {
		return nil, fmt.Errorf("%w: secure hash required", ErrEngineNotReady)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg.AuthKeyEntropyBits = max(cfg.AuthKeyEntropyBits, password.MinTokenEntropyBits)
	cfg.AccessTokenEntropyBits = max(cfg.AccessTokenEntropyBits, password.MinTokenEntropyBits)
	cfg.ResetTokenEntropyBits = max(cfg.ResetTokenEntropyBits, password.MinTokenEntropyBits)

	return &CredentialManager{
		store:  store,
		hasher: hasher,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// FindActiveByID returns the ACTIVE identity with id.
func (m *CredentialManager) FindActiveByID(ctx context.Context, id string) (IdentityRecord, error) {
	if id == "" {
		return IdentityRecord{}, ErrNotFound
	}
	return m.active(m.store.FindByID(ctx, id))
}

// FindActiveByUsername returns the ACTIVE identity with username.
func (m *CredentialManager) FindActiveByUsername(ctx context.Context, username string) (IdentityRecord, error) {
	if username == "" {
		return IdentityRecord{}, ErrNotFound
	}
	return m.active(m.store.FindByUsername(ctx, username))
}

// FindActiveByAccessToken returns the ACTIVE identity whose access token
// equals token exactly. An empty token never matches.
func (m *CredentialManager) FindActiveByAccessToken(ctx context.Context, token string) (IdentityRecord, error) {
	if token == "" {
		return IdentityRecord{}, ErrNotFound
	}
	return m.active(m.store.FindByAccessToken(ctx, token))
}

// active filters a store result down to ACTIVE records and classifies errors.
func (m *CredentialManager) active(rec IdentityRecord, err error) (IdentityRecord, error) {
	if err != nil {
		return IdentityRecord{}, mapStoreError(err)
	}
	if !rec.Active() {
		return IdentityRecord{}, ErrNotFound
	}
	return rec, nil
}

// ValidatePassword reports whether plaintext matches rec's password hash.
// An unusable stored hash counts as a mismatch.
func (m *CredentialManager) ValidatePassword(rec IdentityRecord, plaintext string) bool {
	if rec.PasswordHash == "" {
		return false
	}

	ok, err := m.hasher.Verify(plaintext, rec.PasswordHash)
	if err != nil {
		m.logger.Warn("password hash verification failed",
			slog.String("identity_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}

// SetPassword replaces rec's password hash. Plaintext rejected by the
// hasher's length bounds yields ErrPasswordPolicy.
func (m *CredentialManager) SetPassword(rec *IdentityRecord, plaintext string) error {
	hash, err := m.hasher.Hash(plaintext)
	if err != nil {
		if errors.Is(err, password.ErrPasswordLength) {
			return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return err
	}

	rec.PasswordHash = hash
	rec.UpdatedAt = m.clock.Now()
	return nil
}

// GenerateAuthKey assigns a fresh random auth key.
func (m *CredentialManager) GenerateAuthKey(rec *IdentityRecord) error {
	key, err := m.hasher.RandomString(m.cfg.AuthKeyEntropyBits)
	if err != nil {
		return err
	}

	rec.AuthKey = key
	rec.UpdatedAt = m.clock.Now()
	return nil
}

// ValidateAuthKey compares candidate with rec's auth key in constant time.
// An empty key on either side never matches.
func (m *CredentialManager) ValidateAuthKey(rec IdentityRecord, candidate string) bool {
	if rec.AuthKey == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(rec.AuthKey), []byte(candidate)) == 1
}

// GenerateAccessToken assigns a fresh random access token.
func (m *CredentialManager) GenerateAccessToken(rec *IdentityRecord) error {
	token, err := m.hasher.RandomString(m.cfg.AccessTokenEntropyBits)
	if err != nil {
		return err
	}

	rec.AccessToken = token
	rec.UpdatedAt = m.clock.Now()
	return nil
}

// GeneratePasswordResetToken replaces any pending reset token with
// "<random>_<now>".
func (m *CredentialManager) GeneratePasswordResetToken(rec *IdentityRecord, now int64) error {
	random, err := m.hasher.RandomString(m.cfg.ResetTokenEntropyBits)
	if err != nil {
		return err
	}

	rec.PasswordResetToken = internal.FormatResetToken(random, now)
	rec.UpdatedAt = m.clock.Now()
	return nil
}

// IsPasswordResetTokenValid reports whether token was issued no more than
// expirySeconds before now. Empty or malformed tokens are invalid.
func (m *CredentialManager) IsPasswordResetTokenValid(token string, now, expirySeconds int64) bool {
	return IsPasswordResetTokenValid(token, now, expirySeconds)
}

// IsPasswordResetTokenValid is the stateless form of the method.
func IsPasswordResetTokenValid(token string, now, expirySeconds int64) bool {
	return internal.ResetTokenValid(token, now, expirySeconds)
}

// FindActiveByValidResetToken resolves the ACTIVE identity holding token.
// A token that fails the validity check returns ErrResetTokenInvalid
// without touching the store.
func (m *CredentialManager) FindActiveByValidResetToken(ctx context.Context, token string, now, expirySeconds int64) (IdentityRecord, error) {
	if !IsPasswordResetTokenValid(token, now, expirySeconds) {
		return IdentityRecord{}, ErrResetTokenInvalid
	}
	return m.active(m.store.FindByPasswordResetToken(ctx, token))
}

// RemovePasswordResetToken clears the pending reset token.
func (m *CredentialManager) RemovePasswordResetToken(rec *IdentityRecord) {
	rec.PasswordResetToken = ""
	rec.UpdatedAt = m.clock.Now()
}

// Save stamps UpdatedAt and upserts rec.
func (m *CredentialManager) Save(ctx context.Context, rec *IdentityRecord) error {
	rec.UpdatedAt = m.clock.Now()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = rec.UpdatedAt
	}
	return mapStoreError(m.store.Save(ctx, rec.Clone()))
}

// mapStoreError keeps the sentinels stores are allowed to return and
// classifies everything else as ErrStoreUnavailable.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrIdentityExists):
		return ErrIdentityExists
	case errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
