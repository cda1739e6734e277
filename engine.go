package goIdentity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/google/uuid"
)

// Engine composes CredentialManager and RateLimiter behind one API, adding
// audit events, metrics and structured logging. Build it with New().
type Engine struct {
	config      Config
	store       IdentityStore
	hasher      SecureHash
	clock       Clock
	credentials *CredentialManager
	limiter     *RateLimiter
	mutations   *rate.KeyedMutex
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters. It is empty when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Credentials exposes the underlying CredentialManager.
func (e *Engine) Credentials() *CredentialManager {
	return e.credentials
}

// RateLimiter exposes the underlying RateLimiter.
func (e *Engine) RateLimiter() *RateLimiter {
	return e.limiter
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) storeFailure(ctx context.Context, op string, err error) {
	if !errors.Is(err, ErrStoreUnavailable) {
		return
	}
	e.metricInc(MetricStoreError)
	e.logger.ErrorContext(ctx, "identity store failure",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

// Register creates an ACTIVE identity with a hashed password and fresh
// auth key and access token.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (IdentityRecord, error) {
	if req.Username == "" {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrInvalidCredentials, nil)
		return IdentityRecord{}, ErrInvalidCredentials
	}

	unlock := e.mutations.Lock("username:" + req.Username)
	defer unlock()

	_, err := e.credentials.FindActiveByUsername(ctx, req.Username)
	switch {
	case err == nil:
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrIdentityExists, nil)
		return IdentityRecord{}, ErrIdentityExists
	case !errors.Is(err, ErrNotFound):
		e.storeFailure(ctx, "register", err)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return IdentityRecord{}, err
	}

	now := e.clock.Now()
	rec := IdentityRecord{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.credentials.SetPassword(&rec, req.Password); err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return IdentityRecord{}, err
	}
	if err := e.credentials.GenerateAuthKey(&rec); err != nil {
		return IdentityRecord{}, err
	}
	if err := e.credentials.GenerateAccessToken(&rec); err != nil {
		return IdentityRecord{}, err
	}

	if err := e.credentials.Save(ctx, &rec); err != nil {
		if errors.Is(err, ErrIdentityExists) {
			e.metricInc(MetricRegisterDuplicate)
		}
		e.storeFailure(ctx, "register", err)
		e.emitAudit(ctx, auditEventRegisterFailure, false, rec.ID, "", err, nil)
		return IdentityRecord{}, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, rec.ID, "", nil, nil)
	e.logger.InfoContext(ctx, "identity registered", slog.String("identity_id", rec.ID))
	return rec.Clone(), nil
}

// Authenticate verifies a username and password. An unknown username and a
// wrong password both return ErrInvalidCredentials.
func (e *Engine) Authenticate(ctx context.Context, username, plaintext string) (IdentityRecord, error) {
	rec, err := e.credentials.FindActiveByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = ErrInvalidCredentials
		}
		e.storeFailure(ctx, "authenticate", err)
		e.metricInc(MetricAuthFailure)
		e.emitAudit(ctx, auditEventAuthFailure, false, "", "", err, nil)
		return IdentityRecord{}, err
	}

	if !e.credentials.ValidatePassword(rec, plaintext) {
		e.metricInc(MetricAuthFailure)
		e.emitAudit(ctx, auditEventAuthFailure, false, rec.ID, "", ErrInvalidCredentials, nil)
		return IdentityRecord{}, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, &rec, plaintext)
	}

	e.metricInc(MetricAuthSuccess)
	e.emitAudit(ctx, auditEventAuthSuccess, true, rec.ID, "", nil, nil)
	return rec.Clone(), nil
}

// upgradeHash rehashes a stale password hash. Failures leave the old hash in
// place and do not fail the login.
func (e *Engine) upgradeHash(ctx context.Context, rec *IdentityRecord, plaintext string) {
	upgrader, ok := e.hasher.(upgradeableHash)
	if !ok {
		return
	}

	needs, err := upgrader.NeedsUpgrade(rec.PasswordHash)
	if err != nil || !needs {
		return
	}

	unlock := e.mutations.Lock(rec.ID)
	defer unlock()

	// Only rehash the hash that was just verified.
	updated, err := e.credentials.FindActiveByID(ctx, rec.ID)
	if err != nil {
		e.storeFailure(ctx, "rehash", err)
		return
	}
	if updated.PasswordHash != rec.PasswordHash {
		return
	}
	if err := e.credentials.SetPassword(&updated, plaintext); err != nil {
		e.logger.WarnContext(ctx, "password rehash failed",
			slog.String("identity_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := e.credentials.Save(ctx, &updated); err != nil {
		e.storeFailure(ctx, "rehash", err)
		return
	}

	*rec = updated
	e.metricInc(MetricPasswordRehash)
	e.emitAudit(ctx, auditEventPasswordRehash, true, rec.ID, "", nil, nil)
}

// AuthenticateAccessToken resolves the ACTIVE identity holding token.
func (e *Engine) AuthenticateAccessToken(ctx context.Context, token string) (IdentityRecord, error) {
	rec, err := e.credentials.FindActiveByAccessToken(ctx, token)
	if err != nil {
		e.storeFailure(ctx, "authenticate_access_token", err)
		e.metricInc(MetricAccessTokenFailure)
		e.emitAudit(ctx, auditEventAccessTokenFailure, false, "", "", err, nil)
		return IdentityRecord{}, err
	}

	e.metricInc(MetricAccessTokenSuccess)
	return rec.Clone(), nil
}

// AuthenticateAuthKey checks a remembered-login key for identity id.
func (e *Engine) AuthenticateAuthKey(ctx context.Context, id, key string) (IdentityRecord, error) {
	rec, err := e.credentials.FindActiveByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = ErrInvalidCredentials
		}
		e.storeFailure(ctx, "authenticate_auth_key", err)
		e.metricInc(MetricAuthKeyFailure)
		e.emitAudit(ctx, auditEventAuthKeyFailure, false, id, "", err, nil)
		return IdentityRecord{}, err
	}

	if !e.credentials.ValidateAuthKey(rec, key) {
		e.metricInc(MetricAuthKeyFailure)
		e.emitAudit(ctx, auditEventAuthKeyFailure, false, rec.ID, "", ErrInvalidCredentials, nil)
		return IdentityRecord{}, ErrInvalidCredentials
	}

	e.metricInc(MetricAuthKeySuccess)
	return rec.Clone(), nil
}

// ChangePassword replaces the password of identity id after checking the
// current one. The auth key rotates when PasswordReset.RotateAuthKey is set.
func (e *Engine) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	unlock := e.mutations.Lock(id)
	defer unlock()

	rec, err := e.credentials.FindActiveByID(ctx, id)
	if err != nil {
		e.storeFailure(ctx, "change_password", err)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, id, "", err, nil)
		return err
	}

	if !e.credentials.ValidatePassword(rec, oldPassword) {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, rec.ID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.credentials.SetPassword(&rec, newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, rec.ID, "", err, nil)
		return err
	}
	if e.config.PasswordReset.RotateAuthKey {
		if err := e.credentials.GenerateAuthKey(&rec); err != nil {
			return err
		}
	}

	if err := e.credentials.Save(ctx, &rec); err != nil {
		e.storeFailure(ctx, "change_password", err)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, rec.ID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, rec.ID, "", nil, nil)
	return nil
}

// Delete moves identity id to StatusDeleted. Records are never removed.
func (e *Engine) Delete(ctx context.Context, id string) error {
	unlock := e.mutations.Lock(id)
	defer unlock()

	rec, err := e.credentials.FindActiveByID(ctx, id)
	if err != nil {
		e.storeFailure(ctx, "delete", err)
		return err
	}

	rec.Status = StatusDeleted
	if err := e.credentials.Save(ctx, &rec); err != nil {
		e.storeFailure(ctx, "delete", err)
		return err
	}

	e.metricInc(MetricIdentityDeleted)
	e.emitAudit(ctx, auditEventIdentityDeleted, true, rec.ID, "", nil, nil)
	e.logger.InfoContext(ctx, "identity deleted", slog.String("identity_id", rec.ID))
	return nil
}

// Throttle consumes one request from identity's bucket at the engine clock.
// A throttled request returns the decision together with a *ThrottledError.
func (e *Engine) Throttle(ctx context.Context, identity Identity, action string) (RateDecision, error) {
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricThrottleLatency, time.Since(start))
		}
	}()

	var identityID string
	if identity != nil {
		identityID = identity.IdentityID()
	}

	decision, err := e.limiter.CheckAndConsume(ctx, identity, action, e.clock.Now())
	if err != nil {
		e.storeFailure(ctx, "throttle", err)
		if errors.Is(err, ErrStoreUnavailable) {
			e.emitAudit(ctx, auditEventRateLimitStoreFailure, false, identityID, action, err, nil)
		}
		return RateDecision{}, err
	}

	if !decision.Allowed {
		e.emitThrottled(ctx, identityID, action, decision)
		return decision, &ThrottledError{Action: action, RetryAfter: decision.RetryAfter}
	}

	e.metricInc(MetricRateLimitAllowed)
	return decision, nil
}
