package goIdentity

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
)

// RequestPasswordReset issues a new reset token for the ACTIVE identity
// with username, replacing any pending one, and returns it for delivery.
func (e *Engine) RequestPasswordReset(ctx context.Context, username string) (string, error) {
	rec, err := e.credentials.FindActiveByUsername(ctx, username)
	if err != nil {
		e.storeFailure(ctx, "request_password_reset", err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", err, nil)
		return "", err
	}

	unlock := e.mutations.Lock(rec.ID)
	defer unlock()

	// Delete or ChangePassword may have landed between lookup and lock.
	rec, err = e.credentials.FindActiveByID(ctx, rec.ID)
	if err != nil {
		e.storeFailure(ctx, "request_password_reset", err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", err, nil)
		return "", err
	}

	now := e.clock.Now()
	if err := e.credentials.GeneratePasswordResetToken(&rec, now); err != nil {
		return "", err
	}
	if err := e.credentials.Save(ctx, &rec); err != nil {
		e.storeFailure(ctx, "request_password_reset", err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, rec.ID, "", err, nil)
		return "", err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, rec.ID, "", nil, func() map[string]string {
		return map[string]string{
			"expires_at": strconv.FormatInt(now+e.config.PasswordReset.ExpirySeconds, 10),
		}
	})
	return rec.PasswordResetToken, nil
}

// ValidatePasswordResetToken reports whether token is well formed, unexpired
// and still pending on an ACTIVE identity.
func (e *Engine) ValidatePasswordResetToken(ctx context.Context, token string) error {
	_, err := e.credentials.FindActiveByValidResetToken(ctx, token, e.clock.Now(), e.config.PasswordReset.ExpirySeconds)
	if errors.Is(err, ErrNotFound) {
		return ErrResetTokenInvalid
	}
	e.storeFailure(ctx, "validate_password_reset_token", err)
	return err
}

// ResetPassword sets a new password for the identity holding token and
// consumes the token. Expired, malformed, used and unknown tokens all
// return ErrResetTokenInvalid.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	expiry := e.config.PasswordReset.ExpirySeconds

	rec, err := e.credentials.FindActiveByValidResetToken(ctx, token, e.clock.Now(), expiry)
	if err != nil {
		return e.resetRejected(ctx, "", err)
	}

	unlock := e.mutations.Lock(rec.ID)
	defer unlock()

	// A concurrent reset may have consumed the token while we waited.
	rec, err = e.credentials.FindActiveByValidResetToken(ctx, token, e.clock.Now(), expiry)
	if err != nil {
		return e.resetRejected(ctx, "", err)
	}

	if err := e.credentials.SetPassword(&rec, newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, rec.ID, "", err, nil)
		return err
	}
	e.credentials.RemovePasswordResetToken(&rec)
	if e.config.PasswordReset.RotateAuthKey {
		if err := e.credentials.GenerateAuthKey(&rec); err != nil {
			return err
		}
	}

	if err := e.credentials.Save(ctx, &rec); err != nil {
		e.storeFailure(ctx, "reset_password", err)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, rec.ID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, rec.ID, "", nil, nil)
	e.logger.InfoContext(ctx, "password reset completed", slog.String("identity_id", rec.ID))
	return nil
}

func (e *Engine) resetRejected(ctx context.Context, identityID string, err error) error {
	if errors.Is(err, ErrNotFound) {
		err = ErrResetTokenInvalid
	}
	e.storeFailure(ctx, "reset_password", err)
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditEventPasswordResetRejected, false, identityID, "", err, nil)
	return err
}
