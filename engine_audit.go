package goIdentity

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goIdentity/internal/audit"
)

const (
	auditEventRegisterSuccess       = "register_success"
	auditEventRegisterFailure       = "register_failure"
	auditEventAuthSuccess           = "auth_success"
	auditEventAuthFailure           = "auth_failure"
	auditEventAccessTokenFailure    = "access_token_failure"
	auditEventAuthKeyFailure        = "auth_key_failure"
	auditEventPasswordRehash        = "password_rehash"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventPasswordResetRejected = "password_reset_rejected"
	auditEventIdentityDeleted       = "identity_deleted"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
	auditEventRateLimitStoreFailure = "rate_limit_store_failure"
)

// AuditErrorCode is the stable reason string recorded on failed events.
type AuditErrorCode string

const (
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityID string,
	action string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Type:       eventType,
		IdentityID: identityID,
		Action:     action,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Reason = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitThrottled(ctx context.Context, identityID, action string, decision RateDecision) {
	e.metricInc(MetricRateLimitThrottled)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, identityID, action, ErrThrottled, func() map[string]string {
		return map[string]string{
			"limit":       strconv.Itoa(decision.Limit),
			"window":      strconv.FormatInt(decision.Window, 10),
			"retry_after": strconv.FormatInt(decision.RetryAfter, 10),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrResetTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrThrottled):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrIdentityExists):
		return auditErrDuplicate
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	default:
		return auditErrInternal
	}
}
