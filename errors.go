package goIdentity

import (
	"errors"
	"strconv"
)

var (
	// ErrNotFound means no ACTIVE identity matched the lookup. It never
	// distinguishes a wrong credential from a missing identity.
	ErrNotFound = errors.New("identity not found")
	// ErrInvalidCredentials means a password or auth key did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrResetTokenInvalid means a password-reset token was empty, malformed,
	// expired, or no longer pending. Callers treat it like ErrNotFound.
	ErrResetTokenInvalid = errors.New("password reset token expired or malformed")
	// ErrThrottled is matched by every *ThrottledError.
	ErrThrottled = errors.New("rate limit exceeded")
	// ErrStoreUnavailable wraps any persistence failure. It is fatal for the
	// current request and never turns into an allow or a not-found.
	ErrStoreUnavailable = errors.New("identity store unavailable")
	// ErrIdentityExists is returned by stores and Register for a taken username.
	ErrIdentityExists = errors.New("identity already exists")
	// ErrPasswordPolicy means the new password was rejected by the hasher's length bounds.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidAllowance is returned when a negative allowance would be persisted.
	ErrInvalidAllowance = errors.New("allowance must not be negative")
	// ErrEngineNotReady is returned when a required dependency is missing.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ThrottledError carries the retry hint for a throttled request.
type ThrottledError struct {
	Action     string
	RetryAfter int64
}

func (e *ThrottledError) Error() string {
	return "rate limit exceeded for " + e.Action + "; retry after " + strconv.FormatInt(e.RetryAfter, 10) + "s"
}

// Is makes errors.Is(err, ErrThrottled) true.
func (e *ThrottledError) Is(target error) bool {
	return target == ErrThrottled
}
