package goIdentity

import (
	"context"
	"time"
)

// Status is the lifecycle state of an identity. The numeric values match the
// rows written by earlier versions of the user table.
type Status uint8

const (
	// StatusDeleted identities are invisible to every lookup.
	StatusDeleted Status = 0
	// StatusActive identities are resolvable.
	StatusActive Status = 10
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Identity is the capability the rate limiter and auth-key checks need from
// an authenticated subject.
type Identity interface {
	IdentityID() string
	IdentityAuthKey() string
	IdentityStatus() Status
}

// Allowance is the persisted token-bucket state of one identity.
type Allowance struct {
	Remaining int
	UpdatedAt int64
}

// IdentityRecord is the durable authentication state of one user.
// PasswordResetToken is empty when no reset is pending. Allowance is nil
// until the first rate-limit check.
type IdentityRecord struct {
	ID                 string
	Username           string
	PasswordHash       string
	AuthKey            string
	AccessToken        string
	PasswordResetToken string
	Status             Status
	CreatedAt          int64
	UpdatedAt          int64
	Allowance          *Allowance
}

func (r IdentityRecord) IdentityID() string      { return r.ID }
func (r IdentityRecord) IdentityAuthKey() string { return r.AuthKey }
func (r IdentityRecord) IdentityStatus() Status  { return r.Status }

// Active reports whether the record is resolvable.
func (r IdentityRecord) Active() bool {
	return r.Status == StatusActive
}

// Clone returns a deep copy.
func (r IdentityRecord) Clone() IdentityRecord {
	out := r
	if r.Allowance != nil {
		a := *r.Allowance
		out.Allowance = &a
	}
	return out
}

// AllowanceStore persists rate-limit state. SaveAllowance must write both
// fields atomically.
type AllowanceStore interface {
	LoadAllowance(ctx context.Context, id string) (Allowance, bool, error)
	SaveAllowance(ctx context.Context, id string, allowance Allowance) error
}

// IdentityStore is the persistence collaborator. Lookups return only ACTIVE
// records and report ErrNotFound otherwise. Save is a single-record upsert;
// it returns ErrIdentityExists when the username belongs to another id and
// never touches the stored allowance, which only SaveAllowance writes.
// Any other error is treated as the store being unavailable.
type IdentityStore interface {
	AllowanceStore

	FindByID(ctx context.Context, id string) (IdentityRecord, error)
	FindByUsername(ctx context.Context, username string) (IdentityRecord, error)
	FindByAccessToken(ctx context.Context, token string) (IdentityRecord, error)
	FindByPasswordResetToken(ctx context.Context, token string) (IdentityRecord, error)
	Save(ctx context.Context, record IdentityRecord) error
}

// SecureHash is the password-hashing and token-generation capability.
// Verify returns (false, nil) on mismatch and an error only when the stored
// hash is unusable.
type SecureHash interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) (bool, error)
	RandomString(minEntropyBits int) (string, error)
}

// upgradeableHash is implemented by hashers that can report stale hashes.
type upgradeableHash interface {
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Clock returns the current time in epoch seconds.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// Quota is a rate-limit policy: at most Limit requests per Window seconds.
type Quota struct {
	Limit  int
	Window int64
}

// QuotaPolicy selects the quota for an identity and action.
type QuotaPolicy func(identity Identity, action string) Quota

// FixedQuota returns a policy that ignores its arguments.
func FixedQuota(q Quota) QuotaPolicy {
	return func(Identity, string) Quota { return q }
}

// RateDecision is the outcome of one rate-limit check.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Window     int64
	Remaining  int
	RetryAfter int64
}

// RegisterRequest is the input for Engine.Register.
type RegisterRequest struct {
	Username string
	Password string
}
