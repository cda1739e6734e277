// Package goIdentity is the identity and access-control core of a web
// application: credential validation, time-bounded password-reset tokens,
// and per-identity token-bucket throttling with the bucket persisted on the
// identity record.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goIdentity is the public surface. It exposes [Engine], [Builder], [Config],
// the two components [CredentialManager] and [RateLimiter], and the
// collaborator interfaces [IdentityStore], [SecureHash] and [Clock].
// Token-bucket arithmetic, reset-token parsing and audit dispatch live under
// internal/. Store implementations live in store/memory, store/redisstore
// and store/postgres.
//
// # Failure semantics
//
// Lookups only ever return ACTIVE identities. Malformed input (empty or
// garbled tokens) is normalized to [ErrNotFound] or [ErrResetTokenInvalid].
// Any persistence failure surfaces as [ErrStoreUnavailable]; the rate limiter
// never turns one into an allow.
package goIdentity
