// Package rate provides the token-bucket arithmetic and per-identity
// serialization used by the goIdentity RateLimiter.
//
// # Bucket semantics
//
// Each identity owns one bucket of capacity Limit replenished at
// Limit/Window tokens per second. There is no background refill: the
// replenished amount is computed from elapsed wall-clock seconds whenever a
// request is checked, and only whole tokens are credited.
//
// # What this package must NOT do
//
//   - Touch storage. Loading and saving the bucket belongs to the caller.
//   - Be imported outside the goIdentity module.
package rate
