// Package internal contains helpers that are private to goIdentity.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: token-bucket arithmetic and per-identity serialization
//   - appconfig: identityctl settings (YAML, environment, .env)
//
// The root of this package owns the password-reset token wire format
// ("<random>_<epochSeconds>").
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
//   - Be imported by any package outside the goIdentity module.
package internal
