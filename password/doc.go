// Package password implements the secure-hash capability used by goIdentity:
// Argon2id hashing, verification of Argon2id and legacy bcrypt hashes, and
// CSPRNG-backed random strings for auth keys and tokens.
//
// # Output format
//
// New hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Hashes imported from older systems in bcrypt form ($2a$, $2b$, $2y$) verify
// normally and always report [Argon2.NeedsUpgrade] so the engine can rehash
// them after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goIdentity package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
