package password

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// MinTokenEntropyBits is the floor applied to RandomString requests.
const MinTokenEntropyBits = 128

var errEntropyTooLarge = errors.New("requested entropy exceeds 4096 bits")

// RandomString returns a URL-safe string carrying at least minEntropyBits
// bits from crypto/rand. Requests below MinTokenEntropyBits are raised to it.
// The alphabet is [A-Za-z0-9_-], so callers that embed a separator must
// split on its last occurrence.
func RandomString(minEntropyBits int) (string, error) {
	if minEntropyBits < MinTokenEntropyBits {
		minEntropyBits = MinTokenEntropyBits
	}
	if minEntropyBits > 4096 {
		return "", errEntropyTooLarge
	}

	buf := make([]byte, (minEntropyBits+7)/8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// RandomString lets *Argon2 satisfy the combined hash-and-token capability
// expected by the engine.
func (a *Argon2) RandomString(minEntropyBits int) (string, error) {
	return RandomString(minEntropyBits)
}
