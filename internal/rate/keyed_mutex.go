package rate

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 256

// KeyedMutex serializes work per key using a fixed set of lock stripes.
// Distinct keys may share a stripe; the same key always maps to the same one.
type KeyedMutex struct {
	stripes []sync.Mutex
}

// NewKeyedMutex returns a KeyedMutex with n stripes (defaultStripes when n <= 0).
func NewKeyedMutex(n int) *KeyedMutex {
	if n <= 0 {
		n = defaultStripes
	}
	return &KeyedMutex{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock function.
func (m *KeyedMutex) Lock(key string) func() {
	mu := &m.stripes[xxhash.Sum64String(key)%uint64(len(m.stripes))]
	mu.Lock()
	return mu.Unlock
}
