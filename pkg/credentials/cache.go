// pkg/credentials/cache.go
package credentials

import (
	"context"
	"sync"
	"time"
)

// Cache stores impersonation grants keyed by installation id. Entries must
// never outlive the grant's own validity; the resolver enforces the TTL on
// Put.
type Cache interface {
	Get(ctx context.Context, installationID string) (Grant, bool)
	Put(ctx context.Context, installationID string, g Grant, ttl time.Duration)
	Delete(ctx context.Context, installationID string)
}

type memoryCache struct {
	mu     sync.RWMutex
	grants map[string]Grant
}

// NewMemoryCache is the process-local default, mirroring the in-memory
// fallback used when no shared backend is configured.
func NewMemoryCache() Cache {
	return &memoryCache{grants: map[string]Grant{}}
}

func (m *memoryCache) Get(ctx context.Context, installationID string) (Grant, bool) {
	m.mu.RLock()
	g, ok := m.grants[installationID]
	m.mu.RUnlock()
	if !ok || !g.valid(time.Now()) {
		return Grant{}, false
	}
	return g, true
}

func (m *memoryCache) Put(ctx context.Context, installationID string, g Grant, ttl time.Duration) {
	m.mu.Lock()
	m.grants[installationID] = g
	m.mu.Unlock()
}

func (m *memoryCache) Delete(ctx context.Context, installationID string) {
	m.mu.Lock()
	delete(m.grants, installationID)
	m.mu.Unlock()
}
