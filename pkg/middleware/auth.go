// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"chartex/pkg/config"
	"chartex/pkg/problems"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// jwksCache caches the platform JWKS set per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

// PlatformAuth verifies the platform-signed token on inbound calls. The
// platform authenticates end users itself; this only proves the call came
// from the platform, not who the tenant is — tenant identity travels in the
// installation headers and is resolved separately. Disabled when no issuer
// and JWKS URL are configured (local development).
func PlatformAuth(cfg config.Config) func(http.Handler) http.Handler {
	cache := &jwksCache{}
	jwksTTL := 6 * time.Hour
	enabled := cfg.Issuer != "" && cfg.JWKSURL != ""
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				problems.Write(w, problems.Unauthenticated, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			set, err := cache.get(r.Context(), cfg.JWKSURL, jwksTTL)
			if err != nil {
				problems.Write(w, problems.Transient, "jwks fetch failed")
				return
			}
			_, err = jwt.Parse([]byte(raw),
				jwt.WithKeySet(set),
				jwt.WithIssuer(strings.TrimRight(cfg.Issuer, "/")),
				jwt.WithValidate(true),
				jwt.WithVerify(true),
			)
			if err != nil {
				problems.Write(w, problems.Unauthenticated, "invalid platform token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
