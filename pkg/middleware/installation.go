// pkg/middleware/installation.go
package middleware

import (
	"net/http"

	"chartex/pkg/installations"
	"chartex/pkg/problems"
)

// Headers the platform attaches when forwarding a tenant-scoped call. The
// delegated key is already scoped to the calling installation; the extension
// never widens it.
const (
	HeaderInstallationID  = "X-Installation-Id"
	HeaderInstallationKey = "X-Installation-Api-Key"
)

// WithInstallation resolves the tenant call context from the platform
// headers and attaches it to the request. A tenant call without installation
// context is a caller error, never retried.
func WithInstallation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cc, err := installations.NewTenantContext(
				r.Header.Get(HeaderInstallationID),
				r.Header.Get(HeaderInstallationKey),
			)
			if err != nil {
				problems.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(installations.WithCall(r.Context(), cc)))
		})
	}
}
