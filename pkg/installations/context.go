// pkg/installations/context.go
package installations

import (
	"context"

	"chartex/pkg/problems"
)

type CallerMode string

const (
	// ModeTenant: the caller presents the tenant's own delegated credential.
	ModeTenant CallerMode = "tenant"
	// ModeAdmin: a platform administrator requests impersonation of an
	// installation named by id, via the privileged exchange path.
	ModeAdmin CallerMode = "admin"
)

// CallContext is the request-scoped identity of an inbound call: which
// installation it concerns and which credential scope may act on its behalf.
// Built once per call by the context provider and passed explicitly.
type CallContext struct {
	InstallationID string
	Mode           CallerMode
	// APIKey is the delegated installation credential attached to tenant
	// calls. Empty in admin mode; the credential resolver obtains an
	// impersonation grant instead.
	APIKey string
}

// NewTenantContext validates and builds a tenant-mode call context.
func NewTenantContext(installationID, apiKey string) (CallContext, error) {
	if installationID == "" || apiKey == "" {
		return CallContext{}, problems.New(problems.Unauthenticated, "missing installation context")
	}
	return CallContext{InstallationID: installationID, Mode: ModeTenant, APIKey: apiKey}, nil
}

// NewAdminContext validates and builds an admin-mode call context. The
// installation document is deliberately not fetched here: it is read later
// through an impersonated client, never via a bare id-only call.
func NewAdminContext(installationID string) (CallContext, error) {
	if installationID == "" {
		return CallContext{}, problems.New(problems.InvalidRequest, "missing installation id")
	}
	return CallContext{InstallationID: installationID, Mode: ModeAdmin}, nil
}

type ctxCallKey struct{}

// WithCall attaches the call context; FromContext retrieves it.
func WithCall(ctx context.Context, cc CallContext) context.Context {
	return context.WithValue(ctx, ctxCallKey{}, cc)
}

func FromContext(ctx context.Context) (CallContext, bool) {
	if v := ctx.Value(ctxCallKey{}); v != nil {
		if cc, ok := v.(CallContext); ok {
			return cc, true
		}
	}
	return CallContext{}, false
}
