// pkg/credentials/resolver.go
package credentials

import (
	"context"
	"time"

	"chartex/pkg/audit"
	"chartex/pkg/installations"
	"chartex/pkg/platform"
	"chartex/pkg/problems"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var exchangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chartex_impersonation_exchanges_total",
	Help: "Impersonation exchanges against the platform by result.",
}, []string{"result"})

// Exchanger performs the privileged service-key-for-installation-key
// exchange. Implemented by the service-scoped platform client.
type Exchanger interface {
	Impersonate(ctx context.Context, serviceID, installationID string) (string, error)
}

// Grant is a short-lived installation-scoped credential.
type Grant struct {
	APIKey    string
	ExpiresAt time.Time
}

func (g Grant) valid(now time.Time) bool {
	return g.APIKey != "" && now.Before(g.ExpiresAt)
}

// Options configure the resolver. GrantTTL must not exceed the validity the
// platform puts on issued grants.
type Options struct {
	APIURL    string
	ServiceID string
	GrantTTL  time.Duration
	// Retries bounds re-exchange attempts after a transient exchange
	// failure. Rejections are never retried.
	Retries int
}

// Resolver maps (installation id, caller mode) to a scoped platform client.
// Tenant mode wraps the delegated key already attached to the call; admin
// mode (and event handling on behalf of an installation) goes through the
// impersonation exchange, with a process-wide grant cache in front.
type Resolver struct {
	opts  Options
	svc   Exchanger
	cache Cache
	rec   audit.Recorder
	log   *zap.SugaredLogger
	sf    singleflight.Group
	now   func() time.Time
}

func NewResolver(opts Options, svc Exchanger, cache Cache, rec audit.Recorder, log *zap.SugaredLogger) *Resolver {
	if opts.GrantTTL <= 0 {
		opts.GrantTTL = 5 * time.Minute
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Resolver{opts: opts, svc: svc, cache: cache, rec: rec, log: log, now: time.Now}
}

// Resolve returns a client for the call context per its mode.
func (r *Resolver) Resolve(ctx context.Context, cc installations.CallContext) (*platform.Client, error) {
	switch cc.Mode {
	case installations.ModeTenant:
		return r.Tenant(cc)
	case installations.ModeAdmin:
		return r.Impersonated(ctx, cc.InstallationID)
	default:
		return nil, problems.Newf(problems.InvalidRequest, "unknown caller mode", "%q", cc.Mode)
	}
}

// Tenant wraps the call's delegated credential. No network round trip: the
// platform already authenticated the tenant, and the returned client is
// bound to that installation by construction.
func (r *Resolver) Tenant(cc installations.CallContext) (*platform.Client, error) {
	if cc.Mode != installations.ModeTenant || cc.APIKey == "" {
		return nil, problems.New(problems.Unauthenticated, "missing installation credential")
	}
	return platform.NewInstallationClient(r.opts.APIURL, cc.APIKey, cc.InstallationID), nil
}

// Impersonated exchanges the service key for a grant scoped to the given
// installation and returns a client bound to it. Concurrent duplicate
// requests for the same installation share one exchange; cached grants are
// reused within their TTL.
func (r *Resolver) Impersonated(ctx context.Context, installationID string) (*platform.Client, error) {
	if installationID == "" {
		return nil, problems.New(problems.InvalidRequest, "missing installation id")
	}
	if g, ok := r.cache.Get(ctx, installationID); ok && g.valid(r.now()) {
		return platform.NewInstallationClient(r.opts.APIURL, g.APIKey, installationID), nil
	}
	v, err, _ := r.sf.Do(installationID, func() (any, error) {
		// Re-check under the flight: another caller may have filled the
		// cache while this one queued.
		if g, ok := r.cache.Get(ctx, installationID); ok && g.valid(r.now()) {
			return g, nil
		}
		return r.exchange(ctx, installationID)
	})
	if err != nil {
		return nil, err
	}
	g := v.(Grant)
	return platform.NewInstallationClient(r.opts.APIURL, g.APIKey, installationID), nil
}

// Invalidate drops a cached grant, e.g. after a downstream call reported the
// grant rejected. The next Impersonated call performs a fresh exchange.
func (r *Resolver) Invalidate(ctx context.Context, installationID string) {
	r.cache.Delete(ctx, installationID)
}

func (r *Resolver) exchange(ctx context.Context, installationID string) (Grant, error) {
	attempts := 1 + r.opts.Retries
	var lastErr error
	for i := 0; i < attempts; i++ {
		key, err := r.svc.Impersonate(ctx, r.opts.ServiceID, installationID)
		if err == nil {
			exchangesTotal.WithLabelValues("ok").Inc()
			r.rec.Impersonation(ctx, r.opts.ServiceID, installationID)
			g := Grant{APIKey: key, ExpiresAt: r.now().Add(r.opts.GrantTTL)}
			r.cache.Put(ctx, installationID, g, r.opts.GrantTTL)
			return g, nil
		}
		switch problems.KindOf(err) {
		case problems.CredentialDenied, problems.NotFound, problems.InvalidRequest:
			// Misconfiguration or bad target; retrying cannot help.
			exchangesTotal.WithLabelValues("denied").Inc()
			r.log.Errorw("impersonation rejected",
				"service", r.opts.ServiceID, "installation", installationID, "err", err)
			return Grant{}, err
		}
		lastErr = err
	}
	exchangesTotal.WithLabelValues("error").Inc()
	r.log.Warnw("impersonation exchange failed",
		"service", r.opts.ServiceID, "installation", installationID, "attempts", attempts, "err", lastErr)
	return Grant{}, lastErr
}
