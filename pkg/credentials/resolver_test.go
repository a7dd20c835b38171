package credentials

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chartex/pkg/audit"
	"chartex/pkg/installations"
	"chartex/pkg/problems"
)

type fakeExchanger struct {
	mu    sync.Mutex
	calls int32
	key   string
	err   error
	// errOnce makes only the first exchange fail.
	errOnce bool
}

func (f *fakeExchanger) Impersonate(ctx context.Context, serviceID, installationID string) (string, error) {
	n := atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	err := f.err
	if f.errOnce && n > 1 {
		err = nil
	}
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.key + "-" + installationID, nil
}

func newTestResolver(t *testing.T, ex Exchanger, opts Options) *Resolver {
	t.Helper()
	if opts.APIURL == "" {
		opts.APIURL = "http://platform.test"
	}
	if opts.ServiceID == "" {
		opts.ServiceID = "SRVC-0000"
	}
	log := zap.NewNop().Sugar()
	return NewResolver(opts, ex, nil, audit.NewLog(log), log)
}

func TestTenantClientBinding(t *testing.T) {
	r := newTestResolver(t, &fakeExchanger{key: "grant"}, Options{})

	cc, err := installations.NewTenantContext("EIN-000", "tenant-key")
	require.NoError(t, err)

	client, err := r.Tenant(cc)
	require.NoError(t, err)
	// The client is bound to the same installation the call context names.
	assert.Equal(t, "EIN-000", client.InstallationID())
}

func TestTenantModeRequiresCredential(t *testing.T) {
	r := newTestResolver(t, &fakeExchanger{key: "grant"}, Options{})
	_, err := r.Tenant(installations.CallContext{InstallationID: "EIN-000", Mode: installations.ModeTenant})
	assert.Equal(t, problems.Unauthenticated, problems.KindOf(err))
}

func TestImpersonatedCachesGrant(t *testing.T) {
	ex := &fakeExchanger{key: "grant"}
	r := newTestResolver(t, ex, Options{GrantTTL: time.Minute})

	c1, err := r.Impersonated(context.Background(), "EIN-000")
	require.NoError(t, err)
	c2, err := r.Impersonated(context.Background(), "EIN-000")
	require.NoError(t, err)

	assert.Equal(t, "EIN-000", c1.InstallationID())
	assert.Equal(t, "EIN-000", c2.InstallationID())
	assert.EqualValues(t, 1, atomic.LoadInt32(&ex.calls))

	// A different installation is a different cache key.
	_, err = r.Impersonated(context.Background(), "EIN-001")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&ex.calls))
}

func TestImpersonatedSingleExchangeUnderConcurrency(t *testing.T) {
	ex := &fakeExchanger{key: "grant"}
	r := newTestResolver(t, ex, Options{GrantTTL: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client, err := r.Impersonated(context.Background(), "EIN-000")
			assert.NoError(t, err)
			assert.Equal(t, "EIN-000", client.InstallationID())
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&ex.calls),
		"concurrent duplicates must share one exchange")
}

func TestImpersonatedReExchangesAfterExpiry(t *testing.T) {
	ex := &fakeExchanger{key: "grant"}
	r := newTestResolver(t, ex, Options{GrantTTL: time.Minute})

	now := time.Now()
	r.now = func() time.Time { return now }

	_, err := r.Impersonated(context.Background(), "EIN-000")
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&ex.calls))

	// Within the TTL: cached.
	now = now.Add(30 * time.Second)
	_, err = r.Impersonated(context.Background(), "EIN-000")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ex.calls))

	// Past the TTL: exactly one fresh exchange.
	now = now.Add(time.Hour)
	_, err = r.Impersonated(context.Background(), "EIN-000")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&ex.calls))
}

func TestImpersonatedDeniedIsFatal(t *testing.T) {
	ex := &fakeExchanger{err: problems.New(problems.CredentialDenied, "impersonation rejected")}
	r := newTestResolver(t, ex, Options{Retries: 3})

	_, err := r.Impersonated(context.Background(), "EIN-000")
	assert.Equal(t, problems.CredentialDenied, problems.KindOf(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&ex.calls), "rejections are never retried")
}

func TestImpersonatedTransientRetriedOnce(t *testing.T) {
	ex := &fakeExchanger{
		key:     "grant",
		err:     problems.New(problems.Transient, "platform api unreachable"),
		errOnce: true,
	}
	r := newTestResolver(t, ex, Options{Retries: 1})

	client, err := r.Impersonated(context.Background(), "EIN-000")
	require.NoError(t, err)
	assert.Equal(t, "EIN-000", client.InstallationID())
	assert.EqualValues(t, 2, atomic.LoadInt32(&ex.calls))
}

func TestImpersonatedTransientExhaustsRetries(t *testing.T) {
	ex := &fakeExchanger{err: problems.New(problems.Transient, "platform api unreachable")}
	r := newTestResolver(t, ex, Options{Retries: 1})

	_, err := r.Impersonated(context.Background(), "EIN-000")
	assert.Equal(t, problems.Transient, problems.KindOf(err))
	assert.EqualValues(t, 2, atomic.LoadInt32(&ex.calls))
}

func TestInvalidate(t *testing.T) {
	ex := &fakeExchanger{key: "grant"}
	r := newTestResolver(t, ex, Options{GrantTTL: time.Minute})

	_, err := r.Impersonated(context.Background(), "EIN-000")
	require.NoError(t, err)
	r.Invalidate(context.Background(), "EIN-000")
	_, err = r.Impersonated(context.Background(), "EIN-000")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&ex.calls))
}

func TestResolveDispatchesOnMode(t *testing.T) {
	ex := &fakeExchanger{key: "grant"}
	r := newTestResolver(t, ex, Options{GrantTTL: time.Minute})

	tenant, err := installations.NewTenantContext("EIN-000", "tenant-key")
	require.NoError(t, err)
	c, err := r.Resolve(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, "EIN-000", c.InstallationID())
	assert.EqualValues(t, 0, atomic.LoadInt32(&ex.calls), "tenant mode makes no network call")

	admin, err := installations.NewAdminContext("EIN-001")
	require.NoError(t, err)
	c, err = r.Resolve(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, "EIN-001", c.InstallationID())
	assert.EqualValues(t, 1, atomic.LoadInt32(&ex.calls))
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Put(ctx, "EIN-000", Grant{APIKey: "k", ExpiresAt: time.Now().Add(-time.Second)}, time.Minute)
	_, ok := c.Get(ctx, "EIN-000")
	assert.False(t, ok, "expired grants never surface")

	c.Put(ctx, "EIN-000", Grant{APIKey: "k", ExpiresAt: time.Now().Add(time.Minute)}, time.Minute)
	g, ok := c.Get(ctx, "EIN-000")
	require.True(t, ok)
	assert.Equal(t, "k", g.APIKey)

	c.Delete(ctx, "EIN-000")
	_, ok = c.Get(ctx, "EIN-000")
	assert.False(t, ok)
}
