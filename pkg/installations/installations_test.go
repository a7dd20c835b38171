package installations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartex/pkg/problems"
)

func TestSettingsNormalize(t *testing.T) {
	s := Settings{Marketplaces: []Marketplace{
		{ID: "MP-000", Name: "MP 000", Description: "MP 000 description", Icon: "mp_000.png"},
		{ID: "MP-001", Name: "MP 001", Description: "MP 001 description"},
	}}
	s.Normalize()

	assert.Equal(t, "mp_000.png", s.Marketplaces[0].Icon)
	assert.Equal(t, DefaultMarketplaceIcon, s.Marketplaces[1].Icon)

	var empty Settings
	empty.Normalize()
	assert.NotNil(t, empty.Marketplaces)
	assert.Len(t, empty.Marketplaces, 0)
}

func TestAccountIsDistributor(t *testing.T) {
	assert.True(t, Account{ID: "PA-000123"}.IsDistributor())
	assert.False(t, Account{ID: "VA-000001"}.IsDistributor())
	assert.False(t, Account{ID: ""}.IsDistributor())
}

func TestNewTenantContext(t *testing.T) {
	cc, err := NewTenantContext("EIN-000", "installation-key")
	require.NoError(t, err)
	assert.Equal(t, "EIN-000", cc.InstallationID)
	assert.Equal(t, ModeTenant, cc.Mode)

	_, err = NewTenantContext("", "installation-key")
	assert.Equal(t, problems.Unauthenticated, problems.KindOf(err))

	_, err = NewTenantContext("EIN-000", "")
	assert.Equal(t, problems.Unauthenticated, problems.KindOf(err))
}

func TestNewAdminContext(t *testing.T) {
	cc, err := NewAdminContext("EIN-000")
	require.NoError(t, err)
	assert.Equal(t, ModeAdmin, cc.Mode)
	assert.Empty(t, cc.APIKey)

	_, err = NewAdminContext("")
	assert.Equal(t, problems.InvalidRequest, problems.KindOf(err))
}

func TestCallContextRoundTrip(t *testing.T) {
	cc, err := NewTenantContext("EIN-000", "key")
	require.NoError(t, err)

	ctx := WithCall(context.Background(), cc)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, cc, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
