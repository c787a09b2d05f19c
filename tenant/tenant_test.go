package tenant_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnibrand/go-session-kit/tenant"
)

func TestPriorityOrder(t *testing.T) {
	// Migration priority is part of the contract: retail, then health, then jewel.
	require.Equal(t, []tenant.Tenant{tenant.RetailA, tenant.HealthB, tenant.JewelC}, tenant.All())
}

func TestLegacyShapes(t *testing.T) {
	require.False(t, tenant.RetailA.Legacy().Split())
	require.False(t, tenant.HealthB.Legacy().Split())
	require.True(t, tenant.JewelC.Legacy().Split())

	require.Equal(t, []string{"@retail_auth"}, tenant.RetailA.Legacy().Keys())
	require.Equal(t, []string{"@jewel_token", "@jewel_user"}, tenant.JewelC.Legacy().Keys())
}

func TestAllLegacyKeysCoversEveryTenant(t *testing.T) {
	keys := tenant.AllLegacyKeys()
	require.Len(t, keys, 4)
	for _, tn := range tenant.All() {
		for _, key := range tn.Legacy().Keys() {
			require.Contains(t, keys, key)
		}
	}
}

func TestKnown(t *testing.T) {
	require.True(t, tenant.Known(tenant.HealthB))
	require.False(t, tenant.Known(tenant.Tenant("grocery")))
}
