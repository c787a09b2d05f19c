// Package tenant enumerates the three brand sub-applications that share the
// client shell, and the historical on-device storage shape each one used for
// its credentials before the unified session record existed.
package tenant

// Tenant identifies which brand backend issued a credential.
type Tenant string

const (
	// RetailA is the retail storefront brand.
	RetailA Tenant = "retail"
	// HealthB is the health-membership brand.
	HealthB Tenant = "health"
	// JewelC is the jewelry-commerce brand.
	JewelC Tenant = "jewel"
)

// All returns the tenants in migration priority order. The migrator probes
// legacy credentials in exactly this order and the first valid one wins, so
// the order is part of the contract, not a cosmetic choice.
func All() []Tenant {
	return []Tenant{RetailA, HealthB, JewelC}
}

// Known reports whether t is one of the three brands.
func Known(t Tenant) bool {
	switch t {
	case RetailA, HealthB, JewelC:
		return true
	}
	return false
}

// LegacyKeys describes one tenant's historical storage shape. Retail and
// health stored a single JSON blob {token, user}; jewel stored the raw token
// and the user JSON under two separate keys.
type LegacyKeys struct {
	Blob  string // single {token, user} blob key; empty for split tenants
	Token string // raw token key; empty for blob tenants
	User  string // user JSON key; empty for blob tenants
}

// Split reports whether the tenant stores token and user under separate keys.
func (k LegacyKeys) Split() bool {
	return k.Blob == ""
}

// Keys returns every storage key belonging to this shape, for batched removal.
func (k LegacyKeys) Keys() []string {
	if k.Split() {
		return []string{k.Token, k.User}
	}
	return []string{k.Blob}
}

// legacyKeys is the enum-keyed table of historical shapes. The key strings are
// frozen: code elsewhere in the host apps still reads them directly.
var legacyKeys = map[Tenant]LegacyKeys{
	RetailA: {Blob: "@retail_auth"},
	HealthB: {Blob: "@health_member_auth"},
	JewelC:  {Token: "@jewel_token", User: "@jewel_user"},
}

// Legacy returns the legacy storage shape for t.
func (t Tenant) Legacy() LegacyKeys {
	return legacyKeys[t]
}

// AllLegacyKeys returns every legacy storage key across all tenants, in
// priority order.
func AllLegacyKeys() []string {
	var keys []string
	for _, t := range All() {
		keys = append(keys, t.Legacy().Keys()...)
	}
	return keys
}
