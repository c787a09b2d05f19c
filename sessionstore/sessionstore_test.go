package sessionstore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omnibrand/go-session-kit/kvstore/memstore"
	"github.com/omnibrand/go-session-kit/sessionstore"
	"github.com/omnibrand/go-session-kit/tenant"
)

const testToken = "t1"

var testUser = map[string]any{"id": float64(1), "name": "Jane"}

func newStore(t *testing.T) (*sessionstore.Store, *memstore.Store) {
	t.Helper()

	kv := memstore.New()
	store, err := sessionstore.New(kv, sessionstore.WithNowTime(func() time.Time {
		return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)
	return store, kv
}

func TestWriteThenRead(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	record, err := store.Write(ctx, testToken, testUser, tenant.RetailA)
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)
	require.Equal(t, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC).UnixMilli(), record.Timestamp)

	loaded, err := store.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, testToken, loaded.Token)
	require.Equal(t, testUser, loaded.User)
	require.Equal(t, tenant.RetailA, loaded.ActiveTenant)
}

// Every successful write must be visible through all three legacy shapes, in
// each tenant's own historical format.
func TestWriteMirrorsAllLegacyShapes(t *testing.T) {
	ctx := context.Background()
	store, kv := newStore(t)

	_, err := store.Write(ctx, testToken, testUser, tenant.RetailA)
	require.NoError(t, err)

	for _, tn := range []tenant.Tenant{tenant.RetailA, tenant.HealthB} {
		raw, ok, err := kv.Get(ctx, tn.Legacy().Blob)
		require.NoError(t, err)
		require.True(t, ok, "blob for %s", tn)

		var blob struct {
			Token string         `json:"token"`
			User  map[string]any `json:"user"`
		}
		require.NoError(t, json.Unmarshal([]byte(raw), &blob))
		require.Equal(t, testToken, blob.Token)
		require.Equal(t, testUser, blob.User)
	}

	// Jewel stores the raw token and the user JSON under separate keys.
	rawToken, ok, err := kv.Get(ctx, tenant.JewelC.Legacy().Token)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testToken, rawToken)

	rawUser, ok, err := kv.Get(ctx, tenant.JewelC.Legacy().User)
	require.NoError(t, err)
	require.True(t, ok)
	var user map[string]any
	require.NoError(t, json.Unmarshal([]byte(rawUser), &user))
	require.Equal(t, testUser, user)
}

func TestReadAbsent(t *testing.T) {
	store, _ := newStore(t)

	record, err := store.Read(context.Background())
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestReadCorruptTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	store, kv := newStore(t)

	require.NoError(t, kv.Set(ctx, sessionstore.UnifiedKey, "{not json"))

	record, err := store.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestReadIncompleteTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	store, kv := newStore(t)

	// A record without a token is never "partially present".
	require.NoError(t, kv.Set(ctx, sessionstore.UnifiedKey, `{"user":{"id":1},"activeTenant":"retail"}`))

	record, err := store.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestClearRemovesUnifiedAndAllLegacyKeys(t *testing.T) {
	ctx := context.Background()
	store, kv := newStore(t)

	_, err := store.Write(ctx, testToken, testUser, tenant.HealthB)
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx))

	for _, key := range append([]string{sessionstore.UnifiedKey}, tenant.AllLegacyKeys()...) {
		_, ok, err := kv.Get(ctx, key)
		require.NoError(t, err)
		require.False(t, ok, "key %s should be absent", key)
	}
}

func TestReadLegacyBlob(t *testing.T) {
	ctx := context.Background()
	store, kv := newStore(t)

	require.NoError(t, kv.Set(ctx, tenant.RetailA.Legacy().Blob, `{"token":"legacy-tok","user":{"name":"Jane"}}`))

	token, user, err := store.ReadLegacy(ctx, tenant.RetailA)
	require.NoError(t, err)
	require.Equal(t, "legacy-tok", token)
	require.Equal(t, "Jane", user["name"])
}

func TestReadLegacyCorruptBlobTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	store, kv := newStore(t)

	require.NoError(t, kv.Set(ctx, tenant.HealthB.Legacy().Blob, "###garbage###"))

	token, user, err := store.ReadLegacy(ctx, tenant.HealthB)
	require.NoError(t, err)
	require.Empty(t, token)
	require.Nil(t, user)
}

func TestReadLegacySplitKeys(t *testing.T) {
	ctx := context.Background()
	store, kv := newStore(t)

	require.NoError(t, kv.Set(ctx, tenant.JewelC.Legacy().Token, "jewel-tok"))
	require.NoError(t, kv.Set(ctx, tenant.JewelC.Legacy().User, `{"name":"Jane"}`))

	token, user, err := store.ReadLegacy(ctx, tenant.JewelC)
	require.NoError(t, err)
	require.Equal(t, "jewel-tok", token)
	require.Equal(t, "Jane", user["name"])
}

func TestReadLegacySplitKeysCorruptUserKeepsToken(t *testing.T) {
	ctx := context.Background()
	store, kv := newStore(t)

	require.NoError(t, kv.Set(ctx, tenant.JewelC.Legacy().Token, "jewel-tok"))
	require.NoError(t, kv.Set(ctx, tenant.JewelC.Legacy().User, "{broken"))

	token, user, err := store.ReadLegacy(ctx, tenant.JewelC)
	require.NoError(t, err)
	require.Equal(t, "jewel-tok", token)
	require.Nil(t, user)
}

func TestWriteValidation(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	_, err := store.Write(ctx, "", testUser, tenant.RetailA)
	require.Error(t, err)

	_, err = store.Write(ctx, testToken, testUser, tenant.Tenant("grocery"))
	require.Error(t, err)
}
