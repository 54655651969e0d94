package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindValid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid(), "kind %q should be valid", k)
	}
	assert.False(t, Kind("velocity_limit").Valid())
	assert.False(t, Kind("").Valid())
}

func TestDefaultsSeedThreePolicies(t *testing.T) {
	defaults := Defaults()
	require.Len(t, defaults, 3)

	byID := map[string]*Policy{}
	for _, p := range defaults {
		assert.True(t, p.Enabled, "default policy %s should start enabled", p.ID)
		require.NoError(t, p.Validate())
		byID[p.ID] = p
	}

	limit := byID["default_transaction_limit"]
	require.NotNil(t, limit)
	assert.Equal(t, KindTransactionLimit, limit.Kind)
	max, ok := floatParam(limit.Parameters, "max_value_usd")
	require.True(t, ok)
	assert.Equal(t, 10000.0, max)

	tr := byID["time_restriction"]
	require.NotNil(t, tr)
	assert.Equal(t, KindTimeRestriction, tr.Kind)
}

func TestValidateRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name string
		p    Policy
	}{
		{"missing id", Policy{Name: "x", Kind: KindCustom}},
		{"missing name", Policy{ID: "x", Kind: KindCustom}},
		{"unknown kind", Policy{ID: "x", Name: "x", Kind: Kind("bogus")}},
		{"non-numeric limit", Policy{
			ID: "x", Name: "x", Kind: KindTransactionLimit,
			Parameters: map[string]interface{}{"max_value_usd": "lots"},
		}},
		{"inverted amount range", Policy{
			ID: "x", Name: "x", Kind: KindAmountRestriction,
			Parameters: map[string]interface{}{"min_amount": 100.0, "max_amount": 10.0},
		}},
		{"hour out of range", Policy{
			ID: "x", Name: "x", Kind: KindTimeRestriction,
			Parameters: map[string]interface{}{"start_hour": 25.0},
		}},
		{"bad ip list", Policy{
			ID: "x", Name: "x", Kind: KindIPRestriction,
			Parameters: map[string]interface{}{"blocked_ips": "10.0.0.1"},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.p.Validate())
		})
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := &Policy{
		ID:         "limit-1",
		Name:       "Trade Limit",
		Kind:       KindTransactionLimit,
		Enabled:    true,
		Parameters: map[string]interface{}{"max_value_usd": 500.0},
	}
	require.NoError(t, store.Add(ctx, p))
	assert.Equal(t, ErrDuplicateID, store.Add(ctx, p))

	got, err := store.Get(ctx, "limit-1")
	require.NoError(t, err)
	assert.Equal(t, "Trade Limit", got.Name)

	// Mutating the returned copy must not affect the stored policy.
	got.Parameters["max_value_usd"] = 1.0
	again, err := store.Get(ctx, "limit-1")
	require.NoError(t, err)
	assert.Equal(t, 500.0, again.Parameters["max_value_usd"])

	require.NoError(t, store.SetEnabled(ctx, "limit-1", false))
	disabled, err := store.Get(ctx, "limit-1")
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	require.NoError(t, store.Remove(ctx, "limit-1"))
	_, err = store.Get(ctx, "limit-1")
	assert.Equal(t, ErrNotFound, err)
	assert.Equal(t, ErrNotFound, store.Remove(ctx, "limit-1"))
	assert.Equal(t, ErrNotFound, store.SetEnabled(ctx, "limit-1", true))
}

func TestMemoryStoreListOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, p := range Defaults() {
		require.NoError(t, store.Add(ctx, p))
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	// Equal CreatedAt falls back to ID order.
	assert.Equal(t, "default_rate_limit", list[0].ID)
	assert.Equal(t, "default_transaction_limit", list[1].ID)
	assert.Equal(t, "time_restriction", list[2].ID)
}
