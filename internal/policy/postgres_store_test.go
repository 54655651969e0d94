//go:build integration

package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParalexLabs/hyvbase/internal/testutil"
)

func TestPostgresStoreCRUD(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().Truncate(time.Microsecond)

	p := &Policy{
		ID:      "limit-1",
		Name:    "Transaction Limits",
		Kind:    KindTransactionLimit,
		Enabled: true,
		Parameters: map[string]interface{}{
			"max_amount": 1000.0,
			"max_daily":  10000.0,
		},
		Description: "caps single and daily transaction amounts",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	require.NoError(t, store.Add(ctx, p))
	assert.ErrorIs(t, store.Add(ctx, p), ErrDuplicateID)

	got, err := store.Get(ctx, "limit-1")
	require.NoError(t, err)
	assert.Equal(t, "Transaction Limits", got.Name)
	assert.Equal(t, KindTransactionLimit, got.Kind)
	assert.True(t, got.Enabled)
	assert.Equal(t, 1000.0, got.Parameters["max_amount"])
	assert.Equal(t, "caps single and daily transaction amounts", got.Description)

	require.NoError(t, store.SetEnabled(ctx, "limit-1", false))
	got, err = store.Get(ctx, "limit-1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	require.NoError(t, store.Remove(ctx, "limit-1"))
	_, err = store.Get(ctx, "limit-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Remove(ctx, "limit-1"), ErrNotFound)
	assert.ErrorIs(t, store.SetEnabled(ctx, "limit-1", true), ErrNotFound)
}

func TestPostgresStoreListOrdering(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	base := time.Now().Truncate(time.Microsecond)

	for i, id := range []string{"first", "second", "third"} {
		p := &Policy{
			ID:         id,
			Name:       id,
			Kind:       KindFrequencyLimit,
			Enabled:    true,
			Parameters: map[string]interface{}{"max_operations_per_hour": 50.0},
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
			UpdatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.Add(ctx, p))
	}

	policies, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 3)
	assert.Equal(t, "first", policies[0].ID)
	assert.Equal(t, "second", policies[1].ID)
	assert.Equal(t, "third", policies[2].ID)
}
