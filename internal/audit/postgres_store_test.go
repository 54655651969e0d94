//go:build integration

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParalexLabs/hyvbase/internal/testutil"
)

func TestPostgresStoreRecordAndList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	base := time.Now().Truncate(time.Microsecond)

	events := []*Event{
		{
			ID:        "evt_1",
			EventType: "operation_validation",
			Severity:  SeverityInfo,
			Message:   "Validating read operation",
			AgentID:   "agent-1",
			SourceIP:  "10.0.0.1",
			Metadata:  map[string]interface{}{"operation_type": "read"},
			Timestamp: base,
		},
		{
			ID:        "evt_2",
			EventType: "operation_validation_complete",
			Severity:  SeverityWarning,
			Message:   "Operation transfer rejected",
			AgentID:   "agent-2",
			Timestamp: base.Add(time.Second),
		},
		{
			ID:        "evt_3",
			EventType: "policy_added",
			Severity:  SeverityInfo,
			Message:   "Security policy added: geo_block",
			Timestamp: base.Add(2 * time.Second),
		},
	}
	for _, e := range events {
		require.NoError(t, store.Record(ctx, e))
	}

	// Newest first, no filter.
	got, err := store.List(ctx, Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "evt_3", got[0].ID)
	assert.Equal(t, "evt_1", got[2].ID)

	// Round-trips optional fields and metadata.
	assert.Equal(t, "agent-1", got[2].AgentID)
	assert.Equal(t, "10.0.0.1", got[2].SourceIP)
	assert.Equal(t, "read", got[2].Metadata["operation_type"])
	assert.Empty(t, got[0].AgentID)
}

func TestPostgresStoreListFilters(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	base := time.Now().Truncate(time.Microsecond)

	require.NoError(t, store.Record(ctx, &Event{
		ID: "evt_a", EventType: "operation_validation", Severity: SeverityInfo,
		Message: "ok", Timestamp: base,
	}))
	require.NoError(t, store.Record(ctx, &Event{
		ID: "evt_b", EventType: "operation_validation", Severity: SeverityError,
		Message: "failed", Timestamp: base.Add(time.Minute),
	}))
	require.NoError(t, store.Record(ctx, &Event{
		ID: "evt_c", EventType: "policy_removed", Severity: SeverityInfo,
		Message: "removed", Timestamp: base.Add(2 * time.Minute),
	}))

	byType, err := store.List(ctx, Filter{EventType: "operation_validation"}, 10)
	require.NoError(t, err)
	require.Len(t, byType, 2)

	bySeverity, err := store.List(ctx, Filter{Severity: SeverityError}, 10)
	require.NoError(t, err)
	require.Len(t, bySeverity, 1)
	assert.Equal(t, "evt_b", bySeverity[0].ID)

	since, err := store.List(ctx, Filter{Since: base.Add(30 * time.Second)}, 10)
	require.NoError(t, err)
	require.Len(t, since, 2)

	window, err := store.List(ctx, Filter{
		Since: base.Add(30 * time.Second),
		Until: base.Add(90 * time.Second),
	}, 10)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "evt_b", window[0].ID)

	limited, err := store.List(ctx, Filter{}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
