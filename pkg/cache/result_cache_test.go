package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/intelcore/internal/rediswrap"
	"github.com/itsneelabh/intelcore/pkg/intel"
)

func newTestCache(t *testing.T) *ResultCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := rediswrap.New(rediswrap.Options{RedisURL: "redis://" + mr.Addr(), DB: 0, Namespace: ""})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return New(client, nil)
}

func TestKey_IsDeterministicAndDepthSensitive(t *testing.T) {
	k1 := Key("same query", intel.Standard)
	k2 := Key("same query", intel.Standard)
	k3 := Key("same query", intel.Deep)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestResultCache_GetMissReturnsFalseNotError(t *testing.T) {
	c := newTestCache(t)
	_, found, err := c.Get(context.Background(), Key("nothing cached", intel.Standard))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResultCache_SetThenGetRoundTrips(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("query text", intel.Standard)
	result := intel.Result{QueryID: "q1", MergedText: "merged", TotalCostUSD: 0.05}

	require.NoError(t, c.Set(ctx, key, result, time.Minute))

	got, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "q1", got.QueryID)
	assert.Equal(t, "merged", got.MergedText)
	assert.True(t, got.Cached)
}

func TestResultCache_DeleteRemovesEntry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("to delete", intel.Standard)
	require.NoError(t, c.Set(ctx, key, intel.Result{QueryID: "q2"}, time.Minute))

	require.NoError(t, c.Delete(ctx, key))

	_, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResultCache_ClearAllRemovesEverythingUnderScanPattern(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, Key("one", intel.Standard), intel.Result{QueryID: "1"}, time.Minute))
	require.NoError(t, c.Set(ctx, Key("two", intel.Deep), intel.Result{QueryID: "2"}, time.Minute))

	removed, err := c.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, found, _ := c.Get(ctx, Key("one", intel.Standard))
	assert.False(t, found)
}
