package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/leafsii/blinks-backend/internal/metrics"
)

type collection struct {
	Slug       string `json:"slug"`
	RoyaltyBps int64  `json:"royalty_bps"`
}

func TestInMemoryCache(t *testing.T) {
	cache := NewCache("", time.Minute, nil, nil)
	defer cache.Close()
	require.True(t, cache.IsInMemoryMode())
	assert.NoError(t, cache.Ping(context.Background()))

	ctx := context.Background()
	var got collection
	assert.ErrorIs(t, cache.GetCollection(ctx, "bonk-domains", &got), ErrCacheMiss)

	require.NoError(t, cache.SetCollection(ctx, "bonk-domains", collection{Slug: "bonk-domains", RoyaltyBps: 500}))
	require.NoError(t, cache.GetCollection(ctx, "bonk-domains", &got))
	assert.Equal(t, collection{Slug: "bonk-domains", RoyaltyBps: 500}, got)

	require.NoError(t, cache.Delete(ctx, collectionKey("bonk-domains")))
	assert.ErrorIs(t, cache.GetCollection(ctx, "bonk-domains", &got), ErrCacheMiss)
}

func TestInMemoryCache_Expires(t *testing.T) {
	cache := NewCache("", 20*time.Millisecond, nil, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v"))
	var v string
	require.NoError(t, cache.Get(ctx, "k", &v))
	assert.Equal(t, "v", v)

	assert.Eventually(t, func() bool {
		return cache.Get(ctx, "k", &v) == ErrCacheMiss
	}, time.Second, 10*time.Millisecond)
}

func TestUnreachableRedisFallsBack(t *testing.T) {
	cache := NewCache("127.0.0.1:1", time.Minute, nil, nil)
	defer cache.Close()
	assert.True(t, cache.IsInMemoryMode())
}

func TestCache_UnmarshalError(t *testing.T) {
	cache := NewCache("", time.Minute, nil, nil)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "k", "not an object"))

	var got collection
	err := cache.Get(ctx, "k", &got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestGetCollection_EvictsUndecodable(t *testing.T) {
	cache := NewCache("", time.Minute, nil, nil)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, collectionKey("bonk-domains"), "stale schema"))

	var got collection
	assert.ErrorIs(t, cache.GetCollection(ctx, "bonk-domains", &got), ErrCacheMiss)

	var raw string
	assert.ErrorIs(t, cache.Get(ctx, collectionKey("bonk-domains"), &raw), ErrCacheMiss)
}

func TestCache_MetricsUseKeyspace(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := metrics.New(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)
	cache := NewCache("", time.Minute, nil, m)
	ctx := context.Background()

	var got collection
	for _, slug := range []string{"a", "b", "c"} {
		_ = cache.GetCollection(ctx, slug, &got)
		require.NoError(t, cache.SetCollection(ctx, slug, collection{Slug: slug}))
		require.NoError(t, cache.GetCollection(ctx, slug, &got))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	seen := map[string][]string{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key("keyspace"))
				seen[md.Name] = append(seen[md.Name], v.AsString())
				assert.Equal(t, int64(3), dp.Value, md.Name)
			}
		}
	}
	assert.Equal(t, []string{KeyCollection}, seen["blinks_cache_hits_total"])
	assert.Equal(t, []string{KeyCollection}, seen["blinks_cache_misses_total"])
}

func TestKeyspace(t *testing.T) {
	assert.Equal(t, KeyCollection, keyspace(collectionKey("bonk-domains")))
	assert.Equal(t, "plain", keyspace("plain"))
}
