package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/rfpmatch/pkg/models"
)

func testWeights(t *testing.T) Weights {
	t.Helper()
	w, err := NewWeights(0.25, 0.25, 0.30, 0.20)
	require.NoError(t, err)
	return w
}

func TestBuildCacheKey(t *testing.T) {
	w := testWeights(t)
	base := &models.RecommendationRequest{
		Text:         "LED floodlights, 40 units",
		Requirements: []string{"IP65 rated", "5 year warranty"},
		RequesterID:  "city-works",
		Limit:        10,
	}
	key := BuildCacheKey(base, w)
	assert.Contains(t, key, "rfp:recommend:")

	reordered := &models.RecommendationRequest{
		Text:         "  led FLOODLIGHTS 40 units ",
		Requirements: []string{"5 Year Warranty", "IP65 rated"},
		RequesterID:  "city-works",
		Limit:        10,
	}
	assert.Equal(t, key, BuildCacheKey(reordered, w))

	otherLimit := *base
	otherLimit.Limit = 5
	assert.NotEqual(t, key, BuildCacheKey(&otherLimit, w))

	otherRequester := *base
	otherRequester.RequesterID = "county"
	assert.NotEqual(t, key, BuildCacheKey(&otherRequester, w))

	otherWeights, err := NewWeights(0.4, 0.2, 0.2, 0.2)
	require.NoError(t, err)
	assert.NotEqual(t, key, BuildCacheKey(base, otherWeights))
}

func TestResultCache_PutGet(t *testing.T) {
	_, client := newTestRedis(t)
	metrics := NewMetrics(prometheus.NewRegistry(), testLogger())
	cache := NewResultCache(client, time.Second, metrics, testLogger())

	ctx := context.Background()
	results := []models.RankedProduct{
		{Product: product("LED lamp", "", "Lighting", ""), Rank: 1, Scores: models.ScoreVector{Content: 0.5, Final: 0.125}},
	}

	_, ok := cache.Get(ctx, "rfp:recommend:k", 15*time.Minute)
	assert.False(t, ok)

	cache.Put(ctx, "rfp:recommend:k", results, 15*time.Minute)

	cached, ok := cache.Get(ctx, "rfp:recommend:k", 15*time.Minute)
	require.True(t, ok)
	assert.Equal(t, results, cached.Results)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("get", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("get", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("put", "ok")))
}

func TestResultCache_ExpiredEntryIsAMiss(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewResultCache(client, time.Second, nil, testLogger())

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return t0 }

	ctx := context.Background()
	cache.Put(ctx, "k", []models.RankedProduct{{Rank: 1}}, time.Hour)

	cache.now = func() time.Time { return t0.Add(10 * time.Minute) }
	_, ok := cache.Get(ctx, "k", 15*time.Minute)
	assert.True(t, ok)

	cache.now = func() time.Time { return t0.Add(16 * time.Minute) }
	_, ok = cache.Get(ctx, "k", 15*time.Minute)
	assert.False(t, ok)
}

func TestResultCache_CorruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	metrics := NewMetrics(prometheus.NewRegistry(), testLogger())
	cache := NewResultCache(client, time.Second, metrics, testLogger())

	require.NoError(t, mr.Set("k", "{not json"))

	_, ok := cache.Get(context.Background(), "k", time.Minute)
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("get", "error")))
}

func TestResultCache_RedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	metrics := NewMetrics(prometheus.NewRegistry(), testLogger())
	cache := NewResultCache(client, 200*time.Millisecond, metrics, testLogger())
	mr.Close()

	ctx := context.Background()
	assert.NotPanics(t, func() {
		cache.Put(ctx, "k", []models.RankedProduct{{Rank: 1}}, time.Minute)
	})
	_, ok := cache.Get(ctx, "k", time.Minute)
	assert.False(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("put", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("get", "error")))
}

func TestResultCache_NilClient(t *testing.T) {
	cache := NewResultCache(nil, 0, nil, testLogger())
	cache.Put(context.Background(), "k", nil, time.Minute)
	_, ok := cache.Get(context.Background(), "k", time.Minute)
	assert.False(t, ok)
}
