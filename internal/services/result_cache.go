package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/apperr"
	"github.com/temcen/rfpmatch/internal/ml"
	"github.com/temcen/rfpmatch/pkg/models"
)

const resultCachePrefix = "rfp:recommend:"

// ResultCache memoizes recommend results in Redis. Every failure is soft: it
// is logged, counted and reported to the caller as a miss.
type ResultCache struct {
	redis   *redis.Client
	timeout time.Duration
	metrics *Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

func NewResultCache(redisClient *redis.Client, timeout time.Duration, metrics *Metrics, logger *logrus.Logger) *ResultCache {
	return &ResultCache{
		redis:   redisClient,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// BuildCacheKey derives the cache key of a request. Requirement order and
// text formatting do not change the key; the weights do.
func BuildCacheKey(req *models.RecommendationRequest, weights Weights) string {
	requirements := make([]string, 0, len(req.Requirements))
	for _, r := range req.Requirements {
		if n := ml.Normalize(r); n != "" {
			requirements = append(requirements, n)
		}
	}
	sort.Strings(requirements)

	parts := []string{
		ml.Normalize(req.Text),
		strings.Join(requirements, "\x1f"),
		strings.TrimSpace(req.RequesterID),
		strconv.Itoa(req.Limit),
		weights.Fingerprint(),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1e")))
	return resultCachePrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached result for key when present and younger than ttl.
func (c *ResultCache) Get(ctx context.Context, key string, ttl time.Duration) (*models.CachedResult, bool) {
	if c.redis == nil {
		return nil, false
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.metrics.ObserveCache("get", "miss")
			return nil, false
		}
		c.softFail("get", "result cache read failed", err)
		return nil, false
	}

	var cached models.CachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		c.softFail("get", "result cache entry is corrupt", err)
		return nil, false
	}

	if ttl > 0 && c.now().After(cached.CachedAt.Add(ttl)) {
		c.metrics.ObserveCache("get", "expired")
		return nil, false
	}

	c.metrics.ObserveCache("get", "hit")
	return &cached, true
}

func (c *ResultCache) Put(ctx context.Context, key string, results []models.RankedProduct, ttl time.Duration) {
	if c.redis == nil || ttl <= 0 {
		return
	}

	data, err := json.Marshal(models.CachedResult{
		Results:  results,
		CachedAt: c.now(),
	})
	if err != nil {
		c.softFail("put", "failed to encode result", err)
		return
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		c.softFail("put", "result cache write failed", err)
		return
	}
	c.metrics.ObserveCache("put", "ok")
}

func (c *ResultCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

func (c *ResultCache) softFail(operation, message string, err error) {
	c.metrics.ObserveCache(operation, "error")
	c.logger.WithError(apperr.Cache("result_cache", message, err)).
		Warn("Result cache unavailable, continuing without it")
}
