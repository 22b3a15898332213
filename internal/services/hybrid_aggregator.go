package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/rfpmatch/internal/apperr"
	"github.com/temcen/rfpmatch/internal/messaging"
	"github.com/temcen/rfpmatch/pkg/models"
)

const MaxLimit = 100

// ErrInvalidRequest marks a recommend call rejected before any work.
var ErrInvalidRequest = errors.New("invalid recommendation request")

type AggregatorConfig struct {
	MaxCandidates  int
	RequestTimeout time.Duration
	ResultTTL      time.Duration
	AuditTimeout   time.Duration
}

// Scorers are the four signals in their fixed aggregation order.
type Scorers struct {
	Collaborative  Scorer
	Content        Scorer
	KnowledgeGraph Scorer
	LLM            Scorer
}

func (s Scorers) list() []Scorer {
	return []Scorer{s.Collaborative, s.Content, s.KnowledgeGraph, s.LLM}
}

// RecommendationResult is the outcome of a successful recommend call.
type RecommendationResult struct {
	RequestID       uuid.UUID
	Recommendations []models.RankedProduct
	CacheHit        bool
	GeneratedAt     time.Time
	Latency         time.Duration
}

// HybridAggregator runs the four scorers concurrently over the candidate set
// and combines them with the validated weights. A failing scorer fails the
// whole call: a missing component is never replaced by a default.
type HybridAggregator struct {
	weights  Weights
	scorers  Scorers
	keywords KeywordMatcher
	catalog  CandidateSource
	cache    *ResultCache
	audit    AuditSink
	metrics  *Metrics
	config   AggregatorConfig
	logger   *logrus.Logger
}

func NewHybridAggregator(
	weights Weights,
	scorers Scorers,
	keywords KeywordMatcher,
	catalog CandidateSource,
	cache *ResultCache,
	audit AuditSink,
	metrics *Metrics,
	cfg AggregatorConfig,
	logger *logrus.Logger,
) (*HybridAggregator, error) {
	if weights == (Weights{}) {
		return nil, apperr.Configuration("aggregator", "weights have not been validated")
	}
	for _, s := range scorers.list() {
		if s == nil {
			return nil, apperr.Configuration("aggregator", "all four scorers are required")
		}
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 500
	}
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = 5 * time.Second
	}

	logger.WithFields(weights.Fields()).Info("Hybrid aggregator configured")

	return &HybridAggregator{
		weights:  weights,
		scorers:  scorers,
		keywords: keywords,
		catalog:  catalog,
		cache:    cache,
		audit:    audit,
		metrics:  metrics,
		config:   cfg,
		logger:   logger,
	}, nil
}

func (h *HybridAggregator) Weights() Weights { return h.weights }

// Recommend ranks catalog products for req.
func (h *HybridAggregator) Recommend(ctx context.Context, req *models.RecommendationRequest) (*RecommendationResult, error) {
	start := time.Now()
	candidates := -1

	result, err := h.recommend(ctx, req, &candidates)

	h.metrics.ObserveRequest(time.Since(start).Seconds(), candidates, err)
	if err != nil {
		h.logger.WithError(err).Warn("Recommendation failed")
		return nil, err
	}

	result.Latency = time.Since(start)
	h.publishAudit(req, result)

	h.logger.WithFields(logrus.Fields{
		"request_id": result.RequestID,
		"results":    len(result.Recommendations),
		"cache_hit":  result.CacheHit,
		"latency":    result.Latency,
	}).Info("Recommendation completed")

	return result, nil
}

func (h *HybridAggregator) recommend(ctx context.Context, req *models.RecommendationRequest, candidateCount *int) (*RecommendationResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if h.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.RequestTimeout)
		defer cancel()
	}

	result := &RecommendationResult{RequestID: uuid.New()}

	cacheKey := BuildCacheKey(req, h.weights)
	if h.cache != nil {
		if cached, ok := h.cache.Get(ctx, cacheKey, h.config.ResultTTL); ok {
			result.Recommendations = cached.Results
			result.CacheHit = true
			result.GeneratedAt = cached.CachedAt
			return result, nil
		}
	}

	requestCategories, err := h.keywords.CategoriesFor(ctx, requestText(req))
	if err != nil {
		return nil, h.deadlineAware(ctx, err)
	}
	if kc, ok := h.keywords.(interface{ Stats() KeywordStats }); ok {
		h.metrics.SetKeywordStats(kc.Stats())
	}
	prefilter := make([]string, 0, len(requestCategories))
	for c := range requestCategories {
		prefilter = append(prefilter, c)
	}
	sort.Strings(prefilter)

	products, err := h.catalog.Candidates(ctx, prefilter, h.config.MaxCandidates)
	if err != nil {
		return nil, h.deadlineAware(ctx, err)
	}
	*candidateCount = len(products)

	ranked, err := h.score(ctx, req, products, requestCategories)
	if err != nil {
		return nil, h.deadlineAware(ctx, err)
	}

	if len(ranked) > req.Limit {
		ranked = ranked[:req.Limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	result.Recommendations = ranked
	result.GeneratedAt = time.Now()

	if h.cache != nil {
		h.cache.Put(ctx, cacheKey, ranked, h.config.ResultTTL)
	}

	return result, nil
}

// score fans out to the four scorers and combines their results. The first
// failure cancels the others.
func (h *HybridAggregator) score(ctx context.Context, req *models.RecommendationRequest, products []models.Product, requestCategories map[string]struct{}) ([]models.RankedProduct, error) {
	if len(products) == 0 {
		return []models.RankedProduct{}, nil
	}

	scorers := h.scorers.list()
	components := make([][]float64, len(scorers))

	g, gctx := errgroup.WithContext(ctx)
	for i, scorer := range scorers {
		i, scorer := i, scorer
		g.Go(func() error {
			start := time.Now()
			scores, err := scorer.ScoreAll(gctx, req, products)
			elapsed := time.Since(start)

			if err == nil {
				err = validateComponent(scorer.Name(), scores, products)
			}
			h.metrics.ObserveScorer(scorer.Name(), elapsed.Seconds(), err)

			if err != nil {
				h.logger.WithError(err).WithFields(logrus.Fields{
					"scorer":   scorer.Name(),
					"duration": elapsed,
				}).Warn("Scorer failed")
				return err
			}

			h.logger.WithFields(logrus.Fields{
				"scorer":   scorer.Name(),
				"duration": elapsed,
				"products": len(scores),
			}).Debug("Scorer completed")

			components[i] = scores
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]models.RankedProduct, len(products))
	for i, p := range products {
		vector := models.ScoreVector{
			Collaborative:  components[0][i],
			Content:        components[1][i],
			KnowledgeGraph: components[2][i],
			LLM:            components[3][i],
		}
		vector.Final = h.weights.Combine(vector)

		ranked[i] = models.RankedProduct{
			Product: p,
			Scores:  vector,
		}
		if _, ok := requestCategories[normalizeCategory(p.Category)]; ok {
			ranked[i].MatchedCategories = []string{normalizeCategory(p.Category)}
		}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Scores.Final != ranked[b].Scores.Final {
			return ranked[a].Scores.Final > ranked[b].Scores.Final
		}
		return bytes.Compare(ranked[a].Product.ID[:], ranked[b].Product.ID[:]) < 0
	})

	return ranked, nil
}

// deadlineAware reports an expired request deadline as a timeout, whatever
// sub-call happened to notice it first.
func (h *HybridAggregator) deadlineAware(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, apperr.ErrRequestTimeout) {
		return apperr.RequestTimeout("aggregator", err)
	}
	return err
}

func (h *HybridAggregator) publishAudit(req *models.RecommendationRequest, result *RecommendationResult) {
	if h.audit == nil {
		return
	}

	textHash := sha256.Sum256([]byte(req.Text))
	event := messaging.RecommendationEvent{
		RequestID:    result.RequestID,
		RequesterID:  req.RequesterID,
		TextHash:     hex.EncodeToString(textHash[:]),
		Requirements: len(req.Requirements),
		Weights:      h.weights.AsVector(),
		Results:      make([]messaging.AuditResult, len(result.Recommendations)),
		CacheHit:     result.CacheHit,
		LatencyMs:    result.Latency.Milliseconds(),
		Timestamp:    time.Now(),
	}
	for i, r := range result.Recommendations {
		event.Results[i] = messaging.AuditResult{ProductID: r.Product.ID, Rank: r.Rank, Scores: r.Scores}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.config.AuditTimeout)
		defer cancel()
		if err := h.audit.PublishRecommendation(ctx, event); err != nil {
			h.logger.WithError(err).WithField("request_id", event.RequestID).Warn("Failed to publish audit event")
		}
	}()
}

func validateRequest(req *models.RecommendationRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is nil", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: text must not be empty", ErrInvalidRequest)
	}
	if req.Limit < 1 || req.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d, got %d", ErrInvalidRequest, MaxLimit, req.Limit)
	}
	return nil
}

// validateComponent rejects a score slice that does not cover every product
// with a finite value in [0,1].
func validateComponent(scorer string, scores []float64, products []models.Product) error {
	if len(scores) != len(products) {
		return apperr.DataIntegrity(scorer, "returned %d scores for %d products", len(scores), len(products))
	}
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 || s > 1 {
			return apperr.DataIntegrity(scorer, "score %v for product %s is outside [0,1]", s, products[i].ID)
		}
	}
	return nil
}
