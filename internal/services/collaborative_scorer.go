package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/apperr"
	"github.com/temcen/rfpmatch/pkg/models"
)

const purchaseHistoryQuery = `
		SELECT o.requester_id, o.id, o.status, li.product_id, COALESCE(p.category, li.category, '')
		FROM orders o
		JOIN order_line_items li ON li.order_id = o.id
		LEFT JOIN products p ON p.id = li.product_id
		WHERE o.requester_id = $1
			AND o.status IN ('accepted', 'sent')`

// CoPurchaseKeyPrefix prefixes the Redis hash holding, for one product, how
// often every other product was ordered together with it.
const CoPurchaseKeyPrefix = "copurchase:"

type CollaborativeConfig struct {
	CoPurchaseWeight     float64
	CoPurchaseSaturation float64
	QueryTimeout         time.Duration
	CacheTimeout         time.Duration
}

// CollaborativeScorer scores products by how well their category matches
// what the requester bought before. A requester without history scores 0
// everywhere; that is a result, not an error.
type CollaborativeScorer struct {
	db     DatabaseQuerier
	redis  *redis.Client
	config CollaborativeConfig
	logger *logrus.Logger
}

func NewCollaborativeScorer(db DatabaseQuerier, redisClient *redis.Client, cfg CollaborativeConfig, logger *logrus.Logger) *CollaborativeScorer {
	if cfg.CoPurchaseSaturation <= 0 {
		cfg.CoPurchaseSaturation = 10
	}
	if cfg.CoPurchaseWeight < 0 || cfg.CoPurchaseWeight > 1 {
		cfg.CoPurchaseWeight = 0
	}
	return &CollaborativeScorer{
		db:     db,
		redis:  redisClient,
		config: cfg,
		logger: logger,
	}
}

func (s *CollaborativeScorer) Name() string { return "collaborative" }

func (s *CollaborativeScorer) ScoreAll(ctx context.Context, req *models.RecommendationRequest, products []models.Product) ([]float64, error) {
	scores := make([]float64, len(products))

	requester := strings.TrimSpace(req.RequesterID)
	if requester == "" || len(products) == 0 {
		return scores, nil
	}

	history, err := s.loadHistory(ctx, requester)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return scores, nil
	}

	categoryCounts := make(map[string]int)
	seen := make(map[uuid.UUID]struct{})
	var historicalProducts []string
	for _, rec := range history {
		categoryCounts[normalizeCategory(rec.Category)]++
		if _, ok := seen[rec.ProductID]; !ok {
			seen[rec.ProductID] = struct{}{}
			historicalProducts = append(historicalProducts, rec.ProductID.String())
		}
	}

	total := float64(len(history))
	for i, p := range products {
		category := normalizeCategory(p.Category)
		if category == "" {
			continue
		}
		scores[i] = float64(categoryCounts[category]) / total
	}

	boosts := s.coPurchaseBoosts(ctx, products, historicalProducts)
	for i := range scores {
		if boosts != nil && boosts[i] > 0 {
			scores[i] += (1 - scores[i]) * boosts[i]
		}
		scores[i] = math.Min(1, math.Max(0, scores[i]))
	}

	s.logger.WithFields(logrus.Fields{
		"requester_id": requester,
		"line_items":   len(history),
		"categories":   len(categoryCounts),
		"boosted":      boosts != nil,
	}).Debug("Collaborative scores computed")

	return scores, nil
}

func (s *CollaborativeScorer) loadHistory(ctx context.Context, requester string) ([]models.PurchaseRecord, error) {
	if s.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.QueryTimeout)
		defer cancel()
	}

	rows, err := s.db.Query(ctx, purchaseHistoryQuery, requester)
	if err != nil {
		return nil, apperr.DependencyUnavailable(s.Name(), apperr.DependencyPostgres, err)
	}
	defer rows.Close()

	var history []models.PurchaseRecord
	for rows.Next() {
		var rec models.PurchaseRecord
		if err := rows.Scan(&rec.RequesterID, &rec.OrderID, &rec.Status, &rec.ProductID, &rec.Category); err != nil {
			return nil, apperr.DependencyUnavailable(s.Name(), apperr.DependencyPostgres, err)
		}
		history = append(history, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.DependencyUnavailable(s.Name(), apperr.DependencyPostgres, err)
	}

	return history, nil
}

// coPurchaseBoosts returns a boost in [0, CoPurchaseWeight] per product, or
// nil when the boost is unavailable. Redis problems are logged and skipped.
func (s *CollaborativeScorer) coPurchaseBoosts(ctx context.Context, products []models.Product, historical []string) []float64 {
	if s.redis == nil || s.config.CoPurchaseWeight == 0 || len(historical) == 0 {
		return nil
	}

	if s.config.CacheTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CacheTimeout)
		defer cancel()
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.SliceCmd, len(products))
	for i, p := range products {
		cmds[i] = pipe.HMGet(ctx, CoPurchaseKeyPrefix+p.ID.String(), historical...)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		s.logger.WithError(apperr.Cache(s.Name(), "co-purchase lookup failed", err)).
			Warn("Skipping co-purchase boost")
		return nil
	}

	boosts := make([]float64, len(products))
	for i, cmd := range cmds {
		values, err := cmd.Result()
		if err != nil {
			continue
		}
		sum := 0.0
		for _, v := range values {
			count, err := parseCount(v)
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"product_id": products[i].ID,
					"value":      v,
				}).Warn("Ignoring malformed co-purchase count")
				continue
			}
			sum += count
		}
		boosts[i] = s.config.CoPurchaseWeight * math.Min(1, sum/s.config.CoPurchaseSaturation)
	}

	return boosts
}

func parseCount(v interface{}) (float64, error) {
	if v == nil {
		return 0, nil
	}
	str, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	count, err := strconv.ParseFloat(str, 64)
	if err != nil || math.IsNaN(count) || count < 0 {
		return 0, fmt.Errorf("invalid count %q", str)
	}
	return count, nil
}
