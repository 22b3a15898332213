package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/config"
	"github.com/temcen/rfpmatch/internal/database"
	"github.com/temcen/rfpmatch/internal/llm"
	"github.com/temcen/rfpmatch/internal/messaging"
	"github.com/temcen/rfpmatch/internal/ml"
)

type Services struct {
	Health         *HealthService
	Keywords       *KeywordCache
	Recommendation *HybridAggregator
	Metrics        *Metrics
	Audit          *messaging.AuditPublisher
}

// New wires the engine. Every configuration or startup dependency problem
// is returned here so the process never serves with a half-built engine.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	weights, err := LoadWeights(cfg.Engine.Weights)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(prometheus.DefaultRegisterer, logger)

	keywords := NewKeywordCache(db.PG, cfg.Timeouts.Relational, logger)
	catalog := NewCatalog(db.PG, cfg.Timeouts.Relational, logger)

	collaborative := NewCollaborativeScorer(db.PG, db.Redis, CollaborativeConfig{
		CoPurchaseWeight:     cfg.Engine.Collaborative.CoPurchaseWeight,
		CoPurchaseSaturation: cfg.Engine.Collaborative.CoPurchaseSaturation,
		QueryTimeout:         cfg.Timeouts.Relational,
		CacheTimeout:         cfg.Timeouts.Cache,
	}, logger)

	var embedder TextEmbedder
	if strings.EqualFold(strings.TrimSpace(cfg.Engine.Content.Mode), ContentModeEmbedding) {
		embeddingConfig := ml.TextEmbeddingConfig{
			ModelName: cfg.Engine.Content.EmbeddingModel,
			Host:      cfg.Engine.Content.EmbeddingHost,
			Token:     cfg.Engine.Content.EmbeddingToken,
			CacheTTL:  cfg.Engine.Caching.EmbeddingTTL,
		}
		client, err := ml.NewOpenAIEmbedder(embeddingConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		embedder, err = ml.NewTextEmbeddingService(client, ml.NewModelRegistry(logger), db.Redis, logger, embeddingConfig)
		if err != nil {
			return nil, err
		}
	}
	content, err := NewContentScorer(ctx, cfg.Engine.Content.Mode, embedder, cfg.Timeouts.Embedding, logger)
	if err != nil {
		return nil, err
	}

	knowledgeGraph := NewKnowledgeGraphScorer(NewNeo4jGraph(db.Neo4j, cfg.Neo4j.Database), keywords, cfg.Timeouts.Graph, logger)

	extractorConfig := llm.ExtractorConfig{
		Model:            cfg.Engine.LLM.Model,
		APIKey:           cfg.Engine.LLM.APIKey,
		BaseURL:          cfg.Engine.LLM.BaseURL,
		Temperature:      cfg.Engine.LLM.Temperature,
		MaxParseAttempts: cfg.Engine.LLM.MaxParseAttempts,
	}
	model, err := llm.NewOpenAIModel(extractorConfig)
	if err != nil {
		return nil, err
	}
	extractor, err := llm.NewRequirementExtractor(model, extractorConfig, logger)
	if err != nil {
		return nil, err
	}
	llmScorer, err := NewLLMScorer(extractor, keywords, cfg.Timeouts.LLM, logger)
	if err != nil {
		return nil, err
	}

	resultCache := NewResultCache(db.Redis, cfg.Timeouts.Cache, metrics, logger)

	audit := messaging.NewAuditPublisher(cfg, logger)
	var sink AuditSink
	if audit != nil {
		sink = audit
	}

	aggregator, err := NewHybridAggregator(
		weights,
		Scorers{
			Collaborative:  collaborative,
			Content:        content,
			KnowledgeGraph: knowledgeGraph,
			LLM:            llmScorer,
		},
		keywords,
		catalog,
		resultCache,
		sink,
		metrics,
		AggregatorConfig{
			MaxCandidates:  cfg.Engine.MaxCandidates,
			RequestTimeout: cfg.Timeouts.Request,
			ResultTTL:      cfg.Engine.Caching.ResultTTL,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	checks := append(DatabaseHealthChecks(db), BreakerHealthCheck("llm", extractor.BreakerState))
	health := NewHealthService(checks, keywords, prometheus.DefaultRegisterer, logger)

	return &Services{
		Health:         health,
		Keywords:       keywords,
		Recommendation: aggregator,
		Metrics:        metrics,
		Audit:          audit,
	}, nil
}

// Close releases resources owned by the services.
func (s *Services) Close() error {
	if s.Audit != nil {
		return s.Audit.Close()
	}
	return nil
}
