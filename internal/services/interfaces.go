package services

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/temcen/rfpmatch/internal/llm"
	"github.com/temcen/rfpmatch/internal/messaging"
	"github.com/temcen/rfpmatch/pkg/models"
)

// DatabaseQuerier interface for database operations
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Scorer computes one relevance signal for every candidate of a request.
// The returned slice is index-aligned with products and every value must be
// in [0,1]. There is no partial result: either all scores or an error.
type Scorer interface {
	Name() string
	ScoreAll(ctx context.Context, req *models.RecommendationRequest, products []models.Product) ([]float64, error)
}

// KeywordMatcher maps free text onto catalog categories and task ids.
type KeywordMatcher interface {
	CategoriesFor(ctx context.Context, text string) (map[string]struct{}, error)
	TasksFor(ctx context.Context, text string) (map[string]struct{}, error)
	Categories(ctx context.Context) ([]string, error)
}

// CandidateSource returns the products to score for a request.
type CandidateSource interface {
	Candidates(ctx context.Context, categories []string, limit int) ([]models.Product, error)
}

// GraphQuerier reads task to product paths from the knowledge graph.
type GraphQuerier interface {
	TaskProductPaths(ctx context.Context, taskIDs []string, productIDs []string) ([]GraphPath, error)
}

// RequirementExtractor is implemented by *llm.RequirementExtractor.
type RequirementExtractor interface {
	Extract(ctx context.Context, text string, requirements []string, categories []string) (*llm.Extraction, error)
}

// TextEmbedder is implemented by *ml.TextEmbeddingService.
type TextEmbedder interface {
	Probe(ctx context.Context) error
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// AuditSink receives one event per recommend call. Publishing is
// best-effort and never fails the call.
type AuditSink interface {
	PublishRecommendation(ctx context.Context, event messaging.RecommendationEvent) error
}

// RecommendationEngine is what the HTTP layer depends on.
type RecommendationEngine interface {
	Recommend(ctx context.Context, req *models.RecommendationRequest) (*RecommendationResult, error)
}
