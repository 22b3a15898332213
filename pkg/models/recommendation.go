package models

import (
	"time"

	"github.com/google/uuid"
)

// RecommendationRequest is a single recommend() call. It is created per call
// and never persisted by the engine.
type RecommendationRequest struct {
	Text         string   `json:"text" validate:"required,min=1,max=20000"`
	Requirements []string `json:"requirements,omitempty" validate:"omitempty,max=100,dive,max=500"`
	RequesterID  string   `json:"requester_id,omitempty" validate:"omitempty,max=255"`
	Limit        int      `json:"limit" validate:"min=1,max=100"`
}

// ScoreVector holds the four component scores of a product, each in [0,1],
// and the weighted final score.
type ScoreVector struct {
	Collaborative  float64 `json:"collaborative"`
	Content        float64 `json:"content"`
	KnowledgeGraph float64 `json:"knowledge_graph"`
	LLM            float64 `json:"llm"`
	Final          float64 `json:"final"`
}

// RankedProduct is one entry of a recommend() result.
type RankedProduct struct {
	Product           Product     `json:"product"`
	Scores            ScoreVector `json:"scores"`
	Rank              int         `json:"rank"`
	MatchedCategories []string    `json:"matched_categories,omitempty"`
}

// CachedResult is the value stored by the result cache.
type CachedResult struct {
	Results  []RankedProduct `json:"results"`
	CachedAt time.Time       `json:"cached_at"`
}

// RecommendationItem is the wire shape of a ranked product.
type RecommendationItem struct {
	ProductID       uuid.UUID   `json:"product_id"`
	Name            string      `json:"name"`
	Category        string      `json:"category"`
	Brand           string      `json:"brand,omitempty"`
	Price           float64     `json:"price"`
	FinalScore      float64     `json:"final_score"`
	ComponentScores ScoreVector `json:"component_scores"`
	Rank            int         `json:"rank"`
	Explanation     string      `json:"explanation,omitempty"`
}

type RecommendationResponse struct {
	RequestID       uuid.UUID            `json:"request_id"`
	Recommendations []RecommendationItem `json:"recommendations"`
	CacheHit        bool                 `json:"cache_hit"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// ErrorResponse mirrors the error envelope used by every handler.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
