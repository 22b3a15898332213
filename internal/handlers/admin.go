package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/config"
	"github.com/temcen/rfpmatch/internal/services"
)

type weightsSource interface {
	Weights() services.Weights
}

type keywordStatsSource interface {
	Stats() services.KeywordStats
}

// AdminHandler exposes the running engine configuration. It is read only:
// weights are validated at startup and change only with a restart.
type AdminHandler struct {
	logger   *logrus.Logger
	config   *config.Config
	weights  weightsSource
	keywords keywordStatsSource
}

func NewAdminHandler(logger *logrus.Logger, cfg *config.Config, weights weightsSource, keywords keywordStatsSource) *AdminHandler {
	return &AdminHandler{
		logger:   logger,
		config:   cfg,
		weights:  weights,
		keywords: keywords,
	}
}

// EngineConfig is the response of GET /api/v1/admin/engine.
type EngineConfig struct {
	Weights struct {
		Collaborative  float64 `json:"collaborative"`
		Content        float64 `json:"content"`
		KnowledgeGraph float64 `json:"knowledge_graph"`
		LLM            float64 `json:"llm"`
		Fingerprint    string  `json:"fingerprint"`
	} `json:"weights"`
	ContentMode   string                `json:"content_mode"`
	LLMModel      string                `json:"llm_model"`
	MaxCandidates int                   `json:"max_candidates"`
	ResultTTL     string                `json:"result_ttl"`
	Keywords      services.KeywordStats `json:"keyword_mappings"`
	Timestamp     time.Time             `json:"timestamp"`
}

func (h *AdminHandler) GetEngineConfig(c *gin.Context) {
	resp := EngineConfig{Timestamp: time.Now().UTC()}

	if h.weights != nil {
		w := h.weights.Weights()
		resp.Weights.Collaborative = w.Collaborative()
		resp.Weights.Content = w.Content()
		resp.Weights.KnowledgeGraph = w.KnowledgeGraph()
		resp.Weights.LLM = w.LLM()
		resp.Weights.Fingerprint = w.Fingerprint()
	}

	if h.config != nil {
		resp.ContentMode = h.config.Engine.Content.Mode
		resp.LLMModel = h.config.Engine.LLM.Model
		resp.MaxCandidates = h.config.Engine.MaxCandidates
		resp.ResultTTL = h.config.Engine.Caching.ResultTTL.String()
	}

	if h.keywords != nil {
		resp.Keywords = h.keywords.Stats()
	}

	c.JSON(http.StatusOK, resp)
}
