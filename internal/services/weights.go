package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/apperr"
	"github.com/temcen/rfpmatch/internal/config"
	"github.com/temcen/rfpmatch/pkg/models"
)

// WeightSumTolerance is how far the four weights may sum away from 1.0.
const WeightSumTolerance = 0.01

// Weights are the validated aggregation weights. The zero value is not
// usable; obtain one from LoadWeights or NewWeights. Fields are unexported so
// a value cannot change after validation.
type Weights struct {
	collaborative  float64
	content        float64
	knowledgeGraph float64
	llm            float64
}

// LoadWeights validates the configured weights.
func LoadWeights(cfg config.WeightsConfig) (Weights, error) {
	named := []struct {
		key   string
		value *float64
	}{
		{"collaborative", cfg.Collaborative},
		{"content", cfg.Content},
		{"knowledge_graph", cfg.KnowledgeGraph},
		{"llm", cfg.LLM},
	}

	for _, w := range named {
		if w.value == nil {
			return Weights{}, apperr.Configuration("weights", "weight recommendation.weights.%s is missing", w.key)
		}
	}

	return NewWeights(*cfg.Collaborative, *cfg.Content, *cfg.KnowledgeGraph, *cfg.LLM)
}

func NewWeights(collaborative, content, knowledgeGraph, llm float64) (Weights, error) {
	values := map[string]float64{
		"collaborative":   collaborative,
		"content":         content,
		"knowledge_graph": knowledgeGraph,
		"llm":             llm,
	}

	sum := 0.0
	for _, key := range []string{"collaborative", "content", "knowledge_graph", "llm"} {
		v := values[key]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Weights{}, apperr.Configuration("weights", "weight %s is not a number", key)
		}
		if v < 0 || v > 1 {
			return Weights{}, apperr.Configuration("weights", "weight %s = %g is outside [0,1]", key, v)
		}
		sum += v
	}

	if math.Abs(sum-1.0) > WeightSumTolerance {
		return Weights{}, apperr.Configuration("weights", "weights sum to %.4f, expected 1.0 ± %.2f", sum, WeightSumTolerance)
	}

	return Weights{
		collaborative:  collaborative,
		content:        content,
		knowledgeGraph: knowledgeGraph,
		llm:            llm,
	}, nil
}

func (w Weights) Collaborative() float64  { return w.collaborative }
func (w Weights) Content() float64        { return w.content }
func (w Weights) KnowledgeGraph() float64 { return w.knowledgeGraph }
func (w Weights) LLM() float64            { return w.llm }

// Combine returns the weighted sum of the four component scores.
func (w Weights) Combine(s models.ScoreVector) float64 {
	return w.collaborative*s.Collaborative +
		w.content*s.Content +
		w.knowledgeGraph*s.KnowledgeGraph +
		w.llm*s.LLM
}

// AsVector exposes the weights in score vector shape for audit events.
func (w Weights) AsVector() models.ScoreVector {
	return models.ScoreVector{
		Collaborative:  w.collaborative,
		Content:        w.content,
		KnowledgeGraph: w.knowledgeGraph,
		LLM:            w.llm,
		Final:          w.collaborative + w.content + w.knowledgeGraph + w.llm,
	}
}

// Fingerprint identifies the weight tuple in cache keys.
func (w Weights) Fingerprint() string {
	raw := fmt.Sprintf("%.6f|%.6f|%.6f|%.6f", w.collaborative, w.content, w.knowledgeGraph, w.llm)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

func (w Weights) Fields() logrus.Fields {
	return logrus.Fields{
		"weight_collaborative":   w.collaborative,
		"weight_content":         w.content,
		"weight_knowledge_graph": w.knowledgeGraph,
		"weight_llm":             w.llm,
	}
}
