package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/apperr"
	"github.com/temcen/rfpmatch/internal/ml"
	"github.com/temcen/rfpmatch/pkg/models"
)

const (
	ContentModeLexical   = "lexical"
	ContentModeEmbedding = "embedding"
)

// ContentScorer measures text similarity between the request and each
// product's composite text. The mode is fixed at construction and there is no
// fallback from one mode to the other.
type ContentScorer struct {
	mode     string
	embedder TextEmbedder
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewContentScorer probes the embedding service in embedding mode; an
// unreachable service keeps the engine from starting.
func NewContentScorer(ctx context.Context, mode string, embedder TextEmbedder, timeout time.Duration, logger *logrus.Logger) (*ContentScorer, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))

	switch mode {
	case ContentModeLexical:
	case ContentModeEmbedding:
		if embedder == nil {
			return nil, apperr.Configuration("content", "embedding mode requires an embedding service")
		}
		probeCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			probeCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := embedder.Probe(probeCtx); err != nil {
			return nil, apperr.DependencyUnavailable("content", apperr.DependencyEmbedding, err)
		}
		logger.WithField("dimensions", embedder.Dimensions()).Info("Embedding service reachable")
	default:
		return nil, apperr.Configuration("content", "unknown content mode %q (want %s or %s)", mode, ContentModeLexical, ContentModeEmbedding)
	}

	return &ContentScorer{
		mode:     mode,
		embedder: embedder,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

func (s *ContentScorer) Name() string { return "content" }

func (s *ContentScorer) Mode() string { return s.mode }

func (s *ContentScorer) ScoreAll(ctx context.Context, req *models.RecommendationRequest, products []models.Product) ([]float64, error) {
	documents := make([]string, len(products))
	for i, p := range products {
		documents[i] = p.CompositeText()
		if documents[i] == "" {
			return nil, apperr.DataIntegrity(s.Name(),
				"product %s has no scoreable text: name, description, category and brand are all empty", p.ID)
		}
	}

	query := requestText(req)

	if s.mode == ContentModeLexical {
		return ml.TFIDFSimilarities(query, documents), nil
	}
	return s.embeddingScores(ctx, query, products, documents)
}

func (s *ContentScorer) embeddingScores(ctx context.Context, query string, products []models.Product, documents []string) ([]float64, error) {
	dims := s.embedder.Dimensions()

	// Request text first, then every product without a usable stored vector.
	texts := []string{query}
	var pending []int
	for i, p := range products {
		if len(p.Embedding) == 0 {
			texts = append(texts, documents[i])
			pending = append(pending, i)
			continue
		}
		if dims > 0 && len(p.Embedding) != dims {
			return nil, apperr.DataIntegrity(s.Name(),
				"product %s has a %d-dimensional embedding, the model produces %d", p.ID, len(p.Embedding), dims)
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, apperr.DependencyUnavailable(s.Name(), apperr.DependencyEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, apperr.DependencyUnavailable(s.Name(), apperr.DependencyEmbedding,
			errors.New("embedding service returned an incomplete batch"))
	}

	productVectors := make([][]float32, len(products))
	for i, p := range products {
		productVectors[i] = p.Embedding
	}
	for j, idx := range pending {
		productVectors[idx] = vectors[j+1]
	}

	scores := make([]float64, len(products))
	for i, vec := range productVectors {
		sim, err := ml.CosineSimilarity(vectors[0], vec)
		if err != nil {
			return nil, apperr.DataIntegrity(s.Name(), "product %s: %v", products[i].ID, err)
		}
		// Opposed vectors carry no relevance, not negative relevance.
		if sim < 0 {
			sim = 0
		}
		if sim > 1 {
			sim = 1
		}
		scores[i] = sim
	}

	return scores, nil
}

// requestText is the request text followed by its listed requirements.
func requestText(req *models.RecommendationRequest) string {
	if len(req.Requirements) == 0 {
		return req.Text
	}
	return req.Text + "\n" + strings.Join(req.Requirements, "\n")
}
