package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/rfpmatch/internal/apperr"
	"github.com/temcen/rfpmatch/pkg/models"
)

// fakeTextEmbedder maps exact texts to vectors; anything else gets fallback.
type fakeTextEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	dims     int
	probeErr error
	embedErr error
	batches  [][]string
}

func (f *fakeTextEmbedder) Probe(context.Context) error { return f.probeErr }

func (f *fakeTextEmbedder) Dimensions() int { return f.dims }

func (f *fakeTextEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = f.fallback
		}
	}
	return out, nil
}

func TestNewContentScorer_Modes(t *testing.T) {
	ctx := context.Background()

	s, err := NewContentScorer(ctx, " Lexical ", nil, 0, testLogger())
	require.NoError(t, err)
	assert.Equal(t, ContentModeLexical, s.Mode())

	_, err = NewContentScorer(ctx, "semantic", nil, 0, testLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))

	_, err = NewContentScorer(ctx, ContentModeEmbedding, nil, 0, testLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))

	_, err = NewContentScorer(ctx, ContentModeEmbedding, &fakeTextEmbedder{probeErr: errors.New("dial tcp: refused")}, 0, testLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDependencyUnavailable))
}

func TestContentScorer_Lexical(t *testing.T) {
	s, err := NewContentScorer(context.Background(), ContentModeLexical, nil, 0, testLogger())
	require.NoError(t, err)

	products := []models.Product{
		product("LED Floodlight", "Outdoor floodlight for parking lots", "Lighting", "Lumos"),
		product("Copy Paper", "A4 office paper", "Office", ""),
	}
	req := &models.RecommendationRequest{Text: "LED floodlights for the parking lot", Requirements: []string{"outdoor rated"}}

	scores, err := s.ScoreAll(context.Background(), req, products)
	require.NoError(t, err)
	require.Len(t, scores, 2)

	assert.Greater(t, scores[0], 0.3)
	assert.LessOrEqual(t, scores[0], 1.0)
	assert.Equal(t, 0.0, scores[1])
}

func TestContentScorer_EmptyProductText(t *testing.T) {
	s, err := NewContentScorer(context.Background(), ContentModeLexical, nil, 0, testLogger())
	require.NoError(t, err)

	empty := models.Product{}
	_, err = s.ScoreAll(context.Background(), &models.RecommendationRequest{Text: "lamps"},
		[]models.Product{product("LED lamp", "", "Lighting", ""), empty})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDataIntegrity))
	assert.Contains(t, err.Error(), empty.ID.String())
}

func TestContentScorer_Embedding(t *testing.T) {
	lamp := product("LED lamp", "", "Lighting", "")
	stored := product("Floodlight", "", "Lighting", "")
	stored.Embedding = []float32{0, 1}
	opposite := product("Eraser", "", "Office", "")

	embedder := &fakeTextEmbedder{
		dims: 2,
		vectors: map[string][]float32{
			"led lights":             {1, 0},
			lamp.CompositeText():     {1, 0},
			opposite.CompositeText(): {-1, 0},
		},
		fallback: []float32{0.5, 0.5},
	}

	s, err := NewContentScorer(context.Background(), ContentModeEmbedding, embedder, 0, testLogger())
	require.NoError(t, err)

	scores, err := s.ScoreAll(context.Background(), &models.RecommendationRequest{Text: "led lights"},
		[]models.Product{lamp, stored, opposite})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, scores[0], 1e-6)
	assert.InDelta(t, 0.0, scores[1], 1e-6)
	assert.Equal(t, 0.0, scores[2])

	// One batch: the request plus the two products without stored vectors.
	require.Len(t, embedder.batches, 1)
	assert.Equal(t, []string{"led lights", lamp.CompositeText(), opposite.CompositeText()}, embedder.batches[0])
}

func TestContentScorer_EmbeddingDimensionMismatch(t *testing.T) {
	bad := product("Floodlight", "", "Lighting", "")
	bad.Embedding = []float32{0.1, 0.2, 0.3}

	embedder := &fakeTextEmbedder{dims: 2, fallback: []float32{1, 0}}
	s, err := NewContentScorer(context.Background(), ContentModeEmbedding, embedder, 0, testLogger())
	require.NoError(t, err)

	_, err = s.ScoreAll(context.Background(), &models.RecommendationRequest{Text: "lights"}, []models.Product{bad})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDataIntegrity))
	assert.Empty(t, embedder.batches)
}

func TestContentScorer_EmbeddingServiceFailure(t *testing.T) {
	embedder := &fakeTextEmbedder{dims: 2}
	s, err := NewContentScorer(context.Background(), ContentModeEmbedding, embedder, 0, testLogger())
	require.NoError(t, err)

	embedder.embedErr = errors.New("503 from embedding host")
	_, err = s.ScoreAll(context.Background(), &models.RecommendationRequest{Text: "lights"},
		[]models.Product{product("LED lamp", "", "Lighting", "")})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDependencyUnavailable))

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.DependencyEmbedding, appErr.Dependency)
}
