package ml

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"gonum.org/v1/gonum/floats"
)

// ErrDimensionMismatch is returned when two vectors cannot be compared.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// TextEmbeddingService embeds text through an OpenAI-compatible embedding
// endpoint and memoizes vectors in Redis. The memo is best-effort: a Redis
// failure only costs a recomputation.
type TextEmbeddingService struct {
	embedder    embeddings.Embedder
	registry    *ModelRegistry
	redisClient *redis.Client
	logger      *logrus.Logger

	modelName   string
	cachePrefix string
	cacheTTL    time.Duration
}

// TextEmbeddingConfig contains configuration for the text embedding service
type TextEmbeddingConfig struct {
	ModelName   string
	Host        string
	Token       string
	CachePrefix string
	CacheTTL    time.Duration
}

// NewOpenAIEmbedder builds a langchaingo embedder for an OpenAI-compatible host.
func NewOpenAIEmbedder(config TextEmbeddingConfig) (embeddings.Embedder, error) {
	token := config.Token
	if token == "" {
		// Local OpenAI-compatible services ignore the token but the client requires one.
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.ModelName),
	}
	if config.Host != "" {
		opts = append(opts, openai.WithBaseURL(config.Host))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

func NewTextEmbeddingService(embedder embeddings.Embedder, registry *ModelRegistry, redisClient *redis.Client, logger *logrus.Logger, config TextEmbeddingConfig) (*TextEmbeddingService, error) {
	if config.CachePrefix == "" {
		config.CachePrefix = "embed:text"
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 24 * time.Hour
	}

	if _, err := registry.GetModelInfo(config.ModelName); err != nil {
		if err := registry.RegisterModel(ModelInfo{Name: config.ModelName}); err != nil {
			return nil, err
		}
	}

	return &TextEmbeddingService{
		embedder:    embedder,
		registry:    registry,
		redisClient: redisClient,
		logger:      logger,
		modelName:   config.ModelName,
		cachePrefix: config.CachePrefix,
		cacheTTL:    config.CacheTTL,
	}, nil
}

// Probe embeds a fixed string to confirm the service is reachable and to
// learn the vector size.
func (tes *TextEmbeddingService) Probe(ctx context.Context) error {
	vectors, err := tes.embedder.EmbedDocuments(ctx, []string{"embedding service probe"})
	if err != nil {
		return fmt.Errorf("embedding probe failed: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return fmt.Errorf("embedding probe returned no vector")
	}
	return tes.registry.RecordDimensions(tes.modelName, len(vectors[0]))
}

// Dimensions returns the probed vector size, or 0 before Probe has run.
func (tes *TextEmbeddingService) Dimensions() int {
	info, err := tes.registry.GetModelInfo(tes.modelName)
	if err != nil {
		return 0
	}
	return info.Dimensions
}

func (tes *TextEmbeddingService) ModelName() string {
	return tes.modelName
}

// EmbedTexts returns one vector per text. Memoized vectors are served from
// Redis; the rest are embedded in a single batch call.
func (tes *TextEmbeddingService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = tes.generateCacheKey(text)
	}

	tes.getCachedEmbeddings(ctx, keys, results)

	var missing []int
	var batch []string
	for i, vec := range results {
		if vec == nil {
			missing = append(missing, i)
			batch = append(batch, texts[i])
		}
	}

	if len(batch) == 0 {
		return results, nil
	}

	vectors, err := tes.embedder.EmbedDocuments(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vectors), len(batch))
	}

	for j, idx := range missing {
		results[idx] = vectors[j]
	}
	tes.cacheEmbeddings(ctx, keys, missing, vectors)

	tes.logger.WithFields(logrus.Fields{
		"model":    tes.modelName,
		"total":    len(texts),
		"computed": len(batch),
	}).Debug("Embedded texts")

	return results, nil
}

func (tes *TextEmbeddingService) getCachedEmbeddings(ctx context.Context, keys []string, results [][]float32) {
	if tes.redisClient == nil {
		return
	}

	values, err := tes.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		tes.logger.WithError(err).Warn("Failed to read embedding cache")
		return
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var embedding []float32
		if err := json.Unmarshal([]byte(raw), &embedding); err != nil {
			tes.logger.WithFields(logrus.Fields{
				"error": err.Error(),
				"key":   keys[i],
			}).Warn("Failed to deserialize cached embedding")
			continue
		}
		results[i] = embedding
	}
}

func (tes *TextEmbeddingService) cacheEmbeddings(ctx context.Context, keys []string, indexes []int, vectors [][]float32) {
	if tes.redisClient == nil {
		return
	}

	pipe := tes.redisClient.Pipeline()
	for j, idx := range indexes {
		data, err := json.Marshal(vectors[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[idx], data, tes.cacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		tes.logger.WithError(err).Warn("Failed to cache embeddings")
	}
}

// generateCacheKey creates a hierarchical cache key
func (tes *TextEmbeddingService) generateCacheKey(text string) string {
	version := "v1"
	if info, err := tes.registry.GetModelInfo(tes.modelName); err == nil {
		version = info.Version
	}

	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:%s:%s:%x", tes.cachePrefix, tes.modelName, version, hash[:16])
}

// CosineSimilarity compares two vectors of equal length. Zero vectors have
// similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	va := toFloat64(a)
	vb := toFloat64(b)

	na := floats.Norm(va, 2)
	nb := floats.Norm(vb, 2)
	if na == 0 || nb == 0 {
		return 0, nil
	}

	return floats.Dot(va, vb) / (na * nb), nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
