package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/llm"
	"github.com/temcen/rfpmatch/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// newLoadedKeywordCache builds a cache that behaves as if both tables had
// been loaded with the given rows.
func newLoadedKeywordCache(categoryKeywords map[string][]string, keywordTasks map[string][]string) *KeywordCache {
	kc := NewKeywordCache(nil, 0, testLogger())

	categorySet := map[string]struct{}{}
	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			entry, ok := newKeywordEntry(normalizeCategory(category), kw, 0)
			if ok {
				kc.categoryKeywords = append(kc.categoryKeywords, entry)
			}
		}
		categorySet[normalizeCategory(category)] = struct{}{}
	}
	for keyword, tasks := range keywordTasks {
		for _, task := range tasks {
			entry, ok := newKeywordEntry(task, keyword, 0)
			if ok {
				kc.taskKeywords = append(kc.taskKeywords, entry)
			}
		}
	}
	for c := range categorySet {
		kc.categories = append(kc.categories, c)
	}
	sort.Strings(kc.categories)
	kc.loadedAt = time.Now()
	kc.loaded.Store(true)
	return kc
}

// standardKeywords is the mapping used by the lighting and safety scenario.
func standardKeywords() *KeywordCache {
	return newLoadedKeywordCache(
		map[string][]string{
			"lighting": {"led", "lighting", "lamp", "floodlight"},
			"safety":   {"helmet", "hard hat", "safety", "gloves"},
			"office":   {"paper", "stapler", "office"},
		},
		map[string][]string{
			"led":        {"task-illumination"},
			"lighting":   {"task-illumination"},
			"floodlight": {"task-illumination"},
			"helmet":     {"task-head-protection"},
			"hard hat":   {"task-head-protection"},
			"paper":      {"task-printing"},
		},
	)
}

func product(name, description, category, brand string) models.Product {
	return models.Product{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Category:    category,
		Brand:       brand,
		Price:       10,
	}
}

// fixedScorer returns preset scores, optionally after a delay or an error.
type fixedScorer struct {
	name   string
	scores map[uuid.UUID]float64
	fill   float64
	err    error
	delay  time.Duration

	mu        sync.Mutex
	calls     int
	cancelled bool
}

func (f *fixedScorer) Name() string { return f.name }

func (f *fixedScorer) ScoreAll(ctx context.Context, _ *models.RecommendationRequest, products []models.Product) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.mu.Lock()
			f.cancelled = true
			f.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	out := make([]float64, len(products))
	for i, p := range products {
		if s, ok := f.scores[p.ID]; ok {
			out[i] = s
		} else {
			out[i] = f.fill
		}
	}
	return out, nil
}

func (f *fixedScorer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fixedScorer) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// staticCatalog serves a fixed product list.
type staticCatalog struct {
	products []models.Product
	err      error

	mu             sync.Mutex
	lastCategories []string
	calls          int
}

func (c *staticCatalog) Candidates(_ context.Context, categories []string, limit int) ([]models.Product, error) {
	c.mu.Lock()
	c.calls++
	c.lastCategories = categories
	c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	if len(c.products) > limit {
		return c.products[:limit], nil
	}
	return c.products, nil
}

// stubExtractor returns a fixed extraction or error.
type stubExtractor struct {
	extraction *llm.Extraction
	err        error

	mu         sync.Mutex
	categories []string
}

func (s *stubExtractor) Extract(_ context.Context, _ string, _ []string, categories []string) (*llm.Extraction, error) {
	s.mu.Lock()
	s.categories = categories
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.extraction, nil
}

// stubGraph returns fixed paths.
type stubGraph struct {
	paths []GraphPath
	err   error
	calls int
	tasks []string
}

func (g *stubGraph) TaskProductPaths(_ context.Context, taskIDs []string, _ []string) ([]GraphPath, error) {
	g.calls++
	g.tasks = taskIDs
	if g.err != nil {
		return nil, g.err
	}
	return g.paths, nil
}
