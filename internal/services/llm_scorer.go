package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/apperr"
	"github.com/temcen/rfpmatch/internal/ml"
	"github.com/temcen/rfpmatch/pkg/models"
)

// Match strength weights of the LLM scorer.
const (
	llmCategoryWeight = 0.6
	llmTaskWeight     = 0.25
	llmPhraseWeight   = 0.15
)

// LLMScorer scores products against requirement phrases a language model
// extracted from the request. Extraction failures fail the call; there is
// no rule-based stand-in.
type LLMScorer struct {
	extractor RequirementExtractor
	keywords  KeywordMatcher
	timeout   time.Duration
	logger    *logrus.Logger
}

func NewLLMScorer(extractor RequirementExtractor, keywords KeywordMatcher, timeout time.Duration, logger *logrus.Logger) (*LLMScorer, error) {
	if extractor == nil {
		return nil, apperr.Configuration("llm", "requirement extractor is not configured")
	}
	return &LLMScorer{
		extractor: extractor,
		keywords:  keywords,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

func (s *LLMScorer) Name() string { return "llm" }

func (s *LLMScorer) ScoreAll(ctx context.Context, req *models.RecommendationRequest, products []models.Product) ([]float64, error) {
	known, err := s.keywords.Categories(ctx)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	extraction, err := s.extractor.Extract(callCtx, req.Text, req.Requirements, known)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.ExternalService(s.Name(), apperr.DependencyLLM, "extraction failed", err)
	}

	scores := make([]float64, len(products))
	if len(extraction.Requirements) == 0 {
		return scores, nil
	}

	phrases := make([]string, len(extraction.Requirements))
	phraseTokens := make([][]string, len(extraction.Requirements))
	for i, r := range extraction.Requirements {
		phrases[i] = r.Phrase
		phraseTokens[i] = ml.ContentTokens(r.Phrase)
	}
	phraseText := strings.Join(phrases, "\n")

	categories, err := s.keywords.CategoriesFor(ctx, phraseText)
	if err != nil {
		return nil, err
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, c := range known {
		knownSet[c] = struct{}{}
	}
	for _, r := range extraction.Requirements {
		suggested := normalizeCategory(r.Category)
		if _, ok := knownSet[suggested]; ok {
			categories[suggested] = struct{}{}
		}
	}

	phraseTasks, err := s.keywords.TasksFor(ctx, phraseText)
	if err != nil {
		return nil, err
	}

	for i, p := range products {
		categoryMatch := 0.0
		if _, ok := categories[normalizeCategory(p.Category)]; ok {
			categoryMatch = 1
		}

		composite := p.CompositeText()

		taskOverlap := 0.0
		if len(phraseTasks) > 0 {
			productTasks, err := s.keywords.TasksFor(ctx, composite)
			if err != nil {
				return nil, err
			}
			shared := 0
			for t := range phraseTasks {
				if _, ok := productTasks[t]; ok {
					shared++
				}
			}
			taskOverlap = float64(shared) / float64(len(phraseTasks))
		}

		productTokens := make(map[string]struct{})
		for _, t := range ml.ContentTokens(composite) {
			productTokens[t] = struct{}{}
		}
		covered := 0
		for _, tokens := range phraseTokens {
			for _, t := range tokens {
				if _, ok := productTokens[t]; ok {
					covered++
					break
				}
			}
		}
		phraseCoverage := float64(covered) / float64(len(phraseTokens))

		scores[i] = llmCategoryWeight*categoryMatch + llmTaskWeight*taskOverlap + llmPhraseWeight*phraseCoverage
	}

	s.logger.WithFields(logrus.Fields{
		"phrases":    len(phrases),
		"categories": len(categories),
		"tasks":      len(phraseTasks),
	}).Debug("LLM scores computed")

	return scores, nil
}
