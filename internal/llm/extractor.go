// Package llm extracts structured requirement phrases from free-text
// requests with an OpenAI-compatible chat model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/temcen/rfpmatch/internal/apperr"
)

const (
	componentName = "llm"

	// MaxTemperature keeps extraction close to deterministic.
	MaxTemperature = 0.5
)

// Requirement is one extracted requirement phrase.
type Requirement struct {
	Phrase   string `json:"phrase"`
	Category string `json:"category,omitempty"`
}

// Extraction is the decoded model response.
type Extraction struct {
	Requirements []Requirement `json:"requirements"`
}

type ExtractorConfig struct {
	Model            string
	APIKey           string
	BaseURL          string
	Temperature      float64
	MaxParseAttempts int
}

// NewOpenAIModel builds the chat client. A missing API key is a
// configuration error: the engine has no rule-based substitute.
func NewOpenAIModel(cfg ExtractorConfig) (llms.Model, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperr.Configuration(componentName, "no API key configured for language model %q", cfg.Model)
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, apperr.Configuration(componentName, "failed to create language model client: %v", err)
	}
	return client, nil
}

// RequirementExtractor turns request text into requirement phrases. Calls go
// through a circuit breaker so a failing endpoint is not hammered while it
// recovers.
type RequirementExtractor struct {
	client           llms.Model
	breaker          *gobreaker.CircuitBreaker[*llms.ContentResponse]
	schema           *gojsonschema.Schema
	temperature      float64
	maxParseAttempts int
	logger           *logrus.Logger
}

func NewRequirementExtractor(client llms.Model, cfg ExtractorConfig, logger *logrus.Logger) (*RequirementExtractor, error) {
	if client == nil {
		return nil, apperr.Configuration(componentName, "language model client is required")
	}
	if cfg.Temperature < 0 || cfg.Temperature > MaxTemperature {
		return nil, apperr.Configuration(componentName, "temperature %.2f outside [0, %.1f]", cfg.Temperature, MaxTemperature)
	}
	if cfg.MaxParseAttempts <= 0 {
		cfg.MaxParseAttempts = 2
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requirementSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile requirement schema: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[*llms.ContentResponse](gobreaker.Settings{
		Name:        "llm-extractor",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Callers abandoning a request say nothing about the endpoint.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &RequirementExtractor{
		client:           client,
		breaker:          breaker,
		schema:           schema,
		temperature:      cfg.Temperature,
		maxParseAttempts: cfg.MaxParseAttempts,
		logger:           logger,
	}, nil
}

// BreakerState reports the circuit breaker state for health checks.
func (e *RequirementExtractor) BreakerState() gobreaker.State {
	return e.breaker.State()
}

// Extract asks the model for the requirement phrases in text. Every failure
// is an ExternalServiceError; there is no fallback extraction.
func (e *RequirementExtractor) Extract(ctx context.Context, text string, requirements []string, categories []string) (*Extraction, error) {
	content := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(buildSystemPrompt(categories))},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(buildUserPrompt(text, requirements))},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxParseAttempts; attempt++ {
		response, err := e.breaker.Execute(func() (*llms.ContentResponse, error) {
			return e.client.GenerateContent(ctx, content,
				llms.WithTemperature(e.temperature),
				llms.WithJSONMode(),
			)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, apperr.ExternalService(componentName, apperr.DependencyLLM, "circuit breaker rejected call", err)
			}
			return nil, apperr.ExternalService(componentName, apperr.DependencyLLM, "model call failed", err)
		}

		if len(response.Choices) == 0 {
			return nil, apperr.ExternalService(componentName, apperr.DependencyLLM, "model returned no choices", nil)
		}

		extraction, err := e.parse(response.Choices[0].Content)
		if err != nil {
			lastErr = err
			e.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("Unparseable extraction response")
			continue
		}

		e.logger.WithFields(logrus.Fields{
			"attempt":      attempt,
			"requirements": len(extraction.Requirements),
		}).Debug("Extracted requirements")

		return extraction, nil
	}

	return nil, apperr.ExternalService(componentName, apperr.DependencyLLM,
		fmt.Sprintf("unparseable response after %d attempts", e.maxParseAttempts), lastErr)
}

func (e *RequirementExtractor) parse(raw string) (*Extraction, error) {
	body := stripCodeFences(raw)

	result, err := e.schema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("schema violation: %s", strings.Join(msgs, "; "))
	}

	var extraction Extraction
	if err := json.Unmarshal([]byte(body), &extraction); err != nil {
		return nil, fmt.Errorf("failed to decode extraction: %w", err)
	}

	kept := extraction.Requirements[:0]
	for _, r := range extraction.Requirements {
		r.Phrase = strings.TrimSpace(r.Phrase)
		r.Category = strings.TrimSpace(r.Category)
		if r.Phrase != "" {
			kept = append(kept, r)
		}
	}
	extraction.Requirements = kept

	return &extraction, nil
}
