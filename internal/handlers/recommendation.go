package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/apperr"
	"github.com/temcen/rfpmatch/internal/services"
	"github.com/temcen/rfpmatch/pkg/models"
)

// DefaultLimit applies when a request omits the limit.
const DefaultLimit = 10

type RecommendationHandler struct {
	engine   services.RecommendationEngine
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewRecommendationHandler(engine services.RecommendationEngine, logger *logrus.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Create handles POST /api/v1/recommendations.
func (h *RecommendationHandler) Create(c *gin.Context) {
	var req models.RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Invalid request body format")
		return
	}

	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}

	if err := h.validate.Struct(&req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", describeValidation(err))
		return
	}

	result, err := h.engine.Recommend(c.Request.Context(), &req)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	response := models.RecommendationResponse{
		RequestID:       result.RequestID,
		Recommendations: make([]models.RecommendationItem, len(result.Recommendations)),
		CacheHit:        result.CacheHit,
		GeneratedAt:     result.GeneratedAt,
	}
	for i, r := range result.Recommendations {
		response.Recommendations[i] = models.RecommendationItem{
			ProductID:       r.Product.ID,
			Name:            r.Product.Name,
			Category:        r.Product.Category,
			Brand:           r.Product.Brand,
			Price:           r.Product.Price,
			FinalScore:      r.Scores.Final,
			ComponentScores: r.Scores,
			Rank:            r.Rank,
			Explanation:     explain(r),
		}
	}

	c.JSON(http.StatusOK, response)
}

func (h *RecommendationHandler) respondWithError(c *gin.Context, err error) {
	status, code, message := classify(err)

	entry := h.logger.WithError(err).WithFields(logrus.Fields{
		"status": status,
		"code":   code,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Recommendation request failed")
	} else {
		entry.Warn("Recommendation request rejected")
	}

	writeError(c, status, code, message)
}

// classify maps the engine's error kinds onto HTTP responses.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST", err.Error()
	case errors.Is(err, apperr.ErrConfiguration):
		return http.StatusInternalServerError, "CONFIGURATION_ERROR", "Recommendation engine is misconfigured"
	case errors.Is(err, apperr.ErrDataIntegrity):
		return http.StatusUnprocessableEntity, "DATA_INTEGRITY_ERROR", integrityMessage(err)
	case errors.Is(err, apperr.ErrDependencyUnavailable),
		errors.Is(err, apperr.ErrExternalService),
		errors.Is(err, apperr.ErrRequestTimeout):
		return http.StatusServiceUnavailable, "TEMPORARILY_UNAVAILABLE", "Recommendations are temporarily unavailable, please retry later"
	default:
		return http.StatusInternalServerError, "RECOMMENDATION_FAILED", "Failed to generate recommendations"
	}
}

func integrityMessage(err error) string {
	if appErr, ok := apperr.As(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	return "Catalog data is inconsistent"
}

func describeValidation(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return "Request failed validation"
	}
	problems := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(problems, "; ")
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{Error: models.ErrorBody{Code: code, Message: message}})
}

// explain names the matched categories and the strongest component.
func explain(r models.RankedProduct) string {
	components := []struct {
		name  string
		value float64
	}{
		{"purchase history", r.Scores.Collaborative},
		{"text similarity", r.Scores.Content},
		{"task relationships", r.Scores.KnowledgeGraph},
		{"extracted requirements", r.Scores.LLM},
	}

	best := components[0]
	for _, comp := range components[1:] {
		if comp.value > best.value {
			best = comp
		}
	}

	var parts []string
	if len(r.MatchedCategories) > 0 {
		parts = append(parts, "matches "+strings.Join(r.MatchedCategories, ", "))
	}
	if best.value > 0 {
		parts = append(parts, fmt.Sprintf("strongest signal: %s (%.2f)", best.name, best.value))
	}
	return strings.Join(parts, "; ")
}
