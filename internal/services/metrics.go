package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/apperr"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	scorerDuration   *prometheus.HistogramVec
	scorerFailures   *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	requests         *prometheus.CounterVec
	requestDuration  prometheus.Histogram
	candidateCount   prometheus.Histogram
	keywordTableSize *prometheus.GaugeVec
}

// NewMetrics registers the collectors with reg. Collectors that are already
// registered are reused, so tests may build several engines.
func NewMetrics(reg prometheus.Registerer, logger *logrus.Logger) *Metrics {
	m := &Metrics{
		scorerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rfp_scorer_duration_seconds",
			Help:    "Time spent by each scorer on one request",
			Buckets: prometheus.DefBuckets,
		}, []string{"scorer"}),
		scorerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rfp_scorer_failures_total",
			Help: "Scorer failures by error kind",
		}, []string{"scorer", "kind"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rfp_result_cache_requests_total",
			Help: "Result cache lookups and writes by outcome",
		}, []string{"operation", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rfp_recommend_requests_total",
			Help: "Recommend calls by outcome",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rfp_recommend_duration_seconds",
			Help:    "End to end recommend latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		candidateCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rfp_candidates_per_request",
			Help:    "Number of candidate products scored per request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}),
		keywordTableSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rfp_keyword_mappings",
			Help: "Rows loaded from each keyword mapping table",
		}, []string{"table"}),
	}

	m.scorerDuration = register(reg, m.scorerDuration, logger)
	m.scorerFailures = register(reg, m.scorerFailures, logger)
	m.cacheRequests = register(reg, m.cacheRequests, logger)
	m.requests = register(reg, m.requests, logger)
	m.requestDuration = register(reg, m.requestDuration, logger)
	m.candidateCount = register(reg, m.candidateCount, logger)
	m.keywordTableSize = register(reg, m.keywordTableSize, logger)

	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, logger *logrus.Logger) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("Failed to register metric")
	}
	return c
}

func (m *Metrics) ObserveScorer(scorer string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.scorerDuration.WithLabelValues(scorer).Observe(seconds)
	if err != nil {
		m.scorerFailures.WithLabelValues(scorer, errorKind(err)).Inc()
	}
}

func (m *Metrics) ObserveCache(operation, result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ObserveRequest(seconds float64, candidates int, err error) {
	if m == nil {
		return
	}
	m.requestDuration.Observe(seconds)
	if err != nil {
		m.requests.WithLabelValues(errorKind(err)).Inc()
		return
	}
	m.requests.WithLabelValues("success").Inc()
	if candidates >= 0 {
		m.candidateCount.Observe(float64(candidates))
	}
}

func (m *Metrics) SetKeywordStats(stats KeywordStats) {
	if m == nil || !stats.Loaded {
		return
	}
	m.keywordTableSize.WithLabelValues(categoryKeywordsTable).Set(float64(stats.CategoryKeywords))
	m.keywordTableSize.WithLabelValues(keywordTasksTable).Set(float64(stats.TaskKeywords))
}

// errorKind maps an error onto a short metrics label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, apperr.ErrConfiguration):
		return "configuration"
	case errors.Is(err, apperr.ErrDependencyUnavailable):
		return "dependency_unavailable"
	case errors.Is(err, apperr.ErrDataIntegrity):
		return "data_integrity"
	case errors.Is(err, apperr.ErrExternalService):
		return "external_service"
	case errors.Is(err, apperr.ErrRequestTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "other"
	}
}
