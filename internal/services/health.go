package services

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/temcen/rfpmatch/internal/database"
)

// HealthCheck probes one dependency. Critical failures make the service
// unhealthy; the rest only degrade it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

type HealthService struct {
	checks   []HealthCheck
	keywords *KeywordCache
	timeout  time.Duration
	logger   *logrus.Logger

	// Prometheus metrics
	healthCheckStatus *prometheus.GaugeVec
	lastHealthCheck   *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]string      `json:"services"`
	Critical    []string               `json:"critical_failures,omitempty"`
	NonCritical []string               `json:"non_critical_failures,omitempty"`
	Latency     time.Duration          `json:"latency,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

func NewHealthService(checks []HealthCheck, keywords *KeywordCache, reg prometheus.Registerer, logger *logrus.Logger) *HealthService {
	hs := &HealthService{
		checks:   checks,
		keywords: keywords,
		timeout:  5 * time.Second,
		logger:   logger,
	}

	hs.healthCheckStatus = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"}), logger)

	hs.lastHealthCheck = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_timestamp",
		Help: "Timestamp of last health check",
	}, []string{"service"}), logger)

	return hs
}

// DatabaseHealthChecks returns the store probes. Redis only backs caches, so
// it is not critical.
func DatabaseHealthChecks(db *database.Database) []HealthCheck {
	return []HealthCheck{
		{
			Name:     "postgresql",
			Critical: true,
			Check:    func(ctx context.Context) error { return db.PG.Ping(ctx) },
		},
		{
			Name:     "neo4j",
			Critical: true,
			Check:    func(ctx context.Context) error { return db.Neo4j.VerifyConnectivity(ctx) },
		},
		{
			Name:     "redis",
			Critical: false,
			Check:    func(ctx context.Context) error { return db.Redis.Ping(ctx).Err() },
		},
	}
}

// BreakerHealthCheck reports an open circuit breaker as a failure.
func BreakerHealthCheck(name string, state func() gobreaker.State) HealthCheck {
	return HealthCheck{
		Name:     name,
		Critical: true,
		Check: func(context.Context) error {
			if state() == gobreaker.StateOpen {
				return errors.New("circuit breaker open")
			}
			return nil
		},
	}
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start,
		Services:  make(map[string]string),
		Details:   make(map[string]interface{}),
	}

	allCriticalHealthy := true
	for _, check := range s.checks {
		checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := check.Check(checkCtx)
		cancel()

		if err != nil {
			status.Services[check.Name] = "unhealthy"
			if check.Critical {
				status.Critical = append(status.Critical, check.Name)
				allCriticalHealthy = false
				s.logger.WithError(err).Errorf("Critical service %s is unhealthy", check.Name)
			} else {
				status.NonCritical = append(status.NonCritical, check.Name)
				s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", check.Name)
			}
			s.UpdateHealthMetrics(check.Name, false)
			continue
		}

		status.Services[check.Name] = "healthy"
		s.UpdateHealthMetrics(check.Name, true)
	}

	if s.keywords != nil {
		status.Details["keyword_mappings"] = s.keywords.Stats()
	}

	// Overall status
	if allCriticalHealthy {
		if len(status.NonCritical) == 0 {
			status.Status = "healthy"
		} else {
			status.Status = "degraded"
		}
	} else {
		status.Status = "unhealthy"
	}

	status.Latency = time.Since(start)
	return status
}

// UpdateHealthMetrics updates health check metrics
func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}
