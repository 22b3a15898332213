package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/rfpmatch/internal/services"
)

func TestHealthHandler_Check(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name           string
		checks         []services.HealthCheck
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "healthy",
			checks:         []services.HealthCheck{{Name: "postgresql", Critical: true, Check: ok}},
			expectedStatus: http.StatusOK,
			expectedBody:   "healthy",
		},
		{
			name: "degraded when redis is down",
			checks: []services.HealthCheck{
				{Name: "postgresql", Critical: true, Check: ok},
				{Name: "redis", Critical: false, Check: down},
			},
			expectedStatus: http.StatusOK,
			expectedBody:   "degraded",
		},
		{
			name:           "unhealthy when neo4j is down",
			checks:         []services.HealthCheck{{Name: "neo4j", Critical: true, Check: down}},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := services.NewHealthService(tt.checks, nil, prometheus.NewRegistry(), testLogger())
			router := gin.New()
			router.GET("/health", NewHealthHandler(testLogger(), hs).Check)

			req, _ := http.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var status services.HealthStatus
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
			assert.Equal(t, tt.expectedBody, status.Status)
		})
	}
}
