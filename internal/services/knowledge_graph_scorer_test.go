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

func TestPathStrength(t *testing.T) {
	tests := []struct {
		name string
		path GraphPath
		want float64
	}{
		{"direct required", GraphPath{WeightProduct: 1, Hops: 1, RelType: "REQUIRED_FOR"}, 1},
		{"two hops used", GraphPath{WeightProduct: 0.8, Hops: 2, RelType: "USED_FOR"}, 0.8 * 0.85 / 2},
		{"compatible", GraphPath{WeightProduct: 0.5, Hops: 1, RelType: "COMPATIBLE_WITH"}, 0.3},
		{"unknown type", GraphPath{WeightProduct: 1, Hops: 1, RelType: "MENTIONS"}, 0.4},
		{"weight clamped", GraphPath{WeightProduct: 3, Hops: 1, RelType: "REQUIRED_FOR"}, 1},
		{"no hops", GraphPath{WeightProduct: 1, Hops: 0, RelType: "REQUIRED_FOR"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PathStrength(tt.path), 1e-9)
		})
	}
}

func TestKnowledgeGraphScorer_BestPathPerTask(t *testing.T) {
	lamp := product("LED Floodlight", "", "Lighting", "")
	hat := product("Hard hat", "", "Safety", "")

	graph := &stubGraph{paths: []GraphPath{
		{TaskID: "task-illumination", ProductID: lamp.ID.String(), WeightProduct: 0.9, Hops: 1, RelType: "REQUIRED_FOR"},
		{TaskID: "task-illumination", ProductID: lamp.ID.String(), WeightProduct: 1, Hops: 2, RelType: "USED_FOR"},
		{TaskID: "task-illumination", ProductID: "not-a-candidate", WeightProduct: 1, Hops: 1, RelType: "REQUIRED_FOR"},
		{TaskID: "task-unrelated", ProductID: hat.ID.String(), WeightProduct: 1, Hops: 1, RelType: "REQUIRED_FOR"},
	}}

	scorer := NewKnowledgeGraphScorer(graph, standardKeywords(), 0, testLogger())
	scores, err := scorer.ScoreAll(context.Background(), &models.RecommendationRequest{Text: "LED floodlights"}, []models.Product{lamp, hat})
	require.NoError(t, err)

	assert.InDelta(t, 0.9, scores[0], 1e-9)
	assert.Equal(t, 0.0, scores[1])
	assert.Equal(t, []string{"task-illumination"}, graph.tasks)
}

func TestKnowledgeGraphScorer_AveragesOverTasks(t *testing.T) {
	lamp := product("LED Floodlight", "", "Lighting", "")
	hat := product("Hard hat", "", "Safety", "")

	graph := &stubGraph{paths: []GraphPath{
		{TaskID: "task-illumination", ProductID: lamp.ID.String(), WeightProduct: 1, Hops: 1, RelType: "REQUIRED_FOR"},
		{TaskID: "task-head-protection", ProductID: hat.ID.String(), WeightProduct: 1, Hops: 1, RelType: "REQUIRED_FOR"},
		{TaskID: "task-head-protection", ProductID: lamp.ID.String(), WeightProduct: 1, Hops: 2, RelType: "COMPATIBLE_WITH"},
	}}

	scorer := NewKnowledgeGraphScorer(graph, standardKeywords(), 0, testLogger())
	scores, err := scorer.ScoreAll(context.Background(),
		&models.RecommendationRequest{Text: "LED lighting", Requirements: []string{"hard hats"}},
		[]models.Product{lamp, hat})
	require.NoError(t, err)

	assert.InDelta(t, (1+0.3)/2, scores[0], 1e-9)
	assert.InDelta(t, 0.5, scores[1], 1e-9)
}

func TestKnowledgeGraphScorer_NoTasks(t *testing.T) {
	graph := &stubGraph{}
	scorer := NewKnowledgeGraphScorer(graph, standardKeywords(), 0, testLogger())

	scores, err := scorer.ScoreAll(context.Background(), &models.RecommendationRequest{Text: "a stapler"},
		[]models.Product{product("Stapler", "", "Office", "")})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, scores)
	assert.Equal(t, 0, graph.calls)
}

func TestKnowledgeGraphScorer_GraphFailure(t *testing.T) {
	graph := &stubGraph{err: errors.New("neo4j: connection refused")}
	scorer := NewKnowledgeGraphScorer(graph, standardKeywords(), 0, testLogger())

	_, err := scorer.ScoreAll(context.Background(), &models.RecommendationRequest{Text: "LED lamps"},
		[]models.Product{product("LED lamp", "", "Lighting", "")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDependencyUnavailable))

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.DependencyNeo4j, appErr.Dependency)
}
