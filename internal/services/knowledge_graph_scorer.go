package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/apperr"
	"github.com/temcen/rfpmatch/pkg/models"
)

// GraphPath is one task to product path of at most two hops.
type GraphPath struct {
	TaskID        string
	ProductID     string
	WeightProduct float64 // product of edge weights along the path
	Hops          int
	RelType       string // type of the relationship leaving the task
}

// Relationship type factors. Unknown types still count, at a discount.
var relationshipFactors = map[string]float64{
	"REQUIRED_FOR":    1.0,
	"USED_FOR":        0.85,
	"COMPATIBLE_WITH": 0.6,
}

const defaultRelationshipFactor = 0.4

const taskProductPathsQuery = `
		MATCH (t:Task) WHERE t.id IN $taskIds
		MATCH path = (t)-[*1..2]-(p:Product)
		WHERE p.id IN $productIds
		WITH t, p, path, relationships(path) AS rels
		RETURN t.id AS task_id,
			p.id AS product_id,
			reduce(w = 1.0, r IN rels | w * coalesce(r.weight, 0.5)) AS weight,
			length(path) AS hops,
			type(rels[0]) AS rel_type`

// Neo4jGraph implements GraphQuerier on the Neo4j driver.
type Neo4jGraph struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jGraph(driver neo4j.DriverWithContext, database string) *Neo4jGraph {
	return &Neo4jGraph{driver: driver, database: database}
}

func (g *Neo4jGraph) TaskProductPaths(ctx context.Context, taskIDs []string, productIDs []string) ([]GraphPath, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: g.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, taskProductPathsQuery, map[string]interface{}{
		"taskIds":    taskIDs,
		"productIds": productIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("task product path query failed: %w", err)
	}

	var paths []GraphPath
	for result.Next(ctx) {
		record := result.Record()

		taskID, _ := record.Get("task_id")
		productID, _ := record.Get("product_id")
		weight, _ := record.Get("weight")
		hops, _ := record.Get("hops")
		relType, _ := record.Get("rel_type")

		path := GraphPath{
			TaskID:    fmt.Sprint(taskID),
			ProductID: fmt.Sprint(productID),
			RelType:   fmt.Sprint(relType),
		}
		if w, ok := weight.(float64); ok {
			path.WeightProduct = w
		}
		if h, ok := hops.(int64); ok {
			path.Hops = int(h)
		}
		paths = append(paths, path)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task product paths: %w", err)
	}

	return paths, nil
}

// KnowledgeGraphScorer scores products by their graph relationship to the
// tasks mentioned in the request.
type KnowledgeGraphScorer struct {
	graph    GraphQuerier
	keywords KeywordMatcher
	timeout  time.Duration
	logger   *logrus.Logger
}

func NewKnowledgeGraphScorer(graph GraphQuerier, keywords KeywordMatcher, timeout time.Duration, logger *logrus.Logger) *KnowledgeGraphScorer {
	return &KnowledgeGraphScorer{
		graph:    graph,
		keywords: keywords,
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *KnowledgeGraphScorer) Name() string { return "knowledge_graph" }

func (s *KnowledgeGraphScorer) ScoreAll(ctx context.Context, req *models.RecommendationRequest, products []models.Product) ([]float64, error) {
	scores := make([]float64, len(products))

	tasks, err := s.keywords.TasksFor(ctx, requestText(req))
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 || len(products) == 0 {
		return scores, nil
	}

	taskIDs := make([]string, 0, len(tasks))
	for t := range tasks {
		taskIDs = append(taskIDs, t)
	}
	productIDs := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		productIDs[i] = p.ID.String()
		index[productIDs[i]] = i
	}

	queryCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	paths, err := s.graph.TaskProductPaths(queryCtx, taskIDs, productIDs)
	if err != nil {
		return nil, apperr.DependencyUnavailable(s.Name(), apperr.DependencyNeo4j, err)
	}

	// Best path per (product, task).
	type pair struct{ product, task string }
	best := make(map[pair]float64)
	for _, path := range paths {
		if _, ok := tasks[path.TaskID]; !ok {
			continue
		}
		if _, ok := index[path.ProductID]; !ok {
			continue
		}
		strength := PathStrength(path)
		key := pair{path.ProductID, path.TaskID}
		if strength > best[key] {
			best[key] = strength
		}
	}

	sums := make([]float64, len(products))
	for key, strength := range best {
		sums[index[key.product]] += strength
	}
	for i := range scores {
		scores[i] = math.Min(1, sums[i]/float64(len(tasks)))
	}

	s.logger.WithFields(logrus.Fields{
		"tasks": len(tasks),
		"paths": len(paths),
	}).Debug("Knowledge graph scores computed")

	return scores, nil
}

// PathStrength converts a path into a strength in [0,1]: the edge weight
// product, discounted by relationship type and by length.
func PathStrength(path GraphPath) float64 {
	if path.Hops <= 0 {
		return 0
	}
	factor, ok := relationshipFactors[path.RelType]
	if !ok {
		factor = defaultRelationshipFactor
	}
	weight := math.Min(1, math.Max(0, path.WeightProduct))
	return weight * factor / float64(path.Hops)
}
