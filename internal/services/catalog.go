package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/apperr"
	"github.com/temcen/rfpmatch/pkg/models"
)

// candidateQuery puts products of the requested categories first so the
// candidate bound never drops an in-category product in favour of another.
const candidateQuery = `
		SELECT
			id,
			COALESCE(name, ''),
			COALESCE(description, ''),
			COALESCE(category, ''),
			COALESCE(brand, ''),
			COALESCE(price, 0),
			embedding
		FROM products
		WHERE active = true
		ORDER BY (lower(category) = ANY($1)) DESC, id
		LIMIT $2`

// Catalog reads candidate products from the relational store.
type Catalog struct {
	db      DatabaseQuerier
	timeout time.Duration
	logger  *logrus.Logger
}

func NewCatalog(db DatabaseQuerier, timeout time.Duration, logger *logrus.Logger) *Catalog {
	return &Catalog{db: db, timeout: timeout, logger: logger}
}

func (c *Catalog) Candidates(ctx context.Context, categories []string, limit int) ([]models.Product, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if categories == nil {
		categories = []string{}
	}

	rows, err := c.db.Query(ctx, candidateQuery, categories, limit)
	if err != nil {
		return nil, apperr.DependencyUnavailable("catalog", apperr.DependencyPostgres, err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand, &p.Price, &p.Embedding); err != nil {
			return nil, apperr.DependencyUnavailable("catalog", apperr.DependencyPostgres, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.DependencyUnavailable("catalog", apperr.DependencyPostgres, err)
	}

	c.logger.WithFields(logrus.Fields{
		"categories": categories,
		"candidates": len(products),
	}).Debug("Loaded candidate products")

	return products, nil
}
