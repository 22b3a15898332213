package models

import (
	"strings"

	"github.com/google/uuid"
)

// Product is a catalog item as read by the scorers. Catalog management owns
// and mutates these rows; the engine never writes them.
type Product struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Category    string    `json:"category" db:"category"`
	Brand       string    `json:"brand,omitempty" db:"brand"`
	Price       float64   `json:"price" db:"price"`
	Embedding   []float32 `json:"-" db:"embedding"`
}

// CompositeText joins the scoreable text fields of the product.
func (p Product) CompositeText() string {
	parts := make([]string, 0, 4)
	for _, field := range []string{p.Name, p.Description, p.Category, p.Brand} {
		if f := strings.TrimSpace(field); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// PurchaseRecord is one accepted or sent order line item of a requester.
type PurchaseRecord struct {
	RequesterID string    `json:"requester_id" db:"requester_id"`
	OrderID     string    `json:"order_id" db:"order_id"`
	Status      string    `json:"status" db:"status"` // accepted, sent
	ProductID   uuid.UUID `json:"product_id" db:"product_id"`
	Category    string    `json:"category" db:"category"`
}

// CategoryKeyword is a row of the category to keyword mapping table.
type CategoryKeyword struct {
	Category string `json:"category" db:"category"`
	Keyword  string `json:"keyword" db:"keyword"`
	Priority int    `json:"priority" db:"priority"`
}

// KeywordTask is a row of the keyword to task mapping table.
type KeywordTask struct {
	Keyword  string `json:"keyword" db:"keyword"`
	TaskID   string `json:"task_id" db:"task_id"`
	Priority int    `json:"priority" db:"priority"`
}
