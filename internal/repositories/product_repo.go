package repositories

import (
	"context"
	"errors"

	"inventory/internal/models"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a write violates a unique index.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Sortable product fields, as named by the API.
const (
	SortByName      = "name"
	SortByPrice     = "price"
	SortByQuantity  = "quantity"
	SortByCreatedAt = "createdAt"
)

// ProductFilter narrows and orders a product listing.
type ProductFilter struct {
	// Search is matched case-insensitively as a literal substring of name, description or SKU.
	Search string
	// Category is an exact match; empty means any category.
	Category string
	SortBy   string
	SortDesc bool
}

// SortField returns the requested sort field, falling back to createdAt for unknown names.
func (f ProductFilter) SortField() string {
	switch f.SortBy {
	case SortByName, SortByPrice, SortByQuantity, SortByCreatedAt:
		return f.SortBy
	default:
		return SortByCreatedAt
	}
}

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	Find(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetBySKU(ctx context.Context, sku string) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.ProductStats, error)
}
