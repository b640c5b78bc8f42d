package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"inventory/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockProductRepository is an in-memory implementation of ProductRepository.
type MockProductRepository struct {
	products map[string]models.Product
	mu       sync.RWMutex
}

// NewMockProductRepository creates a new instance of MockProductRepository.
func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{
		products: make(map[string]models.Product),
	}
}

// Find returns the products matching filter.
func (r *MockProductRepository) Find(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	productList := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		productList = append(productList, p)
	}

	less := productLess(filter.SortField())
	sort.SliceStable(productList, func(i, j int) bool {
		if filter.SortDesc {
			return less(productList[j], productList[i])
		}
		return less(productList[i], productList[j])
	})
	return productList, nil
}

// GetByID returns a product by its ID.
func (r *MockProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
	}
	return &product, nil
}

// GetBySKU returns a product by its SKU.
func (r *MockProductRepository) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.products {
		if p.SKU == sku {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("product with SKU %s: %w", sku, ErrNotFound)
}

// Create adds a new product.
func (r *MockProductRepository) Create(ctx context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.skuTaken(product.SKU, "") {
		return fmt.Errorf("product with SKU %s: %w", product.SKU, ErrDuplicateKey)
	}
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	now := time.Now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	stored := *product
	stored.CreatedBy = nil
	r.products[product.ID] = stored
	return nil
}

// Update modifies an existing product.
func (r *MockProductRepository) Update(ctx context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.products[product.ID]
	if !ok {
		return fmt.Errorf("product with ID %s: %w", product.ID, ErrNotFound)
	}
	if r.skuTaken(product.SKU, product.ID) {
		return fmt.Errorf("product with SKU %s: %w", product.SKU, ErrDuplicateKey)
	}
	product.CreatedAt = existing.CreatedAt
	product.CreatedByID = existing.CreatedByID
	product.UpdatedAt = time.Now()
	stored := *product
	stored.CreatedBy = nil
	r.products[product.ID] = stored
	return nil
}

// Delete removes a product by its ID.
func (r *MockProductRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.products[id]
	if !ok {
		return fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
	}
	delete(r.products, id)
	return nil
}

// Stats computes the dashboard aggregates.
func (r *MockProductRepository) Stats(ctx context.Context) (*models.ProductStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &models.ProductStats{
		TotalProducts: int64(len(r.products)),
		Categories:    []models.CategoryCount{},
		TotalValue:    decimal.Zero,
	}
	counts := make(map[string]int64)
	for _, p := range r.products {
		if p.IsLowStock() {
			stats.LowStockProducts++
		}
		counts[p.Category]++
		stats.TotalValue = stats.TotalValue.Add(p.StockValue())
	}
	for category, n := range counts {
		stats.Categories = append(stats.Categories, models.CategoryCount{Category: category, Count: n})
	}
	sort.Slice(stats.Categories, func(i, j int) bool {
		a, b := stats.Categories[i], stats.Categories[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})
	return stats, nil
}

// skuTaken must be called with the lock held.
func (r *MockProductRepository) skuTaken(sku, exceptID string) bool {
	for id, p := range r.products {
		if p.SKU == sku && id != exceptID {
			return true
		}
	}
	return false
}

func productLess(field string) func(a, b models.Product) bool {
	switch field {
	case SortByName:
		return func(a, b models.Product) bool { return a.Name < b.Name }
	case SortByPrice:
		return func(a, b models.Product) bool { return a.Price.LessThan(b.Price) }
	case SortByQuantity:
		return func(a, b models.Product) bool { return a.Quantity < b.Quantity }
	default:
		return func(a, b models.Product) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}
