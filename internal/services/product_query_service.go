package services

import (
	"context"
	"errors"

	"inventory/internal/apperror"
	"inventory/internal/logger"
	"inventory/internal/models"
	"inventory/internal/repositories"

	"go.uber.org/zap"
)

// ListQuery carries the raw listing parameters of GET /products.
type ListQuery struct {
	Search   string
	Category string
	SortBy   string
	// Order is "desc" or "asc". Empty means descending.
	Order string
}

// Filter converts the query into a repository filter.
func (q ListQuery) Filter() repositories.ProductFilter {
	category := q.Category
	if category == models.CategoryAll {
		category = ""
	}
	return repositories.ProductFilter{
		Search:   q.Search,
		Category: category,
		SortBy:   q.SortBy,
		SortDesc: q.Order == "" || q.Order == "desc",
	}
}

// ProductList is the listing response. Low-stock facts describe Products only.
type ProductList struct {
	Products         []models.Product `json:"products"`
	LowStockCount    int              `json:"lowStockCount"`
	LowStockProducts []models.Product `json:"lowStockProducts"`
}

// ProductQueryService builds read-only views over the product store.
type ProductQueryService struct {
	products repositories.ProductRepository
	users    repositories.UserRepository
	log      *zap.Logger
}

// NewProductQueryService creates a new ProductQueryService.
func NewProductQueryService(products repositories.ProductRepository, users repositories.UserRepository, log *zap.Logger) *ProductQueryService {
	return &ProductQueryService{
		products: products,
		users:    users,
		log:      logger.OrNop(log),
	}
}

// ListProducts returns every product matching q together with the low-stock subset of that result.
func (s *ProductQueryService) ListProducts(ctx context.Context, q ListQuery) (*ProductList, error) {
	products, err := s.products.Find(ctx, q.Filter())
	if err != nil {
		return nil, apperror.Storage("Server error while fetching products", err)
	}
	if err := attachOwners(ctx, s.users, products); err != nil {
		return nil, apperror.Storage("Server error while fetching products", err)
	}

	if products == nil {
		products = []models.Product{}
	}

	list := &ProductList{
		Products:         products,
		LowStockProducts: []models.Product{},
	}
	for _, p := range products {
		if p.IsLowStock() {
			list.LowStockProducts = append(list.LowStockProducts, p)
		}
	}
	list.LowStockCount = len(list.LowStockProducts)
	s.log.Debug("listed products",
		zap.Int("count", len(products)),
		zap.Int("low_stock", list.LowStockCount),
	)
	return list, nil
}

// GetProduct retrieves a single product by its ID.
func (s *ProductQueryService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.NotFound("Product not found")
		}
		return nil, apperror.Storage("Server error while fetching product", err)
	}
	if err := attachOwner(ctx, s.users, product); err != nil {
		return nil, apperror.Storage("Server error while fetching product", err)
	}
	return product, nil
}

// GetStats computes the dashboard aggregates over the whole store.
func (s *ProductQueryService) GetStats(ctx context.Context) (*models.ProductStats, error) {
	stats, err := s.products.Stats(ctx)
	if err != nil {
		return nil, apperror.Storage("Server error while fetching dashboard stats", err)
	}
	if stats.Categories == nil {
		stats.Categories = []models.CategoryCount{}
	}
	return stats, nil
}
