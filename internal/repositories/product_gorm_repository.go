package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inventory/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var productColumns = map[string]string{
	SortByName:      "name",
	SortByPrice:     "price",
	SortByQuantity:  "quantity",
	SortByCreatedAt: "created_at",
}

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// Find returns the products matching filter, ordered as requested.
func (r *GORMProductRepository) Find(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{})

	if filter.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		q = q.Where(
			`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(sku) LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern,
		)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}

	q = q.Order(clause.OrderByColumn{
		Column: clause.Column{Name: productColumns[filter.SortField()]},
		Desc:   filter.SortDesc,
	})

	products := []models.Product{}
	if err := q.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	return products, nil
}

// GetByID retrieves a single product by its ID from the database.
func (r *GORMProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product by ID %s: %w", id, err)
	}
	return &product, nil
}

// GetBySKU retrieves a single product by its SKU from the database.
func (r *GORMProductRepository) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "sku = ?", sku).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product with SKU %s: %w", sku, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product by SKU %s: %w", sku, err)
	}
	return &product, nil
}

// Create creates a new product in the database.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("product with SKU %s: %w", product.SKU, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update writes every mutable field of product, zero values included.
func (r *GORMProductRepository) Update(ctx context.Context, product *models.Product) error {
	product.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", product.ID).Updates(map[string]interface{}{
		"name":                product.Name,
		"description":         product.Description,
		"category":            product.Category,
		"price":               product.Price,
		"quantity":            product.Quantity,
		"sku":                 product.SKU,
		"image":               product.Image,
		"low_stock_threshold": product.LowStockThreshold,
		"updated_at":          product.UpdatedAt,
	})
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return fmt.Errorf("product with SKU %s: %w", product.SKU, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to update product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product with ID %s: %w", product.ID, ErrNotFound)
	}
	return nil
}

// Delete deletes a product by its ID from the database.
func (r *GORMProductRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
	}
	return nil
}

// Stats computes the dashboard aggregates over the whole table.
func (r *GORMProductRepository) Stats(ctx context.Context) (*models.ProductStats, error) {
	db := r.db.WithContext(ctx)
	stats := &models.ProductStats{Categories: []models.CategoryCount{}}

	if err := db.Model(&models.Product{}).Count(&stats.TotalProducts).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	if err := db.Model(&models.Product{}).Where("quantity <= low_stock_threshold").Count(&stats.LowStockProducts).Error; err != nil {
		return nil, fmt.Errorf("failed to count low stock products: %w", err)
	}
	if err := db.Model(&models.Product{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC, category ASC").
		Scan(&stats.Categories).Error; err != nil {
		return nil, fmt.Errorf("failed to count products per category: %w", err)
	}

	var value struct {
		Total decimal.Decimal
	}
	if err := db.Model(&models.Product{}).Select("COALESCE(SUM(price * quantity), 0) AS total").Scan(&value).Error; err != nil {
		return nil, fmt.Errorf("failed to sum stock value: %w", err)
	}
	// SQLite keeps decimal columns as REAL, so the sum carries float error.
	stats.TotalValue = value.Total.Round(models.PriceScale)
	return stats, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
