package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, the way the dashboard client reads them.
	decimal.MarshalJSONWithoutQuotes = true
}

// DefaultLowStockThreshold applies when a product is created without a threshold.
const DefaultLowStockThreshold = 5

// PriceScale is the number of decimal places kept for a price.
const PriceScale = 2

// MaxPrice is the largest price the decimal(12,2) column holds.
var MaxPrice = decimal.RequireFromString("9999999999.99")

// Product represents an inventory item.
type Product struct {
	ID                string          `json:"_id" gorm:"primaryKey;type:varchar(36)"`
	Name              string          `json:"name" gorm:"type:varchar(100);not null" validate:"required,max=100"`
	Description       string          `json:"description" gorm:"type:varchar(500);not null" validate:"max=500"`
	Category          string          `json:"category" gorm:"type:varchar(32);not null;index" validate:"required,category"`
	Price             decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Quantity          int             `json:"quantity" gorm:"not null" validate:"gte=0"`
	SKU               string          `json:"sku" gorm:"type:varchar(64);uniqueIndex;not null" validate:"required,max=64"`
	Image             string          `json:"image" gorm:"type:varchar(512);not null"`
	LowStockThreshold int             `json:"lowStockThreshold" gorm:"not null" validate:"gte=0"`
	CreatedByID       string          `json:"-" gorm:"column:created_by;type:varchar(36);not null;index" validate:"required"`
	CreatedBy         *Owner          `json:"createdBy,omitempty" gorm:"-"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// IsLowStock reports whether the quantity has fallen to or below the threshold.
func (p *Product) IsLowStock() bool {
	return p.Quantity <= p.LowStockThreshold
}

// StockValue is price times quantity.
func (p *Product) StockValue() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// Owner is the display-safe projection of the user who created a product.
type Owner struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// CategoryCount is one row of the per-category breakdown.
type CategoryCount struct {
	Category string `json:"_id"`
	Count    int64  `json:"count"`
}

// ProductStats holds the dashboard aggregates.
type ProductStats struct {
	TotalProducts    int64           `json:"totalProducts"`
	LowStockProducts int64           `json:"lowStockProducts"`
	Categories       []CategoryCount `json:"categories"`
	TotalValue       decimal.Decimal `json:"totalValue"`
}
