package client

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is an account as returned by the API. The password never leaves the server.
type User struct {
	ID        string    `json:"_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Owner identifies the user who created a product.
type Owner struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Product is an inventory item.
type Product struct {
	ID                string          `json:"_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Category          string          `json:"category"`
	Price             decimal.Decimal `json:"price"`
	Quantity          int             `json:"quantity"`
	SKU               string          `json:"sku"`
	Image             string          `json:"image"`
	LowStockThreshold int             `json:"lowStockThreshold"`
	CreatedBy         *Owner          `json:"createdBy,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// CategoryCount is the number of products in one category.
type CategoryCount struct {
	Category string `json:"_id"`
	Count    int64  `json:"count"`
}

// Stats holds the dashboard aggregates.
type Stats struct {
	TotalProducts    int64           `json:"totalProducts"`
	LowStockProducts int64           `json:"lowStockProducts"`
	Categories       []CategoryCount `json:"categories"`
	TotalValue       decimal.Decimal `json:"totalValue"`
}
