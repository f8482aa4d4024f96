package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry quotations are priced from.
type Product struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code" validate:"required,max=64"`
	Name        string          `json:"name" validate:"required,max=255"`
	Description string          `json:"description,omitempty" validate:"max=2000"`
	Price       decimal.Decimal `json:"price"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ListFilters represents catalog list filters.
type ListFilters struct {
	Page       int
	PerPage    int
	Search     string
	SortBy     string
	SortDir    string
	ActiveOnly bool
}
