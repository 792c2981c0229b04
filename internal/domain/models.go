package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type ProductInput struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type ProductQuery struct {
	Search   string
	Page     int
	PageSize int
}

type StockAdjustmentRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

type Sale struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SaleRequest struct {
	ProductID     int64  `json:"product_id"`
	Quantity      int    `json:"quantity"`
	PaymentMethod string `json:"payment_method"`
}

// SaleDraft is what the ledger hands to the store. Price and total are
// filled in by the store from the locked product row.
type SaleDraft struct {
	ProductID     int64
	Quantity      int
	PaymentMethod PaymentMethod
	CreatedAt     time.Time
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

func NewPage[T any](items []T, page int, pageSize int, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return Page[T]{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: totalPages,
	}
}

// Offset returns the zero-based index of the first item of page. An offset
// too large for an int saturates at math.MaxInt, which is past any real list.
func Offset(page int, pageSize int) int {
	if page < 1 || pageSize < 1 {
		return 0
	}
	if page-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return (page - 1) * pageSize
}

type SalesTotal struct {
	Count         int             `json:"count"`
	SumTotalPrice decimal.Decimal `json:"sum_total_price"`
}

type MonthlySales struct {
	Month         string          `json:"month"`
	SumTotalPrice decimal.Decimal `json:"sum_total_price"`
}

type ProductSales struct {
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name"`
	SumQuantity   int             `json:"sum_quantity"`
	SumTotalPrice decimal.Decimal `json:"sum_total_price"`
}

type PaymentRevenue struct {
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Count         int             `json:"count"`
	SumTotalPrice decimal.Decimal `json:"sum_total_price"`
}

// SalesReport is every aggregate computed from one consistent read.
type SalesReport struct {
	ProductCount    int              `json:"product_count"`
	StockValue      decimal.Decimal  `json:"stock_value"`
	Sales           SalesTotal       `json:"sales"`
	ByMonth         []MonthlySales   `json:"by_month"`
	ByProduct       []ProductSales   `json:"by_product"`
	ByPaymentMethod []PaymentRevenue `json:"by_payment_method"`
}
