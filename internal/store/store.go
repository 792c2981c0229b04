package store

import (
	"context"
	"errors"
	"fmt"

	"vendas/backend/internal/domain"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrTimeout           = errors.New("timeout")
	ErrUnavailable       = errors.New("unavailable")
)

// StockError is returned when a sale or adjustment would drive a product
// below zero. errors.Is(err, ErrInsufficientStock) holds for it.
type StockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// Repository is the transactional boundary. Each mutating method is one
// atomic unit: it either applies completely or not at all.
type Repository interface {
	Ping(ctx context.Context) error

	CreateProduct(ctx context.Context, input domain.ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, input domain.ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, int, error)
	AdjustQuantity(ctx context.Context, id int64, delta int) (*domain.Product, error)

	RecordSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
	CancelSale(ctx context.Context, id int64) (*domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter, page int, pageSize int) ([]domain.Sale, int, error)

	// GetSalesReport computes every aggregate from a single consistent read.
	GetSalesReport(ctx context.Context, filter domain.SaleFilter) (*domain.SalesReport, error)
}
