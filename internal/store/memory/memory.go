package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"vendas/backend/internal/domain"
	"vendas/backend/internal/store"
)

// Store keeps the catalog and ledger in maps behind one RWMutex. Every
// mutating method holds the write lock for its whole body, which makes it a
// single atomic unit.
type Store struct {
	mu            sync.RWMutex
	products      map[int64]domain.Product
	sales         map[int64]domain.Sale
	nextProductID int64
	nextSaleID    int64
	now           func() time.Time
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products: make(map[int64]domain.Product),
		sales:    make(map[int64]domain.Sale),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store holding the demo catalog.
func NewSeeded() *Store {
	s := New()
	for _, input := range []domain.ProductInput{
		{Name: "Teclado Mecânico", Quantity: 5, UnitPrice: decimal.RequireFromString("150.00")},
		{Name: "Mouse Gamer", Quantity: 12, UnitPrice: decimal.RequireFromString("80.00")},
		{Name: "Monitor Ultra-Wide", Quantity: 3, UnitPrice: decimal.RequireFromString("1200.00")},
	} {
		if _, err := s.CreateProduct(context.Background(), input); err != nil {
			panic(fmt.Sprintf("seed product %q: %v", input.Name, err))
		}
	}
	return s
}

// SetClock overrides the time source used for sale timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) CreateProduct(ctx context.Context, input domain.ProductInput) (*domain.Product, error) {
	input, err := input.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.nameTakenLocked(input.Name, 0) {
		return nil, fmt.Errorf("%w: %q", store.ErrDuplicateName, input.Name)
	}
	s.nextProductID++
	product := domain.Product{
		ID:        s.nextProductID,
		Name:      input.Name,
		Quantity:  input.Quantity,
		UnitPrice: input.UnitPrice,
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, input domain.ProductInput) (*domain.Product, error) {
	input, err := input.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.nameTakenLocked(input.Name, id) {
		return nil, fmt.Errorf("%w: %q", store.ErrDuplicateName, input.Name)
	}
	product.Name = input.Name
	product.Quantity = input.Quantity
	product.UnitPrice = input.UnitPrice
	s.products[id] = product
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, sale := range s.sales {
		if sale.ProductID == id {
			return nil, fmt.Errorf("%w: product %d has referencing sales", store.ErrConflict, id)
		}
	}
	delete(s.products, id)
	return &product, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, int, error) {
	if query.Page < 1 || query.PageSize < 1 {
		return nil, 0, fmt.Errorf("%w: page and page_size must be at least 1", store.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	needle := strings.ToLower(strings.TrimSpace(query.Search))
	matched := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		if needle != "" && !strings.Contains(strings.ToLower(product.Name), needle) {
			continue
		}
		matched = append(matched, product)
	}
	slices.SortFunc(matched, func(a, b domain.Product) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return paginate(matched, query.Page, query.PageSize), len(matched), nil
}

func (s *Store) AdjustQuantity(ctx context.Context, id int64, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.adjustQuantityLocked(id, delta)
}

func (s *Store) adjustQuantityLocked(id int64, delta int) (*domain.Product, error) {
	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := domain.CheckQuantityDelta(product.Quantity, delta); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if product.Quantity+delta < 0 {
		return nil, &store.StockError{ProductID: id, Available: product.Quantity, Requested: -delta}
	}
	product.Quantity += delta
	s.products[id] = product
	return &product, nil
}

func (s *Store) RecordSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	product, ok := s.products[draft.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if draft.Quantity > product.Quantity {
		return nil, &store.StockError{ProductID: product.ID, Available: product.Quantity, Requested: draft.Quantity}
	}
	total := domain.LineTotal(draft.Quantity, product.UnitPrice)
	if err := domain.CheckMoney("total_price", total); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	createdAt := draft.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	if _, err := s.adjustQuantityLocked(product.ID, -draft.Quantity); err != nil {
		return nil, err
	}

	s.nextSaleID++
	sale := domain.Sale{
		ID:            s.nextSaleID,
		ProductID:     product.ID,
		ProductName:   product.Name,
		Quantity:      draft.Quantity,
		UnitPrice:     product.UnitPrice,
		TotalPrice:    total,
		PaymentMethod: draft.PaymentMethod,
		CreatedAt:     createdAt.UTC(),
	}
	s.sales[sale.ID] = sale
	return &sale, nil
}

func (s *Store) CancelSale(ctx context.Context, id int64) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	product, err := s.adjustQuantityLocked(sale.ProductID, sale.Quantity)
	if err != nil {
		return nil, fmt.Errorf("sale %d references missing product %d: %v", id, sale.ProductID, err)
	}
	delete(s.sales, id)
	sale.ProductName = product.Name
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale = s.withProductNameLocked(sale)
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter, page int, pageSize int) ([]domain.Sale, int, error) {
	if page < 1 || pageSize < 1 {
		return nil, 0, fmt.Errorf("%w: page and page_size must be at least 1", store.ErrInvalidInput)
	}
	if err := filter.Validate(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	matched := s.matchingSalesLocked(filter)
	slices.SortFunc(matched, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return paginate(matched, page, pageSize), len(matched), nil
}

func (s *Store) GetSalesReport(ctx context.Context, filter domain.SaleFilter) (*domain.SalesReport, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &domain.SalesReport{
		ProductCount:    len(s.products),
		StockValue:      decimal.Zero,
		Sales:           domain.SalesTotal{SumTotalPrice: decimal.Zero},
		ByMonth:         make([]domain.MonthlySales, 0, 12),
		ByProduct:       make([]domain.ProductSales, 0, 8),
		ByPaymentMethod: make([]domain.PaymentRevenue, 0, len(domain.PaymentMethods)),
	}
	for _, product := range s.products {
		report.StockValue = report.StockValue.Add(product.UnitPrice.Mul(decimal.NewFromInt(int64(product.Quantity))))
	}
	report.StockValue = domain.RoundMoney(report.StockValue)

	byMonth := map[string]*domain.MonthlySales{}
	byProduct := map[int64]*domain.ProductSales{}
	byPayment := map[domain.PaymentMethod]*domain.PaymentRevenue{}

	for _, sale := range s.matchingSalesLocked(filter) {
		report.Sales.Count++
		report.Sales.SumTotalPrice = report.Sales.SumTotalPrice.Add(sale.TotalPrice)

		month := byMonth[domain.MonthKey(sale.CreatedAt)]
		if month == nil {
			month = &domain.MonthlySales{Month: domain.MonthKey(sale.CreatedAt), SumTotalPrice: decimal.Zero}
			byMonth[month.Month] = month
		}
		month.SumTotalPrice = month.SumTotalPrice.Add(sale.TotalPrice)

		product := byProduct[sale.ProductID]
		if product == nil {
			product = &domain.ProductSales{ProductID: sale.ProductID, ProductName: sale.ProductName, SumTotalPrice: decimal.Zero}
			byProduct[sale.ProductID] = product
		}
		product.SumQuantity += sale.Quantity
		product.SumTotalPrice = product.SumTotalPrice.Add(sale.TotalPrice)

		payment := byPayment[sale.PaymentMethod]
		if payment == nil {
			payment = &domain.PaymentRevenue{PaymentMethod: sale.PaymentMethod, SumTotalPrice: decimal.Zero}
			byPayment[sale.PaymentMethod] = payment
		}
		payment.Count++
		payment.SumTotalPrice = payment.SumTotalPrice.Add(sale.TotalPrice)
	}

	for _, entry := range byMonth {
		report.ByMonth = append(report.ByMonth, *entry)
	}
	for _, entry := range byProduct {
		report.ByProduct = append(report.ByProduct, *entry)
	}
	for _, entry := range byPayment {
		report.ByPaymentMethod = append(report.ByPaymentMethod, *entry)
	}

	slices.SortFunc(report.ByMonth, func(a, b domain.MonthlySales) int {
		return cmp.Compare(a.Month, b.Month)
	})
	slices.SortFunc(report.ByProduct, func(a, b domain.ProductSales) int {
		if c := b.SumTotalPrice.Cmp(a.SumTotalPrice); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ProductName, b.ProductName); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	slices.SortFunc(report.ByPaymentMethod, func(a, b domain.PaymentRevenue) int {
		return cmp.Compare(a.PaymentMethod.Rank(), b.PaymentMethod.Rank())
	})
	return report, nil
}

func (s *Store) nameTakenLocked(name string, exceptID int64) bool {
	key := domain.NameKey(name)
	for id, product := range s.products {
		if id != exceptID && domain.NameKey(product.Name) == key {
			return true
		}
	}
	return false
}

func (s *Store) matchingSalesLocked(filter domain.SaleFilter) []domain.Sale {
	matched := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if !filter.Match(sale) {
			continue
		}
		matched = append(matched, s.withProductNameLocked(sale))
	}
	return matched
}

func (s *Store) withProductNameLocked(sale domain.Sale) domain.Sale {
	if product, ok := s.products[sale.ProductID]; ok {
		sale.ProductName = product.Name
	}
	return sale
}

func paginate[T any](items []T, page int, pageSize int) []T {
	start := domain.Offset(page, pageSize)
	if start >= len(items) {
		return []T{}
	}
	end := min(start+pageSize, len(items))
	return items[start:end]
}
