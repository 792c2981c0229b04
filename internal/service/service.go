package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vendas/backend/internal/domain"
	"vendas/backend/internal/events"
	"vendas/backend/internal/report"
	"vendas/backend/internal/store"
)

type Options struct {
	StoreTimeout time.Duration
	// PublishTimeout bounds how long a committed mutation waits on the
	// event publisher before answering.
	PublishTimeout  time.Duration
	DefaultPageSize int
	MaxPageSize     int
}

type Service struct {
	repo            store.Repository
	reports         *report.Aggregator
	publisher       events.Publisher
	logger          *zap.Logger
	storeTimeout    time.Duration
	publishTimeout  time.Duration
	defaultPageSize int
	maxPageSize     int
	now             func() time.Time
}

func New(repo store.Repository, reports *report.Aggregator, publisher events.Publisher, logger *zap.Logger, opts Options) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if reports == nil {
		reports = report.NewAggregator(repo, nil, 0, report.MonthFillSparse, logger)
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = max(opts.DefaultPageSize, 100)
	}

	return &Service{
		repo:            repo,
		reports:         reports,
		publisher:       publisher,
		logger:          logger,
		storeTimeout:    opts.StoreTimeout,
		publishTimeout:  opts.PublishTimeout,
		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return storeError(s.repo.Ping(ctx))
}

func (s *Service) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.Product, error) {
	input, err := input.Normalize()
	if err != nil {
		return domain.Product{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	created, err := s.repo.CreateProduct(storeCtx, input)
	if err != nil {
		return domain.Product{}, storeError(err)
	}

	s.afterCommit(ctx, events.NewProductEvent(events.ProductCreated, *created))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, input domain.ProductInput) (domain.Product, error) {
	if id < 1 {
		return domain.Product{}, store.ErrNotFound
	}
	input, err := input.Normalize()
	if err != nil {
		return domain.Product{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	updated, err := s.repo.UpdateProduct(storeCtx, id, input)
	if err != nil {
		return domain.Product{}, storeError(err)
	}

	s.afterCommit(ctx, events.NewProductEvent(events.ProductUpdated, *updated))
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if id < 1 {
		return store.ErrNotFound
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	deleted, err := s.repo.DeleteProduct(storeCtx, id)
	if err != nil {
		return storeError(err)
	}

	s.afterCommit(ctx, events.NewProductEvent(events.ProductDeleted, *deleted))
	return nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if id < 1 {
		return domain.Product{}, store.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, storeError(err)
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, query domain.ProductQuery) (domain.Page[domain.Product], error) {
	page, pageSize, err := s.pageBounds(query.Page, query.PageSize)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	query.Page, query.PageSize = page, pageSize

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	items, total, err := s.repo.ListProducts(ctx, query)
	if err != nil {
		return domain.Page[domain.Product]{}, storeError(err)
	}
	return domain.NewPage(items, page, pageSize, total), nil
}

// AdjustStock applies a manual restock (positive delta) or write-off
// (negative delta) in its own transaction.
func (s *Service) AdjustStock(ctx context.Context, id int64, req domain.StockAdjustmentRequest) (domain.Product, error) {
	if id < 1 {
		return domain.Product{}, store.ErrNotFound
	}
	if req.Delta == 0 {
		return domain.Product{}, fmt.Errorf("%w: delta must not be zero", store.ErrInvalidInput)
	}
	// Magnitude only; the store checks the result against the current stock.
	if err := domain.CheckQuantityDelta(0, req.Delta); err != nil {
		return domain.Product{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	product, err := s.repo.AdjustQuantity(storeCtx, id, req.Delta)
	if err != nil {
		return domain.Product{}, storeError(err)
	}

	event := events.NewProductEvent(events.ProductStockAdjusted, *product)
	event.Delta = req.Delta
	event.Reason = req.Reason
	s.afterCommit(ctx, event)
	return *product, nil
}

func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	draft := domain.SaleDraft{
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		PaymentMethod: method,
		CreatedAt:     s.now(),
	}
	if err := draft.Validate(); err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	sale, err := s.repo.RecordSale(storeCtx, draft)
	if err != nil {
		return domain.Sale{}, storeError(err)
	}

	s.afterCommit(ctx, events.NewSaleEvent(events.SaleRecorded, *sale))
	return *sale, nil
}

// CancelSale reverts a sale: the product gets its stock back and the sale
// disappears from the ledger. The cancelled sale is returned for auditing.
func (s *Service) CancelSale(ctx context.Context, id int64) (domain.Sale, error) {
	if id < 1 {
		return domain.Sale{}, store.ErrNotFound
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	sale, err := s.repo.CancelSale(storeCtx, id)
	if err != nil {
		return domain.Sale{}, storeError(err)
	}

	s.afterCommit(ctx, events.NewSaleEvent(events.SaleCancelled, *sale))
	return *sale, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	if id < 1 {
		return domain.Sale{}, store.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, storeError(err)
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter, page int, pageSize int) (domain.Page[domain.Sale], error) {
	page, pageSize, err := s.pageBounds(page, pageSize)
	if err != nil {
		return domain.Page[domain.Sale]{}, err
	}
	if err := filter.Validate(); err != nil {
		return domain.Page[domain.Sale]{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	items, total, err := s.repo.ListSales(ctx, filter, page, pageSize)
	if err != nil {
		return domain.Page[domain.Sale]{}, storeError(err)
	}
	return domain.NewPage(items, page, pageSize, total), nil
}

func (s *Service) ReportSummary(ctx context.Context, filter domain.SaleFilter) (domain.SalesReport, error) {
	if err := filter.Validate(); err != nil {
		return domain.SalesReport{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	summary, err := s.reports.Summary(ctx, filter)
	if err != nil {
		return domain.SalesReport{}, storeError(err)
	}
	return *summary, nil
}

func (s *Service) TotalStockValue(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	value, err := s.reports.TotalStockValue(ctx)
	return value, storeError(err)
}

func (s *Service) TotalSalesValue(ctx context.Context, filter domain.SaleFilter) (domain.SalesTotal, error) {
	summary, err := s.ReportSummary(ctx, filter)
	return summary.Sales, err
}

func (s *Service) SalesByMonth(ctx context.Context, filter domain.SaleFilter) ([]domain.MonthlySales, error) {
	summary, err := s.ReportSummary(ctx, filter)
	return summary.ByMonth, err
}

func (s *Service) SalesByProduct(ctx context.Context, filter domain.SaleFilter) ([]domain.ProductSales, error) {
	summary, err := s.ReportSummary(ctx, filter)
	return summary.ByProduct, err
}

func (s *Service) RevenueByPaymentMethod(ctx context.Context, filter domain.SaleFilter) ([]domain.PaymentRevenue, error) {
	summary, err := s.ReportSummary(ctx, filter)
	return summary.ByPaymentMethod, err
}

// DefaultPageSize is the page size used when a caller does not ask for one.
func (s *Service) DefaultPageSize() int {
	return s.defaultPageSize
}

// pageBounds rejects non-positive values and clamps oversized pages.
func (s *Service) pageBounds(page int, pageSize int) (int, int, error) {
	if page < 1 || pageSize < 1 {
		return 0, 0, fmt.Errorf("%w: page and page_size must be at least 1", store.ErrInvalidInput)
	}
	return page, min(pageSize, s.maxPageSize), nil
}

// afterCommit runs the side effects of a committed mutation. Neither can
// fail the operation: the store already holds the truth.
func (s *Service) afterCommit(ctx context.Context, event events.Event) {
	detached := context.WithoutCancel(ctx)

	cacheCtx, cancelCache := context.WithTimeout(detached, s.storeTimeout)
	s.reports.Invalidate(cacheCtx)
	cancelCache()

	publishCtx, cancelPublish := context.WithTimeout(detached, s.publishTimeout)
	defer cancelPublish()
	if err := s.publisher.Publish(publishCtx, event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event_id", event.EventID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, store.ErrTimeout) {
		return fmt.Errorf("%w: %v", store.ErrTimeout, err)
	}
	return err
}
