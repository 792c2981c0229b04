package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vendas/backend/internal/domain"
	"vendas/backend/internal/store/memory"
)

type countingSource struct {
	*memory.Store
	calls int
}

func (s *countingSource) GetSalesReport(ctx context.Context, filter domain.SaleFilter) (*domain.SalesReport, error) {
	s.calls++
	return s.Store.GetSalesReport(ctx, filter)
}

type mapCache struct {
	mu      sync.Mutex
	gen     int64
	entries map[string]*domain.SalesReport
	failGet bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]*domain.SalesReport{}}
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.SalesReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("connection refused")
	}
	report, ok := c.entries[key]
	return report, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value *domain.SalesReport, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *mapCache) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *mapCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return nil
}

func seedSales(t *testing.T, s *memory.Store) {
	t.Helper()
	ctx := context.Background()
	widget, err := s.CreateProduct(ctx, domain.ProductInput{Name: "Widget", Quantity: 50, UnitPrice: decimal.RequireFromString("2.50")})
	require.NoError(t, err)

	for _, createdAt := range []time.Time{
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC),
	} {
		_, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: widget.ID, Quantity: 2, PaymentMethod: domain.PaymentCash, CreatedAt: createdAt})
		require.NoError(t, err)
	}
}

func TestSummaryServesFromCacheUntilInvalidated(t *testing.T) {
	source := &countingSource{Store: memory.New()}
	seedSales(t, source.Store)
	reportCache := newMapCache()
	agg := NewAggregator(source, reportCache, time.Minute, MonthFillSparse, nil)
	ctx := context.Background()

	first, err := agg.Summary(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	_, err = agg.TotalSalesValue(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)
	require.Equal(t, 2, first.Sales.Count)

	agg.Invalidate(ctx)
	_, err = agg.Summary(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)

	cash := domain.PaymentCash
	_, err = agg.Summary(ctx, domain.SaleFilter{PaymentMethod: &cash})
	require.NoError(t, err)
	require.Equal(t, 3, source.calls)
}

func TestSummaryFallsBackWhenCacheFails(t *testing.T) {
	source := &countingSource{Store: memory.New()}
	seedSales(t, source.Store)
	reportCache := newMapCache()
	reportCache.failGet = true
	agg := NewAggregator(source, reportCache, time.Minute, MonthFillSparse, nil)

	total, err := agg.TotalSalesValue(context.Background(), domain.SaleFilter{})
	require.NoError(t, err)
	require.Equal(t, "10.00", total.SumTotalPrice.StringFixed(2))
}

func TestSalesByMonthFillPolicies(t *testing.T) {
	source := memory.New()
	seedSales(t, source)
	ctx := context.Background()

	sparse, err := NewAggregator(source, nil, 0, MonthFillSparse, nil).SalesByMonth(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	require.Len(t, sparse, 2)

	dense, err := NewAggregator(source, nil, 0, MonthFillDense, nil).SalesByMonth(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	require.Len(t, dense, 4)
	require.Equal(t, []string{"2024-01", "2024-02", "2024-03", "2024-04"}, []string{dense[0].Month, dense[1].Month, dense[2].Month, dense[3].Month})
	require.True(t, dense[1].SumTotalPrice.IsZero())
	require.Equal(t, "5.00", dense[3].SumTotalPrice.StringFixed(2))
}

func TestStockValueIgnoresFilter(t *testing.T) {
	source := memory.New()
	seedSales(t, source)

	value, err := NewAggregator(source, nil, 0, MonthFillSparse, nil).TotalStockValue(context.Background())
	require.NoError(t, err)
	// 46 units left at 2.50
	require.Equal(t, "115.00", value.StringFixed(2))
}

func TestParseMonthFill(t *testing.T) {
	fill, err := ParseMonthFill("")
	require.NoError(t, err)
	require.Equal(t, MonthFillSparse, fill)

	fill, err = ParseMonthFill("DENSE")
	require.NoError(t, err)
	require.Equal(t, MonthFillDense, fill)

	_, err = ParseMonthFill("weekly")
	require.Error(t, err)
}

func TestCacheKeyDependsOnGenerationAndFilter(t *testing.T) {
	id := int64(1)
	require.NotEqual(t, buildCacheKey(0, domain.SaleFilter{}), buildCacheKey(1, domain.SaleFilter{}))
	require.NotEqual(t, buildCacheKey(0, domain.SaleFilter{}), buildCacheKey(0, domain.SaleFilter{ProductID: &id}))
}
