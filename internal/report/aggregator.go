package report

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vendas/backend/internal/cache"
	"vendas/backend/internal/domain"
)

type MonthFill string

const (
	// MonthFillSparse omits months without matching sales.
	MonthFillSparse MonthFill = "sparse"
	// MonthFillDense pads zero rows between the first and last month present.
	MonthFillDense MonthFill = "dense"
)

func ParseMonthFill(raw string) (MonthFill, error) {
	switch MonthFill(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MonthFillSparse:
		return MonthFillSparse, nil
	case MonthFillDense:
		return MonthFillDense, nil
	default:
		return "", fmt.Errorf("unknown month fill policy %q", raw)
	}
}

// Source computes a full report from one consistent read of the store.
type Source interface {
	GetSalesReport(ctx context.Context, filter domain.SaleFilter) (*domain.SalesReport, error)
}

type Aggregator struct {
	source   Source
	cache    cache.ReportCache
	cacheTTL time.Duration
	fill     MonthFill
	logger   *zap.Logger
}

func NewAggregator(source Source, cacheStore cache.ReportCache, cacheTTL time.Duration, fill MonthFill, logger *zap.Logger) *Aggregator {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if fill == "" {
		fill = MonthFillSparse
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		source:   source,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		fill:     fill,
		logger:   logger,
	}
}

// Summary returns every aggregate for filter. Results are served from the
// cache when the current generation already holds them.
func (a *Aggregator) Summary(ctx context.Context, filter domain.SaleFilter) (*domain.SalesReport, error) {
	gen, err := a.cache.Generation(ctx)
	cacheable := err == nil
	if err != nil {
		a.logger.Warn("report cache generation lookup failed", zap.Error(err))
	}

	key := buildCacheKey(gen, filter)
	if cacheable {
		cached, ok, err := a.cache.Get(ctx, key)
		switch {
		case err != nil:
			a.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		case ok:
			return cached, nil
		}
	}

	report, err := a.source.GetSalesReport(ctx, filter)
	if err != nil {
		return nil, err
	}
	if a.fill == MonthFillDense {
		report.ByMonth = fillMonths(report.ByMonth)
	}

	if cacheable {
		if err := a.cache.Set(ctx, key, report, a.cacheTTL); err != nil {
			a.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return report, nil
}

// TotalStockValue ignores sale filters: it describes the catalog as it is now.
func (a *Aggregator) TotalStockValue(ctx context.Context) (decimal.Decimal, error) {
	report, err := a.Summary(ctx, domain.SaleFilter{})
	if err != nil {
		return decimal.Zero, err
	}
	return report.StockValue, nil
}

func (a *Aggregator) TotalSalesValue(ctx context.Context, filter domain.SaleFilter) (domain.SalesTotal, error) {
	report, err := a.Summary(ctx, filter)
	if err != nil {
		return domain.SalesTotal{}, err
	}
	return report.Sales, nil
}

func (a *Aggregator) SalesByMonth(ctx context.Context, filter domain.SaleFilter) ([]domain.MonthlySales, error) {
	report, err := a.Summary(ctx, filter)
	if err != nil {
		return nil, err
	}
	return report.ByMonth, nil
}

func (a *Aggregator) SalesByProduct(ctx context.Context, filter domain.SaleFilter) ([]domain.ProductSales, error) {
	report, err := a.Summary(ctx, filter)
	if err != nil {
		return nil, err
	}
	return report.ByProduct, nil
}

func (a *Aggregator) RevenueByPaymentMethod(ctx context.Context, filter domain.SaleFilter) ([]domain.PaymentRevenue, error) {
	report, err := a.Summary(ctx, filter)
	if err != nil {
		return nil, err
	}
	return report.ByPaymentMethod, nil
}

// Invalidate drops every cached report. Failures are logged only; entries
// left behind expire with their TTL.
func (a *Aggregator) Invalidate(ctx context.Context) {
	if err := a.cache.Invalidate(ctx); err != nil {
		a.logger.Warn("report cache invalidation failed", zap.Error(err))
	}
}

func fillMonths(rows []domain.MonthlySales) []domain.MonthlySales {
	if len(rows) < 2 {
		return rows
	}
	first, err := time.Parse("2006-01", rows[0].Month)
	if err != nil {
		return rows
	}
	last, err := time.Parse("2006-01", rows[len(rows)-1].Month)
	if err != nil {
		return rows
	}

	present := make(map[string]domain.MonthlySales, len(rows))
	for _, row := range rows {
		present[row.Month] = row
	}
	filled := make([]domain.MonthlySales, 0, len(rows))
	for month := first; !month.After(last); month = month.AddDate(0, 1, 0) {
		key := domain.MonthKey(month)
		if row, ok := present[key]; ok {
			filled = append(filled, row)
			continue
		}
		filled = append(filled, domain.MonthlySales{Month: key, SumTotalPrice: decimal.Zero})
	}
	return filled
}

func buildCacheKey(gen int64, filter domain.SaleFilter) string {
	hash := sha1.Sum([]byte(filter.Key()))
	return fmt.Sprintf("vendas:report:%d:%s", gen, hex.EncodeToString(hash[:]))
}
