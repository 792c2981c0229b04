package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vendas/backend/internal/domain"
	"vendas/backend/internal/store"
)

func mustCreate(t *testing.T, s *Store, name string, qty int, price string) *domain.Product {
	t.Helper()
	product, err := s.CreateProduct(context.Background(), domain.ProductInput{
		Name:      name,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return product
}

func TestCreateProductRejectsCaseInsensitiveDuplicate(t *testing.T) {
	s := New()
	mustCreate(t, s, "Widget", 1, "1.00")

	_, err := s.CreateProduct(context.Background(), domain.ProductInput{Name: "  wIDGET ", Quantity: 1, UnitPrice: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, store.ErrDuplicateName)
}

func TestUpdateProductAllowsOwnNameCaseChange(t *testing.T) {
	s := New()
	widget := mustCreate(t, s, "Widget", 1, "1.00")
	mustCreate(t, s, "Gadget", 1, "1.00")

	updated, err := s.UpdateProduct(context.Background(), widget.ID, domain.ProductInput{Name: "WIDGET", Quantity: 3, UnitPrice: decimal.RequireFromString("2.005")})
	require.NoError(t, err)
	require.Equal(t, "WIDGET", updated.Name)
	require.Equal(t, "2.01", updated.UnitPrice.StringFixed(2))

	_, err = s.UpdateProduct(context.Background(), widget.ID, domain.ProductInput{Name: "gadget", Quantity: 3, UnitPrice: decimal.NewFromInt(2)})
	require.ErrorIs(t, err, store.ErrDuplicateName)

	_, err = s.UpdateProduct(context.Background(), 999, domain.ProductInput{Name: "Other", UnitPrice: decimal.NewFromInt(2)})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordSaleDecrementsStockAndSnapshotsPrice(t *testing.T) {
	s := New()
	widget := mustCreate(t, s, "Widget", 10, "2.50")

	sale, err := s.RecordSale(context.Background(), domain.SaleDraft{ProductID: widget.ID, Quantity: 4, PaymentMethod: domain.PaymentPix})
	require.NoError(t, err)
	require.Equal(t, "10.00", sale.TotalPrice.StringFixed(2))
	require.Equal(t, "Widget", sale.ProductName)

	_, err = s.UpdateProduct(context.Background(), widget.ID, domain.ProductInput{Name: "Widget", Quantity: 6, UnitPrice: decimal.RequireFromString("9.99")})
	require.NoError(t, err)

	stored, err := s.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	require.True(t, stored.UnitPrice.Equal(decimal.RequireFromString("2.50")))
	require.True(t, stored.TotalPrice.Equal(decimal.RequireFromString("10.00")))
}

func TestRecordSaleInsufficientStockCarriesDetail(t *testing.T) {
	s := New()
	widget := mustCreate(t, s, "Widget", 6, "2.50")

	_, err := s.RecordSale(context.Background(), domain.SaleDraft{ProductID: widget.ID, Quantity: 7, PaymentMethod: domain.PaymentCash})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var stockErr *store.StockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, 6, stockErr.Available)
	require.Equal(t, 7, stockErr.Requested)

	product, err := s.GetProduct(context.Background(), widget.ID)
	require.NoError(t, err)
	require.Equal(t, 6, product.Quantity)
}

func TestRecordSaleUnknownProduct(t *testing.T) {
	s := New()
	_, err := s.RecordSale(context.Background(), domain.SaleDraft{ProductID: 42, Quantity: 1, PaymentMethod: domain.PaymentCash})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	s := New()
	widget := mustCreate(t, s, "Widget", 5, "1.00")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordSale(context.Background(), domain.SaleDraft{ProductID: widget.ID, Quantity: 3, PaymentMethod: domain.PaymentCash})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, rejected)

	product, err := s.GetProduct(context.Background(), widget.ID)
	require.NoError(t, err)
	require.Equal(t, 2, product.Quantity)
}

func TestCancelSaleRestoresStock(t *testing.T) {
	s := New()
	widget := mustCreate(t, s, "Widget", 10, "2.50")

	sale, err := s.RecordSale(context.Background(), domain.SaleDraft{ProductID: widget.ID, Quantity: 4, PaymentMethod: domain.PaymentPix})
	require.NoError(t, err)

	cancelled, err := s.CancelSale(context.Background(), sale.ID)
	require.NoError(t, err)
	require.Equal(t, sale.ID, cancelled.ID)

	product, err := s.GetProduct(context.Background(), widget.ID)
	require.NoError(t, err)
	require.Equal(t, 10, product.Quantity)

	_, err = s.CancelSale(context.Background(), sale.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteProductBlockedBySales(t *testing.T) {
	s := New()
	widget := mustCreate(t, s, "Widget", 10, "2.50")
	sale, err := s.RecordSale(context.Background(), domain.SaleDraft{ProductID: widget.ID, Quantity: 1, PaymentMethod: domain.PaymentCash})
	require.NoError(t, err)

	_, err = s.DeleteProduct(context.Background(), widget.ID)
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CancelSale(context.Background(), sale.ID)
	require.NoError(t, err)

	deleted, err := s.DeleteProduct(context.Background(), widget.ID)
	require.NoError(t, err)
	require.Equal(t, widget.ID, deleted.ID)

	_, err = s.GetProduct(context.Background(), widget.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListProductsSearchAndPaging(t *testing.T) {
	s := NewSeeded()
	mustCreate(t, s, "Mouse Pad", 4, "20.00")

	items, total, err := s.ListProducts(context.Background(), domain.ProductQuery{Search: "MOUSE", Page: 1, PageSize: 1})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, items, 1)
	require.Equal(t, "Mouse Gamer", items[0].Name)

	items, total, err = s.ListProducts(context.Background(), domain.ProductQuery{Page: 9, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Empty(t, items)

	_, _, err = s.ListProducts(context.Background(), domain.ProductQuery{Page: 0, PageSize: 10})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestListSalesFilterAndOrder(t *testing.T) {
	s := New()
	widget := mustCreate(t, s, "Widget", 100, "1.00")
	gadget := mustCreate(t, s, "Gadget", 100, "3.00")

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	drafts := []domain.SaleDraft{
		{ProductID: widget.ID, Quantity: 1, PaymentMethod: domain.PaymentCash, CreatedAt: base},
		{ProductID: gadget.ID, Quantity: 2, PaymentMethod: domain.PaymentPix, CreatedAt: base.Add(time.Hour)},
		{ProductID: widget.ID, Quantity: 3, PaymentMethod: domain.PaymentPix, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, draft := range drafts {
		_, err := s.RecordSale(context.Background(), draft)
		require.NoError(t, err)
	}

	items, total, err := s.ListSales(context.Background(), domain.SaleFilter{}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, 3, items[0].Quantity)
	require.Equal(t, 1, items[2].Quantity)

	pix := domain.PaymentPix
	to := base.Add(2 * time.Hour)
	items, total, err = s.ListSales(context.Background(), domain.SaleFilter{PaymentMethod: &pix, To: &to}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, gadget.ID, items[0].ProductID)

	from := base.Add(time.Hour)
	_, _, err = s.ListSales(context.Background(), domain.SaleFilter{From: &from, To: &from}, 1, 10)
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestSalesReportAggregatesAreConsistent(t *testing.T) {
	s := New()
	widget := mustCreate(t, s, "Widget", 100, "2.50")
	gadget := mustCreate(t, s, "Gadget", 100, "10.00")

	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, draft := range []domain.SaleDraft{
		{ProductID: widget.ID, Quantity: 4, PaymentMethod: domain.PaymentPix, CreatedAt: jan},
		{ProductID: gadget.ID, Quantity: 1, PaymentMethod: domain.PaymentCash, CreatedAt: jan},
		{ProductID: widget.ID, Quantity: 2, PaymentMethod: domain.PaymentCash, CreatedAt: mar},
	} {
		_, err := s.RecordSale(context.Background(), draft)
		require.NoError(t, err)
	}

	report, err := s.GetSalesReport(context.Background(), domain.SaleFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, report.ProductCount)
	require.Equal(t, 3, report.Sales.Count)
	require.Equal(t, "25.00", report.Sales.SumTotalPrice.StringFixed(2))
	// 94 * 2.50 + 99 * 10.00
	require.Equal(t, "1225.00", report.StockValue.StringFixed(2))

	require.Len(t, report.ByMonth, 2)
	require.Equal(t, "2024-01", report.ByMonth[0].Month)
	require.Equal(t, "2024-03", report.ByMonth[1].Month)

	require.Len(t, report.ByProduct, 2)
	require.Equal(t, "Widget", report.ByProduct[0].ProductName)
	require.Equal(t, 6, report.ByProduct[0].SumQuantity)

	require.Len(t, report.ByPaymentMethod, 2)
	require.Equal(t, domain.PaymentCash, report.ByPaymentMethod[0].PaymentMethod)
	require.Equal(t, domain.PaymentPix, report.ByPaymentMethod[1].PaymentMethod)

	sum := func(values ...decimal.Decimal) decimal.Decimal { return decimal.Sum(decimal.Zero, values...) }
	var months, products, payments []decimal.Decimal
	for _, row := range report.ByMonth {
		months = append(months, row.SumTotalPrice)
	}
	for _, row := range report.ByProduct {
		products = append(products, row.SumTotalPrice)
	}
	for _, row := range report.ByPaymentMethod {
		payments = append(payments, row.SumTotalPrice)
	}
	require.True(t, sum(months...).Equal(report.Sales.SumTotalPrice))
	require.True(t, sum(products...).Equal(report.Sales.SumTotalPrice))
	require.True(t, sum(payments...).Equal(report.Sales.SumTotalPrice))
}

func TestCanceledContextIsRejected(t *testing.T) {
	s := NewSeeded()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: 1, Quantity: 1, PaymentMethod: domain.PaymentCash})
	require.ErrorIs(t, err, context.Canceled)
}

func TestQuantityStaysWithinStoreRange(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateProduct(ctx, domain.ProductInput{Name: "Huge", Quantity: math.MaxInt, UnitPrice: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	full := mustCreate(t, s, "Full", domain.MaxQuantity, "1.00")
	_, err = s.AdjustQuantity(ctx, full.ID, 1)
	require.ErrorIs(t, err, store.ErrInvalidInput)
	require.NotErrorIs(t, err, store.ErrInsufficientStock)

	got, err := s.GetProduct(ctx, full.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MaxQuantity, got.Quantity)
}

func TestRecordSaleRejectsTotalOutsideStoreRange(t *testing.T) {
	s := New()
	ctx := context.Background()
	pricey := mustCreate(t, s, "Pricey", 3, "999999999999.99")

	_, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: pricey.ID, Quantity: 2, PaymentMethod: domain.PaymentPix})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	got, err := s.GetProduct(ctx, pricey.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Quantity)
}
