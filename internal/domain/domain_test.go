package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParsePaymentMethodAcceptsLegacyLabels(t *testing.T) {
	cases := map[string]PaymentMethod{
		"cash":               PaymentCash,
		"Dinheiro":           PaymentCash,
		"Cartão de Crédito":  PaymentCreditCard,
		"cartao  de credito": PaymentCreditCard,
		"CreditCard":         PaymentCreditCard,
		"Cartão de Débito":   PaymentDebitCard,
		"Debito":             PaymentDebitCard,
		" PIX ":              PaymentPix,
	}
	for raw, want := range cases {
		got, err := ParsePaymentMethod(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := ParsePaymentMethod("cheque")
	require.Error(t, err)
}

func TestLineTotalRoundsHalfUp(t *testing.T) {
	require.Equal(t, "10.00", LineTotal(4, decimal.RequireFromString("2.50")).StringFixed(2))
	require.Equal(t, "0.02", LineTotal(1, decimal.RequireFromString("0.015")).StringFixed(2))
	require.Equal(t, "3.37", LineTotal(3, decimal.RequireFromString("1.1225")).StringFixed(2))
}

func TestProductInputNormalize(t *testing.T) {
	in, err := ProductInput{Name: "  Widget ", Quantity: 1, UnitPrice: decimal.RequireFromString("1.005")}.Normalize()
	require.NoError(t, err)
	require.Equal(t, "Widget", in.Name)
	require.Equal(t, "1.01", in.UnitPrice.StringFixed(2))

	_, err = ProductInput{Name: "   ", UnitPrice: decimal.Zero}.Normalize()
	require.Error(t, err)
	_, err = ProductInput{Name: "x", Quantity: -1}.Normalize()
	require.Error(t, err)
	_, err = ProductInput{Name: "x", UnitPrice: decimal.NewFromInt(-1)}.Normalize()
	require.Error(t, err)
}

func TestSaleFilterMatchUsesHalfOpenRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	filter := SaleFilter{From: &from, To: &to}
	require.NoError(t, filter.Validate())

	require.True(t, filter.Match(Sale{CreatedAt: from}))
	require.False(t, filter.Match(Sale{CreatedAt: to}))
	require.True(t, filter.Match(Sale{CreatedAt: to.Add(-time.Nanosecond)}))

	require.Error(t, SaleFilter{From: &to, To: &from}.Validate())
	require.Error(t, SaleFilter{From: &from, To: &from}.Validate())
}

func TestSaleFilterKeyIsCanonical(t *testing.T) {
	local := time.FixedZone("BRT", -3*3600)
	a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.In(local)
	require.Equal(t, SaleFilter{From: &a}.Key(), SaleFilter{From: &b}.Key())
	require.Equal(t, "", SaleFilter{}.Key())
}

func TestNewPageComputesTotalPages(t *testing.T) {
	page := NewPage[int](nil, 3, 20, 41)
	require.Equal(t, 3, page.TotalPages)
	require.NotNil(t, page.Items)
	require.Equal(t, 0, NewPage([]int{}, 1, 20, 0).TotalPages)
	require.Equal(t, 40, Offset(3, 20))
}

func TestOffsetSaturatesInsteadOfOverflowing(t *testing.T) {
	require.Equal(t, math.MaxInt, Offset(math.MaxInt, 100))
	require.Equal(t, math.MaxInt, Offset(math.MaxInt/100+2, 100))
	require.Equal(t, 0, Offset(1, 100))
}

func TestNormalizeRejectsValuesOutsideStoreRange(t *testing.T) {
	_, err := ProductInput{Name: "Widget", Quantity: MaxQuantity, UnitPrice: decimal.RequireFromString("999999999999.99")}.Normalize()
	require.NoError(t, err)

	_, err = ProductInput{Name: "Widget", Quantity: MaxQuantity + 1, UnitPrice: decimal.NewFromInt(1)}.Normalize()
	require.Error(t, err)

	_, err = ProductInput{Name: "Widget", Quantity: 1, UnitPrice: decimal.RequireFromString("999999999999.995")}.Normalize()
	require.Error(t, err)

	require.Error(t, SaleDraft{ProductID: 1, Quantity: MaxQuantity + 1, PaymentMethod: PaymentCash}.Validate())
}

func TestCheckQuantityDelta(t *testing.T) {
	require.NoError(t, CheckQuantityDelta(MaxQuantity-1, 1))
	require.NoError(t, CheckQuantityDelta(5, -MaxQuantity))
	require.Error(t, CheckQuantityDelta(MaxQuantity, 1))
	require.Error(t, CheckQuantityDelta(0, math.MaxInt))
	require.Error(t, CheckQuantityDelta(0, math.MinInt))
}
