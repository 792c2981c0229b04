package httpapi

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"vendas/backend/internal/domain"
)

func (a *API) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	filter, err := parseSaleFilter(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	summary, err := a.service.ReportSummary(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "csv":
		payload, err := salesReportToCSV(summary)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="sales-report.csv"`)
		_, _ = w.Write(payload)
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

func (a *API) handleStockValue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	value, err := a.service.TotalStockValue(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock_value": value})
}

func (a *API) handleSalesTotal(w http.ResponseWriter, r *http.Request) {
	a.serveFilteredReport(w, r, func(summary domain.SalesReport) any {
		return summary.Sales
	})
}

func (a *API) handleSalesByMonth(w http.ResponseWriter, r *http.Request) {
	a.serveFilteredReport(w, r, func(summary domain.SalesReport) any {
		return map[string]any{"items": summary.ByMonth}
	})
}

func (a *API) handleSalesByProduct(w http.ResponseWriter, r *http.Request) {
	a.serveFilteredReport(w, r, func(summary domain.SalesReport) any {
		return map[string]any{"items": summary.ByProduct}
	})
}

func (a *API) handleRevenueByPaymentMethod(w http.ResponseWriter, r *http.Request) {
	a.serveFilteredReport(w, r, func(summary domain.SalesReport) any {
		return map[string]any{"items": summary.ByPaymentMethod}
	})
}

func (a *API) serveFilteredReport(w http.ResponseWriter, r *http.Request, pick func(domain.SalesReport) any) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	filter, err := parseSaleFilter(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	summary, err := a.service.ReportSummary(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pick(summary))
}

// salesReportToCSV flattens a summary into section,key,label,count,value rows.
func salesReportToCSV(report domain.SalesReport) ([]byte, error) {
	money := func(d decimal.Decimal) string {
		return d.StringFixed(domain.MoneyPlaces)
	}

	rows := [][]string{
		{"section", "key", "label", "count", "value"},
		{"summary", "products", "", strconv.Itoa(report.ProductCount), ""},
		{"summary", "stock_value", "", "", money(report.StockValue)},
		{"summary", "sales", "", strconv.Itoa(report.Sales.Count), money(report.Sales.SumTotalPrice)},
	}
	for _, month := range report.ByMonth {
		rows = append(rows, []string{"month", month.Month, "", "", money(month.SumTotalPrice)})
	}
	for _, product := range report.ByProduct {
		rows = append(rows, []string{"product", strconv.FormatInt(product.ProductID, 10), csvText(product.ProductName), strconv.Itoa(product.SumQuantity), money(product.SumTotalPrice)})
	}
	for _, payment := range report.ByPaymentMethod {
		rows = append(rows, []string{"payment", string(payment.PaymentMethod), "", strconv.Itoa(payment.Count), money(payment.SumTotalPrice)})
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// csvText keeps free text from being read as a formula by spreadsheets.
func csvText(value string) string {
	if value != "" && strings.ContainsRune("=+-@\t\r", rune(value[0])) {
		return "'" + value
	}
	return value
}
