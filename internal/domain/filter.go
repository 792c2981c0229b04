package domain

import (
	"fmt"
	"strings"
	"time"
)

const monthLayout = "2006-01"

// SaleFilter is the predicate shared by ledger listing and every report.
// All fields are optional and combine with AND. From is inclusive, To is
// exclusive.
type SaleFilter struct {
	From          *time.Time
	To            *time.Time
	ProductID     *int64
	PaymentMethod *PaymentMethod
}

func (f SaleFilter) Validate() error {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return fmt.Errorf("from must be before to")
	}
	if f.ProductID != nil && *f.ProductID < 1 {
		return fmt.Errorf("product_id must be positive")
	}
	if f.PaymentMethod != nil && !f.PaymentMethod.Valid() {
		return fmt.Errorf("unknown payment method %q", *f.PaymentMethod)
	}
	return nil
}

// Match reports whether sale satisfies the filter.
func (f SaleFilter) Match(sale Sale) bool {
	if f.From != nil && sale.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !sale.CreatedAt.Before(*f.To) {
		return false
	}
	if f.ProductID != nil && sale.ProductID != *f.ProductID {
		return false
	}
	if f.PaymentMethod != nil && sale.PaymentMethod != *f.PaymentMethod {
		return false
	}
	return true
}

// Key is a canonical text form of the filter, stable across equivalent
// filters. Used for cache keys.
func (f SaleFilter) Key() string {
	parts := make([]string, 0, 4)
	if f.From != nil {
		parts = append(parts, "from="+f.From.UTC().Format(time.RFC3339Nano))
	}
	if f.To != nil {
		parts = append(parts, "to="+f.To.UTC().Format(time.RFC3339Nano))
	}
	if f.ProductID != nil {
		parts = append(parts, fmt.Sprintf("product=%d", *f.ProductID))
	}
	if f.PaymentMethod != nil {
		parts = append(parts, "payment="+string(*f.PaymentMethod))
	}
	return strings.Join(parts, "&")
}

func MonthKey(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// MonthStart truncates t to the first instant of its UTC calendar month.
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
