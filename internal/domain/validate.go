package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const maxNameLength = 200

// MaxQuantity is the largest stock or sale quantity the store holds (INTEGER).
const MaxQuantity = math.MaxInt32

// Normalize trims the name and rounds the price. The returned error
// describes the first rule the input breaks.
func (in ProductInput) Normalize() (ProductInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, errors.New("name is required")
	}
	if len([]rune(in.Name)) > maxNameLength {
		return in, errors.New("name is too long")
	}
	if in.Quantity < 0 {
		return in, errors.New("quantity must be zero or greater")
	}
	if in.Quantity > MaxQuantity {
		return in, fmt.Errorf("quantity must be at most %d", MaxQuantity)
	}
	if in.UnitPrice.IsNegative() {
		return in, errors.New("unit_price must be zero or greater")
	}
	in.UnitPrice = RoundMoney(in.UnitPrice)
	if err := CheckMoney("unit_price", in.UnitPrice); err != nil {
		return in, err
	}
	return in, nil
}

// NameKey is the form used for case-insensitive name uniqueness.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (d SaleDraft) Validate() error {
	if d.ProductID < 1 {
		return errors.New("product_id is required")
	}
	if d.Quantity < 1 {
		return errors.New("quantity must be greater than zero")
	}
	if d.Quantity > MaxQuantity {
		return fmt.Errorf("quantity must be at most %d", MaxQuantity)
	}
	if !d.PaymentMethod.Valid() {
		return errors.New("payment_method is invalid")
	}
	return nil
}

// CheckQuantityDelta rejects a stock change whose magnitude, or whose result
// on top of current, the store cannot hold. Going below zero is a stock
// error, not a range error, and is left to the caller.
func CheckQuantityDelta(current int, delta int) error {
	if delta < -MaxQuantity || delta > MaxQuantity {
		return fmt.Errorf("delta must be between %d and %d", -MaxQuantity, MaxQuantity)
	}
	if delta > MaxQuantity-current {
		return fmt.Errorf("quantity would exceed %d", MaxQuantity)
	}
	return nil
}
