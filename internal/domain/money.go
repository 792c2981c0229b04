package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the smallest currency unit as a number of decimal places.
const MoneyPlaces = 2

// RoundMoney rounds half away from zero to MoneyPlaces. Every stored price,
// sale total and aggregate sum goes through here.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MaxMoney is the exclusive upper bound of a stored amount (NUMERIC(14,2)).
var MaxMoney = decimal.New(1, 12)

// CheckMoney rejects amounts the store columns cannot hold.
func CheckMoney(field string, d decimal.Decimal) error {
	if d.GreaterThanOrEqual(MaxMoney) {
		return fmt.Errorf("%s must be less than %s", field, MaxMoney.String())
	}
	return nil
}

// LineTotal is quantity * unitPrice under the money rounding policy.
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}
