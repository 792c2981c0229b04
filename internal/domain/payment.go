package domain

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentPix        PaymentMethod = "pix"
)

// PaymentMethods lists the closed set in report order.
var PaymentMethods = []PaymentMethod{PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentPix}

var paymentAliases = map[string]PaymentMethod{
	"cash":              PaymentCash,
	"dinheiro":          PaymentCash,
	"credit_card":       PaymentCreditCard,
	"creditcard":        PaymentCreditCard,
	"credito":           PaymentCreditCard,
	"cartao de credito": PaymentCreditCard,
	"debit_card":        PaymentDebitCard,
	"debitcard":         PaymentDebitCard,
	"debito":            PaymentDebitCard,
	"cartao de debito":  PaymentDebitCard,
	"pix":               PaymentPix,
}

// foldAccents strips combining marks, so "Cartão" and "Cartao" compare equal.
func foldAccents(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		return s
	}
	return folded
}

// ParsePaymentMethod accepts canonical values and the legacy labels of the
// point-of-sale screens ("Dinheiro", "Cartão de Débito", ...).
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	key := foldAccents(strings.ToLower(strings.TrimSpace(raw)))
	key = strings.Join(strings.Fields(key), " ")
	if method, ok := paymentAliases[key]; ok {
		return method, nil
	}
	return "", fmt.Errorf("unknown payment method %q", raw)
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentPix:
		return true
	default:
		return false
	}
}

// Rank orders methods for reports.
func (m PaymentMethod) Rank() int {
	for i, method := range PaymentMethods {
		if method == m {
			return i
		}
	}
	return len(PaymentMethods)
}
