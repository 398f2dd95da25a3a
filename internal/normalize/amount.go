package normalize

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var errEmptyAmount = errors.New("amount is empty")

// ParseAmount разбирает сумму из выгрузки: валютные символы, разделители
// разрядов, десятичная запятая и отрицательные значения в скобках.
func ParseAmount(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, errEmptyAmount
	}

	negative := false
	if strings.HasPrefix(value, "(") && strings.HasSuffix(value, ")") {
		negative = true
		value = strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
	}
	if strings.HasSuffix(value, "-") {
		negative = !negative
		value = strings.TrimSuffix(value, "-")
	}

	var builder strings.Builder
	for _, r := range value {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',':
			builder.WriteRune(r)
		case r == '-' || r == '−':
			if builder.Len() == 0 {
				negative = !negative
			}
		case r == '+':
		default:
			// currency symbols, codes and spaces are dropped
		}
	}

	cleaned := normalizeSeparators(builder.String())
	if cleaned == "" {
		return decimal.Zero, errEmptyAmount
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

func normalizeSeparators(value string) string {
	lastComma := strings.LastIndex(value, ",")
	lastDot := strings.LastIndex(value, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			value = strings.ReplaceAll(value, ".", "")
			return strings.Replace(value, ",", ".", 1)
		}
		return strings.ReplaceAll(value, ",", "")
	case lastComma >= 0:
		decimals := len(value) - lastComma - 1
		if strings.Count(value, ",") == 1 && decimals > 0 && decimals <= 2 {
			return strings.Replace(value, ",", ".", 1)
		}
		return strings.ReplaceAll(value, ",", "")
	default:
		if strings.Count(value, ".") > 1 {
			return strings.ReplaceAll(value, ".", "")
		}
		return value
	}
}
