package rules

import (
	"strings"

	"github.com/shopspring/decimal"
)

const moneyPrecision = 6

// RoundDecimals rounds a monetary value to six fractional digits. Every
// computed amount is rounded exactly once, right before it is persisted or
// handed to the next stage; rounding already-rounded inputs again is what
// this helper exists to avoid.
func RoundDecimals(value float64) float64 {
	out, _ := decimal.NewFromFloat(value).Round(moneyPrecision).Float64()
	return out
}

// FormatAmount renders a monetary value with space-grouped thousands for bot
// messages, e.g. 1234567.5 -> "1 234 567.5".
func FormatAmount(value float64) string {
	text := decimal.NewFromFloat(value).Round(moneyPrecision).String()

	intPart := text
	fracPart := ""
	if i := strings.IndexByte(text, '.'); i >= 0 {
		intPart, fracPart = text[:i], text[i+1:]
	}

	negative := strings.HasPrefix(intPart, "-")
	if negative {
		intPart = intPart[1:]
	}

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if fracPart != "" {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}

	return b.String()
}
