package valuation

import (
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency used for display.
const Currency = money.USD

func cents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FormatCurrency renders d as US dollars with two decimals, e.g. "$1,071.00"
// or "-$0.40".
func FormatCurrency(d decimal.Decimal) string {
	return money.New(cents(d), Currency).Display()
}

// FormatSignedCurrency is FormatCurrency with a leading "+" for
// non-negative amounts.
func FormatSignedCurrency(d decimal.Decimal) string {
	s := FormatCurrency(d)
	if !d.Round(2).IsNegative() {
		s = "+" + s
	}
	return s
}

// FormatPercent renders a percentage with two decimals and an explicit sign
// for non-negative values, e.g. "+7.10%".
func FormatPercent(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if !d.Round(2).IsNegative() {
		s = "+" + s
	}
	return s + "%"
}

// FormatPrice renders a unit price without grouping, e.g. "$45000.00".
func FormatPrice(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// FormatQuantity renders a quantity with six decimals.
func FormatQuantity(d decimal.Decimal) string {
	return d.StringFixed(6)
}

// FormatRelative describes how long ago t was, relative to now.
func FormatRelative(t, now time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff/time.Minute))
	default:
		return fmt.Sprintf("%dh ago", int(diff/time.Hour))
	}
}
