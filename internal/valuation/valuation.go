// Package valuation turns positions plus a price map into per-position and
// aggregate financial metrics. Everything here is pure.
package valuation

import (
	"github.com/shopspring/decimal"

	"portfoliowatch/internal/portfolio"
)

var hundred = decimal.NewFromInt(100)

// PositionValue is a position valued at the current price.
type PositionValue struct {
	Position          portfolio.Position `json:"position"`
	CurrentPrice      decimal.Decimal    `json:"current_price"`
	Live              bool               `json:"live"`
	CurrentValue      decimal.Decimal    `json:"current_value"`
	ProfitLoss        decimal.Decimal    `json:"profit_loss"`
	ProfitLossPercent decimal.Decimal    `json:"profit_loss_percent"`
}

// Trend of the position's P/L.
func (v PositionValue) Trend() Trend { return TrendOf(v.ProfitLoss) }

// Summary aggregates a list of valued positions.
type Summary struct {
	Positions              []PositionValue `json:"positions"`
	TotalInvested          decimal.Decimal `json:"total_invested"`
	TotalCurrentValue      decimal.Decimal `json:"total_current_value"`
	TotalProfitLoss        decimal.Decimal `json:"total_profit_loss"`
	TotalProfitLossPercent decimal.Decimal `json:"total_profit_loss_percent"`
}

// Trend of the total P/L.
func (s Summary) Trend() Trend { return TrendOf(s.TotalProfitLoss) }

// Percent returns part / whole * 100, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// ValuePosition values p with prices. When the position's symbol has no
// positive price the entry price is used and Live is false.
func ValuePosition(p portfolio.Position, prices map[string]decimal.Decimal) PositionValue {
	price, live := prices[portfolio.NormalizeSymbol(p.Symbol)]
	if !live || !price.IsPositive() {
		price, live = p.EntryPrice, false
	}
	value := price.Mul(p.Quantity)
	pl := value.Sub(p.InvestedAmount)
	return PositionValue{
		Position:          p,
		CurrentPrice:      price,
		Live:              live,
		CurrentValue:      value,
		ProfitLoss:        pl,
		ProfitLossPercent: Percent(pl, p.InvestedAmount),
	}
}

// Summarize values every position and sums the totals. The totals do not
// depend on the order of positions.
func Summarize(positions []portfolio.Position, prices map[string]decimal.Decimal) Summary {
	s := Summary{
		Positions:         make([]PositionValue, 0, len(positions)),
		TotalInvested:     decimal.Zero,
		TotalCurrentValue: decimal.Zero,
	}
	for _, p := range positions {
		v := ValuePosition(p, prices)
		s.Positions = append(s.Positions, v)
		s.TotalInvested = s.TotalInvested.Add(p.InvestedAmount)
		s.TotalCurrentValue = s.TotalCurrentValue.Add(v.CurrentValue)
	}
	s.TotalProfitLoss = s.TotalCurrentValue.Sub(s.TotalInvested)
	s.TotalProfitLossPercent = Percent(s.TotalProfitLoss, s.TotalInvested)
	return s
}
