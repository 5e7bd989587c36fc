package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/provider"
)

// LatestBySymbol collapses quotes by normalized symbol keeping the newest.
// For equal timestamps, later input wins. Zero timestamps are replaced with
// now. Quotes with an empty symbol are dropped.
func LatestBySymbol(quotes []provider.Quote, now time.Time) map[string]provider.Quote {
	latest := make(map[string]provider.Quote, len(quotes))
	for _, q := range quotes {
		sym := portfolio.NormalizeSymbol(q.Symbol)
		if sym == "" {
			continue
		}
		q.Symbol = sym
		if q.FetchedAt.IsZero() {
			q.FetchedAt = now
		}
		if cur, ok := latest[sym]; ok && q.FetchedAt.Before(cur.FetchedAt) {
			continue
		}
		latest[sym] = q
	}
	return latest
}

// Sorted returns the quotes ordered by symbol.
func Sorted(bySymbol map[string]provider.Quote) []provider.Quote {
	out := make([]provider.Quote, 0, len(bySymbol))
	for _, q := range bySymbol {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Prices projects quotes to a symbol -> price view.
func Prices(bySymbol map[string]provider.Quote) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(bySymbol))
	for sym, q := range bySymbol {
		out[sym] = q.Price
	}
	return out
}
