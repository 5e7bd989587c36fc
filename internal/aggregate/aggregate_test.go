package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"portfoliowatch/internal/provider"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLatest_NewestWins(t *testing.T) {
	t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	t2 := t1.Add(1 * time.Hour)

	in := []provider.Quote{
		{Symbol: "BTCUSDT", Price: price("11"), Source: "Binance", FetchedAt: t2},
		{Symbol: "BTCUSDT", Price: price("10"), Source: "Binance", FetchedAt: t1},
	}

	out := LatestBySymbol(in, time.Now())
	if len(out) != 1 {
		t.Fatalf("want 1, got %d: %+v", len(out), out)
	}
	got := out["BTCUSDT"]
	if !got.Price.Equal(price("11")) || !got.FetchedAt.Equal(t2) {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestLatest_EqualTimestamps_LaterInputWins(t *testing.T) {
	t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []provider.Quote{
		{Symbol: "ETHUSDT", Price: price("1"), FetchedAt: t1},
		{Symbol: "ETHUSDT", Price: price("2"), FetchedAt: t1},
	}
	out := LatestBySymbol(in, time.Now())
	if got := out["ETHUSDT"]; !got.Price.Equal(price("2")) {
		t.Fatalf("later input should win: %+v", got)
	}
}

func TestLatest_NormalizesSymbolCase(t *testing.T) {
	t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	in := []provider.Quote{
		{Symbol: "btcusdt", Price: price("100"), FetchedAt: t1},
		{Symbol: " BTCUSDT", Price: price("101"), FetchedAt: t2},
		{Symbol: "", Price: price("1"), FetchedAt: t2},
	}
	out := LatestBySymbol(in, time.Now())
	if len(out) != 1 {
		t.Fatalf("want 1 row, got %d: %+v", len(out), out)
	}
	if got := out["BTCUSDT"]; got.Symbol != "BTCUSDT" || !got.Price.Equal(price("101")) {
		t.Fatalf("unexpected: %+v", got)
	}
}

func TestLatest_ZeroTimestampStamped(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := LatestBySymbol([]provider.Quote{{Symbol: "SOLUSDT", Price: price("95")}}, now)
	if got := out["SOLUSDT"]; !got.FetchedAt.Equal(now) {
		t.Fatalf("zero timestamp not stamped: %+v", got)
	}
}

func TestSortedAndPrices(t *testing.T) {
	m := map[string]provider.Quote{
		"SOLUSDT": {Symbol: "SOLUSDT", Price: price("95")},
		"BTCUSDT": {Symbol: "BTCUSDT", Price: price("42000")},
		"ETHUSDT": {Symbol: "ETHUSDT", Price: price("2200")},
	}
	out := Sorted(m)
	if len(out) != 3 || out[0].Symbol != "BTCUSDT" || out[1].Symbol != "ETHUSDT" || out[2].Symbol != "SOLUSDT" {
		t.Fatalf("unexpected order: %+v", out)
	}
	p := Prices(m)
	if !p["ETHUSDT"].Equal(price("2200")) || len(p) != 3 {
		t.Fatalf("unexpected prices: %+v", p)
	}
}
