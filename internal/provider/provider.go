package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the latest known trade price for one symbol. Quotes are never
// persisted; every fetch cycle produces new ones.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Provider fetches quotes for a batch of symbols. Implementations either
// return a quote for every requested symbol or an error.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) ([]Quote, error)
}
