package cache

import (
	"context"
	"sync"
	"time"

	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/provider"
)

// entry stores the cached quote for a single symbol with expiry.
type entry struct {
	expiresAt time.Time
	quote     provider.Quote
}

// Provider caches quotes per symbol for a TTL.
// It requests only missing symbols from the underlying provider and
// combines cached + fresh results. If the underlying fetch fails the whole
// call fails; cached quotes are not served as a partial answer.
type Provider struct {
	P        provider.Provider
	TTL      time.Duration
	MaxItems int

	// Now defaults to time.Now.
	Now func() time.Time

	mu    sync.RWMutex
	items map[string]entry // key: normalized symbol
}

func (c *Provider) Name() string { return c.P.Name() }

func (c *Provider) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Fetch returns quotes for requested symbols using cache when valid.
// Output follows the order of first occurrence in symbols.
func (c *Provider) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	if c.TTL <= 0 {
		return c.P.Fetch(ctx, symbols)
	}

	now := c.now()

	// Build list of unique symbols preserving request order
	wanted := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = portfolio.NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			wanted = append(wanted, s)
		}
	}

	// Split into cached and missing symbols
	cached := make(map[string]provider.Quote, len(wanted))
	missing := make([]string, 0, len(wanted))
	c.mu.RLock()
	for _, s := range wanted {
		if e, ok := c.items[s]; ok && now.Before(e.expiresAt) {
			cached[s] = e.quote
			continue
		}
		missing = append(missing, s)
	}
	c.mu.RUnlock()

	if len(missing) > 0 {
		fresh, err := c.P.Fetch(ctx, missing)
		if err != nil {
			return nil, err
		}
		c.store(fresh, now)
		for _, q := range fresh {
			cached[portfolio.NormalizeSymbol(q.Symbol)] = q
		}
	}

	out := make([]provider.Quote, 0, len(wanted))
	for _, s := range wanted {
		if q, ok := cached[s]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (c *Provider) store(fresh []provider.Quote, now time.Time) {
	expiry := now.Add(c.TTL)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[string]entry, len(fresh))
	}
	for _, q := range fresh {
		c.items[portfolio.NormalizeSymbol(q.Symbol)] = entry{expiresAt: expiry, quote: q}
	}
	// best-effort cap cache size: remove expired first, then arbitrary
	if c.MaxItems > 0 && len(c.items) > c.MaxItems {
		for k, v := range c.items {
			if !now.Before(v.expiresAt) {
				delete(c.items, k)
			}
		}
		for k := range c.items {
			if len(c.items) <= c.MaxItems {
				break
			}
			delete(c.items, k)
		}
	}
}

// Len reports the number of cached symbols, expired or not.
func (c *Provider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
