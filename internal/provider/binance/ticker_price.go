package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/provider"
)

var (
	// ErrInvalidSymbol is returned when Binance rejects the symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrRateLimited is returned on 429 and 418 (IP ban) responses.
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformedResponse is returned when the payload cannot be used.
	ErrMalformedResponse = errors.New("malformed response")
)

// tickerPrice is the /api/v3/ticker/price payload:
//
//	{"symbol": "BTCUSDT", "price": "45000.00000000"}
type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// apiError is the error body Binance sends with 4xx responses:
//
//	{"code": -1121, "msg": "Invalid symbol."}
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// TickerPrice fetches the latest price for one symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (provider.Quote, error) {
	symbol = portfolio.NormalizeSymbol(symbol)
	if symbol == "" {
		return provider.Quote{}, fmt.Errorf("fetch price: %w: empty symbol", ErrInvalidSymbol)
	}
	q, err := c.tickerPrice(ctx, symbol)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("fetch price for %s: %w", symbol, err)
	}
	return q, nil
}

func (c *Client) tickerPrice(ctx context.Context, symbol string) (provider.Quote, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return provider.Quote{}, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	u := fmt.Sprintf("%s/api/v3/ticker/price?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusBadRequest:
		return provider.Quote{}, fmt.Errorf("%w: %s", ErrInvalidSymbol, readAPIError(res.Body))

	case http.StatusTooManyRequests, http.StatusTeapot:
		return provider.Quote{}, fmt.Errorf("%w (status %d)", ErrRateLimited, res.StatusCode)

	case http.StatusForbidden:
		return provider.Quote{}, fmt.Errorf("forbidden")

	default:
		return provider.Quote{}, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	var body tickerPrice
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return provider.Quote{}, fmt.Errorf("%w: decoding ticker price: %v", ErrMalformedResponse, err)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(body.Price))
	if err != nil {
		return provider.Quote{}, fmt.Errorf("%w: price %q: %v", ErrMalformedResponse, body.Price, err)
	}
	if !price.IsPositive() {
		return provider.Quote{}, fmt.Errorf("%w: non-positive price %s", ErrMalformedResponse, price)
	}

	sym := portfolio.NormalizeSymbol(body.Symbol)
	if sym == "" {
		sym = symbol
	}
	return provider.Quote{
		Symbol:    sym,
		Price:     price,
		Source:    Name,
		FetchedAt: c.now().UTC(),
	}, nil
}

// Fetch requests every distinct symbol concurrently and waits for all of
// them to settle. If any request failed the whole batch fails and no quotes
// are returned.
func (c *Client) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	uniq := distinct(symbols)
	if len(uniq) == 0 {
		return nil, nil
	}

	quotes := make([]provider.Quote, len(uniq))
	var g errgroup.Group
	if c.maxConcurrency > 0 {
		g.SetLimit(c.maxConcurrency)
	}
	for i, sym := range uniq {
		g.Go(func() error {
			q, err := c.tickerPrice(ctx, sym)
			if err != nil {
				return fmt.Errorf("fetch price for %s: %w", sym, err)
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

// distinct normalizes symbols, drops empty ones and dedupes, keeping first
// occurrence order.
func distinct(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = portfolio.NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func readAPIError(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 2<<10))
	var e apiError
	if err := json.Unmarshal(b, &e); err == nil && e.Msg != "" {
		return fmt.Sprintf("code=%d msg=%q", e.Code, e.Msg)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "bad request"
	}
	return s
}
