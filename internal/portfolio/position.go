package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidPosition is wrapped by every validation failure.
var ErrInvalidPosition = errors.New("invalid position")

// Position is a tracked investment holding.
type Position struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Symbol         string          `json:"symbol"`
	InvestedAmount decimal.Decimal `json:"invested_amount"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	Quantity       decimal.Decimal `json:"quantity"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Fields carries the user-supplied part of a position. A nil field was not
// supplied.
type Fields struct {
	Name           *string          `json:"name,omitempty"`
	Symbol         *string          `json:"symbol,omitempty"`
	InvestedAmount *decimal.Decimal `json:"invested_amount,omitempty"`
	EntryPrice     *decimal.Decimal `json:"entry_price,omitempty"`
	Quantity       *decimal.Decimal `json:"quantity,omitempty"`
	Status         *Status          `json:"status,omitempty"`
}

// NewPosition builds a position from create fields. Name, symbol, invested
// amount and entry price are required; a missing or zero quantity is derived
// from invested amount and entry price.
func NewPosition(id string, f Fields, now time.Time) (Position, error) {
	if id == "" {
		return Position{}, fmt.Errorf("%w: missing id", ErrInvalidPosition)
	}
	switch {
	case f.Name == nil:
		return Position{}, fmt.Errorf("%w: missing name", ErrInvalidPosition)
	case f.Symbol == nil:
		return Position{}, fmt.Errorf("%w: missing symbol", ErrInvalidPosition)
	case f.InvestedAmount == nil:
		return Position{}, fmt.Errorf("%w: missing invested amount", ErrInvalidPosition)
	case f.EntryPrice == nil:
		return Position{}, fmt.Errorf("%w: missing entry price", ErrInvalidPosition)
	}

	p := Position{
		ID:             id,
		Name:           strings.TrimSpace(*f.Name),
		Symbol:         NormalizeSymbol(*f.Symbol),
		InvestedAmount: *f.InvestedAmount,
		EntryPrice:     *f.EntryPrice,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if f.Quantity != nil && !f.Quantity.IsZero() {
		p.Quantity = *f.Quantity
	} else {
		p.Quantity = DeriveQuantity(p.InvestedAmount, p.EntryPrice)
	}
	if f.Status != nil {
		p.Status = *f.Status
	}
	if err := p.Validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}

// Apply returns a copy of p with the supplied fields changed and UpdatedAt
// set to now. The quantity is left alone unless supplied.
func (p Position) Apply(f Fields, now time.Time) (Position, error) {
	if f.Name != nil {
		p.Name = strings.TrimSpace(*f.Name)
	}
	if f.Symbol != nil {
		p.Symbol = NormalizeSymbol(*f.Symbol)
	}
	if f.InvestedAmount != nil {
		p.InvestedAmount = *f.InvestedAmount
	}
	if f.EntryPrice != nil {
		p.EntryPrice = *f.EntryPrice
	}
	if f.Quantity != nil {
		p.Quantity = *f.Quantity
	}
	if f.Status != nil {
		p.Status = *f.Status
	}
	p.UpdatedAt = now
	if err := p.Validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}

// Validate checks field ranges. Consistency between quantity, entry price and
// invested amount is not checked.
func (p Position) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPosition)
	}
	if p.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidPosition)
	}
	if p.InvestedAmount.IsNegative() {
		return fmt.Errorf("%w: invested amount %s is negative", ErrInvalidPosition, p.InvestedAmount)
	}
	if !p.EntryPrice.IsPositive() {
		return fmt.Errorf("%w: entry price %s must be positive", ErrInvalidPosition, p.EntryPrice)
	}
	if !p.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity %s must be positive", ErrInvalidPosition, p.Quantity)
	}
	if p.Status < StatusActive || p.Status > StatusClosed {
		return fmt.Errorf("%w: unknown status %d", ErrInvalidPosition, int(p.Status))
	}
	return nil
}

// DeriveQuantity is invested / entry, or zero when entry is not positive.
func DeriveQuantity(invested, entry decimal.Decimal) decimal.Decimal {
	if !entry.IsPositive() {
		return decimal.Zero
	}
	return invested.Div(entry)
}

// NormalizeSymbol trims and upper-cases a ticker pair.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Symbols extracts the symbols of positions in order, skipping positions
// without one. Duplicates are kept; the price feed dedupes.
func Symbols(positions []Position) []string {
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		if s := NormalizeSymbol(p.Symbol); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SortByCreated orders positions oldest first, ties broken by ID.
func SortByCreated(positions []Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		if !positions[i].CreatedAt.Equal(positions[j].CreatedAt) {
			return positions[i].CreatedAt.Before(positions[j].CreatedAt)
		}
		return positions[i].ID < positions[j].ID
	})
}

// Ptr is a convenience for building Fields literals.
func Ptr[T any](v T) *T { return &v }
