package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/store"
)

func TestCreateListUpdateDelete(t *testing.T) {
	ctx := t.Context()
	s := New()

	require.NoError(t, Seed(ctx, s, DemoFields()))
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, portfolio.Symbols(list))
	require.NotEmpty(t, list[0].ID)
	require.NotEqual(t, list[0].ID, list[1].ID)

	updated, err := s.Update(ctx, list[1].ID, portfolio.Fields{Status: portfolio.Ptr(portfolio.StatusHolding)})
	require.NoError(t, err)
	require.Equal(t, portfolio.StatusHolding, updated.Status)
	require.Equal(t, "ETHUSDT", updated.Symbol)
	require.True(t, updated.UpdatedAt.After(list[1].UpdatedAt))

	require.NoError(t, s.Delete(ctx, list[0].ID))
	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ETHUSDT", "SOLUSDT"}, portfolio.Symbols(list))
}

func TestCreate_DerivesQuantityAndValidates(t *testing.T) {
	s := New()

	p, err := s.Create(t.Context(), portfolio.Fields{
		Name:           portfolio.Ptr("Bitcoin"),
		Symbol:         portfolio.Ptr("btcusdt"),
		InvestedAmount: portfolio.Ptr(decimal.NewFromInt(1000)),
		EntryPrice:     portfolio.Ptr(decimal.NewFromInt(40000)),
	})
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", p.Symbol)
	require.True(t, p.Quantity.Equal(decimal.RequireFromString("0.025")))

	_, err = s.Create(t.Context(), portfolio.Fields{Name: portfolio.Ptr("x")})
	require.ErrorIs(t, err, portfolio.ErrInvalidPosition)
}

func TestUnknownIDs(t *testing.T) {
	s := New()
	_, err := s.Update(t.Context(), "missing", portfolio.Fields{})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.Delete(t.Context(), "missing"), store.ErrNotFound)
}

func TestList_OldestFirstWithFrozenClock(t *testing.T) {
	s := New()
	frozen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }

	require.NoError(t, Seed(t.Context(), s, DemoFields()))
	list, err := s.List(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, portfolio.Symbols(list))
	require.True(t, list[1].CreatedAt.After(list[0].CreatedAt))
}

func TestSubscribe_ReceivesEventsUntilCanceled(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(t.Context())
	events, err := s.Subscribe(ctx)
	require.NoError(t, err)

	p, err := s.Create(t.Context(), DemoFields()[0])
	require.NoError(t, err)
	_, err = s.Update(t.Context(), p.ID, portfolio.Fields{Name: portfolio.Ptr("BTC")})
	require.NoError(t, err)
	require.NoError(t, s.Delete(t.Context(), p.ID))

	kinds := make([]store.EventKind, 0, 3)
	for range 3 {
		ev := <-events
		require.Equal(t, p.ID, ev.Position.ID)
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []store.EventKind{store.EventInsert, store.EventUpdate, store.EventDelete}, kinds)

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-events
		return !open
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribe_SlowSubscriberIsDropped(t *testing.T) {
	s := New()
	events, err := s.Subscribe(t.Context())
	require.NoError(t, err)

	for range subscriberBuffer + 1 {
		_, err := s.Create(t.Context(), DemoFields()[0])
		require.NoError(t, err)
	}

	n := 0
	for range events {
		n++
	}
	require.Equal(t, subscriberBuffer, n)

	// the next subscriber starts fresh
	again, err := s.Subscribe(t.Context())
	require.NoError(t, err)
	require.NoError(t, s.Delete(t.Context(), mustFirstID(t, s)))
	ev := <-again
	require.Equal(t, store.EventDelete, ev.Kind)
}

func mustFirstID(t *testing.T, s *Store) string {
	t.Helper()
	list, err := s.List(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, list)
	return list[0].ID
}
