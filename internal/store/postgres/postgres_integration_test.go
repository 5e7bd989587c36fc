//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/store"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.Run(ctx, "postgres:16-alpine",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "folio",
			"POSTGRES_PASSWORD": "folio",
			"POSTGRES_DB":       "folio",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithDeadline(90*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://folio:folio@%s:%s/folio?sslmode=disable", host, port.Port())
}

func TestStore_Integration(t *testing.T) {
	ctx := t.Context()
	s, err := Open(ctx, startPostgres(t))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.EnsureSchema(ctx))
	// bootstrap is repeatable
	require.NoError(t, s.EnsureSchema(ctx))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := s.Subscribe(subCtx)
	require.NoError(t, err)

	created, err := s.Create(ctx, portfolio.Fields{
		Name:           portfolio.Ptr("Bitcoin"),
		Symbol:         portfolio.Ptr("btcusdt"),
		InvestedAmount: portfolio.Ptr(decimal.NewFromInt(1000)),
		EntryPrice:     portfolio.Ptr(decimal.NewFromInt(42000)),
		Quantity:       portfolio.Ptr(decimal.RequireFromString("0.0238")),
	})
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, created.ID, list[0].ID)
	require.Equal(t, "BTCUSDT", list[0].Symbol)
	require.True(t, list[0].Quantity.Equal(decimal.RequireFromString("0.0238")))
	require.True(t, created.CreatedAt.Equal(list[0].CreatedAt))

	updated, err := s.Update(ctx, created.ID, portfolio.Fields{Status: portfolio.Ptr(portfolio.StatusClosed)})
	require.NoError(t, err)
	require.Equal(t, portfolio.StatusClosed, updated.Status)

	require.NoError(t, s.Delete(ctx, created.ID))
	require.ErrorIs(t, s.Delete(ctx, created.ID), store.ErrNotFound)
	_, err = s.Update(ctx, "not-a-uuid", portfolio.Fields{})
	require.ErrorIs(t, err, store.ErrNotFound)

	want := []store.EventKind{store.EventInsert, store.EventUpdate, store.EventDelete}
	for _, kind := range want {
		select {
		case ev := <-events:
			require.Equal(t, kind, ev.Kind)
			require.Equal(t, created.ID, ev.Position.ID)
		case <-time.After(10 * time.Second):
			t.Fatalf("no %s notification", kind)
		}
	}
}
