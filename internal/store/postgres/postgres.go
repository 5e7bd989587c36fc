// Package postgres stores positions in the investments table of a Postgres
// (or Supabase) database and streams changes over LISTEN/NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phuslu/log"

	"portfoliowatch/internal/logging"
	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/store"
)

// Channel is the NOTIFY channel written by the change trigger.
const Channel = "investments_changes"

const schema = `
CREATE TABLE IF NOT EXISTS investments (
	id              uuid PRIMARY KEY,
	name            text NOT NULL,
	symbol          text NOT NULL,
	invested_amount numeric NOT NULL,
	entry_price     numeric NOT NULL,
	quantity        numeric NOT NULL,
	status          text NOT NULL DEFAULT 'Active',
	created_at      timestamptz NOT NULL DEFAULT now(),
	updated_at      timestamptz NOT NULL DEFAULT now()
);

CREATE OR REPLACE FUNCTION investments_notify() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		PERFORM pg_notify('investments_changes',
			json_build_object('type', TG_OP, 'record', json_build_object('id', OLD.id))::text);
		RETURN OLD;
	END IF;
	PERFORM pg_notify('investments_changes',
		json_build_object('type', TG_OP, 'record', row_to_json(NEW))::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS investments_notify ON investments;
CREATE TRIGGER investments_notify
	AFTER INSERT OR UPDATE OR DELETE ON investments
	FOR EACH ROW EXECUTE FUNCTION investments_notify();
`

const selectColumns = `id::text, name, symbol, invested_amount, entry_price, quantity, status, created_at, updated_at`

// Store is a pgx-backed position store.
type Store struct {
	pool *pgxpool.Pool
	log  *log.Logger
	now  func() time.Time
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.Subscriber = (*Store)(nil)
)

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger; the default discards.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open connects to databaseURL and verifies connectivity.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool, log: logging.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// EnsureSchema creates the investments table and its change trigger when
// they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]portfolio.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM investments ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanPosition)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, f portfolio.Fields) (portfolio.Position, error) {
	p, err := portfolio.NewPosition(uuid.NewString(), f, s.timestamp())
	if err != nil {
		return portfolio.Position{}, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO investments (id, name, symbol, invested_amount, entry_price, quantity, status, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.Symbol, p.InvestedAmount, p.EntryPrice, p.Quantity, p.Status.String(), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return portfolio.Position{}, fmt.Errorf("create position: %w", err)
	}
	return p, nil
}

func (s *Store) Update(ctx context.Context, id string, f portfolio.Fields) (portfolio.Position, error) {
	if _, err := uuid.Parse(id); err != nil {
		return portfolio.Position{}, store.ErrNotFound
	}

	var updated portfolio.Position
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+selectColumns+` FROM investments WHERE id = $1::uuid FOR UPDATE`, id)
		if err != nil {
			return err
		}
		current, err := pgx.CollectExactlyOneRow(rows, scanPosition)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}

		updated, err = current.Apply(f, s.timestamp())
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE investments
			SET name = $2, symbol = $3, invested_amount = $4, entry_price = $5, quantity = $6, status = $7, updated_at = $8
			WHERE id = $1::uuid`,
			id, updated.Name, updated.Symbol, updated.InvestedAmount, updated.EntryPrice, updated.Quantity, updated.Status.String(), updated.UpdatedAt)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, portfolio.ErrInvalidPosition) {
			return portfolio.Position{}, err
		}
		return portfolio.Position{}, fmt.Errorf("update position %s: %w", id, err)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM investments WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("delete position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// timestamp is now at the column's microsecond precision, so returned
// positions equal what List reads back.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func scanPosition(row pgx.CollectableRow) (portfolio.Position, error) {
	var (
		p      portfolio.Position
		status string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Symbol, &p.InvestedAmount, &p.EntryPrice, &p.Quantity, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return portfolio.Position{}, err
	}
	if p.Status, err = portfolio.ParseStatus(status); err != nil {
		return portfolio.Position{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
