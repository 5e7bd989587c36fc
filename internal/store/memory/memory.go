// Package memory is an in-process position store.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/store"
)

// subscriberBuffer is the channel capacity per subscriber. A subscriber that
// falls this far behind is dropped: its channel is closed and it has to
// subscribe again and reload with List.
const subscriberBuffer = 64

// Store keeps positions in memory and fans out change events.
type Store struct {
	now func() time.Time

	mu        sync.Mutex
	positions []portfolio.Position
	subs      map[int]chan store.Event
	nextSub   int
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.Subscriber = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{now: time.Now, subs: map[int]chan store.Event{}}
}

// DemoFields are the sample positions shown when no database is configured.
func DemoFields() []portfolio.Fields {
	mk := func(name, symbol, invested, entry, qty string) portfolio.Fields {
		return portfolio.Fields{
			Name:           portfolio.Ptr(name),
			Symbol:         portfolio.Ptr(symbol),
			InvestedAmount: portfolio.Ptr(decimal.RequireFromString(invested)),
			EntryPrice:     portfolio.Ptr(decimal.RequireFromString(entry)),
			Quantity:       portfolio.Ptr(decimal.RequireFromString(qty)),
			Status:         portfolio.Ptr(portfolio.StatusActive),
		}
	}
	return []portfolio.Fields{
		mk("Bitcoin", "BTCUSDT", "1000", "42000", "0.0238"),
		mk("Ethereum", "ETHUSDT", "500", "2200", "0.227"),
		mk("Solana", "SOLUSDT", "300", "95", "3.158"),
	}
}

// Seed creates every entry of fields in order.
func Seed(ctx context.Context, s store.Store, fields []portfolio.Fields) error {
	for _, f := range fields {
		if _, err := s.Create(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) List(_ context.Context) ([]portfolio.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.positions)
	portfolio.SortByCreated(out)
	return out, nil
}

func (s *Store) Create(_ context.Context, f portfolio.Fields) (portfolio.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := portfolio.NewPosition(uuid.NewString(), f, s.tick())
	if err != nil {
		return portfolio.Position{}, err
	}
	s.positions = append(s.positions, p)
	s.publish(store.Event{Kind: store.EventInsert, Position: p})
	return p, nil
}

func (s *Store) Update(_ context.Context, id string, f portfolio.Fields) (portfolio.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return portfolio.Position{}, store.ErrNotFound
	}
	p, err := s.positions[i].Apply(f, s.tick())
	if err != nil {
		return portfolio.Position{}, err
	}
	s.positions[i] = p
	s.publish(store.Event{Kind: store.EventUpdate, Position: p})
	return p, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return store.ErrNotFound
	}
	s.positions = slices.Delete(s.positions, i, i+1)
	s.publish(store.Event{Kind: store.EventDelete, Position: portfolio.Position{ID: id}})
	return nil
}

// Subscribe registers a listener until ctx ends.
func (s *Store) Subscribe(ctx context.Context) (<-chan store.Event, error) {
	ch := make(chan store.Event, subscriberBuffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.unsubscribe(id)
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.positions, func(p portfolio.Position) bool { return p.ID == id })
}

// tick returns a timestamp strictly after the previous one so that creation
// order survives a coarse clock.
func (s *Store) tick() time.Time {
	now := s.now().UTC()
	for _, p := range s.positions {
		if !now.After(p.CreatedAt) {
			now = p.CreatedAt.Add(time.Microsecond)
		}
		if !now.After(p.UpdatedAt) {
			now = p.UpdatedAt.Add(time.Microsecond)
		}
	}
	return now
}

// publish must be called with s.mu held.
func (s *Store) publish(ev store.Event) {
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.unsubscribe(id)
		}
	}
}

// unsubscribe must be called with s.mu held.
func (s *Store) unsubscribe(id int) {
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}
