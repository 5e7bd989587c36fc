// Package mirror keeps an eventually consistent in-memory copy of the
// position store, fed by a full refresh plus change events.
package mirror

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/phuslu/log"

	"portfoliowatch/internal/logging"
	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/store"
)

// resubscribeDelay is the pause before Run subscribes again after the
// change stream ended.
const resubscribeDelay = 5 * time.Second

// Mirror is a local copy of the store's positions.
type Mirror struct {
	src store.Store
	log *log.Logger

	mu        sync.RWMutex
	positions []portfolio.Position
	listeners []func([]portfolio.Position)
}

// New creates an empty mirror of src. Call Refresh or Run to fill it.
func New(src store.Store, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Mirror{src: src, log: logger}
}

// OnChange registers fn to be called with the positions after every change.
func (m *Mirror) OnChange(fn func([]portfolio.Position)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Refresh replaces the mirror with a fresh List.
func (m *Mirror) Refresh(ctx context.Context) error {
	list, err := m.src.List(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.positions = list
	m.mu.Unlock()
	m.notify()
	return nil
}

// Apply folds one change event into the mirror.
func (m *Mirror) Apply(ev store.Event) {
	m.mu.Lock()
	i := slices.IndexFunc(m.positions, func(p portfolio.Position) bool { return p.ID == ev.Position.ID })
	switch ev.Kind {
	case store.EventInsert, store.EventUpdate:
		if i >= 0 {
			m.positions[i] = ev.Position
		} else {
			m.positions = append(m.positions, ev.Position)
		}
	case store.EventDelete:
		if i >= 0 {
			m.positions = slices.Delete(m.positions, i, i+1)
		}
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.notify()
}

// Run subscribes to sub, refreshes, then applies events until ctx ends.
// When the subscription breaks it waits and starts over, so events missed
// in between are covered by the next refresh.
func (m *Mirror) Run(ctx context.Context, sub store.Subscriber) error {
	for {
		err := m.follow(ctx, sub)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			m.log.Warn().Err(err).Msg("position mirror out of sync")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(resubscribeDelay):
		}
	}
}

func (m *Mirror) follow(ctx context.Context, sub store.Subscriber) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := sub.Subscribe(ctx)
	if err != nil {
		return err
	}
	if err := m.Refresh(ctx); err != nil {
		return err
	}
	m.log.Debug().Int("positions", len(m.Positions())).Msg("position mirror following changes")
	for ev := range events {
		m.Apply(ev)
	}
	return nil
}

// Positions returns a copy of the mirrored positions, oldest first.
func (m *Mirror) Positions() []portfolio.Position {
	m.mu.RLock()
	out := slices.Clone(m.positions)
	m.mu.RUnlock()
	portfolio.SortByCreated(out)
	return out
}

// Symbols returns the symbols of the mirrored positions.
func (m *Mirror) Symbols() []string {
	return portfolio.Symbols(m.Positions())
}

func (m *Mirror) notify() {
	m.mu.RLock()
	listeners := slices.Clone(m.listeners)
	m.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}
	positions := m.Positions()
	for _, fn := range listeners {
		fn(positions)
	}
}
