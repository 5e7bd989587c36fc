// Package pricefeed keeps a best-effort, periodically refreshed map from
// symbol to latest price for a changing set of symbols.
//
// A fetch cycle requests every symbol of the current set. It completes as a
// unit: on success the whole price map is replaced, on failure the previous
// map is kept and the error is exposed through the feed state. Errors are
// never returned to callers of Refetch; they read them from State.Err.
package pricefeed

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"portfoliowatch/internal/aggregate"
	"portfoliowatch/internal/logging"
	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/provider"
)

const (
	// DefaultRefreshInterval is the period between scheduled cycles.
	DefaultRefreshInterval = 60 * time.Second
	// DefaultCycleTimeout bounds one fetch cycle.
	DefaultCycleTimeout = 60 * time.Second
)

// ErrAlreadyRunning is returned by Start when a polling task is active.
var ErrAlreadyRunning = errors.New("price feed: polling task already running")

// Config controls the feed.
type Config struct {
	// RefreshInterval is the period between scheduled cycles.
	RefreshInterval time.Duration
	// CycleTimeout bounds one cycle. Cycles are shared between callers, so
	// they run under their own deadline instead of a caller's context.
	CycleTimeout time.Duration
}

// State is a read-only snapshot of the feed.
type State struct {
	Prices      map[string]provider.Quote `json:"prices"`
	Loading     bool                      `json:"loading"`
	Err         string                    `json:"error,omitempty"`
	LastUpdated time.Time                 `json:"last_updated"`
	Symbols     []string                  `json:"symbols"`
}

// Option customizes a Feed.
type Option func(*Feed)

// WithLogger sets the logger; the default discards.
func WithLogger(l *log.Logger) Option {
	return func(f *Feed) { f.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// WithListener registers fn to be called with the feed state after every
// completed cycle. fn runs on the goroutine that ran the cycle.
func WithListener(fn func(State)) Option {
	return func(f *Feed) { f.listeners = append(f.listeners, fn) }
}

// Feed is the price feed cache. The zero value is not usable; use New.
type Feed struct {
	p         provider.Provider
	interval  time.Duration
	timeout   time.Duration
	log       *log.Logger
	now       func() time.Time
	listeners []func(State)

	sf      singleflight.Group
	changed chan struct{}

	mu          sync.RWMutex
	symbols     []string
	key         string
	prices      map[string]provider.Quote
	inflight    map[string]int // running cycles per symbol set key
	err         string
	lastUpdated time.Time
	started     uint64 // cycles started
	applied     uint64 // sequence of the cycle whose prices are shown
	running     bool
}

// New creates a feed over p.
func New(p provider.Provider, cfg Config, opts ...Option) *Feed {
	f := &Feed{
		p:        p,
		interval: cfg.RefreshInterval,
		timeout:  cfg.CycleTimeout,
		log:      logging.Discard(),
		now:      time.Now,
		changed:  make(chan struct{}, 1),
		prices:   map[string]provider.Quote{},
		inflight: map[string]int{},
	}
	if f.interval <= 0 {
		f.interval = DefaultRefreshInterval
	}
	if f.timeout <= 0 {
		f.timeout = DefaultCycleTimeout
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NormalizeSymbols returns the effective symbol set: trimmed, upper-cased,
// without empty entries or duplicates, sorted.
func NormalizeSymbols(symbols []string) []string {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s = portfolio.NormalizeSymbol(s); s != "" {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SetSymbols replaces the symbol set. The comparison is order-insensitive;
// when the effective set is unchanged nothing happens and false is returned.
// A changed, non-empty set wakes the polling task for an immediate cycle.
func (f *Feed) SetSymbols(symbols []string) bool {
	next := NormalizeSymbols(symbols)
	key := strings.Join(next, ",")

	f.mu.Lock()
	if key == f.key && f.symbols != nil {
		f.mu.Unlock()
		return false
	}
	f.symbols = next
	f.key = key
	f.mu.Unlock()

	f.log.Debug().Strs("symbols", next).Msg("price feed symbols changed")
	if len(next) > 0 {
		select {
		case f.changed <- struct{}{}:
		default:
		}
	}
	return true
}

// Refetch runs one cycle for the current symbol set and returns the state
// after it. Concurrent calls for the same set share one cycle. With an empty
// set no request is issued.
//
// When ctx ends first Refetch returns the current state at once; the cycle
// itself keeps running for the other callers.
func (f *Feed) Refetch(ctx context.Context) State {
	f.mu.RLock()
	symbols, key := f.symbols, f.key
	f.mu.RUnlock()

	if len(symbols) == 0 {
		return f.Snapshot()
	}
	ch := f.sf.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		f.cycle(cctx, key, symbols)
		return nil, nil
	})
	select {
	case <-ch:
	case <-ctx.Done():
	}
	return f.Snapshot()
}

func (f *Feed) cycle(ctx context.Context, key string, symbols []string) {
	f.mu.Lock()
	f.started++
	seq := f.started
	f.inflight[key]++
	f.err = ""
	f.mu.Unlock()

	start := f.now()
	quotes, err := f.p.Fetch(ctx, symbols)

	f.mu.Lock()
	if f.inflight[key]--; f.inflight[key] <= 0 {
		delete(f.inflight, key)
	}
	switch {
	case seq < f.applied:
		// a newer cycle already landed
	case err != nil:
		f.err = describe(err)
	default:
		f.prices = aggregate.LatestBySymbol(quotes, f.now())
		f.applied = seq
		f.lastUpdated = f.now()
		f.err = ""
	}
	f.mu.Unlock()

	if err != nil {
		f.log.Warn().Err(err).Strs("symbols", symbols).Dur("took", f.now().Sub(start)).Msg("price fetch cycle failed")
	} else {
		f.log.Debug().Int("quotes", len(quotes)).Dur("took", f.now().Sub(start)).Msg("price fetch cycle complete")
	}

	if len(f.listeners) > 0 {
		st := f.Snapshot()
		for _, fn := range f.listeners {
			fn(st)
		}
	}
}

func describe(err error) string {
	if errors.Is(err, context.Canceled) {
		return "price fetch canceled: " + err.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "price fetch timed out: " + err.Error()
	}
	return err.Error()
}

// Snapshot copies the current state. Loading reports cycles for the current
// symbol set only and is always false while the set is empty.
func (f *Feed) Snapshot() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return State{
		Prices:      maps.Clone(f.prices),
		Loading:     len(f.symbols) > 0 && f.inflight[f.key] > 0,
		Err:         f.err,
		LastUpdated: f.lastUpdated,
		Symbols:     slices.Clone(f.symbols),
	}
}

// Prices returns the symbol -> price view used by valuation.
func (f *Feed) Prices() map[string]decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return aggregate.Prices(f.prices)
}
