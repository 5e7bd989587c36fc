package pricefeed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"portfoliowatch/internal/provider"
)

type fakeProvider struct {
	mu     sync.Mutex
	calls  [][]string
	prices map[string]string
	err    error
	block  chan struct{}
	gates  map[string]chan error // per symbol set, joined with ","
	n      atomic.Int32
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	p.n.Add(1)
	p.mu.Lock()
	p.calls = append(p.calls, append([]string(nil), symbols...))
	block, err, prices := p.block, p.err, p.prices
	gate := p.gates[strings.Join(symbols, ",")]
	p.mu.Unlock()

	if gate != nil {
		select {
		case err = <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]provider.Quote, 0, len(symbols))
	for _, s := range symbols {
		price, ok := prices[s]
		if !ok {
			return nil, errors.New("Failed to fetch price for " + s)
		}
		out = append(out, provider.Quote{Symbol: s, Price: decimal.RequireFromString(price), Source: "fake"})
	}
	return out, nil
}

func (p *fakeProvider) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *fakeProvider) callCount() int { return int(p.n.Load()) }

func newFake() *fakeProvider {
	return &fakeProvider{prices: map[string]string{
		"BTCUSDT": "45000",
		"ETHUSDT": "2100",
		"SOLUSDT": "100",
	}}
}

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{" ethusdt", "BTCUSDT", "", "btcusdt", "  "})
	require.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, got)
	require.Empty(t, NormalizeSymbols(nil))
}

func TestSetSymbols_OrderInsensitive(t *testing.T) {
	f := New(newFake(), Config{})

	require.True(t, f.SetSymbols([]string{"BTCUSDT", "ETHUSDT"}))
	require.False(t, f.SetSymbols([]string{"ETHUSDT", "btcusdt"}))
	require.False(t, f.SetSymbols([]string{"ETHUSDT", "BTCUSDT", "BTCUSDT"}))
	require.True(t, f.SetSymbols([]string{"ETHUSDT"}))
	require.Equal(t, []string{"ETHUSDT"}, f.Snapshot().Symbols)
}

func TestRefetch_SuccessReplacesPrices(t *testing.T) {
	p := newFake()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := New(p, Config{}, WithClock(func() time.Time { return now }))
	f.SetSymbols([]string{"BTCUSDT", "ETHUSDT"})

	st := f.Refetch(t.Context())

	require.False(t, st.Loading)
	require.Empty(t, st.Err)
	require.Equal(t, now, st.LastUpdated)
	require.Len(t, st.Prices, 2)
	require.True(t, st.Prices["BTCUSDT"].Price.Equal(decimal.NewFromInt(45000)))

	prices := f.Prices()
	require.True(t, prices["ETHUSDT"].Equal(decimal.NewFromInt(2100)))
	require.Equal(t, [][]string{{"BTCUSDT", "ETHUSDT"}}, p.calls)
}

func TestRefetch_FailureKeepsPreviousPrices(t *testing.T) {
	p := newFake()
	f := New(p, Config{})
	f.SetSymbols([]string{"BTCUSDT"})
	first := f.Refetch(t.Context())
	require.Empty(t, first.Err)

	p.setErr(errors.New("Failed to fetch price for BTCUSDT"))
	st := f.Refetch(t.Context())

	require.Equal(t, "Failed to fetch price for BTCUSDT", st.Err)
	require.False(t, st.Loading)
	require.Equal(t, first.LastUpdated, st.LastUpdated)
	require.True(t, st.Prices["BTCUSDT"].Price.Equal(decimal.NewFromInt(45000)))

	// a later success clears the error
	p.setErr(nil)
	st = f.Refetch(t.Context())
	require.Empty(t, st.Err)
}

func TestRefetch_OneBadSymbolFailsCycle(t *testing.T) {
	p := newFake()
	f := New(p, Config{})
	f.SetSymbols([]string{"BTCUSDT", "NOPEUSDT"})

	st := f.Refetch(t.Context())

	require.Equal(t, "Failed to fetch price for NOPEUSDT", st.Err)
	require.Empty(t, st.Prices)
	require.True(t, st.LastUpdated.IsZero())
}

func TestRefetch_EmptySetIssuesNoRequest(t *testing.T) {
	p := newFake()
	f := New(p, Config{})
	f.SetSymbols(nil)

	st := f.Refetch(t.Context())

	require.False(t, st.Loading)
	require.Empty(t, st.Prices)
	require.Zero(t, p.callCount())
}

func TestRefetch_ConcurrentCallsShareCycle(t *testing.T) {
	p := newFake()
	p.block = make(chan struct{})
	f := New(p, Config{})
	f.SetSymbols([]string{"BTCUSDT"})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Refetch(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return f.Snapshot().Loading }, time.Second, 5*time.Millisecond)
	// let the other callers pile up on the in-flight cycle
	time.Sleep(20 * time.Millisecond)
	close(p.block)
	wg.Wait()

	require.Equal(t, 1, p.callCount())
	require.False(t, f.Snapshot().Loading)
}

func TestRefetch_ListenerSeesCompletedState(t *testing.T) {
	var got []State
	f := New(newFake(), Config{}, WithListener(func(s State) { got = append(got, s) }))
	f.SetSymbols([]string{"SOLUSDT"})

	f.Refetch(t.Context())

	require.Len(t, got, 1)
	require.False(t, got[0].Loading)
	require.Contains(t, got[0].Prices, "SOLUSDT")
}

func TestRefetch_CallerCancelLeavesSharedCycleRunning(t *testing.T) {
	p := newFake()
	p.block = make(chan struct{})
	f := New(p, Config{})
	f.SetSymbols([]string{"BTCUSDT"})

	reqCtx, cancelReq := context.WithCancel(t.Context())
	first := make(chan State, 1)
	go func() { first <- f.Refetch(reqCtx) }()
	require.Eventually(t, func() bool { return f.Snapshot().Loading }, time.Second, 5*time.Millisecond)

	second := make(chan State, 1)
	go func() { second <- f.Refetch(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancelReq()
	select {
	case st := <-first:
		require.True(t, st.Loading)
		require.Empty(t, st.Err)
	case <-time.After(time.Second):
		t.Fatal("canceled caller still waiting on the cycle")
	}

	close(p.block)
	st := <-second
	require.Empty(t, st.Err)
	require.False(t, st.Loading)
	require.Contains(t, st.Prices, "BTCUSDT")
	require.Equal(t, 1, p.callCount())
}

func TestRefetch_CycleTimeoutReported(t *testing.T) {
	p := newFake()
	p.block = make(chan struct{})
	defer close(p.block)
	f := New(p, Config{CycleTimeout: 20 * time.Millisecond})
	f.SetSymbols([]string{"BTCUSDT"})

	st := f.Refetch(t.Context())

	require.Contains(t, st.Err, "timed out")
	require.False(t, st.Loading)
	require.Empty(t, st.Prices)
}

func TestSetSymbols_EmptySetClearsLoading(t *testing.T) {
	p := newFake()
	p.block = make(chan struct{})
	f := New(p, Config{})
	f.SetSymbols([]string{"BTCUSDT"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Refetch(context.Background())
	}()
	require.Eventually(t, func() bool { return f.Snapshot().Loading }, time.Second, 5*time.Millisecond)

	require.True(t, f.SetSymbols(nil))
	require.False(t, f.Snapshot().Loading)
	require.False(t, f.Refetch(t.Context()).Loading)

	// a different set does not inherit the old cycle either
	f.SetSymbols([]string{"ETHUSDT"})
	require.False(t, f.Snapshot().Loading)

	close(p.block)
	<-done
	require.Equal(t, 1, p.callCount())
}

func TestRefetch_OlderFailureDoesNotOverrideNewerSuccess(t *testing.T) {
	p := newFake()
	p.gates = map[string]chan error{"BTCUSDT": make(chan error)}
	f := New(p, Config{})
	f.SetSymbols([]string{"BTCUSDT"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Refetch(context.Background())
	}()
	require.Eventually(t, func() bool { return f.Snapshot().Loading }, time.Second, 5*time.Millisecond)

	f.SetSymbols([]string{"BTCUSDT", "ETHUSDT"})
	st := f.Refetch(t.Context())
	require.Empty(t, st.Err)
	require.Len(t, st.Prices, 2)

	p.gates["BTCUSDT"] <- errors.New("Failed to fetch price for BTCUSDT")
	<-done

	st = f.Snapshot()
	require.Empty(t, st.Err)
	require.Len(t, st.Prices, 2)
	require.Contains(t, st.Prices, "ETHUSDT")
}

func TestStart_FetchesImmediatelyAndOnInterval(t *testing.T) {
	p := newFake()
	f := New(p, Config{RefreshInterval: 30 * time.Millisecond})
	f.SetSymbols([]string{"BTCUSDT"})

	task, err := f.Start(t.Context())
	require.NoError(t, err)
	defer task.Stop()

	require.Eventually(t, func() bool { return p.callCount() >= 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.callCount() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestStart_SymbolChangeTriggersCycle(t *testing.T) {
	p := newFake()
	f := New(p, Config{RefreshInterval: time.Hour})
	f.SetSymbols([]string{"BTCUSDT"})

	task, err := f.Start(t.Context())
	require.NoError(t, err)
	defer task.Stop()
	require.Eventually(t, func() bool { return p.callCount() == 1 }, time.Second, 5*time.Millisecond)

	require.False(t, f.SetSymbols([]string{"btcusdt"}))
	require.Never(t, func() bool { return p.callCount() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	require.True(t, f.SetSymbols([]string{"BTCUSDT", "ETHUSDT"}))
	require.Eventually(t, func() bool {
		_, ok := f.Snapshot().Prices["ETHUSDT"]
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestStart_EmptySetStaysIdle(t *testing.T) {
	p := newFake()
	f := New(p, Config{RefreshInterval: 10 * time.Millisecond})

	task, err := f.Start(t.Context())
	require.NoError(t, err)
	defer task.Stop()

	require.Never(t, func() bool { return p.callCount() > 0 }, 60*time.Millisecond, 5*time.Millisecond)
}

func TestTask_StopHaltsPolling(t *testing.T) {
	p := newFake()
	f := New(p, Config{RefreshInterval: 10 * time.Millisecond})
	f.SetSymbols([]string{"BTCUSDT"})

	task, err := f.Start(t.Context())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.callCount() >= 2 }, time.Second, 5*time.Millisecond)

	task.Stop()
	task.Stop()
	n := p.callCount()
	require.Never(t, func() bool { return p.callCount() > n }, 60*time.Millisecond, 5*time.Millisecond)

	select {
	case <-task.Done():
	default:
		t.Fatal("task not done after Stop")
	}
}

func TestStart_SecondTaskRejectedUntilStopped(t *testing.T) {
	f := New(newFake(), Config{RefreshInterval: time.Hour})

	task, err := f.Start(t.Context())
	require.NoError(t, err)

	_, err = f.Start(t.Context())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	task.Stop()
	again, err := f.Start(t.Context())
	require.NoError(t, err)
	again.Stop()
}

func TestStart_ParentCancelStopsTask(t *testing.T) {
	f := New(newFake(), Config{RefreshInterval: time.Hour})
	ctx, cancel := context.WithCancel(t.Context())

	task, err := f.Start(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not exit after parent cancel")
	}
}
