package pricefeed

import (
	"context"
	"sync"
	"time"
)

// Task is a running polling task. Stop it to release the feed.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start launches the polling task: one cycle immediately when the symbol set
// is non-empty, then one every refresh interval, and one whenever SetSymbols
// changes the set. Only one task may run per feed at a time.
func (f *Feed) Start(ctx context.Context) (*Task, error) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	f.running = true
	f.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer func() {
			f.mu.Lock()
			f.running = false
			f.mu.Unlock()
		}()
		f.poll(ctx)
	}()
	return t, nil
}

// Stop cancels the task and waits for it to exit. Safe to call repeatedly.
func (t *Task) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the task has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

func (f *Feed) poll(ctx context.Context) {
	f.log.Info().Dur("interval", f.interval).Msg("price feed polling started")
	defer f.log.Info().Msg("price feed polling stopped")

	// drop a wakeup queued before the task existed; the first cycle covers it
	select {
	case <-f.changed:
	default:
	}
	f.Refetch(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Refetch(ctx)
		case <-f.changed:
			ticker.Reset(f.interval)
			f.Refetch(ctx)
		}
	}
}
