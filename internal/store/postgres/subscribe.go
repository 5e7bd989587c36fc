package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"portfoliowatch/internal/store"
)

// Subscribe listens on Channel with a dedicated connection and decodes each
// notification into an event. The channel closes when ctx ends or the
// connection fails; callers resubscribe and List to recover.
func (s *Store) Subscribe(ctx context.Context) (<-chan store.Event, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", Channel, err)
	}

	// the session keeps LISTEN active, so it must not return to the pool
	listener := conn.Hijack()

	out := make(chan store.Event, 16)
	go func() {
		defer close(out)
		defer listener.Close(context.Background())

		for {
			n, err := listener.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn().Err(err).Msg("postgres change subscription ended")
				}
				return
			}
			ev, err := decodeNotification([]byte(n.Payload))
			if err != nil {
				s.log.Warn().Err(err).Str("payload", n.Payload).Msg("skip undecodable change notification")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func decodeNotification(payload []byte) (store.Event, error) {
	var ev store.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return store.Event{}, fmt.Errorf("decode notification: %w", err)
	}
	switch ev.Kind {
	case store.EventInsert, store.EventUpdate, store.EventDelete:
	default:
		return store.Event{}, fmt.Errorf("decode notification: unknown type %q", ev.Kind)
	}
	if ev.Position.ID == "" {
		return store.Event{}, fmt.Errorf("decode notification: missing record id")
	}
	ev.Position.CreatedAt = ev.Position.CreatedAt.UTC()
	ev.Position.UpdatedAt = ev.Position.UpdatedAt.UTC()
	return ev, nil
}
