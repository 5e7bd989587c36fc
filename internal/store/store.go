// Package store defines the position store consumed by the service and CLI,
// together with its change-event subscription.
package store

import (
	"context"
	"errors"

	"portfoliowatch/internal/portfolio"
)

// ErrNotFound is returned when a position id does not exist.
var ErrNotFound = errors.New("position not found")

// Store persists positions.
type Store interface {
	// List returns all positions, oldest first.
	List(ctx context.Context) ([]portfolio.Position, error)
	Create(ctx context.Context, f portfolio.Fields) (portfolio.Position, error)
	Update(ctx context.Context, id string, f portfolio.Fields) (portfolio.Position, error)
	Delete(ctx context.Context, id string) error
}

// Subscriber delivers change events. The returned channel is closed when
// ctx ends or the subscription breaks.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// EventKind is the type of a change event.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// Event is one change to the store. For deletes only Position.ID is set.
type Event struct {
	Kind     EventKind          `json:"type"`
	Position portfolio.Position `json:"record"`
}
