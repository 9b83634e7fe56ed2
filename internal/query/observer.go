package query

import (
	"context"
	"time"
)

// EventKind names a cache operation reported to an Observer.
type EventKind string

const (
	// EventHit is an Ensure answered from a fresh entry.
	EventHit EventKind = "hit"
	// EventJoin is an Ensure waiting on the shared fetch for its key.
	EventJoin EventKind = "join"
	// EventFetch is the start of a fetch. It fires once per shared fetch.
	EventFetch      EventKind = "fetch"
	EventSuccess    EventKind = "success"
	EventError      EventKind = "error"
	EventInvalidate EventKind = "invalidate"
)

// Event describes one cache operation.
type Event struct {
	Kind     EventKind
	Key      string
	Err      error
	Duration time.Duration
}

// Observer receives cache events. Calls may come from several goroutines.
type Observer interface {
	OnQuery(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, event Event)

// OnQuery implements Observer.
func (f ObserverFunc) OnQuery(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}
