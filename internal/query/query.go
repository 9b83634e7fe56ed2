// Package query is a keyed data cache for route loaders and views.
//
// Loaders call Ensure before a page renders; views call Read (or Wait, for live
// subscriptions) and never fetch on their own. Concurrent ensures for the same key
// share a single in-flight fetch.
package query

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrInvalidKey is returned when an Options value carries an empty key.
var ErrInvalidKey = errors.New("query: key is invalid")

// ErrNoFetch is returned when an Options value has no fetch function.
var ErrNoFetch = errors.New("query: fetch function is required")

// ErrAborted marks an entry settled by Abort rather than by a fetch.
var ErrAborted = errors.New("query: load aborted")

// Status is the load state of a cache entry as seen by a view.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "loading"
	}
}

// Key identifies a cache entry. Parts are joined with ":" so that
// Key{"post", "7"} is stored as "post:7".
type Key []string

func (k Key) String() string {
	return strings.Join(k, ":")
}

func (k Key) valid() bool {
	if len(k) == 0 {
		return false
	}
	for _, part := range k {
		if strings.TrimSpace(part) == "" {
			return false
		}
	}
	return true
}

// Options pairs a key with the function that loads its value.
type Options[T any] struct {
	Key   Key
	Fetch func(ctx context.Context) (T, error)
}

// State is a snapshot of one entry.
//
// Data keeps the last successful value even when a later refetch failed, so a
// Failed state may still carry Data.
type State[T any] struct {
	Status    Status
	Data      T
	Err       error
	UpdatedAt time.Time
	Fetching  bool
}

// Ensure returns the cached value for opts.Key when it is present and fresh and
// otherwise runs opts.Fetch, sharing the fetch with any concurrent caller.
func Ensure[T any](ctx context.Context, c *Client, opts Options[T]) (T, error) {
	var zero T
	if !opts.Key.valid() {
		return zero, ErrInvalidKey
	}
	if opts.Fetch == nil {
		return zero, ErrNoFetch
	}

	value, err := c.ensure(ctx, opts.Key.String(), func(ctx context.Context) (any, error) {
		return opts.Fetch(ctx)
	})
	if err != nil {
		return zero, err
	}

	typed, _ := value.(T)
	return typed, nil
}

// Read returns the current state of opts.Key without fetching. A key that was
// never ensured reads as Loading.
func Read[T any](c *Client, opts Options[T]) State[T] {
	if !opts.Key.valid() {
		return State[T]{Status: StatusFailed, Err: ErrInvalidKey}
	}
	return typedState[T](c.snapshot(opts.Key.String()))
}

// Wait blocks until opts.Key leaves the Loading state or ctx is done. It does
// not fetch; some other caller has to Ensure the key.
func Wait[T any](ctx context.Context, c *Client, opts Options[T]) (State[T], error) {
	if !opts.Key.valid() {
		return State[T]{Status: StatusFailed, Err: ErrInvalidKey}, ErrInvalidKey
	}

	snap, err := c.wait(ctx, opts.Key.String())
	return typedState[T](snap), err
}

func typedState[T any](snap snapshot) State[T] {
	state := State[T]{
		Status:    snap.status,
		Err:       snap.err,
		UpdatedAt: snap.updatedAt,
		Fetching:  snap.fetching,
	}
	if snap.data != nil {
		state.Data, _ = snap.data.(T)
	}
	return state
}
