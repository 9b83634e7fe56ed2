package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	defaultGCTime = 5 * time.Minute
	tracerName    = "postsdemo/internal/query"
)

// Config configures a Client.
type Config struct {
	// StaleTime is how long a fetched value may be reused by Ensure.
	// Zero treats every entry as stale, so every Ensure fetches.
	StaleTime time.Duration

	// GCTime is how long an entry is kept after it was last written.
	// Zero uses five minutes; a negative value keeps entries for the
	// lifetime of the client.
	GCTime time.Duration

	Observer       Observer
	TracerProvider trace.TracerProvider

	// Now overrides the clock. Tests only.
	Now func() time.Time
}

// Client owns every cache entry. It is safe for concurrent use.
type Client struct {
	staleTime time.Duration
	gcTime    time.Duration
	observer  Observer
	tracer    trace.Tracer
	now       func() time.Time

	// mu guards every entry reachable from store.
	mu    sync.Mutex
	store *gocache.Cache
	group singleflight.Group
}

type entry struct {
	data        any
	err         error
	status      Status
	updatedAt   time.Time
	fetching    bool
	invalidated bool

	// settled is closed when the entry leaves Loading or a fetch settles.
	settled chan struct{}
}

type snapshot struct {
	data      any
	err       error
	status    Status
	updatedAt time.Time
	fetching  bool
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) *Client {
	gcTime := cfg.GCTime
	if gcTime == 0 {
		gcTime = defaultGCTime
	}

	expiration := gcTime
	cleanup := gcTime
	if gcTime < 0 {
		expiration = gocache.NoExpiration
		cleanup = 0
	}

	provider := cfg.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	staleTime := cfg.StaleTime
	if staleTime < 0 {
		staleTime = 0
	}

	return &Client{
		staleTime: staleTime,
		gcTime:    expiration,
		observer:  cfg.Observer,
		tracer:    provider.Tracer(tracerName),
		now:       now,
		store:     gocache.New(expiration, cleanup),
	}
}

// Invalidate marks key stale so the next Ensure refetches it. It reports
// whether an entry existed.
func (c *Client) Invalidate(ctx context.Context, key Key) bool {
	c.mu.Lock()
	e, ok := c.peekLocked(key.String())
	if ok {
		e.invalidated = true
	}
	c.mu.Unlock()

	if ok {
		c.observe(ctx, Event{Kind: EventInvalidate, Key: key.String()})
	}
	return ok
}

// Abort settles key as failed with cause when nothing was ever loaded for it
// and no fetch is running, so a Wait on it returns instead of blocking for a
// fetch that will not start. Entries that hold a result or are being fetched
// are left alone. It reports whether the entry was settled.
func (c *Client) Abort(ctx context.Context, key Key, cause error) bool {
	if !key.valid() {
		return false
	}

	err := ErrAborted
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrAborted, cause)
	}

	name := key.String()
	c.mu.Lock()
	e := c.lookupLocked(name)
	if e.fetching || e.status != StatusLoading {
		c.mu.Unlock()
		return false
	}
	e.err = err
	e.status = StatusFailed
	if e.settled != nil {
		close(e.settled)
		e.settled = nil
	}
	c.mu.Unlock()

	c.observe(ctx, Event{Kind: EventError, Key: name, Err: err})
	return true
}

// Len returns the number of live entries.
func (c *Client) Len() int {
	return c.store.ItemCount()
}

func (c *Client) ensure(
	ctx context.Context,
	key string,
	fetch func(ctx context.Context) (any, error),
) (any, error) {
	c.mu.Lock()
	e := c.lookupLocked(key)
	if c.freshLocked(e) {
		data := e.data
		c.mu.Unlock()
		c.observe(ctx, Event{Kind: EventHit, Key: key})
		return data, nil
	}
	c.mu.Unlock()

	// The shared fetch outlives any single caller: a caller that goes away only
	// stops waiting for it.
	fetchCtx := context.WithoutCancel(ctx)
	results := c.group.DoChan(key, func() (any, error) {
		return c.fetch(fetchCtx, key, fetch)
	})
	c.observe(ctx, Event{Kind: EventJoin, Key: key})

	select {
	case res := <-results:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) fetch(
	ctx context.Context,
	key string,
	fetch func(ctx context.Context) (any, error),
) (any, error) {
	c.mu.Lock()
	e := c.lookupLocked(key)
	e.fetching = true
	// A failure with nothing to show is loading again once a retry starts.
	if e.status == StatusFailed && e.data == nil {
		e.status = StatusLoading
		e.err = nil
	}
	if e.settled == nil {
		e.settled = make(chan struct{})
	}
	c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "query.fetch", trace.WithAttributes(
		attribute.String("query.key", key),
	))
	defer span.End()

	c.observe(ctx, Event{Kind: EventFetch, Key: key})
	started := c.now()
	value, err := fetch(ctx)
	elapsed := c.now().Sub(started)

	c.mu.Lock()
	c.settleLocked(key, e, value, err)
	c.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.observe(ctx, Event{Kind: EventError, Key: key, Err: err, Duration: elapsed})
		return nil, err
	}

	c.observe(ctx, Event{Kind: EventSuccess, Key: key, Duration: elapsed})
	return value, nil
}

func (c *Client) settleLocked(key string, e *entry, value any, err error) {
	e.fetching = false
	if err != nil {
		e.err = err
		e.status = StatusFailed
	} else {
		e.data = value
		e.err = nil
		e.status = StatusReady
		e.updatedAt = c.now()
		e.invalidated = false
	}
	if e.settled != nil {
		close(e.settled)
		e.settled = nil
	}

	// The store may have dropped e mid-fetch and handed a fresh entry to a
	// waiter; carry the result over so that waiter wakes up too.
	if current, ok := c.peekLocked(key); ok && current != e {
		if current.settled != nil {
			close(current.settled)
		}
		*current = entry{
			data:      e.data,
			err:       e.err,
			status:    e.status,
			updatedAt: e.updatedAt,
		}
		c.store.Set(key, current, c.gcTime)
		return
	}
	c.store.Set(key, e, c.gcTime)
}

func (c *Client) snapshot(key string) snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.peekLocked(key)
	if !ok {
		return snapshot{status: StatusLoading}
	}
	return e.snapshot()
}

func (c *Client) wait(ctx context.Context, key string) (snapshot, error) {
	for {
		c.mu.Lock()
		e := c.lookupLocked(key)
		if e.status != StatusLoading {
			snap := e.snapshot()
			c.mu.Unlock()
			return snap, nil
		}
		if e.settled == nil {
			e.settled = make(chan struct{})
		}
		settled := e.settled
		c.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return c.snapshot(key), ctx.Err()
		}
	}
}

func (c *Client) peekLocked(key string) (*entry, bool) {
	value, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := value.(*entry)
	return e, ok
}

// lookupLocked returns the entry for key, creating a Loading entry on first
// access.
func (c *Client) lookupLocked(key string) *entry {
	if e, ok := c.peekLocked(key); ok {
		return e
	}

	e := &entry{status: StatusLoading}
	c.store.Set(key, e, c.gcTime)
	return e
}

func (c *Client) freshLocked(e *entry) bool {
	if e.status != StatusReady || e.fetching || e.invalidated {
		return false
	}
	if c.staleTime <= 0 {
		return false
	}
	return c.now().Sub(e.updatedAt) < c.staleTime
}

func (c *Client) observe(ctx context.Context, event Event) {
	if c.observer == nil {
		return
	}
	c.observer.OnQuery(ctx, event)
}

func (e *entry) snapshot() snapshot {
	return snapshot{
		data:      e.data,
		err:       e.err,
		status:    e.status,
		updatedAt: e.updatedAt,
		fetching:  e.fetching,
	}
}
