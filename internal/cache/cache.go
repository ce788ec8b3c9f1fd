package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind describes what happened to an entry
type EventKind int

const (
	EventUpdated EventKind = iota
	EventFailed
	EventInvalidated
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventUpdated:
		return "updated"
	case EventFailed:
		return "failed"
	case EventInvalidated:
		return "invalidated"
	case EventRemoved:
		return "removed"
	}
	return "unknown"
}

// Entry is the latest known state of one resource
type Entry struct {
	Value     any
	Err       error
	Seq       uint64
	UpdatedAt time.Time
	FailedAt  time.Time
	Stale     bool
}

// HasValue reports whether a value was ever applied
func (e Entry) HasValue() bool {
	return !e.UpdatedAt.IsZero()
}

// Event is delivered to subscribers on every change
type Event struct {
	Key   Key
	Kind  EventKind
	Entry Entry
}

// Observer receives counters about cache traffic
type Observer interface {
	Applied(resource string)
	Discarded(resource string)
	Failed(resource string)
}

type nopObserver struct{}

func (nopObserver) Applied(string)   {}
func (nopObserver) Discarded(string) {}
func (nopObserver) Failed(string)    {}

type subscription struct {
	prefix string
	exact  bool
	fn     func(Event)
}

// Cache is a process-wide keyed store of the latest value of each remote resource.
// Writers must obtain a sequence number with Issue before starting a request;
// results carrying a sequence at or below the last applied one are discarded.
type Cache struct {
	logger   *zap.Logger
	observer Observer

	mu         sync.Mutex
	issued     map[Key]uint64
	applied    map[Key]uint64
	entries    map[Key]*Entry
	subs       map[string]subscription
	refreshers map[Key]map[string]func()
}

// Option configures a Cache
type Option func(*Cache)

// WithObserver attaches a traffic observer
func WithObserver(o Observer) Option {
	return func(c *Cache) {
		if o != nil {
			c.observer = o
		}
	}
}

// New creates a new Cache
func New(logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		logger:     logger.Named("cache"),
		observer:   nopObserver{},
		issued:     make(map[Key]uint64),
		applied:    make(map[Key]uint64),
		entries:    make(map[Key]*Entry),
		subs:       make(map[string]subscription),
		refreshers: make(map[Key]map[string]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue returns the next sequence number for key
func (c *Cache) Issue(key Key) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.issued[key]++
	return c.issued[key]
}

// Issued returns the last sequence number handed out for key
func (c *Cache) Issued(key Key) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issued[key]
}

// Put applies value for key unless a later result was already applied
func (c *Cache) Put(key Key, seq uint64, value any) bool {
	c.mu.Lock()
	if seq <= c.applied[key] {
		c.mu.Unlock()
		c.discard(key, seq)
		return false
	}
	c.applied[key] = seq

	e := c.entry(key)
	e.Value = value
	e.Err = nil
	e.Seq = seq
	e.Stale = false
	e.UpdatedAt = time.Now()
	ev := Event{Key: key, Kind: EventUpdated, Entry: *e}
	subs := c.matching(key)
	c.mu.Unlock()

	c.observer.Applied(key.Resource())
	notify(subs, ev)
	return true
}

// Fail records a failed fetch for key. The last good value is kept.
func (c *Cache) Fail(key Key, seq uint64, err error) bool {
	c.mu.Lock()
	if seq <= c.applied[key] {
		c.mu.Unlock()
		c.discard(key, seq)
		return false
	}
	c.applied[key] = seq

	e := c.entry(key)
	e.Err = err
	e.Seq = seq
	e.FailedAt = time.Now()
	ev := Event{Key: key, Kind: EventFailed, Entry: *e}
	subs := c.matching(key)
	c.mu.Unlock()

	c.observer.Failed(key.Resource())
	notify(subs, ev)
	return true
}

// Get returns the entry for key
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Invalidate marks the keys stale and asks their registered refreshers to fetch now
func (c *Cache) Invalidate(keys ...Key) {
	for _, key := range keys {
		c.mu.Lock()
		var events []Event
		if e, ok := c.entries[key]; ok {
			e.Stale = true
			events = append(events, Event{Key: key, Kind: EventInvalidated, Entry: *e})
		}
		subs := c.matching(key)
		refreshers := make([]func(), 0, len(c.refreshers[key]))
		for _, fn := range c.refreshers[key] {
			refreshers = append(refreshers, fn)
		}
		c.mu.Unlock()

		c.logger.Debug("Invalidated", zap.String("key", string(key)), zap.Int("refreshers", len(refreshers)))
		for _, ev := range events {
			notify(subs, ev)
		}
		for _, fn := range refreshers {
			fn()
		}
	}
}

// Remove drops the entry for key. Results of requests issued before the
// removal are discarded.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.applied[key] = c.issued[key]
		c.mu.Unlock()
		return
	}
	delete(c.entries, key)
	c.applied[key] = c.issued[key]
	ev := Event{Key: key, Kind: EventRemoved, Entry: *e}
	subs := c.matching(key)
	c.mu.Unlock()

	notify(subs, ev)
}

// Subscribe calls fn for every event on keys starting with prefix.
// An empty prefix matches every key.
func (c *Cache) Subscribe(prefix string, fn func(Event)) func() {
	return c.subscribe(subscription{prefix: prefix, fn: fn})
}

// Watch calls fn for every event on exactly key
func (c *Cache) Watch(key Key, fn func(Event)) func() {
	return c.subscribe(subscription{prefix: string(key), exact: true, fn: fn})
}

func (c *Cache) subscribe(s subscription) func() {
	id := uuid.NewString()

	c.mu.Lock()
	c.subs[id] = s
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// OnInvalidate registers fn to run when key is invalidated
func (c *Cache) OnInvalidate(key Key, fn func()) func() {
	id := uuid.NewString()

	c.mu.Lock()
	if c.refreshers[key] == nil {
		c.refreshers[key] = make(map[string]func())
	}
	c.refreshers[key][id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.refreshers[key], id)
		if len(c.refreshers[key]) == 0 {
			delete(c.refreshers, key)
		}
		c.mu.Unlock()
	}
}

// Value returns the typed value stored for key
func Value[T any](c *Cache, key Key) (T, bool) {
	var zero T
	e, ok := c.Get(key)
	if !ok || e.Value == nil {
		return zero, false
	}
	v, ok := e.Value.(T)
	return v, ok
}

func (c *Cache) entry(key Key) *Entry {
	e, ok := c.entries[key]
	if !ok {
		e = &Entry{}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) matching(key Key) []func(Event) {
	var fns []func(Event)
	for _, s := range c.subs {
		if s.exact && string(key) == s.prefix || !s.exact && strings.HasPrefix(string(key), s.prefix) {
			fns = append(fns, s.fn)
		}
	}
	return fns
}

func (c *Cache) discard(key Key, seq uint64) {
	c.observer.Discarded(key.Resource())
	c.logger.Debug("Discarded out-of-order result",
		zap.String("key", string(key)),
		zap.Uint64("seq", seq))
}

func notify(fns []func(Event), ev Event) {
	for _, fn := range fns {
		fn(ev)
	}
}
