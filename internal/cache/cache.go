package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/your-org/oceanlens/internal/observability"
)

const (
	refetchConcurrency = 4
	defaultActiveFor   = time.Minute

	// maxRefetch caps background refetches per invalidation; keys past it
	// reload on their next read.
	maxRefetch = 16
	// maxObserved bounds the keys remembered for refetching.
	maxObserved = 256
)

type Options struct {
	// StaleTimes bounds how long an entry of a kind is served without
	// refetching. Kinds without a value stay fresh until invalidated.
	StaleTimes map[Kind]time.Duration
	// Refetch reloads recently read keys in the background after an
	// invalidation.
	Refetch bool
	// ActiveFor is how long after its last read a key still counts as
	// active for background refetch. Defaults to one minute.
	ActiveFor time.Duration
}

type fetchFunc func(ctx context.Context) (json.RawMessage, error)

type observation struct {
	fetch    fetchFunc
	lastRead time.Time
}

// Cache serves keyed reads and refetches entries that were invalidated or
// outlived their stale time. Concurrent loads of one key share a fetch.
type Cache struct {
	store      Store
	staleTimes map[Kind]time.Duration
	refetch    bool
	activeFor  time.Duration
	log        *slog.Logger
	now        func() time.Time
	group      singleflight.Group
	bg         sync.WaitGroup

	mu       sync.Mutex
	marks    map[Kind]time.Time
	observed map[Key]observation
}

func New(store Store, opts Options) *Cache {
	st := make(map[Kind]time.Duration, len(opts.StaleTimes))
	for k, v := range opts.StaleTimes {
		st[k] = v
	}
	active := opts.ActiveFor
	if active <= 0 {
		active = defaultActiveFor
	}
	return &Cache{
		store:      store,
		staleTimes: st,
		refetch:    opts.Refetch,
		activeFor:  active,
		log:        slog.Default().With("component", "cache"),
		now:        time.Now,
		marks:      make(map[Kind]time.Time),
		observed:   make(map[Key]observation),
	}
}

// Read returns the cached value for key, fetching it when missing, stale or
// invalidated. Values round-trip through JSON so any Store can hold them.
func Read[T any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	raw := func(ctx context.Context) (json.RawMessage, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}

	data, err := c.read(ctx, key, raw)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

func (c *Cache) read(ctx context.Context, key Key, fetch fetchFunc) (json.RawMessage, error) {
	if c.refetch {
		c.observe(key, fetch)
	}

	e, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache get failed", "key", key.String(), "error", err)
		e = nil
	}
	if e != nil && c.fresh(*e) {
		observability.CacheReads.WithLabelValues(string(key.Kind), "hit").Inc()
		return e.Value, nil
	}

	data, err := c.load(ctx, key, fetch)
	if err != nil {
		observability.CacheReads.WithLabelValues(string(key.Kind), "error").Inc()
		return nil, err
	}
	observability.CacheReads.WithLabelValues(string(key.Kind), "refetch").Inc()
	return data, nil
}

// load fetches key once per invalidation generation; a caller arriving after
// an invalidation never joins a fetch that started before it.
func (c *Cache) load(ctx context.Context, key Key, fetch fetchFunc) (json.RawMessage, error) {
	flight := key.String() + "@" + strconv.FormatInt(c.mark(key.Kind).UnixNano(), 10)

	v, err, _ := c.group.Do(flight, func() (any, error) {
		started := c.now()
		data, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		e := Entry{Key: key, Value: data, FetchedAt: started}
		e.Stale = !c.fresh(e)
		if err := c.store.Set(ctx, e); err != nil {
			c.log.Warn("cache set failed", "key", key.String(), "error", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func (c *Cache) observe(key Key, fetch fetchFunc) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observed[key] = observation{fetch: fetch, lastRead: now}
	if len(c.observed) > maxObserved {
		c.pruneLocked(now)
	}
}

// pruneLocked drops keys not read within activeFor. If every key is
// active, the least recently read are dropped down to maxObserved.
func (c *Cache) pruneLocked(now time.Time) {
	for key, o := range c.observed {
		if now.Sub(o.lastRead) > c.activeFor {
			delete(c.observed, key)
		}
	}
	if len(c.observed) <= maxObserved {
		return
	}
	keys := make([]Key, 0, len(c.observed))
	for key := range c.observed {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return c.observed[b].lastRead.Compare(c.observed[a].lastRead)
	})
	for _, key := range keys[maxObserved:] {
		delete(c.observed, key)
	}
}

// Peek returns the stored entry without fetching. Stale reflects
// invalidations and stale times.
func (c *Cache) Peek(ctx context.Context, key Key) (*Entry, error) {
	e, err := c.store.Get(ctx, key)
	if err != nil || e == nil {
		return nil, err
	}
	e.Stale = !c.fresh(*e)
	return e, nil
}

// Invalidate marks every entry of kinds stale. The in-process mark is
// immediate; persisting it and refetching the most recently read keys
// of kinds run in the background.
func (c *Cache) Invalidate(ctx context.Context, origin string, kinds ...Kind) {
	if len(kinds) == 0 {
		return
	}
	now := c.now()

	type target struct {
		key Key
		observation
	}
	var targets []target

	c.mu.Lock()
	for _, k := range kinds {
		c.marks[k] = now
	}
	if c.refetch {
		c.pruneLocked(now)
		for key, o := range c.observed {
			if containsKind(kinds, key.Kind) {
				targets = append(targets, target{key: key, observation: o})
			}
		}
	}
	c.mu.Unlock()

	if len(targets) > maxRefetch {
		slices.SortFunc(targets, func(a, b target) int {
			return b.lastRead.Compare(a.lastRead)
		})
		targets = targets[:maxRefetch]
	}

	for _, k := range kinds {
		observability.CacheInvalidations.WithLabelValues(string(k), origin).Inc()
	}

	bg := context.WithoutCancel(ctx)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()

		for _, k := range kinds {
			if _, err := c.store.MarkStale(bg, k); err != nil {
				c.log.Warn("mark stale failed", "kind", string(k), "error", err)
			}
		}

		var g errgroup.Group
		g.SetLimit(refetchConcurrency)
		for _, t := range targets {
			g.Go(func() error {
				if _, err := c.load(bg, t.key, t.fetch); err != nil {
					return fmt.Errorf("refetch %s: %w", t.key, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			c.log.Warn("background refetch failed", "error", err)
		}
	}()
}

// Discard drops key from the store and stops refetching it.
func (c *Cache) Discard(ctx context.Context, key Key) error {
	c.Forget(key)
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("discard %s: %w", key, err)
	}
	return nil
}

// Forget stops background refetches of key, e.g. when its view closes.
// A later read observes it again.
func (c *Cache) Forget(key Key) {
	c.mu.Lock()
	delete(c.observed, key)
	c.mu.Unlock()
}

// Wait blocks until background invalidation work has finished.
func (c *Cache) Wait() {
	c.bg.Wait()
}

func (c *Cache) mark(kind Kind) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marks[kind]
}

func (c *Cache) fresh(e Entry) bool {
	if e.Stale {
		return false
	}
	if m := c.mark(e.Key.Kind); !m.IsZero() && !e.FetchedAt.After(m) {
		return false
	}
	if st := c.staleTimes[e.Key.Kind]; st > 0 && c.now().Sub(e.FetchedAt) > st {
		return false
	}
	return true
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
