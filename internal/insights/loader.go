package insights

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/your-org/oceanlens/internal/cache"
	"github.com/your-org/oceanlens/internal/client"
	"github.com/your-org/oceanlens/internal/models"
	"github.com/your-org/oceanlens/internal/observability"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	// StatusAbsent means the backend has no bundle for the detection.
	StatusAbsent Status = "absent"
	StatusFailed Status = "failed"
)

// ErrNotRequested is returned by Wait for an id nobody loaded.
var ErrNotRequested = errors.New("insights not requested")

type Result struct {
	DetectionID int64
	Status      Status
	Bundle      *models.InsightBundle
	Err         error
}

func (r Result) Settled() bool {
	return r.Status != StatusPending
}

// Fetcher loads one bundle. A missing bundle is reported as client.ErrNotFound.
type Fetcher interface {
	Insights(ctx context.Context, id int64) (*models.InsightBundle, error)
}

type slot struct {
	res  Result
	done chan struct{}
}

// Loader fetches insight bundles when a detail view asks for them. Each fetch
// writes only the slot and cache entry of its own detection id, so a view
// that moved on never sees a late result for the id it left.
type Loader struct {
	cache   *cache.Cache
	fetcher Fetcher
	log     *slog.Logger

	mu       sync.Mutex
	slots    map[int64]*slot
	viewed   int64
	onSettle func(Result)
}

func NewLoader(c *cache.Cache, f Fetcher) *Loader {
	return &Loader{
		cache:   c,
		fetcher: f,
		log:     slog.Default().With("component", "insights"),
		slots:   make(map[int64]*slot),
	}
}

// OnSettled registers fn for fetches that settle while their id is viewed.
func (l *Loader) OnSettled(fn func(Result)) {
	l.mu.Lock()
	l.onSettle = fn
	l.mu.Unlock()
}

// Load returns the current result for id and starts a fetch when there is
// none yet or the previous one failed. It never blocks on the network.
func (l *Loader) Load(ctx context.Context, id int64) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(ctx, id)
}

// Show marks id as the viewed detail and loads it.
func (l *Loader) Show(ctx context.Context, id int64) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.viewed = id
	return l.loadLocked(ctx, id)
}

// Hide closes the detail view.
func (l *Loader) Hide() {
	l.mu.Lock()
	l.viewed = 0
	l.mu.Unlock()
}

// Current returns the result of the viewed detail, if any.
func (l *Loader) Current() (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.viewed == 0 {
		return Result{}, false
	}
	s, ok := l.slots[l.viewed]
	if !ok {
		return Result{DetectionID: l.viewed, Status: StatusPending}, true
	}
	return s.res, true
}

// Wait blocks until the fetch for id settles.
func (l *Loader) Wait(ctx context.Context, id int64) (Result, error) {
	l.mu.Lock()
	s, ok := l.slots[id]
	l.mu.Unlock()
	if !ok {
		return Result{DetectionID: id}, ErrNotRequested
	}

	select {
	case <-s.done:
		l.mu.Lock()
		defer l.mu.Unlock()
		return s.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Evict drops what is known about id, e.g. after the detection was deleted.
func (l *Loader) Evict(id int64) {
	l.mu.Lock()
	delete(l.slots, id)
	l.mu.Unlock()
}

func (l *Loader) loadLocked(ctx context.Context, id int64) Result {
	if s, ok := l.slots[id]; ok && s.res.Status != StatusFailed {
		return s.res
	}

	s := &slot{
		res:  Result{DetectionID: id, Status: StatusPending},
		done: make(chan struct{}),
	}
	l.slots[id] = s

	go l.fetch(context.WithoutCancel(ctx), id, s)
	return s.res
}

func (l *Loader) fetch(ctx context.Context, id int64, s *slot) {
	key := cache.NewKey(cache.KindInsights, strconv.FormatInt(id, 10))

	bundle, err := cache.Read(ctx, l.cache, key, func(ctx context.Context) (*models.InsightBundle, error) {
		b, err := l.fetcher.Insights(ctx, id)
		if errors.Is(err, client.ErrNotFound) {
			return nil, nil
		}
		return b, err
	})

	res := Result{DetectionID: id, Bundle: bundle}
	switch {
	case err != nil:
		res.Status = StatusFailed
		res.Err = err
		l.log.Warn("insights fetch failed", "detection_id", id, "error", err)
	case bundle == nil:
		res.Status = StatusAbsent
	default:
		res.Status = StatusReady
	}
	observability.InsightFetches.WithLabelValues(string(res.Status)).Inc()

	l.mu.Lock()
	s.res = res
	close(s.done)
	var notify func(Result)
	if l.viewed == id && l.slots[id] == s {
		notify = l.onSettle
	}
	l.mu.Unlock()

	if notify != nil {
		notify(res)
	}
}
