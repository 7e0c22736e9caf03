package insights

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/oceanlens/internal/cache"
	"github.com/your-org/oceanlens/internal/client"
	"github.com/your-org/oceanlens/internal/models"
)

type gatedFetcher struct {
	mu    sync.Mutex
	gates map[int64]chan struct{}
	errs  map[int64]error
	calls map[int64]int
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		gates: make(map[int64]chan struct{}),
		errs:  make(map[int64]error),
		calls: make(map[int64]int),
	}
}

func (f *gatedFetcher) gate(id int64) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[id]
	if !ok {
		g = make(chan struct{})
		f.gates[id] = g
	}
	return g
}

func (f *gatedFetcher) Insights(_ context.Context, id int64) (*models.InsightBundle, error) {
	<-f.gate(id)

	f.mu.Lock()
	f.calls[id]++
	err := f.errs[id]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &models.InsightBundle{Summary: "summary " + strconv.FormatInt(id, 10)}, nil
}

func (f *gatedFetcher) open(id int64) { close(f.gate(id)) }

func TestSwitchingViewIsolatesResults(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryStore(0), cache.Options{})
	f := newGatedFetcher()
	l := NewLoader(c, f)

	var (
		mu       sync.Mutex
		notified []int64
	)
	l.OnSettled(func(r Result) {
		mu.Lock()
		notified = append(notified, r.DetectionID)
		mu.Unlock()
	})

	assert.Equal(t, StatusPending, l.Show(ctx, 101).Status)
	assert.Equal(t, StatusPending, l.Show(ctx, 102).Status)

	f.open(102)
	r102, err := l.Wait(ctx, 102)
	require.NoError(t, err)
	require.Equal(t, StatusReady, r102.Status)

	entryBefore, err := c.Peek(ctx, cache.NewKey(cache.KindInsights, "102"))
	require.NoError(t, err)
	require.NotNil(t, entryBefore)

	f.open(101)
	r101, err := l.Wait(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "summary 101", r101.Bundle.Summary)

	cur, ok := l.Current()
	require.True(t, ok)
	assert.Equal(t, int64(102), cur.DetectionID)
	assert.Equal(t, "summary 102", cur.Bundle.Summary)

	entryAfter, err := c.Peek(ctx, cache.NewKey(cache.KindInsights, "102"))
	require.NoError(t, err)
	assert.Equal(t, entryBefore, entryAfter)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{102}, notified)
}

func TestNotFoundIsAbsent(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryStore(0), cache.Options{})
	f := newGatedFetcher()
	f.errs[9] = &client.APIError{Status: http.StatusNotFound, Message: "Not found"}
	f.open(9)
	l := NewLoader(c, f)

	l.Show(ctx, 9)
	r, err := l.Wait(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusAbsent, r.Status)
	assert.Nil(t, r.Bundle)
	assert.NoError(t, r.Err)

	// Absence is cached like any other answer.
	l.Evict(9)
	l.Load(ctx, 9)
	_, err = l.Wait(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls[9])
}

func TestFailureIsRetriedOnNextLoad(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryStore(0), cache.Options{})
	f := newGatedFetcher()
	f.errs[3] = &client.APIError{Status: http.StatusInternalServerError, Message: "Request failed"}
	f.open(3)
	l := NewLoader(c, f)

	l.Show(ctx, 3)
	r, err := l.Wait(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Error(t, r.Err)

	f.mu.Lock()
	delete(f.errs, 3)
	f.mu.Unlock()

	assert.Equal(t, StatusPending, l.Load(ctx, 3).Status)
	r, err = l.Wait(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, r.Status)
	assert.Equal(t, 2, f.calls[3])
}

func TestLoadDoesNotRefetchSettled(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryStore(0), cache.Options{})
	f := newGatedFetcher()
	f.open(1)
	l := NewLoader(c, f)

	l.Load(ctx, 1)
	_, err := l.Wait(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, l.Load(ctx, 1).Status)
	assert.Equal(t, 1, f.calls[1])
}

func TestHideAndWaitErrors(t *testing.T) {
	ctx := context.Background()
	l := NewLoader(cache.New(cache.NewMemoryStore(0), cache.Options{}), newGatedFetcher())

	_, ok := l.Current()
	assert.False(t, ok)

	_, err := l.Wait(ctx, 55)
	assert.ErrorIs(t, err, ErrNotRequested)

	l.Show(ctx, 56)
	l.Hide()
	_, ok = l.Current()
	assert.False(t, ok)

	wctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = l.Wait(wctx, 56)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
