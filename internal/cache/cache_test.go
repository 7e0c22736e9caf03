package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	calls atomic.Int32
	value atomic.Int32
}

func (c *counter) fetch(context.Context) (int, error) {
	c.calls.Add(1)
	return int(c.value.Load()), nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestReadCachesUntilInvalidated(t *testing.T) {
	c := New(NewMemoryStore(0), Options{})
	ctx := context.Background()
	key := NewKey(KindHistory)

	var src counter
	src.value.Store(1)

	v, err := Read(ctx, c, key, src.fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	src.value.Store(2)
	v, err = Read(ctx, c, key, src.fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int32(1), src.calls.Load())

	c.Invalidate(ctx, OriginLocal, KindHistory)
	v, err = Read(ctx, c, key, src.fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), src.calls.Load())
	c.Wait()
}

func TestInvalidateOnlyAffectsKind(t *testing.T) {
	c := New(NewMemoryStore(0), Options{})
	ctx := context.Background()

	var hist, ins counter
	_, err := Read(ctx, c, NewKey(KindHistory), hist.fetch)
	require.NoError(t, err)
	_, err = Read(ctx, c, NewKey(KindInsights, "101"), ins.fetch)
	require.NoError(t, err)

	c.Invalidate(ctx, OriginLocal, KindHistory)
	c.Wait()

	e, err := c.Peek(ctx, NewKey(KindHistory))
	require.NoError(t, err)
	assert.True(t, e.Stale)

	e, err = c.Peek(ctx, NewKey(KindInsights, "101"))
	require.NoError(t, err)
	assert.False(t, e.Stale)
}

func TestFetchRacingInvalidationIsStoredStale(t *testing.T) {
	c := New(NewMemoryStore(0), Options{})
	ctx := context.Background()
	key := NewKey(KindHistory)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return "before", nil
		}
		return "after", nil
	}

	done := make(chan string)
	go func() {
		v, err := Read(ctx, c, key, fetch)
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	c.Invalidate(ctx, OriginLocal, KindHistory)
	close(release)
	assert.Equal(t, "before", <-done)
	c.Wait()

	e, err := c.Peek(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Stale)

	v, err := Read(ctx, c, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "after", v)
}

func TestConcurrentReadsShareOneFetch(t *testing.T) {
	c := New(NewMemoryStore(0), Options{})
	ctx := context.Background()

	gate := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-gate
		return 42, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Read(ctx, c, NewKey(KindAdminStatistics), fetch)
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestStaleTime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	c := New(NewMemoryStore(0), Options{StaleTimes: map[Kind]time.Duration{KindHistory: 30 * time.Second}})
	c.now = clock.now
	ctx := context.Background()

	var src counter
	_, err := Read(ctx, c, NewKey(KindHistory), src.fetch)
	require.NoError(t, err)

	clock.advance(20 * time.Second)
	_, err = Read(ctx, c, NewKey(KindHistory), src.fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())

	clock.advance(20 * time.Second)
	_, err = Read(ctx, c, NewKey(KindHistory), src.fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestErrorsAreNotCached(t *testing.T) {
	c := New(NewMemoryStore(0), Options{})
	ctx := context.Background()
	key := NewKey(KindInsights, "7")

	boom := errors.New("boom")
	fail := true
	fetch := func(context.Context) (string, error) {
		if fail {
			return "", boom
		}
		return "ok", nil
	}

	_, err := Read(ctx, c, key, fetch)
	assert.ErrorIs(t, err, boom)

	e, err := c.Peek(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, e)

	fail = false
	v, err := Read(ctx, c, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestBackgroundRefetchOfObservedKeys(t *testing.T) {
	c := New(NewMemoryStore(0), Options{Refetch: true})
	ctx := context.Background()

	var hist, admin counter
	_, err := Read(ctx, c, NewKey(KindHistory), hist.fetch)
	require.NoError(t, err)
	_, err = Read(ctx, c, NewKey(KindAdminDetections, "1"), admin.fetch)
	require.NoError(t, err)
	c.Forget(NewKey(KindAdminDetections, "1"))

	hist.value.Store(5)
	c.Invalidate(ctx, OriginLocal, KindHistory, KindAdminDetections)
	c.Wait()

	assert.Equal(t, int32(2), hist.calls.Load())
	assert.Equal(t, int32(1), admin.calls.Load())

	// The refetched entry is served without another call.
	v, err := Read(ctx, c, NewKey(KindHistory), hist.fetch)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, int32(2), hist.calls.Load())
}

func TestRefetchSkipsKeysNotReadRecently(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	c := New(NewMemoryStore(0), Options{Refetch: true, ActiveFor: time.Minute})
	c.now = clock.now
	ctx := context.Background()

	pages := make([]counter, 50)
	for i := range pages {
		_, err := Read(ctx, c, NewKey(KindAdminDetections, strconv.Itoa(i)), pages[i].fetch)
		require.NoError(t, err)
	}

	clock.advance(2 * time.Minute)
	var hist counter
	_, err := Read(ctx, c, NewKey(KindHistory), hist.fetch)
	require.NoError(t, err)

	c.Invalidate(ctx, OriginLocal, KindHistory, KindAdminDetections)
	c.Wait()

	assert.Equal(t, int32(2), hist.calls.Load())
	for i := range pages {
		assert.Equal(t, int32(1), pages[i].calls.Load(), "page %d", i)
	}

	// An idle key still reloads once it is read again.
	clock.advance(time.Second)
	_, err = Read(ctx, c, NewKey(KindAdminDetections, "0"), pages[0].fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), pages[0].calls.Load())
}

func TestRefetchIsBoundedPerInvalidation(t *testing.T) {
	c := New(NewMemoryStore(0), Options{Refetch: true})
	ctx := context.Background()

	pages := make([]counter, 50)
	for i := range pages {
		_, err := Read(ctx, c, NewKey(KindAdminDetections, strconv.Itoa(i)), pages[i].fetch)
		require.NoError(t, err)
	}

	c.Invalidate(ctx, OriginLocal, KindAdminDetections)
	c.Wait()

	var refetched int
	for i := range pages {
		refetched += int(pages[i].calls.Load()) - 1
	}
	assert.Equal(t, maxRefetch, refetched)
}

func TestObservedKeysArePruned(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	c := New(NewMemoryStore(0), Options{Refetch: true})
	c.now = clock.now
	ctx := context.Background()

	var src counter
	for i := 0; i < maxObserved+40; i++ {
		_, err := Read(ctx, c, NewKey(KindAdminDetections, strconv.Itoa(i)), src.fetch)
		require.NoError(t, err)
	}

	c.mu.Lock()
	n := len(c.observed)
	c.mu.Unlock()
	assert.LessOrEqual(t, n, maxObserved)
}

func TestDiscard(t *testing.T) {
	c := New(NewMemoryStore(0), Options{})
	ctx := context.Background()
	key := NewKey(KindDetection, "3")

	var src counter
	_, err := Read(ctx, c, key, src.fetch)
	require.NoError(t, err)
	require.NoError(t, c.Discard(ctx, key))

	e, err := c.Peek(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestMemoryStore(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(time.Minute)
	s.now = clock.now
	ctx := context.Background()

	a := Entry{Key: NewKey(KindHistory), Value: []byte(`[]`)}
	b := Entry{Key: NewKey(KindInsights, "1"), Value: []byte(`null`)}
	require.NoError(t, s.Set(ctx, a))
	require.NoError(t, s.Set(ctx, b))

	n, err := s.MarkStale(ctx, KindHistory)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.MarkStale(ctx, KindHistory)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := s.Get(ctx, b.Key)
	require.NoError(t, err)
	assert.False(t, got.Stale)

	clock.advance(2 * time.Minute)
	got, err = s.Get(ctx, a.Key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "history", NewKey(KindHistory).String())
	assert.Equal(t, "insights:101", NewKey(KindInsights, "101").String())
	assert.Equal(t, "admin.detections:2/20", NewKey(KindAdminDetections, "2", "20").String())
}
