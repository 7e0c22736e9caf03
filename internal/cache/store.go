package cache

import (
	"context"
	"sync"
	"time"
)

// Store persists entries. Get returns nil, nil for a missing key.
type Store interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	Set(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key Key) error
	// MarkStale flags every entry of kind and reports how many it touched.
	MarkStale(ctx context.Context, kind Kind) (int, error)
}

// MemoryStore keeps entries in process. A zero ttl never expires entries.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	kinds map[Kind]map[string]memoryEntry
}

type memoryEntry struct {
	entry   Entry
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:   ttl,
		now:   time.Now,
		kinds: make(map[Kind]map[string]memoryEntry),
	}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	me, ok := s.kinds[key.Kind][key.Params]
	if !ok {
		return nil, nil
	}
	if !me.expires.IsZero() && s.now().After(me.expires) {
		return nil, nil
	}
	e := me.entry
	return &e, nil
}

func (s *MemoryStore) Set(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byParams, ok := s.kinds[e.Key.Kind]
	if !ok {
		byParams = make(map[string]memoryEntry)
		s.kinds[e.Key.Kind] = byParams
	}
	me := memoryEntry{entry: e}
	if s.ttl > 0 {
		me.expires = s.now().Add(s.ttl)
	}
	byParams[e.Key.Params] = me
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kinds[key.Kind], key.Params)
	return nil
}

func (s *MemoryStore) MarkStale(_ context.Context, kind Kind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for params, me := range s.kinds[kind] {
		if !me.entry.Stale {
			me.entry.Stale = true
			s.kinds[kind][params] = me
			n++
		}
	}
	return n, nil
}
