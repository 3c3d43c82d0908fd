package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/forumpulse/internal/live"
)

type snapshot struct {
	threads []ThreadView
	err     error
}

// fakeSource 手动驱动推送的 ThreadSource。
type fakeSource struct {
	mu sync.Mutex

	rankedSyncErr error
	rankedInitial *snapshot
	recentInitial *snapshot

	rankedHandler live.Handler[[]ThreadView]
	recentHandler live.Handler[[]ThreadView]
	rankedQuery   RankedQuery
	recentQuery   RecentQuery
	rankedStops   int
	recentStops   int

	all    []ThreadView
	allErr error
	loads  int
	saved  map[string]float64
}

func (f *fakeSource) SubscribeRanked(_ context.Context, q RankedQuery, handler live.Handler[[]ThreadView]) (live.Subscription, error) {
	if f.rankedSyncErr != nil {
		return nil, f.rankedSyncErr
	}
	f.mu.Lock()
	f.rankedQuery = q
	f.rankedHandler = handler
	f.mu.Unlock()
	if f.rankedInitial != nil {
		handler(f.rankedInitial.threads, f.rankedInitial.err)
	}
	return live.NewSubscription(func() {
		f.mu.Lock()
		f.rankedStops++
		f.mu.Unlock()
	}), nil
}

func (f *fakeSource) SubscribeRecent(_ context.Context, q RecentQuery, handler live.Handler[[]ThreadView]) (live.Subscription, error) {
	f.mu.Lock()
	f.recentQuery = q
	f.recentHandler = handler
	f.mu.Unlock()
	if f.recentInitial != nil {
		handler(f.recentInitial.threads, f.recentInitial.err)
	}
	return live.NewSubscription(func() {
		f.mu.Lock()
		f.recentStops++
		f.mu.Unlock()
	}), nil
}

func (f *fakeSource) AllThreads(context.Context) ([]ThreadView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.allErr != nil {
		return nil, f.allErr
	}
	return append([]ThreadView(nil), f.all...), nil
}

func (f *fakeSource) IncrementViews(context.Context, string) error { return nil }

func (f *fakeSource) SaveScores(_ context.Context, scores map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = scores
	return nil
}

func (f *fakeSource) Upsert(context.Context, ThreadView) error { return nil }

func (f *fakeSource) pushRanked(threads []ThreadView, err error) {
	f.mu.Lock()
	h := f.rankedHandler
	f.mu.Unlock()
	h(threads, err)
}

func (f *fakeSource) pushRecent(threads []ThreadView, err error) {
	f.mu.Lock()
	h := f.recentHandler
	f.mu.Unlock()
	h(threads, err)
}

// memMarks 是内存版 MarkStore。
type memMarks struct {
	mu      sync.Mutex
	keys    map[string]time.Time
	deletes int
	putErr  error
}

func newMemMarks() *memMarks {
	return &memMarks{keys: make(map[string]time.Time)}
}

func (m *memMarks) Put(_ context.Context, key string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return false, m.putErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = expiresAt
	return true, nil
}

func (m *memMarks) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.keys, key)
	return nil
}

func (m *memMarks) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok
}

// memCounter 是内存版 VisitCounter，failNext 次调用会失败。
type memCounter struct {
	mu       sync.Mutex
	counts   map[string]int64
	failNext int
}

var errCounterDown = errors.New("counter unavailable")

func newMemCounter() *memCounter {
	return &memCounter{counts: make(map[string]int64)}
}

func (c *memCounter) Increment(_ context.Context, scope string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		return 0, errCounterDown
	}
	c.counts[scope]++
	return c.counts[scope], nil
}

func (c *memCounter) Count(_ context.Context, scope string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[scope], nil
}

func (c *memCounter) Subscribe(ctx context.Context, scope string, handler live.Handler[int64]) (live.Subscription, error) {
	n, err := c.Count(ctx, scope)
	handler(n, err)
	return live.NewSubscription(func() {}), nil
}

type recordingSink struct {
	events []VisitEvent
	err    error
}

func (s *recordingSink) RecordVisit(_ context.Context, event VisitEvent) error {
	s.events = append(s.events, event)
	return s.err
}

func scored(v float64) *float64 {
	return &v
}
