package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/ristretto"
)

const (
	topActiveLimit  = 5
	newestLimit     = 10
	unansweredLimit = 10
	metricsWindow   = 7 * 24 * time.Hour
	metricsCacheKey = "forum-metrics"
)

// ThreadSummary 是报表中的帖子摘要。
type ThreadSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	RepliesCount  int64     `json:"repliesCount"`
	ViewsCount    int64     `json:"viewsCount"`
	ActivityScore float64   `json:"activityScore"`
	CreatedAt     time.Time `json:"createdAt"`
}

// MetricsSnapshot 汇总论坛健康度指标，百分比不做取整。
type MetricsSnapshot struct {
	GeneratedAt         time.Time       `json:"generatedAt"`
	TotalThreads        int             `json:"totalThreads"`
	ResolvedThreads     int             `json:"resolvedThreads"`
	UnresolvedThreads   int             `json:"unresolvedThreads"`
	UnresolvedPct       float64         `json:"unresolvedPct"`
	NoReplyThreads      int             `json:"noReplyThreads"`
	NoReplyPct          float64         `json:"noReplyPct"`
	ThreadsLast7Days    int             `json:"threadsLast7Days"`
	AvgRepliesPerThread float64         `json:"avgRepliesPerThread"`
	AvgViewsPerThread   float64         `json:"avgViewsPerThread"`
	TopActive           []ThreadSummary `json:"topActive"`
	NewestThisWeek      []ThreadSummary `json:"newestThisWeek"`
	Unanswered          []ThreadSummary `json:"unanswered"`
}

// ActivityScore 用于活跃度排行：replies*3 + views。
func ActivityScore(t ThreadView) float64 {
	return float64(t.RepliesCount)*3 + float64(t.ViewsCount)
}

// ComputeMetrics 对帖子全集计算指标。空输入返回全零快照。
func ComputeMetrics(threads []ThreadView, now time.Time) MetricsSnapshot {
	snap := MetricsSnapshot{
		GeneratedAt:    now,
		TotalThreads:   len(threads),
		TopActive:      []ThreadSummary{},
		NewestThisWeek: []ThreadSummary{},
		Unanswered:     []ThreadSummary{},
	}

	cutoff := now.Add(-metricsWindow)
	var (
		totalReplies int64
		totalViews   int64
		recent       []ThreadView
		noReply      []ThreadView
	)
	for _, t := range threads {
		if IsResolved(t) {
			snap.ResolvedThreads++
		}
		if t.RepliesCount == 0 {
			noReply = append(noReply, t)
		}
		if !t.CreatedAt.Before(cutoff) {
			recent = append(recent, t)
		}
		totalReplies += t.RepliesCount
		totalViews += t.ViewsCount
	}

	snap.UnresolvedThreads = snap.TotalThreads - snap.ResolvedThreads
	snap.NoReplyThreads = len(noReply)
	snap.ThreadsLast7Days = len(recent)
	snap.UnresolvedPct = percent(snap.UnresolvedThreads, snap.TotalThreads)
	snap.NoReplyPct = percent(snap.NoReplyThreads, snap.TotalThreads)
	snap.AvgRepliesPerThread = average(totalReplies, snap.TotalThreads)
	snap.AvgViewsPerThread = average(totalViews, snap.TotalThreads)

	active := slices.Clone(threads)
	slices.SortStableFunc(active, func(a, b ThreadView) int {
		return cmp.Compare(ActivityScore(b), ActivityScore(a))
	})
	snap.TopActive = summarize(active, topActiveLimit)

	slices.SortStableFunc(recent, newestFirst)
	snap.NewestThisWeek = summarize(recent, newestLimit)

	slices.SortStableFunc(noReply, newestFirst)
	snap.Unanswered = summarize(noReply, unansweredLimit)

	return snap
}

func newestFirst(a, b ThreadView) int {
	return b.CreatedAt.Compare(a.CreatedAt)
}

func summarize(threads []ThreadView, limit int) []ThreadSummary {
	if len(threads) > limit {
		threads = threads[:limit]
	}
	out := make([]ThreadSummary, 0, len(threads))
	for _, t := range threads {
		out = append(out, ThreadSummary{
			ID:            t.ID,
			Title:         t.Title,
			RepliesCount:  t.RepliesCount,
			ViewsCount:    t.ViewsCount,
			ActivityScore: ActivityScore(t),
			CreatedAt:     t.CreatedAt,
		})
	}
	return out
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func average(sum int64, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(sum) / float64(total)
}

// MetricsService 读取帖子全集并缓存最近一次快照。
type MetricsService struct {
	source ThreadSource
	cache  *ristretto.Cache
	ttl    time.Duration
	now    func() time.Time
}

// NewMetricsService 构造 MetricsService；ttl<=0 时不启用缓存。
func NewMetricsService(source ThreadSource, ttl time.Duration) (*MetricsService, error) {
	svc := &MetricsService{source: source, ttl: ttl, now: time.Now}
	if ttl <= 0 {
		return svc, nil
	}

	// 只缓存一个快照，按条目计费，不计内部开销
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        100,
		MaxCost:            10,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create metrics cache: %w", err)
	}
	svc.cache = cache
	return svc, nil
}

// WithClock 替换时间来源。
func (s *MetricsService) WithClock(now func() time.Time) *MetricsService {
	if now != nil {
		s.now = now
	}
	return s
}

// Snapshot 返回当前指标，缓存命中时不访问存储。
func (s *MetricsService) Snapshot(ctx context.Context) (MetricsSnapshot, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(metricsCacheKey); ok {
			if snap, ok := cached.(MetricsSnapshot); ok {
				return snap, nil
			}
		}
	}

	threads, err := s.source.AllThreads(ctx)
	if err != nil {
		return MetricsSnapshot{}, fmt.Errorf("load threads: %w", err)
	}

	snap := ComputeMetrics(threads, s.now())
	if s.cache != nil {
		s.cache.SetWithTTL(metricsCacheKey, snap, 1, s.ttl)
		s.cache.Wait()
	}
	return snap, nil
}

// Invalidate 丢弃缓存的快照。
func (s *MetricsService) Invalidate() {
	if s.cache != nil {
		s.cache.Del(metricsCacheKey)
	}
}

// Close 释放缓存资源。
func (s *MetricsService) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}
