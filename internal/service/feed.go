package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/forumpulse/internal/live"
	"github.com/rs/zerolog/log"
)

const (
	defaultTrendingStatus   = "open"
	defaultTrendingPageSize = 10
)

// TrendingFeed 维护热门帖子的实时列表。
// 优先使用按持久化热度分排序的索引查询；结果为空、缺少分数或索引不可用时，
// 单向切换到按最近活跃排序的查询并在本地计算热度分。
type TrendingFeed struct {
	source   ThreadSource
	policy   TrendingPolicy
	status   string
	pageSize int
	now      func() time.Time
}

// NewTrendingFeed 构造 TrendingFeed，默认过滤 status=open，每页 10 条。
func NewTrendingFeed(source ThreadSource) *TrendingFeed {
	return &TrendingFeed{
		source:   source,
		policy:   DefaultTrendingPolicy,
		status:   defaultTrendingStatus,
		pageSize: defaultTrendingPageSize,
		now:      time.Now,
	}
}

// WithStatus 设置索引查询的状态过滤值。
func (f *TrendingFeed) WithStatus(status string) *TrendingFeed {
	if status != "" {
		f.status = status
	}
	return f
}

// WithPageSize 设置默认页大小。
func (f *TrendingFeed) WithPageSize(size int) *TrendingFeed {
	if size > 0 {
		f.pageSize = size
	}
	return f
}

// WithPolicy 替换回退路径使用的权重。
func (f *TrendingFeed) WithPolicy(policy TrendingPolicy) *TrendingFeed {
	f.policy = policy
	return f
}

// WithClock 替换时间来源。
func (f *TrendingFeed) WithClock(now func() time.Time) *TrendingFeed {
	if now != nil {
		f.now = now
	}
	return f
}

// PageSize 返回默认页大小。
func (f *TrendingFeed) PageSize() int {
	return f.pageSize
}

type feedState struct {
	mu       sync.Mutex
	fallback bool
	group    *live.Group
}

// Subscribe 开始推送热门列表，返回的订阅会同时取消所有子查询。
func (f *TrendingFeed) Subscribe(ctx context.Context, pageSize int, handler live.Handler[[]ThreadView]) (live.Subscription, error) {
	if pageSize <= 0 {
		pageSize = f.pageSize
	}
	state := &feedState{group: live.NewGroup()}
	deliver := func(threads []ThreadView, err error) {
		if state.group.Closed() {
			return
		}
		handler(threads, err)
	}

	ranked, err := f.source.SubscribeRanked(ctx, RankedQuery{Status: f.status, Limit: pageSize},
		func(threads []ThreadView, err error) {
			f.onRanked(ctx, state, pageSize, threads, err, deliver)
		})
	switch {
	case errors.Is(err, ErrIndexUnavailable):
		if f.enterFallback(state, err) {
			if ferr := f.subscribeRecent(ctx, state, pageSize, deliver); ferr != nil {
				state.group.Unsubscribe()
				return nil, ferr
			}
		}
	case err != nil:
		state.group.Unsubscribe()
		return nil, fmt.Errorf("subscribe ranked threads: %w", err)
	default:
		state.group.Add(ranked)
	}

	return state.group, nil
}

func (f *TrendingFeed) onRanked(ctx context.Context, state *feedState, pageSize int, threads []ThreadView, err error, deliver live.Handler[[]ThreadView]) {
	state.mu.Lock()
	if state.fallback {
		state.mu.Unlock()
		return
	}

	if err != nil && !errors.Is(err, ErrIndexUnavailable) {
		state.mu.Unlock()
		log.Error().Err(err).Msg("ranked trending query failed")
		deliver(nil, err)
		return
	}
	if err == nil && usableRanking(threads) {
		state.mu.Unlock()
		deliver(withStoredScores(threads), nil)
		return
	}
	state.mu.Unlock()

	reason := err
	if reason == nil {
		reason = errors.New("ranked result empty or unscored")
	}
	if !f.enterFallback(state, reason) {
		return
	}
	if ferr := f.subscribeRecent(ctx, state, pageSize, deliver); ferr != nil {
		log.Error().Err(ferr).Msg("fallback trending query failed")
		deliver(nil, ferr)
	}
}

// enterFallback 把状态切换为回退，只有第一次切换返回 true。
func (f *TrendingFeed) enterFallback(state *feedState, reason error) bool {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.fallback {
		return false
	}
	state.fallback = true
	log.Info().Err(reason).Msg("trending feed switched to recent-activity fallback")
	return true
}

func (f *TrendingFeed) subscribeRecent(ctx context.Context, state *feedState, pageSize int, deliver live.Handler[[]ThreadView]) error {
	sub, err := f.source.SubscribeRecent(ctx, RecentQuery{Limit: pageSize * 2},
		func(threads []ThreadView, err error) {
			if err != nil {
				log.Error().Err(err).Msg("recent trending query failed")
				deliver(nil, err)
				return
			}
			ranked := f.policy.Rank(threads, f.now())
			if len(ranked) > pageSize {
				ranked = ranked[:pageSize]
			}
			deliver(ranked, nil)
		})
	if err != nil {
		return fmt.Errorf("subscribe recent threads: %w", err)
	}
	state.group.Add(sub)
	return nil
}

// Snapshot 取第一批推送后立即取消订阅。
func (f *TrendingFeed) Snapshot(ctx context.Context, pageSize int) ([]ThreadView, error) {
	type result struct {
		threads []ThreadView
		err     error
	}
	first := make(chan result, 1)

	sub, err := f.Subscribe(ctx, pageSize, func(threads []ThreadView, err error) {
		select {
		case first <- result{threads: threads, err: err}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	select {
	case r := <-first:
		return r.threads, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func usableRanking(threads []ThreadView) bool {
	if len(threads) == 0 {
		return false
	}
	for _, t := range threads {
		if !t.HasStoredScore() {
			return false
		}
	}
	return true
}

func withStoredScores(threads []ThreadView) []ThreadView {
	out := make([]ThreadView, len(threads))
	for i, t := range threads {
		t.Score = *t.StoredScore
		out[i] = t
	}
	return out
}
