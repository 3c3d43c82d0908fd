package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// TrendingPolicy 定义热度分的权重与新鲜度窗口。
type TrendingPolicy struct {
	ReplyWeight     float64
	UpvoteWeight    float64
	ViewWeight      float64
	FreshnessWindow time.Duration
}

// DefaultTrendingPolicy: replies*3 + upvotes*2 + views*0.2 + max(0, 48 - 发帖小时数)
var DefaultTrendingPolicy = TrendingPolicy{
	ReplyWeight:     3,
	UpvoteWeight:    2,
	ViewWeight:      0.2,
	FreshnessWindow: 48 * time.Hour,
}

// Score 计算单个帖子的热度分。createdAt 晚于 now 时按 0 小时计。
func (p TrendingPolicy) Score(t ThreadView, now time.Time) float64 {
	age := now.Sub(t.CreatedAt)
	if age < 0 {
		age = 0
	}
	freshness := p.FreshnessWindow.Hours() - age.Hours()
	if freshness < 0 {
		freshness = 0
	}
	return float64(t.RepliesCount)*p.ReplyWeight +
		float64(t.UpvotesCount)*p.UpvoteWeight +
		float64(t.ViewsCount)*p.ViewWeight +
		freshness
}

// Rank 返回附加了热度分、按分数降序稳定排序的新切片。
func (p TrendingPolicy) Rank(threads []ThreadView, now time.Time) []ThreadView {
	ranked := make([]ThreadView, len(threads))
	for i, t := range threads {
		t.Score = p.Score(t, now)
		ranked[i] = t
	}
	slices.SortStableFunc(ranked, func(a, b ThreadView) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return ranked
}

// TrendingScore 使用默认权重计算热度分。
func TrendingScore(t ThreadView, now time.Time) float64 {
	return DefaultTrendingPolicy.Score(t, now)
}

// RankThreads 使用默认权重排序。
func RankThreads(threads []ThreadView, now time.Time) []ThreadView {
	return DefaultTrendingPolicy.Rank(threads, now)
}

// TrendingRefresher 重新计算并持久化热度分，供排序索引查询使用。
type TrendingRefresher struct {
	source ThreadSource
	writer ThreadWriter
	policy TrendingPolicy
	now    func() time.Time
}

// NewTrendingRefresher 构造 TrendingRefresher。
func NewTrendingRefresher(source ThreadSource, writer ThreadWriter) *TrendingRefresher {
	return &TrendingRefresher{source: source, writer: writer, policy: DefaultTrendingPolicy, now: time.Now}
}

// WithPolicy 替换权重配置。
func (r *TrendingRefresher) WithPolicy(policy TrendingPolicy) *TrendingRefresher {
	r.policy = policy
	return r
}

// WithClock 替换时间来源。
func (r *TrendingRefresher) WithClock(now func() time.Time) *TrendingRefresher {
	if now != nil {
		r.now = now
	}
	return r
}

// Refresh 为所有未归档的帖子写入最新热度分，返回写入数量。
func (r *TrendingRefresher) Refresh(ctx context.Context) (int, error) {
	threads, err := r.source.AllThreads(ctx)
	if err != nil {
		return 0, fmt.Errorf("load threads: %w", err)
	}

	now := r.now()
	scores := make(map[string]float64, len(threads))
	for _, t := range threads {
		if strings.EqualFold(t.Status, "archived") {
			continue
		}
		scores[t.ID] = r.policy.Score(t, now)
	}
	if len(scores) == 0 {
		return 0, nil
	}

	if err := r.writer.SaveScores(ctx, scores); err != nil {
		return 0, fmt.Errorf("save trending scores: %w", err)
	}
	log.Info().Int("threads", len(scores)).Msg("trending scores refreshed")
	return len(scores), nil
}

// Run 按固定间隔刷新，直到 ctx 结束。
func (r *TrendingRefresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("trending refresh failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
