package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/forumpulse/internal/live"
)

// ThreadView 是各存储后端归一化之后的帖子视图。
type ThreadView struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Body           string    `json:"body,omitempty"`
	AuthorID       string    `json:"authorId,omitempty"`
	Status         string    `json:"status,omitempty"`
	Pinned         bool      `json:"pinned,omitempty"`
	Resolved       bool      `json:"resolved,omitempty"`
	BestAnswerID   string    `json:"bestAnswerId,omitempty"`
	RepliesCount   int64     `json:"repliesCount"`
	UpvotesCount   int64     `json:"upvotesCount"`
	ViewsCount     int64     `json:"viewsCount"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	// StoredScore 为持久化的热度分，文档中没有该字段时为 nil。
	StoredScore *float64 `json:"-"`
	// Score 是展示用的热度分，只在内存中附加，不回写。
	Score float64 `json:"trendingScore"`
}

// HasStoredScore 报告帖子是否携带持久化的热度分。
func (t ThreadView) HasStoredScore() bool {
	return t.StoredScore != nil
}

// RankedQuery 描述按持久化热度分排序的查询。
type RankedQuery struct {
	Status string
	Limit  int
}

// RecentQuery 描述按最近活跃时间排序的查询。
type RecentQuery struct {
	Limit int
}

// ThreadSource 是帖子集合的只读入口。
// Subscribe* 会先推送一次当前结果，此后每次数据变化再推送；查询失败通过 handler 的 err 传回。
type ThreadSource interface {
	SubscribeRanked(ctx context.Context, q RankedQuery, handler live.Handler[[]ThreadView]) (live.Subscription, error)
	SubscribeRecent(ctx context.Context, q RecentQuery, handler live.Handler[[]ThreadView]) (live.Subscription, error)
	AllThreads(ctx context.Context) ([]ThreadView, error)
}

// ThreadWriter 是帖子集合的写入口。
type ThreadWriter interface {
	IncrementViews(ctx context.Context, threadID string) error
	SaveScores(ctx context.Context, scores map[string]float64) error
	Upsert(ctx context.Context, thread ThreadView) error
}

// ThreadStore 组合读写两端。
type ThreadStore interface {
	ThreadSource
	ThreadWriter
}

// IsResolved 判断帖子是否已解决：存在最佳答案、resolved 标记为真，或状态为 resolved/resuelto。
func IsResolved(t ThreadView) bool {
	if strings.TrimSpace(t.BestAnswerID) != "" || t.Resolved {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(t.Status)) {
	case "resolved", "resuelto":
		return true
	}
	return false
}

var (
	idKeys           = []string{"id", "_id"}
	titleKeys        = []string{"title", "subject"}
	bodyKeys         = []string{"body", "content"}
	authorKeys       = []string{"authorId", "author_id", "uid"}
	statusKeys       = []string{"status"}
	pinnedKeys       = []string{"pinned", "isPinned"}
	resolvedKeys     = []string{"resolved", "isResolved"}
	bestAnswerKeys   = []string{"bestAnswerId", "acceptedAnswerId", "best_answer_id"}
	repliesKeys      = []string{"repliesCount", "replies", "replyCount", "replies_count"}
	upvotesKeys      = []string{"upvotesCount", "upvotes", "likes", "upvotes_count"}
	viewsKeys        = []string{"viewsCount", "views", "viewCount", "views_count"}
	createdKeys      = []string{"createdAt", "created_at"}
	lastActivityKeys = []string{"lastActivityAt", "lastActivity", "updatedAt", "last_activity_at"}
	scoreKeys        = []string{"trendingScore", "trending_score"}
)

// NormalizeThread 把任意字段命名的文档映射为 ThreadView。
// 缺失的计数按 0 处理，缺失的 createdAt 按 Unix 纪元处理。
func NormalizeThread(id string, doc map[string]any) ThreadView {
	t := ThreadView{
		ID:           strings.TrimSpace(id),
		Title:        pickString(doc, titleKeys...),
		Body:         pickString(doc, bodyKeys...),
		AuthorID:     pickString(doc, authorKeys...),
		Status:       pickString(doc, statusKeys...),
		Pinned:       pickBool(doc, pinnedKeys...),
		Resolved:     pickBool(doc, resolvedKeys...),
		BestAnswerID: pickString(doc, bestAnswerKeys...),
		RepliesCount: pickInt(doc, repliesKeys...),
		UpvotesCount: pickInt(doc, upvotesKeys...),
		ViewsCount:   pickInt(doc, viewsKeys...),
	}
	if t.ID == "" {
		t.ID = pickString(doc, idKeys...)
	}

	if created, ok := pickTime(doc, createdKeys...); ok {
		t.CreatedAt = created
	} else {
		t.CreatedAt = time.Unix(0, 0).UTC()
	}
	if last, ok := pickTime(doc, lastActivityKeys...); ok {
		t.LastActivityAt = last
	} else {
		t.LastActivityAt = t.CreatedAt
	}
	if score, ok := pickFloat(doc, scoreKeys...); ok {
		t.StoredScore = &score
		t.Score = score
	}
	return t
}

func pickString(doc map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := doc[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case interface{ Hex() string }:
			return v.Hex()
		case nil:
		default:
			if s, ok := v.(interface{ String() string }); ok {
				return s.String()
			}
		}
	}
	return ""
}

func pickBool(doc map[string]any, keys ...string) bool {
	for _, key := range keys {
		switch v := doc[key].(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return false
}

func pickInt(doc map[string]any, keys ...string) int64 {
	if f, ok := pickFloat(doc, keys...); ok {
		return int64(f)
	}
	return 0
}

func pickFloat(doc map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if f, ok := toFloat(doc[key]); ok {
			return f, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case *float64:
		if n != nil {
			return *n, true
		}
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

func pickTime(doc map[string]any, keys ...string) (time.Time, bool) {
	for _, key := range keys {
		switch v := doc[key].(type) {
		case time.Time:
			if !v.IsZero() {
				return v, true
			}
		case *time.Time:
			if v != nil && !v.IsZero() {
				return *v, true
			}
		case interface{ Time() time.Time }:
			return v.Time(), true
		case string:
			if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
				return parsed, true
			}
		default:
			if ms, ok := toFloat(v); ok {
				return time.UnixMilli(int64(ms)).UTC(), true
			}
		}
	}
	return time.Time{}, false
}
