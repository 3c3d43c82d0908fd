package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// VisitStatus 描述一次计数请求的结果。
type VisitStatus string

const (
	VisitCounted        VisitStatus = "counted"
	VisitAlreadyCounted VisitStatus = "already_counted"
	VisitSkipped        VisitStatus = "skipped"
)

// markRetention 标记在当天结束后额外保留的时长
const markRetention = 24 * time.Hour

// Actor 是已认证的访问者。
type Actor struct {
	ID    string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// VisitResult 是 VisitGate.Count 的返回值。
type VisitResult struct {
	Status VisitStatus `json:"status"`
	Key    string      `json:"key,omitempty"`
	Count  int64       `json:"count,omitempty"`
}

// MarkStore 保存“今日已计数”标记。Put 必须是原子的 set-if-absent，返回是否新建。
type MarkStore interface {
	Put(ctx context.Context, key string, expiresAt time.Time) (bool, error)
	Delete(ctx context.Context, key string) error
}

// VisitEvent 是成功计数后发往分析管道的事件。
type VisitEvent struct {
	Scope   string
	ActorID string
	Count   int64
	At      time.Time
}

// VisitSink 接收计数事件，失败只记录日志。
type VisitSink interface {
	RecordVisit(ctx context.Context, event VisitEvent) error
}

// DailyKey 生成 "<scope>:<actorId>:<YYYY-MM-DD>"，日期取 now 所在时区的日历日。
func DailyKey(scope, actorID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s", scope, actorID, now.Format(time.DateOnly))
}

// normalizeToDate 将时间裁剪到所在时区的零点。
func normalizeToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// VisitGate 保证同一访问者每天对同一作用域最多计数一次（以单个标记存储为界）。
type VisitGate struct {
	marks    MarkStore
	counter  VisitCounter
	sink     VisitSink
	excluded map[string]struct{}
	loc      *time.Location
	now      func() time.Time
}

// NewVisitGate 构造 VisitGate，默认使用本地时区。
func NewVisitGate(marks MarkStore, counter VisitCounter) *VisitGate {
	return &VisitGate{
		marks:    marks,
		counter:  counter,
		excluded: make(map[string]struct{}),
		loc:      time.Local,
		now:      time.Now,
	}
}

// WithExcludedEmails 设置不参与计数的邮箱（忽略大小写）。
func (g *VisitGate) WithExcludedEmails(emails []string) *VisitGate {
	for _, email := range emails {
		if trimmed := strings.ToLower(strings.TrimSpace(email)); trimmed != "" {
			g.excluded[trimmed] = struct{}{}
		}
	}
	return g
}

// WithLocation 设置计算日历日所用的时区。
func (g *VisitGate) WithLocation(loc *time.Location) *VisitGate {
	if loc != nil {
		g.loc = loc
	}
	return g
}

// WithClock 替换时间来源，便于测试跨日。
func (g *VisitGate) WithClock(now func() time.Time) *VisitGate {
	if now != nil {
		g.now = now
	}
	return g
}

// WithSink 设置计数事件的下游。
func (g *VisitGate) WithSink(sink VisitSink) *VisitGate {
	g.sink = sink
	return g
}

// Count 对 actor 在 scope 上的今日访问计数一次。
// 标记已存在时返回 VisitAlreadyCounted；计数失败时撤销标记并返回错误。
func (g *VisitGate) Count(ctx context.Context, actor Actor, scope string) (VisitResult, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return VisitResult{}, ErrInvalidScope
	}
	if strings.TrimSpace(actor.ID) == "" || g.isExcluded(actor.Email) {
		return VisitResult{Status: VisitSkipped}, nil
	}

	now := g.now().In(g.loc)
	key := DailyKey(scope, actor.ID, now)
	expiresAt := normalizeToDate(now).AddDate(0, 0, 1).Add(markRetention)

	created, err := g.marks.Put(ctx, key, expiresAt)
	if err != nil {
		return VisitResult{}, fmt.Errorf("mark visit %s: %w", key, err)
	}
	if !created {
		return VisitResult{Status: VisitAlreadyCounted, Key: key}, nil
	}

	count, err := g.counter.Increment(ctx, scope)
	if err != nil {
		if rbErr := g.marks.Delete(context.WithoutCancel(ctx), key); rbErr != nil {
			log.Error().Err(rbErr).Str("key", key).Msg("failed to roll back visit mark")
			err = errors.Join(err, fmt.Errorf("roll back mark: %w", rbErr))
		}
		return VisitResult{}, fmt.Errorf("increment visits for %s: %w", scope, err)
	}

	if g.sink != nil {
		event := VisitEvent{Scope: scope, ActorID: actor.ID, Count: count, At: now}
		if sinkErr := g.sink.RecordVisit(ctx, event); sinkErr != nil {
			log.Warn().Err(sinkErr).Str("scope", scope).Msg("visit sink rejected event")
		}
	}

	return VisitResult{Status: VisitCounted, Key: key, Count: count}, nil
}

func (g *VisitGate) isExcluded(email string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return false
	}
	_, ok := g.excluded[trimmed]
	return ok
}
