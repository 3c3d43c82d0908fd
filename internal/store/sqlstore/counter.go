package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/forumpulse/internal/db"
	"github.com/forumpulse/internal/live"
	"github.com/forumpulse/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Counter 实现 service.VisitCounter，聚合行在首次计数时惰性创建。
type Counter struct {
	db          *gorm.DB
	notifier    *live.Notifier
	maxAttempts int
}

// NewCounter 构造 Counter，默认最多尝试 service.DefaultMaxAttempts 次。
func NewCounter(gdb *gorm.DB) *Counter {
	return &Counter{db: gdb, notifier: live.NewNotifier(), maxAttempts: service.DefaultMaxAttempts}
}

// WithMaxAttempts 调整冲突重试次数。
func (c *Counter) WithMaxAttempts(n int) *Counter {
	if n > 0 {
		c.maxAttempts = n
	}
	return c
}

// Increment 在事务中读取当前值并写回 +1。
func (c *Counter) Increment(ctx context.Context, scope string) (int64, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return 0, service.ErrInvalidScope
	}

	var next int64
	err := service.RetryOnConflict(ctx, c.maxAttempts, func() error {
		return classify(c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var aggs []db.VisitAggregate
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("scope = ?", scope).
				Limit(1).
				Find(&aggs).Error; err != nil {
				return err
			}

			if len(aggs) == 0 {
				agg := db.VisitAggregate{Scope: scope, Count: 1}
				if err := tx.Create(&agg).Error; err != nil {
					return err
				}
				next = agg.Count
				return nil
			}

			agg := aggs[0]
			agg.Count++
			if err := tx.Save(&agg).Error; err != nil {
				return err
			}
			next = agg.Count
			return nil
		}))
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", scope, err)
	}

	c.notifier.Notify(scope)
	return next, nil
}

// Count 返回当前计数，记录不存在时为 0。
func (c *Counter) Count(ctx context.Context, scope string) (int64, error) {
	var aggs []db.VisitAggregate
	if err := c.db.WithContext(ctx).Where("scope = ?", scope).Limit(1).Find(&aggs).Error; err != nil {
		return 0, err
	}
	if len(aggs) == 0 {
		return 0, nil
	}
	return aggs[0].Count, nil
}

// Subscribe 立即推送当前计数，此后每次提交后推送最新值。
func (c *Counter) Subscribe(ctx context.Context, scope string, handler live.Handler[int64]) (live.Subscription, error) {
	qctx := context.WithoutCancel(ctx)
	sub := c.notifier.Listen(scope, func() {
		handler(c.Count(qctx, scope))
	})
	return bindContext(ctx, sub), nil
}
