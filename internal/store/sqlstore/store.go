// Package sqlstore 基于 gorm + sqlite 实现帖子、计数与幂等标记的存储。
// 实时查询通过进程内通知模拟：每次写入后重新执行查询并推送结果。
package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/forumpulse/internal/live"
	"github.com/forumpulse/internal/service"
)

// classify 把 sqlite 的错误映射为服务层的哨兵错误。
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such index"), strings.Contains(msg, "no query solution"):
		return fmt.Errorf("%w: %v", service.ErrIndexUnavailable, err)
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "sqlite_busy"),
		strings.Contains(msg, "unique constraint failed"):
		return fmt.Errorf("%w: %v", service.ErrWriteConflict, err)
	}
	return err
}

// bindContext 在 ctx 结束时自动取消订阅。
func bindContext(ctx context.Context, sub live.Subscription) live.Subscription {
	stop := context.AfterFunc(ctx, sub.Unsubscribe)
	return live.NewSubscription(func() {
		stop()
		sub.Unsubscribe()
	})
}
