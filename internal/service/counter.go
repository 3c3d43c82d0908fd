package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forumpulse/internal/live"
)

// DefaultMaxAttempts 是事务冲突时的默认尝试次数。
const DefaultMaxAttempts = 5

// VisitCounter 维护按作用域聚合的计数。
// Increment 必须在事务中完成读取与写回：n 次并发成功调用后计数恰好增加 n。
type VisitCounter interface {
	Increment(ctx context.Context, scope string) (int64, error)
	Count(ctx context.Context, scope string) (int64, error)
	Subscribe(ctx context.Context, scope string, handler live.Handler[int64]) (live.Subscription, error)
}

// RetryOnConflict 在 fn 返回 ErrWriteConflict 时重试，最多 attempts 次。
// 其他错误立即返回；次数耗尽时返回的错误仍可用 errors.Is 识别为 ErrWriteConflict。
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if !errors.Is(err, ErrWriteConflict) {
			return err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt) * 5 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", attempts, err)
}
