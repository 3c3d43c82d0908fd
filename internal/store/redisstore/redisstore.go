// Package redisstore 用 Redis 实现幂等标记与访问计数。
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/forumpulse/internal/live"
	"github.com/forumpulse/internal/service"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const (
	markPrefix    = "visitmark:"
	counterPrefix = "visits:"
	channelPrefix = "visits-changed:"
	countField    = "count"
	minMarkTTL    = time.Minute
)

// Options 描述 Redis 连接参数。
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient 创建客户端并 Ping 一次。
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	log.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return client, nil
}

// MarkStore 用 SETNX 实现 service.MarkStore，标记随 TTL 自动过期。
type MarkStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewMarkStore 构造 MarkStore。
func NewMarkStore(client *redis.Client) *MarkStore {
	return &MarkStore{client: client, now: time.Now}
}

// Put 仅在键不存在时写入。
func (m *MarkStore) Put(ctx context.Context, key string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(m.now())
	if ttl < minMarkTTL {
		ttl = minMarkTTL
	}
	created, err := m.client.SetNX(ctx, markPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return created, nil
}

// Delete 删除标记。
func (m *MarkStore) Delete(ctx context.Context, key string) error {
	return m.client.Del(ctx, markPrefix+key).Err()
}

// Counter 用 WATCH/MULTI/EXEC 实现 service.VisitCounter，变更通过 Pub/Sub 广播。
type Counter struct {
	client      *redis.Client
	maxAttempts int
}

// NewCounter 构造 Counter。
func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client, maxAttempts: service.DefaultMaxAttempts}
}

// WithMaxAttempts 调整乐观锁冲突时的尝试次数。
func (c *Counter) WithMaxAttempts(n int) *Counter {
	if n > 0 {
		c.maxAttempts = n
	}
	return c
}

// Increment 在乐观事务中读取并写回 +1，被并发修改时重试。
func (c *Counter) Increment(ctx context.Context, scope string) (int64, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return 0, service.ErrInvalidScope
	}
	key := counterPrefix + scope

	var next int64
	err := service.RetryOnConflict(ctx, c.maxAttempts, func() error {
		err := c.client.Watch(ctx, func(tx *redis.Tx) error {
			prev, err := tx.HGet(ctx, key, countField).Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			next = prev + 1
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, countField, next)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			return service.ErrWriteConflict
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", scope, err)
	}

	if err := c.client.Publish(ctx, channelPrefix+scope, next).Err(); err != nil {
		log.Warn().Err(err).Str("scope", scope).Msg("publish visit count failed")
	}
	return next, nil
}

// Count 返回当前计数，键不存在时为 0。
func (c *Counter) Count(ctx context.Context, scope string) (int64, error) {
	n, err := c.client.HGet(ctx, counterPrefix+scope, countField).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Subscribe 先推送当前值，之后每收到一次变更消息重新读取并推送。
// Unsubscribe 返回后不会再有推送；handler 内不要同步调用 Unsubscribe。
func (c *Counter) Subscribe(ctx context.Context, scope string, handler live.Handler[int64]) (live.Subscription, error) {
	pubsub := c.client.Subscribe(ctx, channelPrefix+scope)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", scope, err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopOnDone := context.AfterFunc(ctx, cancel)
	messages := pubsub.Channel()

	var mu sync.Mutex
	closed := false
	deliver := func(n int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		if closed || subCtx.Err() != nil {
			return
		}
		handler(n, err)
	}

	go func() {
		defer pubsub.Close()
		deliver(c.Count(subCtx, scope))
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				deliver(c.Count(subCtx, scope))
			}
		}
	}()

	return live.NewSubscription(func() {
		stopOnDone()
		cancel()
		mu.Lock()
		closed = true
		mu.Unlock()
	}), nil
}
