package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/forumpulse/internal/live"
	"github.com/forumpulse/internal/service"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Counter 在多文档事务中读取并写回计数，需要副本集。
type Counter struct {
	client      *mongo.Client
	coll        *mongo.Collection
	maxAttempts int
}

// NewCounter 构造 Counter。
func NewCounter(client *mongo.Client, database *mongo.Database) *Counter {
	return &Counter{
		client:      client,
		coll:        database.Collection(countersCollection),
		maxAttempts: service.DefaultMaxAttempts,
	}
}

// WithMaxAttempts 调整冲突重试次数。
func (c *Counter) WithMaxAttempts(n int) *Counter {
	if n > 0 {
		c.maxAttempts = n
	}
	return c
}

type aggregateDoc struct {
	Count int64 `bson:"count"`
}

// Increment 读取 count 后写回 count+1，文档不存在时以 upsert 创建。
func (c *Counter) Increment(ctx context.Context, scope string) (int64, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return 0, service.ErrInvalidScope
	}

	var next int64
	err := service.RetryOnConflict(ctx, c.maxAttempts, func() error {
		session, err := c.client.StartSession()
		if err != nil {
			return err
		}
		defer session.EndSession(context.Background())

		result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			var doc aggregateDoc
			err := c.coll.FindOne(sc, bson.D{{Key: "_id", Value: scope}}).Decode(&doc)
			if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
				return nil, err
			}
			value := doc.Count + 1
			_, err = c.coll.UpdateOne(sc,
				bson.D{{Key: "_id", Value: scope}},
				bson.D{{Key: "$set", Value: bson.D{{Key: "count", Value: value}}}},
				options.Update().SetUpsert(true))
			return value, err
		})
		if err != nil {
			return classify(err)
		}
		next = result.(int64)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", scope, err)
	}
	return next, nil
}

// Count 返回当前计数。
func (c *Counter) Count(ctx context.Context, scope string) (int64, error) {
	var doc aggregateDoc
	err := c.coll.FindOne(ctx, bson.D{{Key: "_id", Value: scope}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Count, nil
}

// Subscribe 通过 change stream 监听该作用域的文档。
func (c *Counter) Subscribe(ctx context.Context, scope string, handler live.Handler[int64]) (live.Subscription, error) {
	return watchCollection(ctx, c.coll, scopePipeline(scope), func(qctx context.Context) error {
		n, err := c.Count(qctx, scope)
		handler(n, err)
		return err
	}, func(err error) {
		handler(0, err)
	})
}

func scopePipeline(scope string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: scope}}}},
	}
}
