// Package mongostore 以 MongoDB 作为帖子与计数的存储。
// 帖子文档字段命名不统一，读取时统一经过 service.NormalizeThread。
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forumpulse/internal/live"
	"github.com/forumpulse/internal/service"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	// RankedIndexName 是 {status: 1, trendingScore: -1} 复合索引的名字
	RankedIndexName = "status_1_trendingScore_-1"

	threadsCollection  = "threads"
	countersCollection = "aggregates"
	defaultListLimit   = 20
	connectTimeout     = 10 * time.Second
)

// Connect 建立连接并确认主节点可达。
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes 创建排序查询所需的复合索引。
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(threadsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    rankedIndexKeys(),
		Options: options.Index().SetName(RankedIndexName),
	})
	return err
}

func rankedIndexKeys() bson.D {
	return bson.D{{Key: "status", Value: 1}, {Key: "trendingScore", Value: -1}}
}

// classify 把驱动错误映射为服务层的哨兵错误。
func classify(err error) error {
	if err == nil {
		return nil
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		switch {
		case serverErr.HasErrorMessage("hint provided does not correspond to an existing index"),
			serverErr.HasErrorCode(27),  // IndexNotFound
			serverErr.HasErrorCode(291): // NoQueryExecutionPlans
			return fmt.Errorf("%w: %v", service.ErrIndexUnavailable, err)
		case serverErr.HasErrorCode(112), // WriteConflict
			serverErr.HasErrorLabel("TransientTransactionError"):
			return fmt.Errorf("%w: %v", service.ErrWriteConflict, err)
		}
	}
	return err
}

// changeStream 是 *mongo.ChangeStream 中 follow 用到的部分。
type changeStream interface {
	Next(ctx context.Context) bool
	Err() error
	Close(ctx context.Context) error
}

// watchCollection 推送一次初始结果，之后集合每次变更都重新查询。
// change stream 中途失败时通过 onErr 通知订阅者。
func watchCollection(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline, query func(context.Context) error, onErr func(error)) (live.Subscription, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := coll.Watch(streamCtx, pipeline)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", coll.Name(), classify(err))
	}
	return follow(ctx, streamCtx, cancel, coll.Name(), stream, query, onErr), nil
}

func follow(ctx, streamCtx context.Context, cancel context.CancelFunc, name string, stream changeStream, query func(context.Context) error, onErr func(error)) live.Subscription {
	stopOnDone := context.AfterFunc(ctx, cancel)

	go func() {
		defer stream.Close(context.Background())
		if err := query(streamCtx); err != nil && streamCtx.Err() != nil {
			return
		}
		for stream.Next(streamCtx) {
			if err := query(streamCtx); err != nil && streamCtx.Err() != nil {
				return
			}
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			log.Error().Err(err).Str("collection", name).Msg("change stream closed")
			onErr(fmt.Errorf("change stream %s: %w", name, classify(err)))
		}
	}()

	return live.NewSubscription(func() {
		stopOnDone()
		cancel()
	})
}

func limitOrDefault(limit int) int64 {
	if limit <= 0 {
		return defaultListLimit
	}
	return int64(limit)
}
