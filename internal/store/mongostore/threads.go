package mongostore

import (
	"context"
	"fmt"
	"strings"

	"github.com/forumpulse/internal/live"
	"github.com/forumpulse/internal/service"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ThreadStore 实现 service.ThreadStore。
type ThreadStore struct {
	coll *mongo.Collection
}

// NewThreadStore 构造 ThreadStore。
func NewThreadStore(database *mongo.Database) *ThreadStore {
	return &ThreadStore{coll: database.Collection(threadsCollection)}
}

func rankedFilter(q service.RankedQuery) bson.D {
	return bson.D{{Key: "status", Value: q.Status}}
}

func rankedFindOptions(q service.RankedQuery) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "trendingScore", Value: -1}}).
		SetLimit(limitOrDefault(q.Limit)).
		SetHint(RankedIndexName)
}

func recentFindOptions(q service.RecentQuery) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "lastActivityAt", Value: -1}}).
		SetLimit(limitOrDefault(q.Limit))
}

// SubscribeRanked 使用索引 hint 按持久化热度分排序；索引缺失时推送 ErrIndexUnavailable。
func (s *ThreadStore) SubscribeRanked(ctx context.Context, q service.RankedQuery, handler live.Handler[[]service.ThreadView]) (live.Subscription, error) {
	return watchCollection(ctx, s.coll, mongo.Pipeline{}, func(qctx context.Context) error {
		threads, err := s.find(qctx, rankedFilter(q), rankedFindOptions(q))
		handler(threads, err)
		return err
	}, func(err error) {
		handler(nil, err)
	})
}

// SubscribeRecent 按最近活跃时间排序。
func (s *ThreadStore) SubscribeRecent(ctx context.Context, q service.RecentQuery, handler live.Handler[[]service.ThreadView]) (live.Subscription, error) {
	return watchCollection(ctx, s.coll, mongo.Pipeline{}, func(qctx context.Context) error {
		threads, err := s.find(qctx, bson.D{}, recentFindOptions(q))
		handler(threads, err)
		return err
	}, func(err error) {
		handler(nil, err)
	})
}

// AllThreads 全集合扫描。
func (s *ThreadStore) AllThreads(ctx context.Context) ([]service.ThreadView, error) {
	return s.find(ctx, bson.D{}, options.Find())
}

func (s *ThreadStore) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]service.ThreadView, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	return decodeThreads(docs), nil
}

func decodeThreads(docs []bson.M) []service.ThreadView {
	threads := make([]service.ThreadView, 0, len(docs))
	for _, doc := range docs {
		threads = append(threads, service.NormalizeThread("", doc))
	}
	return threads
}

// IncrementViews 用 $inc 原子加一。
func (s *ThreadStore) IncrementViews(ctx context.Context, threadID string) error {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return service.ErrInvalidThreadID
	}
	result, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "viewsCount", Value: 1}}}})
	if err != nil {
		return fmt.Errorf("increment views for %s: %w", id, classify(err))
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("increment views for %s: %w", id, service.ErrThreadNotFound)
	}
	return nil
}

// SaveScores 批量写回 trendingScore。
func (s *ThreadStore) SaveScores(ctx context.Context, scores map[string]float64) error {
	models := scoreWrites(scores)
	if len(models) == 0 {
		return nil
	}
	_, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return classify(err)
}

func scoreWrites(scores map[string]float64) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(scores))
	for id, score := range scores {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: id}}).
			SetUpdate(bson.D{{Key: "$set", Value: bson.D{{Key: "trendingScore", Value: score}}}}))
	}
	return models
}

// Upsert 以 canonical 字段名整体替换文档。
func (s *ThreadStore) Upsert(ctx context.Context, thread service.ThreadView) error {
	if strings.TrimSpace(thread.ID) == "" {
		return service.ErrInvalidThreadID
	}
	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: thread.ID}},
		threadDocument(thread),
		options.Replace().SetUpsert(true))
	return classify(err)
}

func threadDocument(t service.ThreadView) bson.D {
	status := t.Status
	if status == "" {
		status = "open"
	}
	last := t.LastActivityAt
	if last.IsZero() {
		last = t.CreatedAt
	}
	doc := bson.D{
		{Key: "_id", Value: t.ID},
		{Key: "title", Value: t.Title},
		{Key: "body", Value: t.Body},
		{Key: "authorId", Value: t.AuthorID},
		{Key: "status", Value: status},
		{Key: "pinned", Value: t.Pinned},
		{Key: "resolved", Value: t.Resolved},
		{Key: "repliesCount", Value: t.RepliesCount},
		{Key: "upvotesCount", Value: t.UpvotesCount},
		{Key: "viewsCount", Value: t.ViewsCount},
		{Key: "createdAt", Value: t.CreatedAt},
		{Key: "lastActivityAt", Value: last},
	}
	if t.BestAnswerID != "" {
		doc = append(doc, bson.E{Key: "bestAnswerId", Value: t.BestAnswerID})
	}
	if t.StoredScore != nil {
		doc = append(doc, bson.E{Key: "trendingScore", Value: *t.StoredScore})
	}
	return doc
}
