package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forumpulse/internal/db"
	"github.com/forumpulse/internal/live"
	"github.com/forumpulse/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	threadsTopic     = "threads"
	defaultListLimit = 20
)

// ThreadStore 实现 service.ThreadStore。
type ThreadStore struct {
	db          *gorm.DB
	notifier    *live.Notifier
	rankedIndex string
}

// NewThreadStore 构造 ThreadStore。
func NewThreadStore(gdb *gorm.DB) *ThreadStore {
	return &ThreadStore{db: gdb, notifier: live.NewNotifier(), rankedIndex: db.RankedIndex}
}

// SubscribeRanked 按持久化热度分降序订阅，强制使用复合索引。
func (s *ThreadStore) SubscribeRanked(ctx context.Context, q service.RankedQuery, handler live.Handler[[]service.ThreadView]) (live.Subscription, error) {
	return s.watch(ctx, func(qctx context.Context) ([]service.ThreadView, error) {
		return s.ranked(qctx, q)
	}, handler), nil
}

// SubscribeRecent 按最近活跃时间降序订阅。
func (s *ThreadStore) SubscribeRecent(ctx context.Context, q service.RecentQuery, handler live.Handler[[]service.ThreadView]) (live.Subscription, error) {
	return s.watch(ctx, func(qctx context.Context) ([]service.ThreadView, error) {
		return s.recent(qctx, q)
	}, handler), nil
}

func (s *ThreadStore) watch(ctx context.Context, query func(context.Context) ([]service.ThreadView, error), handler live.Handler[[]service.ThreadView]) live.Subscription {
	qctx := context.WithoutCancel(ctx)
	sub := s.notifier.Listen(threadsTopic, func() {
		handler(query(qctx))
	})
	return bindContext(ctx, sub)
}

func (s *ThreadStore) ranked(ctx context.Context, q service.RankedQuery) ([]service.ThreadView, error) {
	var rows []db.Thread
	err := s.db.WithContext(ctx).
		Table("threads INDEXED BY "+s.rankedIndex).
		Where("status = ?", q.Status).
		Order("trending_score DESC").
		Limit(limitOrDefault(q.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, classify(err)
	}
	return toViews(rows), nil
}

func (s *ThreadStore) recent(ctx context.Context, q service.RecentQuery) ([]service.ThreadView, error) {
	var rows []db.Thread
	if err := s.db.WithContext(ctx).
		Order("last_activity_at DESC").
		Limit(limitOrDefault(q.Limit)).
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	return toViews(rows), nil
}

// AllThreads 全表扫描。
func (s *ThreadStore) AllThreads(ctx context.Context) ([]service.ThreadView, error) {
	var rows []db.Thread
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toViews(rows), nil
}

// Get 读取单个帖子。
func (s *ThreadStore) Get(ctx context.Context, id string) (service.ThreadView, error) {
	var rows []db.Thread
	if err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return service.ThreadView{}, err
	}
	if len(rows) == 0 {
		return service.ThreadView{}, service.ErrThreadNotFound
	}
	return toView(rows[0]), nil
}

// IncrementViews 原子地把浏览数加一，不影响最近活跃时间。
func (s *ThreadStore) IncrementViews(ctx context.Context, threadID string) error {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return service.ErrInvalidThreadID
	}

	result := s.db.WithContext(ctx).
		Model(&db.Thread{}).
		Where("id = ?", id).
		UpdateColumn("views_count", gorm.Expr("views_count + ?", 1))
	if result.Error != nil {
		return fmt.Errorf("increment views for %s: %w", id, classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("increment views for %s: %w", id, service.ErrThreadNotFound)
	}

	s.notifier.Notify(threadsTopic)
	return nil
}

// SaveScores 批量回写热度分。
func (s *ThreadStore) SaveScores(ctx context.Context, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, score := range scores {
			if err := tx.Model(&db.Thread{}).
				Where("id = ?", id).
				UpdateColumn("trending_score", score).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify(err)
	}

	s.notifier.Notify(threadsTopic)
	return nil
}

// Upsert 新建或整体覆盖帖子。
func (s *ThreadStore) Upsert(ctx context.Context, thread service.ThreadView) error {
	if strings.TrimSpace(thread.ID) == "" {
		return service.ErrInvalidThreadID
	}

	row := fromView(thread)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return classify(err)
	}

	s.notifier.Notify(threadsTopic)
	return nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func toViews(rows []db.Thread) []service.ThreadView {
	views := make([]service.ThreadView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toView(row))
	}
	return views
}

func toView(row db.Thread) service.ThreadView {
	view := service.ThreadView{
		ID:             row.ID,
		Title:          row.Title,
		Body:           row.Body,
		AuthorID:       row.AuthorID,
		Status:         row.Status,
		Pinned:         row.Pinned,
		Resolved:       row.Resolved,
		RepliesCount:   row.RepliesCount,
		UpvotesCount:   row.UpvotesCount,
		ViewsCount:     row.ViewsCount,
		CreatedAt:      row.CreatedAt,
		LastActivityAt: row.LastActivityAt,
	}
	if row.BestAnswerID != nil {
		view.BestAnswerID = *row.BestAnswerID
	}
	if row.TrendingScore != nil {
		score := *row.TrendingScore
		view.StoredScore = &score
		view.Score = score
	}
	return view
}

func fromView(view service.ThreadView) db.Thread {
	row := db.Thread{
		ID:             view.ID,
		Title:          view.Title,
		Body:           view.Body,
		AuthorID:       view.AuthorID,
		Status:         view.Status,
		Pinned:         view.Pinned,
		Resolved:       view.Resolved,
		RepliesCount:   view.RepliesCount,
		UpvotesCount:   view.UpvotesCount,
		ViewsCount:     view.ViewsCount,
		CreatedAt:      view.CreatedAt,
		LastActivityAt: view.LastActivityAt,
	}
	if row.Status == "" {
		row.Status = "open"
	}
	// 缺失的创建时间按纪元处理，与 NormalizeThread 一致，不获得新鲜度加分
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Unix(0, 0).UTC()
	}
	if row.LastActivityAt.IsZero() {
		row.LastActivityAt = row.CreatedAt
	}
	if view.BestAnswerID != "" {
		answer := view.BestAnswerID
		row.BestAnswerID = &answer
	}
	if view.StoredScore != nil {
		score := *view.StoredScore
		row.TrendingScore = &score
	}
	return row
}
