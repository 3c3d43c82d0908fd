package sqlstore

import (
	"context"
	"time"

	"github.com/forumpulse/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarkStore 实现 service.MarkStore。
type MarkStore struct {
	db *gorm.DB
}

// NewMarkStore 构造 MarkStore。
func NewMarkStore(gdb *gorm.DB) *MarkStore {
	return &MarkStore{db: gdb}
}

// Put 插入标记，主键冲突时不做任何修改并返回 false。
func (m *MarkStore) Put(ctx context.Context, key string, expiresAt time.Time) (bool, error) {
	mark := db.VisitMark{Key: key, ExpiresAt: expiresAt}
	result := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mark_key"}},
		DoNothing: true,
	}).Create(&mark)
	if result.Error != nil {
		return false, classify(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Delete 删除标记，不存在时不报错。
func (m *MarkStore) Delete(ctx context.Context, key string) error {
	return m.db.WithContext(ctx).Where("mark_key = ?", key).Delete(&db.VisitMark{}).Error
}

// Has 报告标记是否存在。
func (m *MarkStore) Has(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := m.db.WithContext(ctx).Model(&db.VisitMark{}).Where("mark_key = ?", key).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Prune 清理过期标记，返回删除数量。
func (m *MarkStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	result := m.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&db.VisitMark{})
	return result.RowsAffected, result.Error
}
