package db

import "time"

// VisitAggregate 是按作用域聚合的访问计数，记录在首次计数时惰性创建。
type VisitAggregate struct {
	Scope     string `gorm:"primaryKey;size:191"`
	Count     int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定自定义表名，避免自动复数化导致的歧义。
func (VisitAggregate) TableName() string {
	return "visit_aggregates"
}

// VisitMark 记录“某访问者今天已计数”，主键即幂等键。
type VisitMark struct {
	Key       string    `gorm:"column:mark_key;primaryKey;size:255"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

// TableName 指定自定义表名。
func (VisitMark) TableName() string {
	return "visit_marks"
}
