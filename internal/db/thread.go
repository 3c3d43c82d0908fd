package db

import "time"

// Thread 是论坛帖子。TrendingScore 由刷新任务回写，为空表示尚未计算。
type Thread struct {
	ID             string `gorm:"primaryKey;size:64"`
	Title          string `gorm:"size:200;not null"`
	Body           string `gorm:"type:text"`
	AuthorID       string `gorm:"size:64;index"`
	Status         string `gorm:"size:32;default:open;index:idx_threads_status_score,priority:1"`
	Pinned         bool
	Resolved       bool
	BestAnswerID   *string   `gorm:"size:64"`
	RepliesCount   int64     `gorm:"not null;default:0"`
	UpvotesCount   int64     `gorm:"not null;default:0"`
	ViewsCount     int64     `gorm:"not null;default:0"`
	TrendingScore  *float64  `gorm:"index:idx_threads_status_score,priority:2,sort:desc"`
	CreatedAt      time.Time `gorm:"index"`
	LastActivityAt time.Time `gorm:"index"`
	UpdatedAt      time.Time
}

// TableName 指定自定义表名。
func (Thread) TableName() string {
	return "threads"
}
