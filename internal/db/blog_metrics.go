package db

import "time"

// BlogViewEvent 是按会话记录的原始浏览日志，(slug, session_id) 唯一，创建后不再更新。
type BlogViewEvent struct {
	ID        uint      `gorm:"primaryKey"`
	Slug      string    `gorm:"size:191;uniqueIndex:idx_blog_view_event_session"`
	SessionID string    `gorm:"size:64;uniqueIndex:idx_blog_view_event_session"`
	VisitorID string    `gorm:"size:64;index"`
	UserAgent string    `gorm:"size:512"`
	Referrer  string    `gorm:"size:2048"`
	ViewedAt  time.Time `gorm:"index"`
}

// TableName 指定自定义表名。
func (BlogViewEvent) TableName() string {
	return "blog_view_events"
}

// BlogAnalytics 汇总文章维度的浏览数据。
type BlogAnalytics struct {
	ID           uint       `gorm:"primaryKey" json:"-"`
	Slug         string     `gorm:"size:191;uniqueIndex" json:"slug"`
	TotalViews   uint64     `gorm:"default:0" json:"totalViews"`
	UniqueViews  uint64     `gorm:"default:0" json:"uniqueViews"`
	RecentViews  uint64     `gorm:"default:0" json:"recentViews"`
	LastViewedAt *time.Time `json:"lastViewedAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TableName 指定自定义表名，避免自动复数化导致的歧义。
func (BlogAnalytics) TableName() string {
	return "blog_analytics"
}

// BlogPost 是文章元数据，内容本身由外部 CMS 管理。
type BlogPost struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Slug      string    `gorm:"size:191;uniqueIndex" json:"slug"`
	Title     string    `gorm:"size:255" json:"title"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (BlogPost) TableName() string {
	return "blog_posts"
}
