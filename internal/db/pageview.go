package db

import "time"

// Pageview 是只追加的页面浏览事件，不做去重。
type Pageview struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	URL       string    `gorm:"size:2048;index" json:"url"`
	Title     string    `gorm:"size:255" json:"title,omitempty"`
	Referrer  string    `gorm:"size:2048" json:"referrer,omitempty"`
	UserAgent string    `gorm:"size:512" json:"userAgent,omitempty"`
	VisitorID string    `gorm:"size:64;index" json:"visitorId,omitempty"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	CreatedAt time.Time `json:"-"`
}

// TableName 指定自定义表名。
func (Pageview) TableName() string {
	return "pageviews"
}
