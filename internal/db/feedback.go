package db

import "time"

// BlogFeedback 保存表情反馈，(slug, fingerprint) 唯一，重复提交覆盖原记录。
type BlogFeedback struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Slug        string    `gorm:"size:191;uniqueIndex:idx_blog_feedback_fingerprint" json:"slug"`
	Fingerprint string    `gorm:"size:128;uniqueIndex:idx_blog_feedback_fingerprint" json:"-"`
	Emoji       string    `gorm:"size:16" json:"emoji"`
	Message     string    `gorm:"size:4096" json:"message,omitempty"`
	URL         string    `gorm:"size:2048" json:"url,omitempty"`
	UserAgent   string    `gorm:"size:512" json:"-"`
	IPHash      string    `gorm:"size:64;index" json:"-"`
	SubmittedAt time.Time `gorm:"index" json:"submittedAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (BlogFeedback) TableName() string {
	return "blog_feedback"
}

// FeedbackAttempt 是限流账本，每次被接受的反馈写入追加一行。
type FeedbackAttempt struct {
	ID        uint      `gorm:"primaryKey"`
	Slug      string    `gorm:"size:191;index:idx_feedback_attempt_key"`
	IPHash    string    `gorm:"size:64;index:idx_feedback_attempt_key"`
	CreatedAt time.Time `gorm:"index:idx_feedback_attempt_key"`
}

// TableName 指定自定义表名。
func (FeedbackAttempt) TableName() string {
	return "feedback_attempts"
}
