package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sitepulse/internal/db"
	"gorm.io/gorm"
)

const (
	// DefaultFeedbackLimit 是每个 (slug, ip_hash) 在窗口内允许的反馈写入次数。
	DefaultFeedbackLimit = 3
	// DefaultFeedbackWindow 是滚动限流窗口。
	DefaultFeedbackWindow = 24 * time.Hour
)

// ErrRateLimited 表示反馈写入超出限流，不会在服务端重试。
var ErrRateLimited = errors.New("feedback rate limit exceeded")

// FeedbackLimiter 基于 feedback_attempts 账本做滚动窗口限流。
// 计数与写入必须在同一事务内完成。
type FeedbackLimiter struct {
	limit  int
	window time.Duration
}

// NewFeedbackLimiter 创建限流器，非正数参数使用默认值。
func NewFeedbackLimiter(limit int, window time.Duration) FeedbackLimiter {
	if limit <= 0 {
		limit = DefaultFeedbackLimit
	}
	if window <= 0 {
		window = DefaultFeedbackWindow
	}
	return FeedbackLimiter{limit: limit, window: window}
}

// Limit 返回窗口内允许的写入次数。
func (l FeedbackLimiter) Limit() int {
	return l.limit
}

// Window 返回滚动窗口长度。
func (l FeedbackLimiter) Window() time.Duration {
	return l.window
}

// Allow 统计窗口 (now-window, now] 内的写入次数，达到上限时返回 ErrRateLimited。
func (l FeedbackLimiter) Allow(tx *gorm.DB, slug, ipHash string, now time.Time) error {
	var used int64
	if err := tx.Model(&db.FeedbackAttempt{}).
		Where("slug = ? AND ip_hash = ? AND created_at > ?", slug, ipHash, now.UTC().Add(-l.window)).
		Count(&used).Error; err != nil {
		return fmt.Errorf("count feedback attempts: %w", err)
	}
	if used >= int64(l.limit) {
		return ErrRateLimited
	}
	return nil
}

// Record 追加一条写入记录，占用一个限流名额。
func (l FeedbackLimiter) Record(tx *gorm.DB, slug, ipHash string, now time.Time) error {
	attempt := db.FeedbackAttempt{Slug: slug, IPHash: ipHash, CreatedAt: now.UTC()}
	if err := tx.Create(&attempt).Error; err != nil {
		return fmt.Errorf("record feedback attempt: %w", err)
	}
	return nil
}

// Prune 删除已经滑出窗口的账本记录。
func (l FeedbackLimiter) Prune(ctx context.Context, gdb *gorm.DB, now time.Time) (int64, error) {
	result := gdb.WithContext(ctx).
		Where("created_at <= ?", now.UTC().Add(-l.window)).
		Delete(&db.FeedbackAttempt{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune feedback attempts: %w", result.Error)
	}
	return result.RowsAffected, nil
}
