package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sitepulse/internal/aggregate"
	"github.com/sitepulse/internal/db"
	"github.com/sitepulse/internal/logging"
	"github.com/sitepulse/internal/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultRecentWindow = 7 * 24 * time.Hour
	defaultTopBlogs     = 10
	maxSlugLength       = 191
)

var (
	// ErrStoreUnavailable 表示没有可用的持久化存储，会话级统计无法工作。
	ErrStoreUnavailable = errors.New("analytics store unavailable")
	// ErrInvalidSlug 表示文章 slug 为空或过长。
	ErrInvalidSlug = errors.New("invalid blog slug")
	// ErrBlogNotFound 表示文章尚无任何统计或元数据。
	ErrBlogNotFound = errors.New("blog not found")
)

// SessionData 描述一次会话级浏览。SessionID 为空时视为一次性会话。
type SessionData struct {
	SessionID string
	VisitorID string
	UserAgent string
	Referrer  string
}

// BlogStats 是单篇文章的统计详情。
type BlogStats struct {
	Analytics db.BlogAnalytics       `json:"analytics"`
	Windows   aggregate.WindowCounts `json:"windows"`
}

// AnalyticsService 负责会话级去重的文章浏览计数。
type AnalyticsService struct {
	db           *gorm.DB
	recentWindow time.Duration
	log          *logrus.Entry
	metrics      *metrics.Metrics
}

// NewAnalyticsService 创建 AnalyticsService，默认近期窗口为 7 天。
func NewAnalyticsService(gdb *gorm.DB) *AnalyticsService {
	return &AnalyticsService{
		db:           gdb,
		recentWindow: defaultRecentWindow,
		log:          logging.Component(nil, "analytics"),
	}
}

// WithRecentWindow 调整 recent_views 的统计窗口。
func (s *AnalyticsService) WithRecentWindow(d time.Duration) *AnalyticsService {
	if d <= 0 {
		return s
	}
	s.recentWindow = d
	return s
}

// WithLogger 设置日志输出。
func (s *AnalyticsService) WithLogger(log *logrus.Entry) *AnalyticsService {
	if log != nil {
		s.log = log
	}
	return s
}

// WithMetrics 设置计数指标。
func (s *AnalyticsService) WithMetrics(m *metrics.Metrics) *AnalyticsService {
	s.metrics = m
	return s
}

// IncrementViewCount 记录一次会话级浏览，返回是否真正计入了新的浏览。
// 同一 (slug, session) 的重复记录返回 false 且不修改任何计数。
func (s *AnalyticsService) IncrementViewCount(ctx context.Context, slug string, session *SessionData, now time.Time) (bool, error) {
	if s.db == nil {
		return false, ErrStoreUnavailable
	}
	slug, err := normalizeSlug(slug)
	if err != nil {
		return false, err
	}

	data := SessionData{}
	if session != nil {
		data = *session
	}
	data.SessionID = strings.TrimSpace(data.SessionID)
	if data.SessionID == "" {
		// 没有会话信息时，每次调用都按新会话计数
		data.SessionID = "once-" + uuid.NewString()
	}
	now = now.UTC()

	counted := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event := db.BlogViewEvent{
			Slug:      slug,
			SessionID: data.SessionID,
			VisitorID: strings.TrimSpace(data.VisitorID),
			UserAgent: truncate(data.UserAgent, 512),
			Referrer:  truncate(data.Referrer, 2048),
			ViewedAt:  now,
		}
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}, {Name: "session_id"}},
			DoNothing: true,
		}).Create(&event)
		if insert.Error != nil {
			return insert.Error
		}
		if insert.RowsAffected != 1 {
			return nil
		}
		counted = true

		firstForVisitor := true
		if event.VisitorID != "" {
			var earlier int64
			if err := tx.Model(&db.BlogViewEvent{}).
				Where("slug = ? AND visitor_id = ? AND id <> ?", slug, event.VisitorID, event.ID).
				Count(&earlier).Error; err != nil {
				return err
			}
			firstForVisitor = earlier == 0
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoNothing: true,
		}).Create(&db.BlogAnalytics{Slug: slug}).Error; err != nil {
			return err
		}

		var recent int64
		if err := tx.Model(&db.BlogViewEvent{}).
			Where("slug = ? AND viewed_at >= ?", slug, now.Add(-s.recentWindow)).
			Count(&recent).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"total_views":    gorm.Expr("total_views + 1"),
			"recent_views":   recent,
			"last_viewed_at": now,
		}
		if firstForVisitor {
			updates["unique_views"] = gorm.Expr("unique_views + 1")
		}
		return tx.Model(&db.BlogAnalytics{}).Where("slug = ?", slug).Updates(updates).Error
	})
	if err != nil {
		return false, fmt.Errorf("record blog view: %w", err)
	}

	s.metrics.RecordBlogView(counted)
	return counted, nil
}

// GetBlogStats 返回文章的统计行以及按时间窗口的浏览数。
func (s *AnalyticsService) GetBlogStats(ctx context.Context, slug string, now time.Time) (*BlogStats, error) {
	if s.db == nil {
		return nil, ErrStoreUnavailable
	}
	slug, err := normalizeSlug(slug)
	if err != nil {
		return nil, err
	}
	gdb := s.db.WithContext(ctx)

	var stats BlogStats
	err = gdb.Where("slug = ?", slug).First(&stats.Analytics).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load blog analytics: %w", err)
	}

	windows := aggregate.WindowsAt(now)
	targets := []struct {
		window aggregate.Window
		count  *int64
	}{
		{windows.Today, &stats.Windows.Today},
		{windows.Yesterday, &stats.Windows.Yesterday},
		{windows.Last7Days, &stats.Windows.Last7Days},
		{windows.Last30Days, &stats.Windows.Last30Days},
	}
	for _, target := range targets {
		if err := gdb.Model(&db.BlogViewEvent{}).
			Where("slug = ? AND viewed_at >= ? AND viewed_at < ?", slug, target.window.Start.UTC(), target.window.End.UTC()).
			Count(target.count).Error; err != nil {
			return nil, fmt.Errorf("count blog view window: %w", err)
		}
	}

	return &stats, nil
}

// TopBlogs 按总浏览量降序返回文章，浏览量相同按 slug 升序。
func (s *AnalyticsService) TopBlogs(ctx context.Context, limit int) ([]aggregate.Ranked, error) {
	if s.db == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = defaultTopBlogs
	}

	var rows []db.BlogAnalytics
	if err := s.db.WithContext(ctx).
		Where("total_views > 0").
		Order("total_views DESC, slug ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("rank blogs: %w", err)
	}

	ranked := make([]aggregate.Ranked, 0, len(rows))
	for _, row := range rows {
		ranked = append(ranked, aggregate.Ranked{Key: row.Slug, Count: int64(row.TotalViews)})
	}
	return ranked, nil
}

// RefreshRecentViews 重新计算所有文章的 recent_views，返回更新的行数。
func (s *AnalyticsService) RefreshRecentViews(ctx context.Context, now time.Time) (int64, error) {
	if s.db == nil {
		return 0, ErrStoreUnavailable
	}
	since := now.UTC().Add(-s.recentWindow)

	result := s.db.WithContext(ctx).Exec(
		`UPDATE blog_analytics SET recent_views = (
			SELECT COUNT(*) FROM blog_view_events e
			WHERE e.slug = blog_analytics.slug AND e.viewed_at >= ?
		)`, since)
	if result.Error != nil {
		return 0, fmt.Errorf("refresh recent views: %w", result.Error)
	}

	s.log.WithField("rows", result.RowsAffected).Debug("recent views refreshed")
	return result.RowsAffected, nil
}

func normalizeSlug(slug string) (string, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" || len(slug) > maxSlugLength {
		return "", ErrInvalidSlug
	}
	return slug, nil
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
