package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sitepulse/internal/aggregate"
	"github.com/sitepulse/internal/db"
	"gorm.io/gorm"
)

// GormBackend is the persistent backend.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend wraps an opened and migrated gorm connection.
func NewGormBackend(gdb *gorm.DB) *GormBackend {
	return &GormBackend{db: gdb}
}

// CreatePageview appends a pageview.
func (b *GormBackend) CreatePageview(ctx context.Context, in PageviewInput) (*db.Pageview, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	pageview := in.record()
	if err := b.db.WithContext(ctx).Create(&pageview).Error; err != nil {
		return nil, fmt.Errorf("create pageview: %w", err)
	}
	return &pageview, nil
}

// GetPageviews lists the newest pageviews first.
func (b *GormBackend) GetPageviews(ctx context.Context, limit int) ([]db.Pageview, error) {
	var pageviews []db.Pageview
	if err := b.db.WithContext(ctx).
		Order("timestamp DESC, id DESC").
		Limit(normalizeLimit(limit)).
		Find(&pageviews).Error; err != nil {
		return nil, fmt.Errorf("list pageviews: %w", err)
	}
	return pageviews, nil
}

// GetTotalCount counts all pageviews.
func (b *GormBackend) GetTotalCount(ctx context.Context) (int64, error) {
	var total int64
	if err := b.db.WithContext(ctx).Model(&db.Pageview{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count pageviews: %w", err)
	}
	return total, nil
}

type rankedRow struct {
	RankKey string
	Hits    int64
}

// GetStats aggregates the pageview log relative to now.
func (b *GormBackend) GetStats(ctx context.Context, now time.Time, topN int) (*PageviewStats, error) {
	gdb := b.db.WithContext(ctx)
	var stats PageviewStats

	if err := gdb.Model(&db.Pageview{}).Count(&stats.TotalViews).Error; err != nil {
		return nil, fmt.Errorf("count pageviews: %w", err)
	}
	if err := gdb.Model(&db.Pageview{}).
		Where("visitor_id <> ''").
		Distinct("visitor_id").
		Count(&stats.UniqueVisitors).Error; err != nil {
		return nil, fmt.Errorf("count unique visitors: %w", err)
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
		if err := gdb.Model(&db.Pageview{}).
			Where("timestamp >= ? AND timestamp < ?", target.window.Start.UTC(), target.window.End.UTC()).
			Count(target.count).Error; err != nil {
			return nil, fmt.Errorf("count pageview window: %w", err)
		}
	}

	var rows []rankedRow
	if err := gdb.Model(&db.Pageview{}).
		Select("url AS rank_key, COUNT(*) AS hits").
		Group("url").
		Order("hits DESC, url ASC").
		Limit(normalizeTopN(topN)).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("rank pages: %w", err)
	}
	stats.TopPages = toRanked(rows)

	return &stats, nil
}

// TrackVisitor creates the visitor on first sight and counts a visit otherwise.
func (b *GormBackend) TrackVisitor(ctx context.Context, in VisitorInput, now time.Time) (*db.Visitor, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now = now.UTC()
	gdb := b.db.WithContext(ctx)

	var visitor db.Visitor
	err := gdb.Where("visitor_id = ?", in.VisitorID).First(&visitor).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		visitor = in.newVisitor(now)
		createErr := gdb.Create(&visitor).Error
		if createErr == nil {
			return &visitor, nil
		}
		if !IsUniqueConflict(createErr) {
			return nil, fmt.Errorf("create visitor: %w", createErr)
		}
		// 并发请求已先一步插入，转为更新
	case err != nil:
		return nil, fmt.Errorf("load visitor: %w", err)
	}

	updates := in.updates()
	updates["total_visits"] = gorm.Expr("total_visits + 1")
	updates["is_new_visitor"] = false
	updates["last_visit_at"] = now

	if err := gdb.Model(&db.Visitor{}).
		Where("visitor_id = ?", in.VisitorID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update visitor: %w", err)
	}

	if err := gdb.Where("visitor_id = ?", in.VisitorID).First(&visitor).Error; err != nil {
		return nil, fmt.Errorf("reload visitor: %w", err)
	}
	return &visitor, nil
}

// TrackBlogView creates the (visitor, slug) row with one view or increments it.
func (b *GormBackend) TrackBlogView(ctx context.Context, in BlogViewInput, now time.Time) (*BlogViewResult, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	gdb := b.db.WithContext(ctx)

	var view db.BlogView
	err = gdb.Where("visitor_id = ? AND blog_slug = ?", in.VisitorID, in.Slug).First(&view).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		view = db.BlogView{
			VisitorID:     in.VisitorID,
			BlogSlug:      in.Slug,
			BlogTitle:     in.Title,
			ViewCount:     1,
			FirstViewedAt: now,
			LastViewedAt:  now,
		}
		createErr := gdb.Create(&view).Error
		if createErr == nil {
			return &BlogViewResult{View: view, IsNewView: true}, nil
		}
		if !IsUniqueConflict(createErr) {
			return nil, fmt.Errorf("create blog view: %w", createErr)
		}
	case err != nil:
		return nil, fmt.Errorf("load blog view: %w", err)
	}

	updates := map[string]interface{}{
		"view_count":     gorm.Expr("view_count + 1"),
		"last_viewed_at": now,
	}
	if in.Title != "" {
		updates["blog_title"] = in.Title
	}
	if err := gdb.Model(&db.BlogView{}).
		Where("visitor_id = ? AND blog_slug = ?", in.VisitorID, in.Slug).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update blog view: %w", err)
	}

	if err := gdb.Where("visitor_id = ? AND blog_slug = ?", in.VisitorID, in.Slug).First(&view).Error; err != nil {
		return nil, fmt.Errorf("reload blog view: %w", err)
	}
	return &BlogViewResult{View: view, IsNewView: false}, nil
}

// GetVisitorStats aggregates visitors and blog views.
func (b *GormBackend) GetVisitorStats(ctx context.Context, now time.Time, topN int) (*VisitorStats, error) {
	gdb := b.db.WithContext(ctx)
	var stats VisitorStats

	var visitors struct {
		Total       int64
		NewCount    int64
		TotalVisits int64
	}
	if err := gdb.Model(&db.Visitor{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN total_visits <= 1 THEN 1 ELSE 0 END), 0) AS new_count, COALESCE(SUM(total_visits), 0) AS total_visits").
		Scan(&visitors).Error; err != nil {
		return nil, fmt.Errorf("aggregate visitors: %w", err)
	}
	stats.TotalVisitors = visitors.Total
	stats.NewVisitors = visitors.NewCount
	stats.ReturningVisitors = visitors.Total - visitors.NewCount
	stats.TotalVisits = visitors.TotalVisits

	today := aggregate.WindowsAt(now).Today
	if err := gdb.Model(&db.Visitor{}).
		Where("last_visit_at >= ?", today.Start.UTC()).
		Count(&stats.ActiveToday).Error; err != nil {
		return nil, fmt.Errorf("count active visitors: %w", err)
	}

	var views struct {
		TotalViews int64
		Viewers    int64
	}
	if err := gdb.Model(&db.BlogView{}).
		Select("COALESCE(SUM(view_count), 0) AS total_views, COUNT(DISTINCT visitor_id) AS viewers").
		Scan(&views).Error; err != nil {
		return nil, fmt.Errorf("aggregate blog views: %w", err)
	}
	stats.TotalBlogViews = views.TotalViews
	stats.UniqueBlogViewers = views.Viewers

	var rows []rankedRow
	if err := gdb.Model(&db.BlogView{}).
		Select("blog_slug AS rank_key, SUM(view_count) AS hits").
		Group("blog_slug").
		Order("hits DESC, blog_slug ASC").
		Limit(normalizeTopN(topN)).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("rank blogs: %w", err)
	}
	stats.TopBlogs = toRanked(rows)

	return &stats, nil
}

// GetBlogViewCount summarizes the visitor-scoped views of slug.
func (b *GormBackend) GetBlogViewCount(ctx context.Context, slug string) (*BlogViewCount, error) {
	if slug == "" {
		return nil, fmt.Errorf("%w: blog slug is required", ErrInvalidInput)
	}

	var row struct {
		TotalViews    int64
		UniqueViewers int64
		NewViewers    int64
	}
	if err := b.db.WithContext(ctx).Model(&db.BlogView{}).
		Select("COALESCE(SUM(view_count), 0) AS total_views, COUNT(*) AS unique_viewers, COALESCE(SUM(CASE WHEN view_count = 1 THEN 1 ELSE 0 END), 0) AS new_viewers").
		Where("blog_slug = ?", slug).
		Scan(&row).Error; err != nil {
		return nil, fmt.Errorf("count blog views: %w", err)
	}

	return &BlogViewCount{
		Slug:             slug,
		TotalViews:       row.TotalViews,
		UniqueViewers:    row.UniqueViewers,
		NewViewers:       row.NewViewers,
		ReturningViewers: row.UniqueViewers - row.NewViewers,
	}, nil
}

// GetVisitor loads one visitor.
func (b *GormBackend) GetVisitor(ctx context.Context, visitorID string) (*db.Visitor, error) {
	var visitor db.Visitor
	err := b.db.WithContext(ctx).Where("visitor_id = ?", visitorID).First(&visitor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load visitor: %w", err)
	}
	return &visitor, nil
}

func toRanked(rows []rankedRow) []aggregate.Ranked {
	ranked := make([]aggregate.Ranked, 0, len(rows))
	for _, row := range rows {
		ranked = append(ranked, aggregate.Ranked{Key: row.RankKey, Count: row.Hits})
	}
	return ranked
}
