package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sitepulse/internal/aggregate"
	"github.com/sitepulse/internal/db"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := db.OpenInMemory(t.Name())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	return gdb
}

func loadAnalytics(t *testing.T, gdb *gorm.DB, slug string) db.BlogAnalytics {
	t.Helper()

	var analytics db.BlogAnalytics
	if err := gdb.Where("slug = ?", slug).First(&analytics).Error; err != nil {
		t.Fatalf("failed to load analytics for %s: %v", slug, err)
	}
	return analytics
}

func TestIncrementViewCountDedupsSession(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewAnalyticsService(gdb)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	session := &SessionData{SessionID: "s1", VisitorID: "fp_a"}

	counted, err := svc.IncrementViewCount(ctx, "intro", session, base)
	if err != nil || !counted {
		t.Fatalf("expected first view to count, got counted=%v err=%v", counted, err)
	}

	counted, err = svc.IncrementViewCount(ctx, "intro", session, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("repeat view failed: %v", err)
	}
	if counted {
		t.Fatal("expected repeat view in the same session not to count")
	}

	analytics := loadAnalytics(t, gdb, "intro")
	if analytics.TotalViews != 1 || analytics.UniqueViews != 1 || analytics.RecentViews != 1 {
		t.Fatalf("expected totals 1/1/1, got %+v", analytics)
	}
	if analytics.LastViewedAt == nil || !analytics.LastViewedAt.Equal(base) {
		t.Fatalf("expected last viewed at first view, got %v", analytics.LastViewedAt)
	}
}

func TestIncrementViewCountTracksUniqueVisitors(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewAnalyticsService(gdb)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	views := []SessionData{
		{SessionID: "s1", VisitorID: "fp_a"},
		{SessionID: "s2", VisitorID: "fp_a"},
		{SessionID: "s3", VisitorID: "fp_b"},
		{SessionID: "s4"},
	}
	for i := range views {
		if counted, err := svc.IncrementViewCount(ctx, "intro", &views[i], now); err != nil || !counted {
			t.Fatalf("view %d: counted=%v err=%v", i, counted, err)
		}
	}

	analytics := loadAnalytics(t, gdb, "intro")
	if analytics.TotalViews != 4 {
		t.Fatalf("expected 4 total views, got %d", analytics.TotalViews)
	}
	if analytics.UniqueViews != 3 {
		t.Fatalf("expected 3 unique views, got %d", analytics.UniqueViews)
	}
}

func TestIncrementViewCountWithoutSessionAlwaysCounts(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewAnalyticsService(gdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		counted, err := svc.IncrementViewCount(ctx, "no-session", nil, time.Now())
		if err != nil || !counted {
			t.Fatalf("view %d: counted=%v err=%v", i, counted, err)
		}
	}

	var events int64
	if err := gdb.Model(&db.BlogViewEvent{}).Where("slug = ?", "no-session").Count(&events).Error; err != nil {
		t.Fatalf("count events failed: %v", err)
	}
	analytics := loadAnalytics(t, gdb, "no-session")
	if analytics.TotalViews != 3 || events != 3 {
		t.Fatalf("expected total views to equal accepted events (3), got views=%d events=%d", analytics.TotalViews, events)
	}
}

func TestIncrementViewCountConcurrentFirstViews(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewAnalyticsService(gdb)
	ctx := context.Background()
	now := time.Now()

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counted int
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := svc.IncrementViewCount(ctx, "x", &SessionData{SessionID: "s1"}, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				counted++
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if counted != 1 {
		t.Fatalf("expected exactly one counted view, got %d", counted)
	}
	if analytics := loadAnalytics(t, gdb, "x"); analytics.TotalViews != 1 {
		t.Fatalf("expected total views 1, got %d", analytics.TotalViews)
	}
}

func TestIncrementViewCountRejectsInvalidSlug(t *testing.T) {
	svc := NewAnalyticsService(setupServiceTestDB(t))
	if _, err := svc.IncrementViewCount(context.Background(), "  ", nil, time.Now()); !errors.Is(err, ErrInvalidSlug) {
		t.Fatalf("expected ErrInvalidSlug, got %v", err)
	}
}

func TestAnalyticsServiceWithoutStore(t *testing.T) {
	svc := NewAnalyticsService(nil)
	ctx := context.Background()

	if _, err := svc.IncrementViewCount(ctx, "intro", nil, time.Now()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := svc.TopBlogs(ctx, 5); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestTopBlogsOrdersByViewsThenSlug(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewAnalyticsService(gdb)
	ctx := context.Background()
	now := time.Now()

	record := func(slug string, times int) {
		t.Helper()
		for i := 0; i < times; i++ {
			if _, err := svc.IncrementViewCount(ctx, slug, nil, now); err != nil {
				t.Fatalf("record %s failed: %v", slug, err)
			}
		}
	}
	record("beta", 2)
	record("alpha", 2)
	record("gamma", 3)
	record("delta", 1)

	// 只有元数据、没有浏览的文章不参与排行
	if err := gdb.Create(&db.BlogAnalytics{Slug: "empty"}).Error; err != nil {
		t.Fatalf("failed to create empty analytics: %v", err)
	}

	expected := []aggregate.Ranked{{Key: "gamma", Count: 3}, {Key: "alpha", Count: 2}, {Key: "beta", Count: 2}}
	for attempt := 0; attempt < 3; attempt++ {
		top, err := svc.TopBlogs(ctx, 3)
		if err != nil {
			t.Fatalf("TopBlogs failed: %v", err)
		}
		if len(top) != len(expected) {
			t.Fatalf("expected %d entries, got %+v", len(expected), top)
		}
		for i := range expected {
			if top[i] != expected[i] {
				t.Fatalf("attempt %d: expected %+v, got %+v", attempt, expected, top)
			}
		}
	}
}

func TestGetBlogStatsWindows(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewAnalyticsService(gdb)
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	at := []time.Time{
		now.Add(-time.Hour),
		now.Add(-20 * time.Hour),
		now.AddDate(0, 0, -3),
		now.AddDate(0, 0, -12),
	}
	for i, ts := range at {
		if _, err := svc.IncrementViewCount(ctx, "intro", nil, ts); err != nil {
			t.Fatalf("view %d failed: %v", i, err)
		}
	}

	stats, err := svc.GetBlogStats(ctx, "intro", now)
	if err != nil {
		t.Fatalf("GetBlogStats failed: %v", err)
	}
	expected := aggregate.WindowCounts{Today: 1, Yesterday: 1, Last7Days: 3, Last30Days: 4}
	if stats.Windows != expected {
		t.Fatalf("expected windows %+v, got %+v", expected, stats.Windows)
	}
	if stats.Analytics.TotalViews != 4 {
		t.Fatalf("expected total views 4, got %d", stats.Analytics.TotalViews)
	}

	if _, err := svc.GetBlogStats(ctx, "missing", now); !errors.Is(err, ErrBlogNotFound) {
		t.Fatalf("expected ErrBlogNotFound, got %v", err)
	}
}

func TestRefreshRecentViews(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewAnalyticsService(gdb)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if _, err := svc.IncrementViewCount(ctx, "intro", nil, base); err != nil {
		t.Fatalf("first view failed: %v", err)
	}
	if _, err := svc.IncrementViewCount(ctx, "intro", nil, base.AddDate(0, 0, 5)); err != nil {
		t.Fatalf("second view failed: %v", err)
	}
	if analytics := loadAnalytics(t, gdb, "intro"); analytics.RecentViews != 2 {
		t.Fatalf("expected 2 recent views, got %d", analytics.RecentViews)
	}

	rows, err := svc.RefreshRecentViews(ctx, base.AddDate(0, 0, 8))
	if err != nil {
		t.Fatalf("RefreshRecentViews failed: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 refreshed row, got %d", rows)
	}

	analytics := loadAnalytics(t, gdb, "intro")
	if analytics.RecentViews != 1 || analytics.TotalViews != 2 {
		t.Fatalf("expected recent=1 total=2 after refresh, got %+v", analytics)
	}
}
