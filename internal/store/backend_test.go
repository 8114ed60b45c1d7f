package store

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sitepulse/internal/aggregate"
	"github.com/sitepulse/internal/db"
	"github.com/sitepulse/internal/fingerprint"
)

// backendFactories lets every behavioral test run against both stores.
func backendFactories(t *testing.T) map[string]func(t *testing.T) Backend {
	t.Helper()
	return map[string]func(t *testing.T) Backend{
		"gorm": func(t *testing.T) Backend {
			gdb, err := db.OpenInMemory(t.Name())
			if err != nil {
				t.Fatalf("failed to open test db: %v", err)
			}
			t.Cleanup(func() { db.Close(gdb) })
			return NewGormBackend(gdb)
		},
		"memory": func(t *testing.T) Backend {
			return NewMemoryBackend(100)
		},
	}
}

func TestTrackVisitorSecondCallIsReturning(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			ctx := context.Background()
			base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
			in := VisitorInput{
				VisitorID: "fp_visitor",
				UserAgent: "Mozilla/5.0",
				Device:    fingerprint.Device{Type: fingerprint.DeviceDesktop, Browser: "Firefox"},
			}

			first, err := backend.TrackVisitor(ctx, in, base)
			if err != nil {
				t.Fatalf("first track failed: %v", err)
			}
			if !first.IsNewVisitor || first.TotalVisits != 1 {
				t.Fatalf("expected new visitor with 1 visit, got %+v", first)
			}
			if first.OS != db.UnknownDevice || first.Browser != "Firefox" {
				t.Fatalf("expected device defaults to be applied, got %+v", first)
			}

			in.Geo = fingerprint.Geo{Country: "DE"}
			second, err := backend.TrackVisitor(ctx, in, base.Add(time.Hour))
			if err != nil {
				t.Fatalf("second track failed: %v", err)
			}
			if second.IsNewVisitor {
				t.Fatal("expected returning visitor on second call")
			}
			if second.TotalVisits != first.TotalVisits+1 {
				t.Fatalf("expected total visits %d, got %d", first.TotalVisits+1, second.TotalVisits)
			}
			if !second.FirstVisitAt.Equal(base) || !second.LastVisitAt.Equal(base.Add(time.Hour)) {
				t.Fatalf("unexpected visit timestamps: first=%v last=%v", second.FirstVisitAt, second.LastVisitAt)
			}
			if second.Country != "DE" || second.Browser != "Firefox" {
				t.Fatalf("expected optional fields merged, got %+v", second)
			}

			loaded, err := backend.GetVisitor(ctx, "fp_visitor")
			if err != nil {
				t.Fatalf("get visitor failed: %v", err)
			}
			if loaded.TotalVisits != 2 {
				t.Fatalf("expected stored total visits 2, got %d", loaded.TotalVisits)
			}
		})
	}
}

func TestGetVisitorNotFound(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := factory(t).GetVisitor(context.Background(), "fp_missing")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestInvalidInputIsRejected(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			ctx := context.Background()
			now := time.Now()

			if _, err := backend.TrackVisitor(ctx, VisitorInput{}, now); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput for empty visitor, got %v", err)
			}
			if _, err := backend.TrackBlogView(ctx, BlogViewInput{VisitorID: "fp_a"}, now); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput for empty slug, got %v", err)
			}
			if _, err := backend.CreatePageview(ctx, PageviewInput{URL: "  "}); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput for empty url, got %v", err)
			}
		})
	}
}

func TestBlogViewCountScenario(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			ctx := context.Background()
			base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

			for i := 0; i < 3; i++ {
				result, err := backend.TrackBlogView(ctx, BlogViewInput{VisitorID: "fp_a", Slug: "intro", Title: "Intro"}, base.Add(time.Duration(i)*time.Minute))
				if err != nil {
					t.Fatalf("view %d failed: %v", i, err)
				}
				if result.IsNewView != (i == 0) {
					t.Fatalf("view %d: unexpected IsNewView=%v", i, result.IsNewView)
				}
				if result.View.ViewCount != uint64(i+1) {
					t.Fatalf("view %d: expected count %d, got %d", i, i+1, result.View.ViewCount)
				}
			}
			if _, err := backend.TrackBlogView(ctx, BlogViewInput{VisitorID: "fp_b", Slug: "intro"}, base); err != nil {
				t.Fatalf("visitor b view failed: %v", err)
			}

			count, err := backend.GetBlogViewCount(ctx, "intro")
			if err != nil {
				t.Fatalf("GetBlogViewCount failed: %v", err)
			}
			expected := BlogViewCount{Slug: "intro", TotalViews: 4, UniqueViewers: 2, NewViewers: 1, ReturningViewers: 1}
			if *count != expected {
				t.Fatalf("expected %+v, got %+v", expected, *count)
			}

			empty, err := backend.GetBlogViewCount(ctx, "unknown")
			if err != nil {
				t.Fatalf("GetBlogViewCount for unknown slug failed: %v", err)
			}
			if empty.TotalViews != 0 || empty.UniqueViewers != 0 {
				t.Fatalf("expected zero counts, got %+v", empty)
			}
		})
	}
}

func TestConcurrentFirstBlogViewsNeverDuplicateRows(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			ctx := context.Background()
			now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

			const workers = 8
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				newViews int
				errs     []error
			)
			start := make(chan struct{})
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					result, err := backend.TrackBlogView(ctx, BlogViewInput{VisitorID: "fp_race", Slug: "x"}, now)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = append(errs, err)
						return
					}
					if result.IsNewView {
						newViews++
					}
				}()
			}
			close(start)
			wg.Wait()

			if len(errs) > 0 {
				t.Fatalf("expected conflicts to be absorbed, got %v", errs)
			}
			if newViews != 1 {
				t.Fatalf("expected exactly one new view, got %d", newViews)
			}

			count, err := backend.GetBlogViewCount(ctx, "x")
			if err != nil {
				t.Fatalf("GetBlogViewCount failed: %v", err)
			}
			if count.UniqueViewers != 1 || count.TotalViews != workers {
				t.Fatalf("expected 1 row with %d views, got %+v", workers, count)
			}
		})
	}
}

func TestPageviewsAndStatsAgreeAcrossBackends(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	inputs := []PageviewInput{
		{URL: "/b", VisitorID: "v1", Timestamp: now.Add(-time.Hour)},
		{URL: "/a", VisitorID: "v1", Timestamp: now.Add(-2 * time.Hour)},
		{URL: "/a", VisitorID: "v2", Timestamp: now.Add(-20 * time.Hour)},
		{URL: "/b", VisitorID: "v3", Timestamp: now.AddDate(0, 0, -3)},
		{URL: "/c", Timestamp: now.AddDate(0, 0, -10)},
		{URL: "/d", VisitorID: "v1", Timestamp: now.AddDate(0, 0, -40)},
	}

	results := make(map[string]*PageviewStats)
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			ctx := context.Background()
			for _, in := range inputs {
				if _, err := backend.CreatePageview(ctx, in); err != nil {
					t.Fatalf("create pageview failed: %v", err)
				}
			}

			total, err := backend.GetTotalCount(ctx)
			if err != nil || total != int64(len(inputs)) {
				t.Fatalf("expected total %d, got %d (%v)", len(inputs), total, err)
			}

			latest, err := backend.GetPageviews(ctx, 2)
			if err != nil {
				t.Fatalf("GetPageviews failed: %v", err)
			}
			if len(latest) != 2 || latest[0].URL != "/b" || latest[1].URL != "/a" {
				t.Fatalf("expected newest first, got %+v", latest)
			}

			stats, err := backend.GetStats(ctx, now, 2)
			if err != nil {
				t.Fatalf("GetStats failed: %v", err)
			}
			if stats.TotalViews != 6 || stats.UniqueVisitors != 3 {
				t.Fatalf("unexpected totals: %+v", stats)
			}
			expectedWindows := aggregate.WindowCounts{Today: 2, Yesterday: 1, Last7Days: 4, Last30Days: 5}
			if stats.Windows != expectedWindows {
				t.Fatalf("unexpected windows: %+v", stats.Windows)
			}
			expectedTop := []aggregate.Ranked{{Key: "/a", Count: 2}, {Key: "/b", Count: 2}}
			if !reflect.DeepEqual(stats.TopPages, expectedTop) {
				t.Fatalf("unexpected top pages: %+v", stats.TopPages)
			}
			results[name] = stats
		})
	}

	if len(results) == 2 && !reflect.DeepEqual(results["gorm"], results["memory"]) {
		t.Fatalf("backends disagree: gorm=%+v memory=%+v", results["gorm"], results["memory"])
	}
}

func TestGetVisitorStats(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			ctx := context.Background()
			now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

			track := func(id string, at time.Time) {
				t.Helper()
				if _, err := backend.TrackVisitor(ctx, VisitorInput{VisitorID: id}, at); err != nil {
					t.Fatalf("track %s failed: %v", id, err)
				}
			}
			view := func(id, slug string) {
				t.Helper()
				if _, err := backend.TrackBlogView(ctx, BlogViewInput{VisitorID: id, Slug: slug}, now); err != nil {
					t.Fatalf("view %s/%s failed: %v", id, slug, err)
				}
			}

			track("fp_a", now.AddDate(0, 0, -2))
			track("fp_a", now.Add(-time.Hour))
			track("fp_b", now.AddDate(0, 0, -1))
			track("fp_c", now.Add(-2*time.Hour))

			view("fp_a", "beta")
			view("fp_a", "alpha")
			view("fp_b", "alpha")
			view("fp_b", "beta")
			view("fp_c", "gamma")

			stats, err := backend.GetVisitorStats(ctx, now, 2)
			if err != nil {
				t.Fatalf("GetVisitorStats failed: %v", err)
			}

			if stats.TotalVisitors != 3 || stats.NewVisitors != 2 || stats.ReturningVisitors != 1 {
				t.Fatalf("unexpected visitor counts: %+v", stats)
			}
			if stats.TotalVisits != 4 || stats.ActiveToday != 2 {
				t.Fatalf("unexpected visit counts: %+v", stats)
			}
			if stats.TotalBlogViews != 5 || stats.UniqueBlogViewers != 3 {
				t.Fatalf("unexpected blog counts: %+v", stats)
			}
			expectedTop := []aggregate.Ranked{{Key: "alpha", Count: 2}, {Key: "beta", Count: 2}}
			if !reflect.DeepEqual(stats.TopBlogs, expectedTop) {
				t.Fatalf("unexpected top blogs: %+v", stats.TopBlogs)
			}
		})
	}
}

func TestIsUniqueConflict(t *testing.T) {
	gdb, err := db.OpenInMemory(t.Name())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	defer db.Close(gdb)

	now := time.Now().UTC()
	if err := gdb.Create(&db.Visitor{VisitorID: "fp_dup", FirstVisitAt: now, LastVisitAt: now}).Error; err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	dupErr := gdb.Create(&db.Visitor{VisitorID: "fp_dup", FirstVisitAt: now, LastVisitAt: now}).Error
	if !IsUniqueConflict(dupErr) {
		t.Fatalf("expected unique conflict, got %v", dupErr)
	}

	if IsUniqueConflict(nil) {
		t.Fatal("nil must not be a conflict")
	}
	if IsUniqueConflict(errors.New("disk I/O error")) {
		t.Fatal("unrelated errors must not be conflicts")
	}
}
