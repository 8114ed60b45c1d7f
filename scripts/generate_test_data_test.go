package main

import (
	"context"
	"testing"
	"time"

	"github.com/sitepulse/internal/db"
	"github.com/sitepulse/internal/store"
	"gorm.io/gorm"
)

func setupSeedTestDB(t *testing.T) (*store.Gateway, *gorm.DB) {
	t.Helper()

	gdb, err := db.OpenInMemory(t.Name())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close(gdb)
	})

	gateway := store.NewGateway(store.NewGormBackend(gdb), store.NewMemoryBackend(100))
	return gateway, gdb
}

func TestSeederPopulatesAnalytics(t *testing.T) {
	gateway, gdb := setupSeedTestDB(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := newSeeder(gateway, gdb, "seed-salt", now).run(context.Background()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	counts := []struct {
		model interface{}
		want  int64
	}{
		{&db.BlogPost{}, int64(len(seedPosts))},
		{&db.Visitor{}, int64(len(seedVisitors))},
		{&db.Pageview{}, int64(len(seedPages))},
		{&db.BlogFeedback{}, int64(len(seedVisitors))},
	}
	for _, c := range counts {
		var got int64
		if err := gdb.Model(c.model).Count(&got).Error; err != nil {
			t.Fatalf("count %T: %v", c.model, err)
		}
		if got != c.want {
			t.Fatalf("expected %d rows of %T, got %d", c.want, c.model, got)
		}
	}

	var top db.BlogAnalytics
	if err := gdb.Where("slug = ?", "go-concurrency").First(&top).Error; err != nil {
		t.Fatalf("load analytics: %v", err)
	}
	if top.TotalViews != 4 || top.UniqueViews != 3 {
		t.Fatalf("unexpected go-concurrency analytics: %+v", top)
	}

	stats, err := gateway.GetVisitorStats(context.Background(), now, 3)
	if err != nil {
		t.Fatalf("visitor stats: %v", err)
	}
	if stats.TotalVisits != 9 || stats.NewVisitors != 1 {
		t.Fatalf("unexpected visitor stats: %+v", stats)
	}
}

func TestSeederSkipsExistingPosts(t *testing.T) {
	gateway, gdb := setupSeedTestDB(t)
	s := newSeeder(gateway, gdb, "seed-salt", time.Now())

	for i := 0; i < 2; i++ {
		if err := s.createPosts(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	var posts int64
	gdb.Model(&db.BlogPost{}).Count(&posts)
	if posts != int64(len(seedPosts)) {
		t.Fatalf("expected %d posts, got %d", len(seedPosts), posts)
	}
}
