package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryBackendEvictsOldestInsertedEntry(t *testing.T) {
	var evicted []string
	backend := NewMemoryBackend(3).OnEvict(func(collection string) {
		evicted = append(evicted, collection)
	})
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, id := range []string{"fp_1", "fp_2", "fp_3"} {
		if _, err := backend.TrackVisitor(ctx, VisitorInput{VisitorID: id}, now); err != nil {
			t.Fatalf("track %s failed: %v", id, err)
		}
	}

	// 更新和读取都不能刷新淘汰顺序
	if _, err := backend.TrackVisitor(ctx, VisitorInput{VisitorID: "fp_1"}, now.Add(time.Minute)); err != nil {
		t.Fatalf("repeat track failed: %v", err)
	}
	if _, err := backend.GetVisitor(ctx, "fp_1"); err != nil {
		t.Fatalf("get fp_1 failed: %v", err)
	}

	if _, err := backend.TrackVisitor(ctx, VisitorInput{VisitorID: "fp_4"}, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("track fp_4 failed: %v", err)
	}

	if _, err := backend.GetVisitor(ctx, "fp_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected fp_1 to be evicted first, got %v", err)
	}
	for _, id := range []string{"fp_2", "fp_3", "fp_4"} {
		if _, err := backend.GetVisitor(ctx, id); err != nil {
			t.Fatalf("expected %s to be retained, got %v", id, err)
		}
	}

	if len(evicted) != 1 || evicted[0] != CollectionVisitors {
		t.Fatalf("expected one visitors eviction, got %v", evicted)
	}
}

func TestMemoryBackendBoundsEachCollection(t *testing.T) {
	backend := NewMemoryBackend(5)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		if _, err := backend.CreatePageview(ctx, PageviewInput{URL: fmt.Sprintf("/p/%d", i), Timestamp: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("create pageview %d failed: %v", i, err)
		}
		if _, err := backend.TrackBlogView(ctx, BlogViewInput{VisitorID: fmt.Sprintf("fp_%d", i), Slug: "post"}, base); err != nil {
			t.Fatalf("track blog view %d failed: %v", i, err)
		}
	}

	total, err := backend.GetTotalCount(ctx)
	if err != nil || total != 5 {
		t.Fatalf("expected 5 retained pageviews, got %d (%v)", total, err)
	}

	pageviews, err := backend.GetPageviews(ctx, 0)
	if err != nil {
		t.Fatalf("GetPageviews failed: %v", err)
	}
	if len(pageviews) != 5 || pageviews[0].URL != "/p/11" || pageviews[4].URL != "/p/7" {
		t.Fatalf("expected newest five pageviews, got %+v", pageviews)
	}

	count, err := backend.GetBlogViewCount(ctx, "post")
	if err != nil {
		t.Fatalf("GetBlogViewCount failed: %v", err)
	}
	if count.UniqueViewers != 5 || count.TotalViews != 5 {
		t.Fatalf("expected 5 retained blog views, got %+v", count)
	}
}

func TestMemoryBackendReturnsCopies(t *testing.T) {
	backend := NewMemoryBackend(10)
	ctx := context.Background()

	visitor, err := backend.TrackVisitor(ctx, VisitorInput{VisitorID: "fp_copy"}, time.Now())
	if err != nil {
		t.Fatalf("track failed: %v", err)
	}
	visitor.TotalVisits = 99

	loaded, err := backend.GetVisitor(ctx, "fp_copy")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.TotalVisits != 1 {
		t.Fatalf("caller mutation leaked into the store: %d", loaded.TotalVisits)
	}
}

func TestNewMemoryBackendDefaultsCapacity(t *testing.T) {
	if got := NewMemoryBackend(0).Capacity(); got != DefaultFallbackCapacity {
		t.Fatalf("expected default capacity %d, got %d", DefaultFallbackCapacity, got)
	}
}
