package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBlogServiceCreateAddsEmptyAnalytics(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewBlogService(gdb)
	ctx := context.Background()

	post, err := svc.Create(ctx, BlogInput{Slug: "hello-world", Title: " Hello World ", Summary: "first post"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if post.Title != "Hello World" {
		t.Fatalf("expected trimmed title, got %q", post.Title)
	}

	analytics := loadAnalytics(t, gdb, "hello-world")
	if analytics.TotalViews != 0 || analytics.LastViewedAt != nil {
		t.Fatalf("expected empty analytics row, got %+v", analytics)
	}

	loaded, err := svc.Get(ctx, "hello-world")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Summary != "first post" {
		t.Fatalf("unexpected summary %q", loaded.Summary)
	}
}

func TestBlogServiceCreateKeepsExistingAnalytics(t *testing.T) {
	gdb := setupServiceTestDB(t)
	analytics := NewAnalyticsService(gdb)
	svc := NewBlogService(gdb)
	ctx := context.Background()

	if _, err := analytics.IncrementViewCount(ctx, "early", nil, time.Now()); err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if _, err := svc.Create(ctx, BlogInput{Slug: "early", Title: "Early"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if row := loadAnalytics(t, gdb, "early"); row.TotalViews != 1 {
		t.Fatalf("expected existing views to be kept, got %d", row.TotalViews)
	}
}

func TestBlogServiceErrors(t *testing.T) {
	svc := NewBlogService(setupServiceTestDB(t))
	ctx := context.Background()

	if _, err := svc.Create(ctx, BlogInput{Slug: "a", Title: "A"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Create(ctx, BlogInput{Slug: "a", Title: "Again"}); !errors.Is(err, ErrBlogExists) {
		t.Fatalf("expected ErrBlogExists, got %v", err)
	}
	if _, err := svc.Create(ctx, BlogInput{Slug: "b"}); !errors.Is(err, ErrInvalidBlog) {
		t.Fatalf("expected ErrInvalidBlog, got %v", err)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrBlogNotFound) {
		t.Fatalf("expected ErrBlogNotFound, got %v", err)
	}
	if _, err := NewBlogService(nil).Get(ctx, "a"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
