package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/sitepulse/internal/aggregate"
	"github.com/sitepulse/internal/db"
)

// DefaultFallbackCapacity bounds each collection of the memory backend.
const DefaultFallbackCapacity = 10000

// Collections tracked by the memory backend, used as eviction labels.
const (
	CollectionPageviews = "pageviews"
	CollectionVisitors  = "visitors"
	CollectionBlogViews = "blog_views"
)

type blogViewKey struct {
	visitorID string
	slug      string
}

// MemoryBackend is the transient, process-local backend. Each collection holds at
// most capacity entries; once full the oldest inserted entry is evicted. Entries are
// only ever read with Peek and updated in place, so eviction order stays the
// insertion order rather than recency.
type MemoryBackend struct {
	mu        sync.Mutex
	capacity  int
	pageviews *simplelru.LRU[uint, *db.Pageview]
	visitors  *simplelru.LRU[string, *db.Visitor]
	blogViews *simplelru.LRU[blogViewKey, *db.BlogView]
	onEvict   func(collection string)

	nextPageviewID uint
	nextVisitorID  uint
	nextViewID     uint
}

// NewMemoryBackend creates a memory backend bounded by capacity per collection.
func NewMemoryBackend(capacity int) *MemoryBackend {
	if capacity <= 0 {
		capacity = DefaultFallbackCapacity
	}

	b := &MemoryBackend{capacity: capacity}
	b.pageviews = mustLRU[uint, *db.Pageview](capacity, func(uint, *db.Pageview) { b.evicted(CollectionPageviews) })
	b.visitors = mustLRU[string, *db.Visitor](capacity, func(string, *db.Visitor) { b.evicted(CollectionVisitors) })
	b.blogViews = mustLRU[blogViewKey, *db.BlogView](capacity, func(blogViewKey, *db.BlogView) { b.evicted(CollectionBlogViews) })
	return b
}

// OnEvict registers a hook called (under the backend lock) for every evicted entry.
func (b *MemoryBackend) OnEvict(hook func(collection string)) *MemoryBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEvict = hook
	return b
}

// Capacity returns the per-collection bound.
func (b *MemoryBackend) Capacity() int {
	return b.capacity
}

func (b *MemoryBackend) evicted(collection string) {
	if b.onEvict != nil {
		b.onEvict(collection)
	}
}

func mustLRU[K comparable, V any](size int, onEvict simplelru.EvictCallback[K, V]) *simplelru.LRU[K, V] {
	cache, err := simplelru.NewLRU[K, V](size, onEvict)
	if err != nil {
		// 只有 size <= 0 时才会失败，调用方已保证为正数。
		panic(fmt.Sprintf("store: create memory collection: %v", err))
	}
	return cache
}

// CreatePageview appends a pageview.
func (b *MemoryBackend) CreatePageview(_ context.Context, in PageviewInput) (*db.Pageview, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextPageviewID++
	pageview := in.record()
	pageview.ID = b.nextPageviewID
	pageview.CreatedAt = time.Now().UTC()
	b.pageviews.Add(pageview.ID, &pageview)

	copied := pageview
	return &copied, nil
}

// GetPageviews lists the newest pageviews first.
func (b *MemoryBackend) GetPageviews(_ context.Context, limit int) ([]db.Pageview, error) {
	b.mu.Lock()
	pageviews := b.pageviewSnapshot()
	b.mu.Unlock()

	sort.SliceStable(pageviews, func(i, j int) bool {
		if !pageviews[i].Timestamp.Equal(pageviews[j].Timestamp) {
			return pageviews[i].Timestamp.After(pageviews[j].Timestamp)
		}
		return pageviews[i].ID > pageviews[j].ID
	})

	if limit = normalizeLimit(limit); len(pageviews) > limit {
		pageviews = pageviews[:limit]
	}
	return pageviews, nil
}

// GetTotalCount counts the retained pageviews.
func (b *MemoryBackend) GetTotalCount(_ context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(b.pageviews.Len()), nil
}

// GetStats aggregates the retained pageviews.
func (b *MemoryBackend) GetStats(_ context.Context, now time.Time, topN int) (*PageviewStats, error) {
	b.mu.Lock()
	pageviews := b.pageviewSnapshot()
	b.mu.Unlock()

	events := make([]aggregate.Event, 0, len(pageviews))
	for _, pageview := range pageviews {
		events = append(events, aggregate.Event{Key: pageview.URL, Identity: pageview.VisitorID, At: pageview.Timestamp})
	}

	summary := aggregate.Summarize(events, now, normalizeTopN(topN))
	return &PageviewStats{
		TotalViews:     summary.Total,
		UniqueVisitors: summary.Unique,
		Windows:        summary.Windows,
		TopPages:       summary.Top,
	}, nil
}

// TrackVisitor creates the visitor on first sight and counts a visit otherwise.
func (b *MemoryBackend) TrackVisitor(_ context.Context, in VisitorInput, now time.Time) (*db.Visitor, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now = now.UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	if visitor, ok := b.visitors.Peek(in.VisitorID); ok {
		in.applyTo(visitor)
		visitor.TotalVisits++
		visitor.IsNewVisitor = false
		visitor.LastVisitAt = now
		visitor.UpdatedAt = now
		copied := *visitor
		return &copied, nil
	}

	b.nextVisitorID++
	visitor := in.newVisitor(now)
	visitor.ID = b.nextVisitorID
	visitor.CreatedAt = now
	visitor.UpdatedAt = now
	b.visitors.Add(in.VisitorID, &visitor)

	copied := visitor
	return &copied, nil
}

// TrackBlogView creates the (visitor, slug) entry with one view or increments it.
func (b *MemoryBackend) TrackBlogView(_ context.Context, in BlogViewInput, now time.Time) (*BlogViewResult, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	key := blogViewKey{visitorID: in.VisitorID, slug: in.Slug}

	b.mu.Lock()
	defer b.mu.Unlock()

	if view, ok := b.blogViews.Peek(key); ok {
		view.ViewCount++
		view.LastViewedAt = now
		view.UpdatedAt = now
		if in.Title != "" {
			view.BlogTitle = in.Title
		}
		return &BlogViewResult{View: *view, IsNewView: false}, nil
	}

	b.nextViewID++
	view := &db.BlogView{
		ID:            b.nextViewID,
		VisitorID:     in.VisitorID,
		BlogSlug:      in.Slug,
		BlogTitle:     in.Title,
		ViewCount:     1,
		FirstViewedAt: now,
		LastViewedAt:  now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b.blogViews.Add(key, view)
	return &BlogViewResult{View: *view, IsNewView: true}, nil
}

// GetVisitorStats aggregates the retained visitors and blog views.
func (b *MemoryBackend) GetVisitorStats(_ context.Context, now time.Time, topN int) (*VisitorStats, error) {
	today := aggregate.WindowsAt(now).Today

	b.mu.Lock()
	defer b.mu.Unlock()

	var stats VisitorStats
	for _, id := range b.visitors.Keys() {
		visitor, ok := b.visitors.Peek(id)
		if !ok {
			continue
		}
		stats.TotalVisitors++
		stats.TotalVisits += int64(visitor.TotalVisits)
		if visitor.TotalVisits <= 1 {
			stats.NewVisitors++
		}
		if !visitor.LastVisitAt.Before(today.Start) {
			stats.ActiveToday++
		}
	}
	stats.ReturningVisitors = stats.TotalVisitors - stats.NewVisitors

	viewers := make(map[string]struct{})
	perSlug := make(map[string]int64)
	for _, key := range b.blogViews.Keys() {
		view, ok := b.blogViews.Peek(key)
		if !ok {
			continue
		}
		stats.TotalBlogViews += int64(view.ViewCount)
		viewers[view.VisitorID] = struct{}{}
		perSlug[view.BlogSlug] += int64(view.ViewCount)
	}
	stats.UniqueBlogViewers = int64(len(viewers))
	stats.TopBlogs = aggregate.TopN(perSlug, normalizeTopN(topN))

	return &stats, nil
}

// GetBlogViewCount summarizes the retained visitor-scoped views of slug.
func (b *MemoryBackend) GetBlogViewCount(_ context.Context, slug string) (*BlogViewCount, error) {
	if slug == "" {
		return nil, fmt.Errorf("%w: blog slug is required", ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	count := &BlogViewCount{Slug: slug}
	for _, key := range b.blogViews.Keys() {
		if key.slug != slug {
			continue
		}
		view, ok := b.blogViews.Peek(key)
		if !ok {
			continue
		}
		count.TotalViews += int64(view.ViewCount)
		count.UniqueViewers++
		if view.ViewCount == 1 {
			count.NewViewers++
		}
	}
	count.ReturningViewers = count.UniqueViewers - count.NewViewers
	return count, nil
}

// GetVisitor loads one visitor.
func (b *MemoryBackend) GetVisitor(_ context.Context, visitorID string) (*db.Visitor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	visitor, ok := b.visitors.Peek(visitorID)
	if !ok {
		return nil, ErrNotFound
	}
	copied := *visitor
	return &copied, nil
}

// pageviewSnapshot copies the retained pageviews in insertion order. Callers hold b.mu.
func (b *MemoryBackend) pageviewSnapshot() []db.Pageview {
	keys := b.pageviews.Keys()
	pageviews := make([]db.Pageview, 0, len(keys))
	for _, id := range keys {
		if pageview, ok := b.pageviews.Peek(id); ok {
			pageviews = append(pageviews, *pageview)
		}
	}
	return pageviews
}
