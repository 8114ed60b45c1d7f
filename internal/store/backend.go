// Package store implements the storage gateway: one operation set backed by a
// persistent gorm store with a bounded, process-local in-memory fallback.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sitepulse/internal/aggregate"
	"github.com/sitepulse/internal/db"
	"github.com/sitepulse/internal/fingerprint"
)

const (
	maxURLLength   = 2048
	maxSlugLength  = 191
	maxTitleLength = 255

	// DefaultPageviewLimit is used when a caller asks for a non-positive page size.
	DefaultPageviewLimit = 50
	// MaxPageviewLimit caps a single listing.
	MaxPageviewLimit = 500
	// DefaultTopN is the ranking length when none is given.
	DefaultTopN = 10
)

// Backend is the operation set shared by the persistent and transient stores.
type Backend interface {
	CreatePageview(ctx context.Context, in PageviewInput) (*db.Pageview, error)
	GetPageviews(ctx context.Context, limit int) ([]db.Pageview, error)
	GetTotalCount(ctx context.Context) (int64, error)
	GetStats(ctx context.Context, now time.Time, topN int) (*PageviewStats, error)

	TrackVisitor(ctx context.Context, in VisitorInput, now time.Time) (*db.Visitor, error)
	TrackBlogView(ctx context.Context, in BlogViewInput, now time.Time) (*BlogViewResult, error)
	GetVisitorStats(ctx context.Context, now time.Time, topN int) (*VisitorStats, error)
	GetBlogViewCount(ctx context.Context, slug string) (*BlogViewCount, error)
	GetVisitor(ctx context.Context, visitorID string) (*db.Visitor, error)
}

// PageviewInput is one pageview to append.
type PageviewInput struct {
	URL       string
	Title     string
	Referrer  string
	UserAgent string
	VisitorID string
	Timestamp time.Time
}

func (in PageviewInput) normalize() (PageviewInput, error) {
	in.URL = strings.TrimSpace(in.URL)
	if in.URL == "" || len(in.URL) > maxURLLength {
		return in, fmt.Errorf("%w: url is required and must be at most %d bytes", ErrInvalidInput, maxURLLength)
	}
	in.Title = truncate(strings.TrimSpace(in.Title), maxTitleLength)
	in.Referrer = truncate(strings.TrimSpace(in.Referrer), maxURLLength)
	in.UserAgent = truncate(in.UserAgent, 512)
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	in.Timestamp = in.Timestamp.UTC()
	return in, nil
}

func (in PageviewInput) record() db.Pageview {
	return db.Pageview{
		URL:       in.URL,
		Title:     in.Title,
		Referrer:  in.Referrer,
		UserAgent: in.UserAgent,
		VisitorID: in.VisitorID,
		Timestamp: in.Timestamp,
	}
}

// VisitorInput carries the identity plus the optional device and geo details.
type VisitorInput struct {
	VisitorID string
	UserAgent string
	IPAddress string
	Device    fingerprint.Device
	Geo       fingerprint.Geo
}

func (in VisitorInput) validate() error {
	if strings.TrimSpace(in.VisitorID) == "" {
		return fmt.Errorf("%w: visitor id is required", ErrInvalidInput)
	}
	return nil
}

func (in VisitorInput) newVisitor(now time.Time) db.Visitor {
	visitor := db.Visitor{
		VisitorID:    in.VisitorID,
		IsNewVisitor: true,
		FirstVisitAt: now,
		LastVisitAt:  now,
		TotalVisits:  1,
	}
	in.applyTo(&visitor)
	visitor.ApplyDefaults()
	return visitor
}

// applyTo copies the non-empty optional fields onto v.
func (in VisitorInput) applyTo(v *db.Visitor) {
	for _, field := range in.optionalFields() {
		if field.value != "" {
			*field.target(v) = field.value
		}
	}
}

// updates returns the optional columns to refresh on a repeat visit.
func (in VisitorInput) updates() map[string]interface{} {
	values := make(map[string]interface{})
	for _, field := range in.optionalFields() {
		if field.value != "" {
			values[field.column] = field.value
		}
	}
	return values
}

type optionalField struct {
	column string
	value  string
	target func(*db.Visitor) *string
}

func (in VisitorInput) optionalFields() []optionalField {
	return []optionalField{
		{column: "user_agent", value: truncate(in.UserAgent, 512), target: func(v *db.Visitor) *string { return &v.UserAgent }},
		{column: "ip_address", value: in.IPAddress, target: func(v *db.Visitor) *string { return &v.IPAddress }},
		{column: "device_type", value: in.Device.Type, target: func(v *db.Visitor) *string { return &v.DeviceType }},
		{column: "browser", value: in.Device.Browser, target: func(v *db.Visitor) *string { return &v.Browser }},
		{column: "os", value: in.Device.OS, target: func(v *db.Visitor) *string { return &v.OS }},
		{column: "country", value: in.Geo.Country, target: func(v *db.Visitor) *string { return &v.Country }},
		{column: "region", value: in.Geo.Region, target: func(v *db.Visitor) *string { return &v.Region }},
		{column: "city", value: in.Geo.City, target: func(v *db.Visitor) *string { return &v.City }},
	}
}

// BlogViewInput identifies a visitor-scoped blog view.
type BlogViewInput struct {
	VisitorID string
	Slug      string
	Title     string
}

func (in BlogViewInput) normalize() (BlogViewInput, error) {
	in.VisitorID = strings.TrimSpace(in.VisitorID)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.VisitorID == "" {
		return in, fmt.Errorf("%w: visitor id is required", ErrInvalidInput)
	}
	if in.Slug == "" || len(in.Slug) > maxSlugLength {
		return in, fmt.Errorf("%w: blog slug is required and must be at most %d bytes", ErrInvalidInput, maxSlugLength)
	}
	in.Title = truncate(strings.TrimSpace(in.Title), maxTitleLength)
	return in, nil
}

// BlogViewResult is the visitor-scoped row after recording, plus whether it was created.
type BlogViewResult struct {
	View      db.BlogView `json:"blogView"`
	IsNewView bool        `json:"isNewView"`
}

// PageviewStats aggregates the pageview log.
type PageviewStats struct {
	TotalViews     int64                  `json:"totalViews"`
	UniqueVisitors int64                  `json:"uniqueVisitors"`
	Windows        aggregate.WindowCounts `json:"windows"`
	TopPages       []aggregate.Ranked     `json:"topPages"`
}

// VisitorStats aggregates visitors and their blog views.
type VisitorStats struct {
	TotalVisitors     int64              `json:"totalVisitors"`
	NewVisitors       int64              `json:"newVisitors"`
	ReturningVisitors int64              `json:"returningVisitors"`
	TotalVisits       int64              `json:"totalVisits"`
	ActiveToday       int64              `json:"activeToday"`
	TotalBlogViews    int64              `json:"totalBlogViews"`
	UniqueBlogViewers int64              `json:"uniqueBlogViewers"`
	TopBlogs          []aggregate.Ranked `json:"topBlogs"`
}

// BlogViewCount is the per-slug breakdown of visitor-scoped views. New viewers read
// the post once, returning viewers more than once.
type BlogViewCount struct {
	Slug             string `json:"slug"`
	TotalViews       int64  `json:"totalViews"`
	UniqueViewers    int64  `json:"uniqueViewers"`
	NewViewers       int64  `json:"newViewers"`
	ReturningViewers int64  `json:"returningViewers"`
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageviewLimit
	}
	if limit > MaxPageviewLimit {
		return MaxPageviewLimit
	}
	return limit
}

func normalizeTopN(n int) int {
	if n <= 0 {
		return DefaultTopN
	}
	return n
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
