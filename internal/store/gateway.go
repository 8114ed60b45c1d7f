package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sitepulse/internal/db"
	"github.com/sitepulse/internal/logging"
	"github.com/sitepulse/internal/metrics"
)

// DefaultCallTimeout bounds each call against the persistent backend.
const DefaultCallTimeout = 2 * time.Second

// Kind tags which backend the gateway was built with.
type Kind string

const (
	KindPersistent Kind = "persistent"
	KindTransient  Kind = "transient"
)

// Selection records the backend chosen at construction time.
type Selection struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// Gateway exposes the Backend operation set. With a persistent backend every call is
// tried there first under a bounded timeout; on failure the same operation is
// re-issued against the transient backend and its result returned. Writes served by
// the transient backend are never replayed into the persistent one. A call whose
// caller context is already done is returned as is, without a fallback.
type Gateway struct {
	primary   Backend
	fallback  Backend
	selection Selection
	timeout   time.Duration
	log       *logrus.Entry
	metrics   *metrics.Metrics
}

var _ Backend = (*Gateway)(nil)

// NewGateway builds a gateway. A nil primary routes every call to fallback.
func NewGateway(primary, fallback Backend) *Gateway {
	if fallback == nil {
		fallback = NewMemoryBackend(DefaultFallbackCapacity)
	}

	selection := Selection{Kind: KindPersistent}
	if primary == nil {
		selection = Selection{Kind: KindTransient, Reason: "no persistent backend configured"}
	}

	return &Gateway{
		primary:   primary,
		fallback:  fallback,
		selection: selection,
		timeout:   DefaultCallTimeout,
		log:       logging.Component(nil, "store"),
	}
}

// WithTimeout sets the per-call bound on the persistent path; non-positive disables it.
func (g *Gateway) WithTimeout(d time.Duration) *Gateway {
	g.timeout = d
	return g
}

// WithLogger sets the logger used to report masked failures.
func (g *Gateway) WithLogger(log *logrus.Entry) *Gateway {
	if log != nil {
		g.log = log
	}
	return g
}

// WithMetrics sets the collectors for call outcomes and fallbacks.
func (g *Gateway) WithMetrics(m *metrics.Metrics) *Gateway {
	g.metrics = m
	return g
}

// withSelectionReason records why the transient backend was selected.
func (g *Gateway) withSelectionReason(reason string) *Gateway {
	g.selection.Reason = reason
	return g
}

// Selection reports the backend chosen at construction time.
func (g *Gateway) Selection() Selection {
	return g.selection
}

// CreatePageview appends a pageview.
func (g *Gateway) CreatePageview(ctx context.Context, in PageviewInput) (*db.Pageview, error) {
	return call(ctx, g, "create_pageview", func(ctx context.Context, b Backend) (*db.Pageview, error) {
		return b.CreatePageview(ctx, in)
	})
}

// GetPageviews lists the newest pageviews first.
func (g *Gateway) GetPageviews(ctx context.Context, limit int) ([]db.Pageview, error) {
	return call(ctx, g, "get_pageviews", func(ctx context.Context, b Backend) ([]db.Pageview, error) {
		return b.GetPageviews(ctx, limit)
	})
}

// GetTotalCount counts pageviews.
func (g *Gateway) GetTotalCount(ctx context.Context) (int64, error) {
	return call(ctx, g, "get_total_count", func(ctx context.Context, b Backend) (int64, error) {
		return b.GetTotalCount(ctx)
	})
}

// GetStats aggregates pageviews relative to now.
func (g *Gateway) GetStats(ctx context.Context, now time.Time, topN int) (*PageviewStats, error) {
	return call(ctx, g, "get_stats", func(ctx context.Context, b Backend) (*PageviewStats, error) {
		return b.GetStats(ctx, now, topN)
	})
}

// TrackVisitor records a visit for the identity.
func (g *Gateway) TrackVisitor(ctx context.Context, in VisitorInput, now time.Time) (*db.Visitor, error) {
	return call(ctx, g, "track_visitor", func(ctx context.Context, b Backend) (*db.Visitor, error) {
		return b.TrackVisitor(ctx, in, now)
	})
}

// TrackBlogView records a visitor-scoped blog view.
func (g *Gateway) TrackBlogView(ctx context.Context, in BlogViewInput, now time.Time) (*BlogViewResult, error) {
	return call(ctx, g, "track_blog_view", func(ctx context.Context, b Backend) (*BlogViewResult, error) {
		return b.TrackBlogView(ctx, in, now)
	})
}

// GetVisitorStats aggregates visitors and blog views.
func (g *Gateway) GetVisitorStats(ctx context.Context, now time.Time, topN int) (*VisitorStats, error) {
	return call(ctx, g, "get_visitor_stats", func(ctx context.Context, b Backend) (*VisitorStats, error) {
		return b.GetVisitorStats(ctx, now, topN)
	})
}

// GetBlogViewCount summarizes the visitor-scoped views of slug.
func (g *Gateway) GetBlogViewCount(ctx context.Context, slug string) (*BlogViewCount, error) {
	return call(ctx, g, "get_blog_view_count", func(ctx context.Context, b Backend) (*BlogViewCount, error) {
		return b.GetBlogViewCount(ctx, slug)
	})
}

// GetVisitor loads one visitor.
func (g *Gateway) GetVisitor(ctx context.Context, visitorID string) (*db.Visitor, error) {
	return call(ctx, g, "get_visitor", func(ctx context.Context, b Backend) (*db.Visitor, error) {
		return b.GetVisitor(ctx, visitorID)
	})
}

func call[T any](ctx context.Context, g *Gateway, op string, fn func(context.Context, Backend) (T, error)) (T, error) {
	if g.primary == nil {
		value, err := fn(ctx, g.fallback)
		g.metrics.RecordStorageCall(string(KindTransient), op, err)
		return value, err
	}

	value, err := callPrimary(ctx, g, fn)
	if err != nil && ctx.Err() != nil {
		// 调用方已取消，不属于存储故障，不写入内存存储
		var zero T
		return zero, fmt.Errorf("%s: %w", op, ctx.Err())
	}
	g.metrics.RecordStorageCall(string(KindPersistent), op, err)
	if err == nil || isDefinitive(err) {
		return value, err
	}

	g.log.WithFields(logrus.Fields{"op": op, "error": err.Error()}).
		Warn("persistent store call failed, serving from transient store")
	g.metrics.RecordFallback(op)

	value, err = fn(ctx, g.fallback)
	g.metrics.RecordStorageCall(string(KindTransient), op, err)
	if err != nil && !isDefinitive(err) {
		g.log.WithFields(logrus.Fields{"op": op, "error": err.Error()}).Error("transient store call failed")
		return value, fmt.Errorf("%s: %w", op, err)
	}
	return value, err
}

// callPrimary runs fn against the persistent backend and gives up after the timeout
// even if the backend ignores ctx. A call abandoned this way may still complete later.
func callPrimary[T any](ctx context.Context, g *Gateway, fn func(context.Context, Backend) (T, error)) (T, error) {
	if g.timeout <= 0 {
		return guarded(ctx, g.primary, fn)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := guarded(ctx, g.primary, fn)
		done <- outcome{value: value, err: err}
	}()

	select {
	case result := <-done:
		return result.value, result.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}

// guarded converts a panicking backend into an ErrUnavailable failure.
func guarded[T any](ctx context.Context, b Backend, fn func(context.Context, Backend) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrUnavailable, r)
		}
	}()
	return fn(ctx, b)
}
