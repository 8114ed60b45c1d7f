package handler

import (
	"context"
	"time"

	"github.com/sitepulse/internal/aggregate"
	"github.com/sitepulse/internal/db"
	"github.com/sitepulse/internal/service"
)

type viewCounter interface {
	IncrementViewCount(ctx context.Context, slug string, session *service.SessionData, now time.Time) (bool, error)
	GetBlogStats(ctx context.Context, slug string, now time.Time) (*service.BlogStats, error)
	TopBlogs(ctx context.Context, limit int) ([]aggregate.Ranked, error)
}

type feedbackProvider interface {
	Submit(ctx context.Context, in service.FeedbackInput, now time.Time) (*db.BlogFeedback, error)
	Summary(ctx context.Context, slug string) (*service.FeedbackSummary, error)
}

type blogProvider interface {
	Create(ctx context.Context, in service.BlogInput) (*db.BlogPost, error)
	Get(ctx context.Context, slug string) (*db.BlogPost, error)
}
