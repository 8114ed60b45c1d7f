package handler

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sitepulse/internal/logging"
	"github.com/sitepulse/internal/metrics"
	"github.com/sitepulse/internal/service"
	"github.com/sitepulse/internal/store"
	"gorm.io/gorm"
)

// Settings carries the request-independent knobs of the handlers.
type Settings struct {
	FeedbackSalt   string
	FeedbackLimit  int
	FeedbackWindow time.Duration
	// Location aligns the stats windows; defaults to time.Local.
	Location *time.Location
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db        *gorm.DB
	tracker   store.Backend
	selection store.Selection
	analytics viewCounter
	feedback  feedbackProvider
	blogs     blogProvider
	salt      string
	location  *time.Location
	log       *logrus.Entry
	now       func() time.Time
}

// NewAPI constructs a handler set. Tracking goes through gateway; the session-scoped
// services need gdb and answer 503 when it is nil.
func NewAPI(gateway *store.Gateway, gdb *gorm.DB, settings Settings) *API {
	location := settings.Location
	if location == nil {
		location = time.Local
	}

	analytics := service.NewAnalyticsService(gdb).
		WithLogger(logging.Component(settings.Logger, "analytics")).
		WithMetrics(settings.Metrics)
	feedback := service.NewFeedbackService(gdb).
		WithLimiter(service.NewFeedbackLimiter(settings.FeedbackLimit, settings.FeedbackWindow)).
		WithLogger(logging.Component(settings.Logger, "feedback")).
		WithMetrics(settings.Metrics)

	return &API{
		db:        gdb,
		tracker:   gateway,
		selection: gateway.Selection(),
		analytics: analytics,
		feedback:  feedback,
		blogs:     service.NewBlogService(gdb),
		salt:      settings.FeedbackSalt,
		location:  location,
		log:       logging.Component(settings.Logger, "http"),
		now:       time.Now,
	}
}

// clock returns the current time in the site location.
func (a *API) clock() time.Time {
	return a.now().In(a.location)
}
