package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sitepulse/internal/config"
	"github.com/sitepulse/internal/db"
	"github.com/sitepulse/internal/handler"
	"github.com/sitepulse/internal/logging"
	"github.com/sitepulse/internal/metrics"
	"github.com/sitepulse/internal/router"
	"github.com/sitepulse/internal/scheduler"
	"github.com/sitepulse/internal/service"
	"github.com/sitepulse/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").WithError(err).Fatal("failed to load config")
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 初始化存储，持久化存储不可用时自动回退到内存
	gateway, gdb, err := store.Open(store.Options{
		Mode:             store.ParseMode(cfg.StorageMode),
		DatabasePath:     cfg.DatabasePath,
		Timeout:          cfg.StorageTimeout,
		FallbackCapacity: cfg.FallbackCapacity,
		Logger:           log,
		Metrics:          m,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize storage")
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			log.WithError(err).Warn("failed to close database")
		}
	}()

	api := handler.NewAPI(gateway, gdb, handler.Settings{
		FeedbackSalt:   cfg.FeedbackSalt,
		FeedbackLimit:  cfg.FeedbackLimit,
		FeedbackWindow: cfg.FeedbackWindow,
		Location:       cfg.Location,
		Logger:         log,
		Metrics:        m,
	})

	r := router.SetupRouter(api, router.Options{
		SessionSecret:      cfg.SessionSecret,
		Logger:             log,
		Metrics:            m,
		Gatherer:           registry,
		WriteRatePerMinute: cfg.WriteRatePerMinute,
		WriteBurst:         cfg.WriteBurst,
	})

	// 维护任务只作用于持久化存储
	if gdb != nil {
		jobs, err := scheduler.New(
			service.NewAnalyticsService(gdb).WithLogger(logging.Component(log, "analytics")),
			service.NewFeedbackService(gdb).
				WithLimiter(service.NewFeedbackLimiter(cfg.FeedbackLimit, cfg.FeedbackWindow)).
				WithLogger(logging.Component(log, "feedback")),
			scheduler.Schedules{
				RecentViews:  cfg.RecentViewsSchedule,
				AttemptPrune: cfg.AttemptPruneSchedule,
			},
			log,
		)
		if err != nil {
			log.WithError(err).Fatal("failed to schedule maintenance jobs")
		}
		jobs.Start()
		defer jobs.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to run server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
