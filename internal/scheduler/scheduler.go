// Package scheduler runs the periodic maintenance jobs of the analytics store.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/sitepulse/internal/logging"
)

const jobTimeout = time.Minute

// RecentViewsRefresher recomputes the trailing-window view counts.
type RecentViewsRefresher interface {
	RefreshRecentViews(ctx context.Context, now time.Time) (int64, error)
}

// AttemptPruner drops rate-limit ledger rows that left the window.
type AttemptPruner interface {
	PruneAttempts(ctx context.Context, now time.Time) (int64, error)
}

// Schedules holds cron specs (standard 5 fields or descriptors such as "@hourly").
type Schedules struct {
	RecentViews  string
	AttemptPrune string
}

// Scheduler 封装 cron 实例和任务依赖。
type Scheduler struct {
	cron      *cron.Cron
	log       *logrus.Entry
	refresher RecentViewsRefresher
	pruner    AttemptPruner
	now       func() time.Time
}

// New registers both jobs. An empty schedule disables that job.
func New(refresher RecentViewsRefresher, pruner AttemptPruner, schedules Schedules, log *logrus.Logger) (*Scheduler, error) {
	entry := logging.Component(log, "scheduler")
	cronLogger := cron.PrintfLogger(entry)

	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		log:       entry,
		refresher: refresher,
		pruner:    pruner,
		now:       time.Now,
	}

	jobs := []struct {
		name     string
		schedule string
		run      func()
	}{
		{"refresh_recent_views", schedules.RecentViews, s.RefreshRecentViews},
		{"prune_feedback_attempts", schedules.AttemptPrune, s.PruneAttempts},
	}
	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.schedule, job.run); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", job.name, job.schedule, err)
		}
		entry.WithFields(logrus.Fields{"job": job.name, "schedule": job.schedule}).Info("job registered")
	}

	return s, nil
}

// Start 启动 cron 调度器。
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度器并等待正在运行的任务结束。
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RefreshRecentViews runs the recent-views job once.
func (s *Scheduler) RefreshRecentViews() {
	s.run("refresh_recent_views", s.refresher.RefreshRecentViews)
}

// PruneAttempts runs the ledger pruning job once.
func (s *Scheduler) PruneAttempts() {
	s.run("prune_feedback_attempts", s.pruner.PruneAttempts)
}

func (s *Scheduler) run(name string, job func(context.Context, time.Time) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := s.now()
	rows, err := job(ctx, start)
	entry := s.log.WithFields(logrus.Fields{"job": name, "rows": rows, "duration": time.Since(start).String()})
	if err != nil {
		entry.WithError(err).Error("job failed")
		return
	}
	entry.Debug("job finished")
}
