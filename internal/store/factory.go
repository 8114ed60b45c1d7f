package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sitepulse/internal/db"
	"github.com/sitepulse/internal/logging"
	"github.com/sitepulse/internal/metrics"
	"gorm.io/gorm"
)

// Mode selects how Open picks the backend.
type Mode string

const (
	// ModeAuto tries the persistent store and falls back to memory for the process
	// lifetime if it cannot be opened.
	ModeAuto Mode = "auto"
	// ModePersistent requires the persistent store.
	ModePersistent Mode = "persistent"
	// ModeMemory never opens the persistent store.
	ModeMemory Mode = "memory"
)

// ParseMode maps a config value to a Mode, defaulting to ModeAuto.
func ParseMode(raw string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModePersistent:
		return ModePersistent
	case ModeMemory:
		return ModeMemory
	default:
		return ModeAuto
	}
}

// Opener opens and migrates the persistent database.
type Opener func(databasePath string) (*gorm.DB, error)

// Options configures Open.
type Options struct {
	Mode             Mode
	DatabasePath     string
	Timeout          time.Duration
	FallbackCapacity int
	Logger           *logrus.Logger
	Metrics          *metrics.Metrics
	// Opener defaults to db.Open.
	Opener Opener
}

// Open builds the gateway once at startup. The returned *gorm.DB is nil when the
// transient backend was selected. Initialization is never retried.
func Open(opts Options) (*Gateway, *gorm.DB, error) {
	log := logging.Component(opts.Logger, "store")
	fallback := NewMemoryBackend(opts.FallbackCapacity).OnEvict(opts.Metrics.RecordEviction)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}

	build := func(primary Backend) *Gateway {
		return NewGateway(primary, fallback).WithTimeout(timeout).WithLogger(log).WithMetrics(opts.Metrics)
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeAuto
	}

	if mode == ModeMemory {
		log.Info("using transient store (memory mode)")
		return build(nil).withSelectionReason("memory mode configured"), nil, nil
	}

	opener := opts.Opener
	if opener == nil {
		opener = db.Open
	}

	gdb, err := opener(opts.DatabasePath)
	if err != nil {
		if mode == ModePersistent {
			return nil, nil, fmt.Errorf("open persistent store: %w", err)
		}
		log.WithError(err).Warn("persistent store unavailable, using transient store for the process lifetime")
		return build(nil).withSelectionReason(err.Error()), nil, nil
	}

	log.WithField("path", opts.DatabasePath).Info("using persistent store")
	return build(NewGormBackend(gdb)), gdb, nil
}
