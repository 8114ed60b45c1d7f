package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"github.com/sitepulse/internal/aggregate"
	"github.com/sitepulse/internal/db"
	"github.com/sitepulse/internal/logging"
	"github.com/sitepulse/internal/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxFeedbackMessageRunes = 1000
	maxFeedbackURLLength    = 2048
)

// ErrInvalidFeedback 表示反馈内容未通过校验，错误信息中带有具体原因。
var ErrInvalidFeedback = errors.New("invalid feedback")

// AllowedFeedbackEmojis 是前端可提交的表情集合。
var AllowedFeedbackEmojis = []string{"👍", "👎", "❤️", "😂", "😮", "😢", "🤔", "🎉", "🔥", "👏"}

var allowedEmojiSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(AllowedFeedbackEmojis))
	for _, emoji := range AllowedFeedbackEmojis {
		set[emoji] = struct{}{}
	}
	return set
}()

// FeedbackInput 是一次反馈提交。Fingerprint 和 IPHash 由调用方根据请求计算。
type FeedbackInput struct {
	Slug        string
	Fingerprint string
	IPHash      string
	Emoji       string
	Message     string
	URL         string
	UserAgent   string
}

// FeedbackSummary 汇总文章的表情反馈，不包含任何指纹或 IP 信息。
type FeedbackSummary struct {
	Slug   string             `json:"slug"`
	Total  int64              `json:"total"`
	Emojis []aggregate.Ranked `json:"emojis"`
}

// FeedbackService 处理表情反馈的校验、限流和按指纹覆盖写入。
type FeedbackService struct {
	db       *gorm.DB
	limiter  FeedbackLimiter
	sanitize *bluemonday.Policy
	log      *logrus.Entry
	metrics  *metrics.Metrics
}

// NewFeedbackService 创建 FeedbackService，默认 24 小时内最多 3 次写入。
func NewFeedbackService(gdb *gorm.DB) *FeedbackService {
	return &FeedbackService{
		db:       gdb,
		limiter:  NewFeedbackLimiter(DefaultFeedbackLimit, DefaultFeedbackWindow),
		sanitize: bluemonday.StrictPolicy(),
		log:      logging.Component(nil, "feedback"),
	}
}

// WithLimiter 替换限流器。
func (s *FeedbackService) WithLimiter(limiter FeedbackLimiter) *FeedbackService {
	s.limiter = limiter
	return s
}

// WithLogger 设置日志输出。
func (s *FeedbackService) WithLogger(log *logrus.Entry) *FeedbackService {
	if log != nil {
		s.log = log
	}
	return s
}

// WithMetrics 设置计数指标。
func (s *FeedbackService) WithMetrics(m *metrics.Metrics) *FeedbackService {
	s.metrics = m
	return s
}

// Submit 校验并写入反馈。同一 (slug, fingerprint) 只保留一行，重复提交覆盖旧内容，
// 但每次写入都会占用一个 (slug, ip_hash) 的限流名额。
func (s *FeedbackService) Submit(ctx context.Context, in FeedbackInput, now time.Time) (*db.BlogFeedback, error) {
	if s.db == nil {
		return nil, ErrStoreUnavailable
	}

	in, err := s.normalize(in)
	if err != nil {
		s.metrics.RecordFeedbackRejected("validation")
		return nil, err
	}
	now = now.UTC()

	var feedback db.BlogFeedback
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.limiter.Allow(tx, in.Slug, in.IPHash, now); err != nil {
			return err
		}

		row := db.BlogFeedback{
			Slug:        in.Slug,
			Fingerprint: in.Fingerprint,
			Emoji:       in.Emoji,
			Message:     in.Message,
			URL:         in.URL,
			UserAgent:   in.UserAgent,
			IPHash:      in.IPHash,
			SubmittedAt: now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}, {Name: "fingerprint"}},
			DoUpdates: clause.AssignmentColumns([]string{"emoji", "message", "url", "user_agent", "ip_hash", "submitted_at", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert feedback: %w", err)
		}

		if err := s.limiter.Record(tx, in.Slug, in.IPHash, now); err != nil {
			return err
		}

		return tx.Where("slug = ? AND fingerprint = ?", in.Slug, in.Fingerprint).First(&feedback).Error
	})
	if errors.Is(err, ErrRateLimited) {
		s.metrics.RecordFeedbackRejected("rate_limited")
		s.log.WithField("slug", in.Slug).Info("feedback rate limited")
		return nil, ErrRateLimited
	}
	if err != nil {
		return nil, err
	}

	return &feedback, nil
}

// Summary 返回文章各表情的数量，按数量降序、表情升序排列。
func (s *FeedbackService) Summary(ctx context.Context, slug string) (*FeedbackSummary, error) {
	if s.db == nil {
		return nil, ErrStoreUnavailable
	}
	slug, err := normalizeSlug(slug)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Emoji string
		Total int64
	}
	if err := s.db.WithContext(ctx).Model(&db.BlogFeedback{}).
		Select("emoji, COUNT(*) AS total").
		Where("slug = ?", slug).
		Group("emoji").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("summarize feedback: %w", err)
	}

	summary := &FeedbackSummary{Slug: slug, Emojis: make([]aggregate.Ranked, 0, len(rows))}
	for _, row := range rows {
		summary.Total += row.Total
		summary.Emojis = append(summary.Emojis, aggregate.Ranked{Key: row.Emoji, Count: row.Total})
	}
	aggregate.SortRanked(summary.Emojis)
	return summary, nil
}

// PruneAttempts 清理过期的限流账本。
func (s *FeedbackService) PruneAttempts(ctx context.Context, now time.Time) (int64, error) {
	if s.db == nil {
		return 0, ErrStoreUnavailable
	}
	return s.limiter.Prune(ctx, s.db, now)
}

func (s *FeedbackService) normalize(in FeedbackInput) (FeedbackInput, error) {
	slug, err := normalizeSlug(in.Slug)
	if err != nil {
		return in, err
	}
	in.Slug = slug

	in.Fingerprint = strings.TrimSpace(in.Fingerprint)
	if in.Fingerprint == "" {
		return in, fmt.Errorf("%w: fingerprint is required", ErrInvalidFeedback)
	}
	in.Fingerprint = truncate(in.Fingerprint, 128)
	if strings.TrimSpace(in.IPHash) == "" {
		return in, fmt.Errorf("%w: client address is required", ErrInvalidFeedback)
	}

	in.Emoji = strings.TrimSpace(in.Emoji)
	if _, ok := allowedEmojiSet[in.Emoji]; !ok {
		return in, fmt.Errorf("%w: emoji is not allowed", ErrInvalidFeedback)
	}

	// 去掉所有标签，再还原实体，存储纯文本
	message := html.UnescapeString(s.sanitize.Sanitize(in.Message))
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > maxFeedbackMessageRunes {
		return in, fmt.Errorf("%w: message must be at most %d characters", ErrInvalidFeedback, maxFeedbackMessageRunes)
	}
	in.Message = message

	in.URL = strings.TrimSpace(in.URL)
	if len(in.URL) > maxFeedbackURLLength {
		return in, fmt.Errorf("%w: url must be at most %d bytes", ErrInvalidFeedback, maxFeedbackURLLength)
	}
	in.UserAgent = truncate(in.UserAgent, 512)

	return in, nil
}
