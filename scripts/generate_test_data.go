package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sitepulse/internal/config"
	"github.com/sitepulse/internal/fingerprint"
	"github.com/sitepulse/internal/logging"
	"github.com/sitepulse/internal/service"
	"github.com/sitepulse/internal/store"
	"gorm.io/gorm"
)

// 测试数据生成器：写入文章、访客、浏览和反馈，方便本地调试统计接口。
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("配置加载失败:", err)
	}

	gateway, gdb, err := store.Open(store.Options{
		Mode:         store.ModePersistent,
		DatabasePath: cfg.DatabasePath,
		Timeout:      cfg.StorageTimeout,
		Logger:       logging.New(cfg.LogLevel, cfg.LogFormat),
	})
	if err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	s := newSeeder(gateway, gdb, cfg.FeedbackSalt, time.Now())
	if err := s.run(context.Background()); err != nil {
		log.Fatal("测试数据生成失败:", err)
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("文章: %d 篇，访客: %d 个，页面浏览: %d 条\n", len(seedPosts), len(seedVisitors), len(seedPages))
}

type seedPost struct {
	slug    string
	title   string
	summary string
}

type seedVisitor struct {
	userAgent string
	ip        string
	country   string
	// 每个访客浏览的文章，重复出现表示回访
	reads []string
}

var seedPosts = []seedPost{
	{"go-concurrency", "Go 并发模式实践", "goroutine、channel 与 context 的组合用法。"},
	{"sqlite-in-production", "在生产环境使用 SQLite", "单连接写入、WAL 与备份策略。"},
	{"privacy-friendly-analytics", "隐私友好的访问统计", "不使用 cookie 也能区分访客。"},
	{"rate-limiting", "滑动窗口限流", "按 IP 哈希限制反馈提交频率。"},
}

var seedVisitors = []seedVisitor{
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		ip:        "203.0.113.11",
		country:   "CN",
		reads:     []string{"go-concurrency", "go-concurrency", "sqlite-in-production"},
	},
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ip:        "203.0.113.12",
		country:   "US",
		reads:     []string{"go-concurrency", "privacy-friendly-analytics"},
	},
	{
		userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
		ip:        "203.0.113.13",
		country:   "JP",
		reads:     []string{"rate-limiting"},
	},
	{
		userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
		ip:        "203.0.113.14",
		reads:     []string{"go-concurrency", "sqlite-in-production", "sqlite-in-production"},
	},
}

var seedPages = []string{"/", "/blog", "/blog/go-concurrency", "/about", "/blog", "/"}

var seedReactions = []string{"👍", "🔥", "❤️", "🎉"}

type seeder struct {
	gateway   *store.Gateway
	blogs     *service.BlogService
	analytics *service.AnalyticsService
	feedback  *service.FeedbackService
	salt      string
	now       time.Time
}

func newSeeder(gateway *store.Gateway, gdb *gorm.DB, salt string, now time.Time) *seeder {
	return &seeder{
		gateway:   gateway,
		blogs:     service.NewBlogService(gdb),
		analytics: service.NewAnalyticsService(gdb),
		feedback:  service.NewFeedbackService(gdb),
		salt:      salt,
		now:       now,
	}
}

func (s *seeder) run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"文章", s.createPosts},
		{"访客与浏览", s.trackVisitors},
		{"页面浏览", s.createPageviews},
		{"表情反馈", s.submitFeedback},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		fmt.Printf("✅ %s创建完成\n", step.name)
	}
	return nil
}

// 创建文章元数据，已存在的文章跳过
func (s *seeder) createPosts(ctx context.Context) error {
	for _, post := range seedPosts {
		_, err := s.blogs.Create(ctx, service.BlogInput{Slug: post.slug, Title: post.title, Summary: post.summary})
		if errors.Is(err, service.ErrBlogExists) {
			fmt.Printf("文章 %s 已存在，跳过创建\n", post.slug)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// 访客按天分散在过去一周，每次阅读同时记录会话级浏览
func (s *seeder) trackVisitors(ctx context.Context) error {
	for i, v := range seedVisitors {
		headers := fingerprint.Headers{UserAgent: v.userAgent, IP: v.ip}
		visitorID := fingerprint.Derive(headers)

		for j, slug := range v.reads {
			at := s.now.Add(-time.Duration(len(v.reads)-j) * 24 * time.Hour).Add(time.Duration(i) * time.Hour)

			if _, err := s.gateway.TrackVisitor(ctx, store.VisitorInput{
				VisitorID: visitorID,
				UserAgent: v.userAgent,
				IPAddress: v.ip,
				Device:    fingerprint.ParseDevice(v.userAgent),
				Geo:       fingerprint.Geo{Country: v.country},
			}, at); err != nil {
				return err
			}
			if _, err := s.gateway.TrackBlogView(ctx, store.BlogViewInput{VisitorID: visitorID, Slug: slug, Title: titleOf(slug)}, at); err != nil {
				return err
			}
			if _, err := s.analytics.IncrementViewCount(ctx, slug, &service.SessionData{
				SessionID: fmt.Sprintf("seed-%d-%d", i, j),
				VisitorID: visitorID,
				UserAgent: v.userAgent,
			}, at); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *seeder) createPageviews(ctx context.Context) error {
	for i, url := range seedPages {
		ts := s.now.Add(-time.Duration(i) * 6 * time.Hour)
		if _, err := s.gateway.CreatePageview(ctx, store.PageviewInput{
			URL:       url,
			UserAgent: seedVisitors[i%len(seedVisitors)].userAgent,
			Timestamp: ts,
		}); err != nil {
			return err
		}
	}
	return nil
}

// 每个访客对第一篇文章留下一个表情，超过限流的提交忽略
func (s *seeder) submitFeedback(ctx context.Context) error {
	for i, v := range seedVisitors {
		_, err := s.feedback.Submit(ctx, service.FeedbackInput{
			Slug:        seedPosts[0].slug,
			Fingerprint: fingerprint.Derive(fingerprint.Headers{UserAgent: v.userAgent, IP: v.ip}),
			IPHash:      fingerprint.HashIP(v.ip, s.salt),
			Emoji:       seedReactions[i%len(seedReactions)],
			UserAgent:   v.userAgent,
		}, s.now)
		if errors.Is(err, service.ErrRateLimited) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func titleOf(slug string) string {
	for _, post := range seedPosts {
		if post.slug == slug {
			return post.title
		}
	}
	return slug
}
