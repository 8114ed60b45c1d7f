package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sitepulse/internal/db"
	"github.com/sitepulse/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrBlogExists 表示 slug 已被其他文章占用。
	ErrBlogExists = errors.New("blog slug already exists")
	// ErrInvalidBlog 表示文章元数据缺少必填字段。
	ErrInvalidBlog = errors.New("invalid blog")
)

// BlogInput 是创建文章元数据时接受的字段。
type BlogInput struct {
	Slug    string
	Title   string
	Summary string
}

// BlogService 管理文章元数据，创建文章时同时建立空的统计行。
type BlogService struct {
	db *gorm.DB
}

// NewBlogService creates a BlogService instance.
func NewBlogService(gdb *gorm.DB) *BlogService {
	return &BlogService{db: gdb}
}

// Create 在同一事务内创建文章和对应的 BlogAnalytics。
func (s *BlogService) Create(ctx context.Context, in BlogInput) (*db.BlogPost, error) {
	if s.db == nil {
		return nil, ErrStoreUnavailable
	}
	slug, err := normalizeSlug(in.Slug)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidBlog)
	}

	post := db.BlogPost{Slug: slug, Title: truncate(title, 255), Summary: strings.TrimSpace(in.Summary)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			if store.IsUniqueConflict(err) {
				return ErrBlogExists
			}
			return err
		}
		// 浏览可能先于元数据到达，已有统计行时保持不变
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoNothing: true,
		}).Create(&db.BlogAnalytics{Slug: slug}).Error
	})
	if err != nil {
		return nil, err
	}

	return &post, nil
}

// Get 返回文章元数据。
func (s *BlogService) Get(ctx context.Context, slug string) (*db.BlogPost, error) {
	if s.db == nil {
		return nil, ErrStoreUnavailable
	}
	slug, err := normalizeSlug(slug)
	if err != nil {
		return nil, err
	}

	var post db.BlogPost
	err = s.db.WithContext(ctx).Where("slug = ?", slug).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load blog: %w", err)
	}
	return &post, nil
}
