package service

import (
	"context"
	"time"

	"nearexpiry/internal/models"
	"nearexpiry/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type PostService interface {
	ListPublished(ctx context.Context, page, pageSize int) (*PostList, error)
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	PublishPost(ctx context.Context, postID string) (*models.Post, error)
}

type PostList struct {
	Posts    []models.Post `json:"posts"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

type postService struct {
	postRepo repository.PostRepository
	now      func() time.Time
}

func NewPostService(postRepo repository.PostRepository) PostService {
	return &postService{postRepo: postRepo, now: time.Now}
}

func (p *postService) ListPublished(ctx context.Context, page, pageSize int) (*PostList, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	posts, err := p.postRepo.ListPublished(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	total, err := p.postRepo.CountPublished(ctx)
	if err != nil {
		return nil, err
	}

	return &PostList{Posts: posts, Total: total, Page: page, PageSize: pageSize}, nil
}

func (p *postService) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	return p.postRepo.GetByID(ctx, postID)
}

// PublishPost is the moderator override: it publishes a draft whether or not
// every required field is present.
func (p *postService) PublishPost(ctx context.Context, postID string) (*models.Post, error) {
	if err := p.postRepo.MarkPublished(ctx, postID, p.now()); err != nil {
		return nil, err
	}
	return p.postRepo.GetByID(ctx, postID)
}
