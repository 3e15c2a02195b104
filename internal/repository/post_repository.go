package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"nearexpiry/internal/models"
)

type PostRepositoryImpl struct {
	DB sqlx.ExtContext
}

func NewPostRepository(db sqlx.ExtContext) *PostRepositoryImpl {
	return &PostRepositoryImpl{DB: db}
}

func (r *PostRepositoryImpl) CreateDraft(ctx context.Context, post *models.Post) error {
	query := `
		INSERT INTO near_expiry_posts
		(id, location, content, source, status, image_url, quantity, deadline, note,
		 content_hash, post_token_hash, token_expires_at, line_user_id, published_at, created_at)
		VALUES
		(:id, :location, :content, :source, :status, :image_url, :quantity, :deadline, :note,
		 :content_hash, :post_token_hash, :token_expires_at, :line_user_id, :published_at, :created_at)
	`

	if post.PostID == "" {
		post.PostID = uuid.New().String()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	if post.Source == "" {
		post.Source = models.SourceLine
	}

	if _, err := sqlx.NamedExecContext(ctx, r.DB, query, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (r *PostRepositoryImpl) GetOpenDraftForSender(ctx context.Context, senderID string, now time.Time) (*models.Post, error) {
	query := `
		SELECT * FROM near_expiry_posts
		WHERE line_user_id = $1 AND status = 'draft'
		AND post_token_hash IS NOT NULL AND token_expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, senderID, now)
}

func (r *PostRepositoryImpl) GetLapsedDraft(ctx context.Context, senderID string, since time.Time) (*models.Post, error) {
	query := `
		SELECT * FROM near_expiry_posts
		WHERE line_user_id = $1 AND status = 'draft'
		AND post_token_hash IS NOT NULL AND token_expires_at > $2
		ORDER BY token_expires_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, senderID, since)
}

func (r *PostRepositoryImpl) ConditionallyUpdateDraft(ctx context.Context, postID, expectedTokenHash string, patch models.DraftPatch, now time.Time) (bool, error) {
	query := `
		UPDATE near_expiry_posts SET
			location = COALESCE($3, location),
			content = COALESCE($4, content),
			quantity = COALESCE($5, quantity),
			deadline = COALESCE($6, deadline),
			note = COALESCE($7, note),
			content_hash = $8,
			post_token_hash = $9,
			token_expires_at = $10
		WHERE id = $1 AND status = 'draft'
		AND post_token_hash = $2 AND token_expires_at > $11
	`

	f := patch.Fields
	result, err := r.DB.ExecContext(ctx, query,
		postID, expectedTokenHash,
		f.Location, f.Item, f.Quantity, f.Deadline, f.Note,
		patch.ContentHash, patch.TokenHash, patch.TokenExpiresAt, now)
	if err != nil {
		return false, fmt.Errorf("update draft: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check updated rows: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *PostRepositoryImpl) MarkPublished(ctx context.Context, postID string, publishedAt time.Time) error {
	query := `
		UPDATE near_expiry_posts SET
			status = 'published',
			published_at = $2,
			post_token_hash = NULL,
			token_expires_at = NULL
		WHERE id = $1 AND status = 'draft'
	`

	result, err := r.DB.ExecContext(ctx, query, postID, publishedAt)
	if err != nil {
		return fmt.Errorf("publish post: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotDraft
	}
	return nil
}

func (r *PostRepositoryImpl) RevokeSenderTokens(ctx context.Context, senderID string) error {
	query := `
		UPDATE near_expiry_posts SET
			post_token_hash = NULL,
			token_expires_at = NULL
		WHERE line_user_id = $1 AND status = 'draft' AND post_token_hash IS NOT NULL
	`

	if _, err := r.DB.ExecContext(ctx, query, senderID); err != nil {
		return fmt.Errorf("revoke sender tokens: %w", err)
	}
	return nil
}

func (r *PostRepositoryImpl) FindRecentByContentHash(ctx context.Context, senderID, contentHash string, since time.Time) (*models.Post, error) {
	query := `
		SELECT * FROM near_expiry_posts
		WHERE line_user_id = $1 AND content_hash = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, senderID, contentHash, since)
}

func (r *PostRepositoryImpl) GetByID(ctx context.Context, postID string) (*models.Post, error) {
	post, err := r.getOne(ctx, `SELECT * FROM near_expiry_posts WHERE id = $1`, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrNotFound
	}
	return post, nil
}

func (r *PostRepositoryImpl) ListPublished(ctx context.Context, limit, offset int) ([]models.Post, error) {
	query := `
		SELECT * FROM near_expiry_posts
		WHERE status = 'published'
		ORDER BY published_at DESC
		LIMIT $1 OFFSET $2
	`

	posts := []models.Post{}
	if err := sqlx.SelectContext(ctx, r.DB, &posts, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list published posts: %w", err)
	}
	return posts, nil
}

func (r *PostRepositoryImpl) CountPublished(ctx context.Context) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.DB, &count, `SELECT COUNT(*) FROM near_expiry_posts WHERE status = 'published'`); err != nil {
		return 0, fmt.Errorf("count published posts: %w", err)
	}
	return count, nil
}

func (r *PostRepositoryImpl) getOne(ctx context.Context, query string, args ...interface{}) (*models.Post, error) {
	var post models.Post
	err := sqlx.GetContext(ctx, r.DB, &post, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &post, nil
}
