package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"nearexpiry/internal/models"
)

var (
	ErrNotFound = errors.New("post not found")
	ErrNotDraft = errors.New("post not found or already published")
)

// PostRepository is the data store for near-expiry posts.
type PostRepository interface {
	// CreateDraft inserts post, generating its ID and creation time.
	CreateDraft(ctx context.Context, post *models.Post) error
	// GetOpenDraftForSender returns the newest draft of senderID holding an
	// unexpired token, or nil.
	GetOpenDraftForSender(ctx context.Context, senderID string, now time.Time) (*models.Post, error)
	// GetLapsedDraft returns the newest draft of senderID whose token expired
	// after since, or nil.
	GetLapsedDraft(ctx context.Context, senderID string, since time.Time) (*models.Post, error)
	// ConditionallyUpdateDraft applies patch only while the draft still holds
	// expectedTokenHash unexpired. It reports whether the row was updated.
	ConditionallyUpdateDraft(ctx context.Context, postID, expectedTokenHash string, patch models.DraftPatch, now time.Time) (bool, error)
	MarkPublished(ctx context.Context, postID string, publishedAt time.Time) error
	RevokeSenderTokens(ctx context.Context, senderID string) error
	FindRecentByContentHash(ctx context.Context, senderID, contentHash string, since time.Time) (*models.Post, error)
	GetByID(ctx context.Context, postID string) (*models.Post, error)
	ListPublished(ctx context.Context, limit, offset int) ([]models.Post, error)
	CountPublished(ctx context.Context) (int, error)
}

// EventRepository records processed webhook deliveries.
type EventRepository interface {
	// MarkProcessed inserts the marker and reports false when it already existed.
	MarkProcessed(ctx context.Context, event *models.WebhookEvent) (bool, error)
}

type LineUserRepository interface {
	Follow(ctx context.Context, userID, displayName string, at time.Time) error
	Unfollow(ctx context.Context, userID string, at time.Time) error
}

type Repository struct {
	Post     PostRepository
	Event    EventRepository
	LineUser LineUserRepository

	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	repo := newRepository(db)
	repo.db = db
	return repo
}

func newRepository(db sqlx.ExtContext) *Repository {
	return &Repository{
		Post:     NewPostRepository(db),
		Event:    NewEventRepository(db),
		LineUser: NewLineUserRepository(db),
	}
}

// WithinTx runs fn against repositories bound to a single transaction. A
// Repository assembled without a database (in-memory repositories in tests)
// runs fn directly.
func (r *Repository) WithinTx(ctx context.Context, fn func(repo *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(newRepository(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
