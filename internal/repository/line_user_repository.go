package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type lineUserRepository struct {
	db sqlx.ExtContext
}

func NewLineUserRepository(db sqlx.ExtContext) LineUserRepository {
	return &lineUserRepository{db: db}
}

func (r *lineUserRepository) Follow(ctx context.Context, userID, displayName string, at time.Time) error {
	query := `
		INSERT INTO line_users (line_user_id, display_name, following, followed_at, updated_at)
		VALUES ($1, $2, TRUE, $3, $3)
		ON CONFLICT (line_user_id) DO UPDATE SET
			display_name = CASE WHEN EXCLUDED.display_name = '' THEN line_users.display_name ELSE EXCLUDED.display_name END,
			following = TRUE,
			followed_at = EXCLUDED.followed_at,
			updated_at = EXCLUDED.updated_at,
			unfollowed_at = NULL
	`

	if _, err := r.db.ExecContext(ctx, query, userID, displayName, at); err != nil {
		return fmt.Errorf("record follow: %w", err)
	}
	return nil
}

func (r *lineUserRepository) Unfollow(ctx context.Context, userID string, at time.Time) error {
	query := `
		INSERT INTO line_users (line_user_id, following, followed_at, updated_at, unfollowed_at)
		VALUES ($1, FALSE, $2, $2, $2)
		ON CONFLICT (line_user_id) DO UPDATE SET
			following = FALSE,
			updated_at = EXCLUDED.updated_at,
			unfollowed_at = EXCLUDED.unfollowed_at
	`

	if _, err := r.db.ExecContext(ctx, query, userID, at); err != nil {
		return fmt.Errorf("record unfollow: %w", err)
	}
	return nil
}
