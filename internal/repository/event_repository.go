package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"nearexpiry/internal/models"
)

type eventRepository struct {
	db sqlx.ExtContext
}

func NewEventRepository(db sqlx.ExtContext) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) MarkProcessed(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, event_type, line_user_id, processed_at)
		VALUES (:event_id, :event_type, :line_user_id, :processed_at)
		ON CONFLICT (event_id) DO NOTHING
	`

	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}

	result, err := sqlx.NamedExecContext(ctx, r.db, query, event)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check inserted rows: %w", err)
	}
	return rowsAffected == 1, nil
}
