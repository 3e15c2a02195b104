package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"nearexpiry/internal/line"
	"nearexpiry/internal/metrics"
	"nearexpiry/internal/models"
	"nearexpiry/internal/parser"
	"nearexpiry/internal/repository"
)

const reminderQueueKey = "nearexpiry:draft_reminders"

// Reminder nudges a sender whose draft is still waiting for its claim code.
// Only the code's hash is kept, which is enough to tell a stale reminder.
type Reminder struct {
	PostID     string    `json:"postId"`
	LineUserID string    `json:"lineUserId"`
	TokenHash  string    `json:"tokenHash"`
	DueAt      time.Time `json:"dueAt"`
}

type ReminderScheduler interface {
	Schedule(ctx context.Context, r Reminder) error
	// Due removes and returns up to limit reminders due at now.
	Due(ctx context.Context, now time.Time, limit int64) ([]Reminder, error)
}

// RedisReminderScheduler keeps reminders in a sorted set scored by due time.
// Several instances may poll the same set; ZREM decides who sends.
type RedisReminderScheduler struct {
	client *redis.Client
	key    string
	log    zerolog.Logger
}

func NewRedisReminderScheduler(client *redis.Client, log zerolog.Logger) *RedisReminderScheduler {
	return &RedisReminderScheduler{client: client, key: reminderQueueKey, log: log}
}

func (r *RedisReminderScheduler) Schedule(ctx context.Context, rem Reminder) error {
	data, err := json.Marshal(rem)
	if err != nil {
		return fmt.Errorf("encode reminder: %w", err)
	}
	err = r.client.ZAdd(ctx, r.key, redis.Z{
		Score:  float64(rem.DueAt.Unix()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue reminder: %w", err)
	}
	return nil
}

func (r *RedisReminderScheduler) Due(ctx context.Context, now time.Time, limit int64) ([]Reminder, error) {
	members, err := r.client.ZRangeByScore(ctx, r.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read due reminders: %w", err)
	}

	var due []Reminder
	for _, member := range members {
		removed, err := r.client.ZRem(ctx, r.key, member).Result()
		if err != nil {
			return due, fmt.Errorf("dequeue reminder: %w", err)
		}
		if removed == 0 {
			continue
		}

		rem, err := decodeReminder(member)
		if err != nil {
			metrics.RemindersTotal.WithLabelValues("corrupt").Inc()
			r.log.Error().Err(err).Str("member", member).Msg("dropped unreadable reminder")
			continue
		}
		due = append(due, rem)
	}
	return due, nil
}

func decodeReminder(member string) (Reminder, error) {
	var rem Reminder
	if err := json.Unmarshal([]byte(member), &rem); err != nil {
		return Reminder{}, fmt.Errorf("decode reminder: %w", err)
	}
	if rem.PostID == "" || rem.LineUserID == "" || rem.TokenHash == "" {
		return Reminder{}, fmt.Errorf("decode reminder: missing post, user or token hash")
	}
	return rem, nil
}

// NoopReminderScheduler drops reminders. It is used when Redis is not configured.
type NoopReminderScheduler struct{}

func (NoopReminderScheduler) Schedule(context.Context, Reminder) error { return nil }

func (NoopReminderScheduler) Due(context.Context, time.Time, int64) ([]Reminder, error) {
	return nil, nil
}

type ReminderWorker struct {
	scheduler ReminderScheduler
	posts     repository.PostRepository
	messenger line.Messenger
	poll      time.Duration
	batch     int64
	now       func() time.Time
	log       zerolog.Logger
}

func NewReminderWorker(scheduler ReminderScheduler, posts repository.PostRepository, messenger line.Messenger,
	poll time.Duration, log zerolog.Logger) *ReminderWorker {
	if poll <= 0 {
		poll = 10 * time.Second
	}
	return &ReminderWorker{
		scheduler: scheduler,
		posts:     posts,
		messenger: messenger,
		poll:      poll,
		batch:     50,
		now:       time.Now,
		log:       log,
	}
}

// Run polls until ctx is done, backing off while the queue is unreachable.
func (w *ReminderWorker) Run(ctx context.Context) {
	boff := backoff.Backoff{
		Min: w.poll,
		Max: 5 * time.Minute,
	}

	for {
		wait := w.poll
		if _, err := w.RunOnce(ctx); err != nil {
			wait = boff.Duration()
			w.log.Error().Err(err).Dur("retrying after", wait).Msg("failed to poll reminders")
		} else {
			boff.Reset()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Debug().Msg("shut down reminder worker")
			return
		case <-timer.C:
		}
	}
}

// RunOnce sends every due reminder whose draft still waits on the same code.
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()
	due, err := w.scheduler.Due(ctx, now, w.batch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rem := range due {
		log := w.log.With().Str("post_id", rem.PostID).Str("line_user_id", rem.LineUserID).Logger()

		post, err := w.posts.GetByID(ctx, rem.PostID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				log.Warn().Err(err).Msg("failed to load draft for reminder")
				metrics.RemindersTotal.WithLabelValues("failed").Inc()
			} else {
				metrics.RemindersTotal.WithLabelValues("stale").Inc()
			}
			continue
		}
		if !awaitingClaim(post, rem.TokenHash, now) {
			metrics.RemindersTotal.WithLabelValues("stale").Inc()
			continue
		}

		if err := w.messenger.Push(ctx, rem.LineUserID, reminderMessage(parser.Missing(post.Fields()))); err != nil {
			log.Warn().Err(err).Msg("failed to push reminder")
			metrics.RemindersTotal.WithLabelValues("failed").Inc()
			continue
		}
		metrics.RemindersTotal.WithLabelValues("sent").Inc()
		sent++
	}
	return sent, nil
}

func awaitingClaim(post *models.Post, tokenHash string, now time.Time) bool {
	return post.Status == models.StatusDraft &&
		post.PostTokenHash != nil && *post.PostTokenHash == tokenHash &&
		post.TokenExpiresAt != nil && now.Before(*post.TokenExpiresAt)
}
