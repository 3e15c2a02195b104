package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nearexpiry/internal/canonical"
	"nearexpiry/internal/line"
	"nearexpiry/internal/metrics"
	"nearexpiry/internal/models"
	"nearexpiry/internal/parser"
	"nearexpiry/internal/repository"
	"nearexpiry/internal/storage"
	"nearexpiry/internal/token"
)

// ErrStoreWrite marks a data store failure. The delivery should be retried.
var ErrStoreWrite = errors.New("store write failed")

type WebhookConfig struct {
	ChannelSecret     string
	VerifyReplyTokens []string
	RemindWindow      time.Duration
	DedupWindow       time.Duration
	MaxImageSize      int64
}

type WebhookService struct {
	repo      *repository.Repository
	tokens    *token.Manager
	messenger line.Messenger
	storage   storage.Storage
	reminders ReminderScheduler
	cfg       WebhookConfig
	now       func() time.Time
	log       zerolog.Logger
}

// outcome is what a handled event leaves to do once its transaction commits.
type outcome struct {
	result string
	postID string
	reply  string
	remind *Reminder
}

// stagedImage is image content already stored before its event transaction.
type stagedImage struct {
	postID     string
	objectName string
	url        string
	tooLarge   bool
}

func NewWebhookService(repo *repository.Repository, tokens *token.Manager, messenger line.Messenger,
	storage storage.Storage, reminders ReminderScheduler, cfg WebhookConfig, log zerolog.Logger) *WebhookService {
	if reminders == nil {
		reminders = NoopReminderScheduler{}
	}
	return &WebhookService{
		repo:      repo,
		tokens:    tokens,
		messenger: messenger,
		storage:   storage,
		reminders: reminders,
		cfg:       cfg,
		now:       time.Now,
		log:       log,
	}
}

// WithClock replaces the time source. The token manager keeps its own clock.
func (s *WebhookService) WithClock(now func() time.Time) *WebhookService {
	c := *s
	c.now = now
	return &c
}

// ProcessWebhook verifies and handles one delivery. Events are handled in
// order and the first failure stops the rest; the platform redelivers the
// whole payload and events already recorded are skipped.
func (s *WebhookService) ProcessWebhook(ctx context.Context, body []byte, signature string) error {
	if !line.VerifySignature(s.cfg.ChannelSecret, body, signature) {
		metrics.WebhookEventsTotal.WithLabelValues("delivery", "signature_invalid").Inc()
		return line.ErrSignatureInvalid
	}

	payload, err := line.DecodePayload(body)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("delivery", "malformed").Inc()
		return err
	}

	for _, ev := range payload.Events {
		if s.isVerifyReplyToken(ev.ReplyToken) {
			metrics.WebhookEventsTotal.WithLabelValues(ev.Kind().String(), "verification").Inc()
			continue
		}
		if err := s.processEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebhookService) isVerifyReplyToken(replyToken string) bool {
	for _, t := range s.cfg.VerifyReplyTokens {
		if replyToken == t {
			return true
		}
	}
	return false
}

func (s *WebhookService) processEvent(ctx context.Context, ev line.Event) error {
	kind := ev.Kind()
	log := s.log.With().
		Str("event_id", ev.ID()).
		Str("kind", kind.String()).
		Str("line_user_id", ev.SenderID()).
		Bool("redelivery", ev.Redelivered()).
		Logger()

	if kind == line.KindOther {
		metrics.WebhookEventsTotal.WithLabelValues(kind.String(), "ignored").Inc()
		log.Debug().Str("type", string(ev.Type)).Msg("ignoring unsupported event")
		return nil
	}

	// Image content is fetched and stored outside the transaction so no
	// connection is held across two outbound calls.
	var staged *stagedImage
	if kind == line.KindImage {
		var err error
		if staged, err = s.stageImage(ctx, ev); err != nil {
			metrics.WebhookEventsTotal.WithLabelValues(kind.String(), "error").Inc()
			log.Error().Err(err).Msg("failed to stage image")
			return err
		}
	}

	now := s.now()
	var out outcome
	err := s.repo.WithinTx(ctx, func(repo *repository.Repository) error {
		out = outcome{}
		if id := ev.ID(); id != "" {
			fresh, err := repo.Event.MarkProcessed(ctx, &models.WebhookEvent{
				EventID:     id,
				EventType:   kind.String(),
				LineUserID:  ev.SenderID(),
				ProcessedAt: now,
			})
			if err != nil {
				return storeError(err)
			}
			if !fresh {
				out.result = "redelivered"
				return nil
			}
		}

		var err error
		switch kind {
		case line.KindText:
			out, err = s.handleText(ctx, repo, ev, now)
		case line.KindImage:
			out, err = s.handleImage(ctx, repo, ev, staged, now)
		case line.KindFollow:
			out, err = s.handleFollow(ctx, repo, ev, now)
		case line.KindUnfollow:
			out, err = s.handleUnfollow(ctx, repo, ev, now)
		}
		return err
	})
	if staged != nil && staged.objectName != "" && (err != nil || out.result == "redelivered") {
		s.discardImage(ctx, log, staged.objectName)
	}
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(kind.String(), "error").Inc()
		log.Error().Err(err).Msg("failed to process webhook event")
		return err
	}

	metrics.WebhookEventsTotal.WithLabelValues(kind.String(), out.result).Inc()
	log.Info().Str("outcome", out.result).Str("post_id", out.postID).Msg("webhook event processed")

	// The state change is committed; the rest is best-effort.
	sideCtx := context.WithoutCancel(ctx)
	if out.reply != "" {
		s.reply(sideCtx, log, ev.ReplyToken, out.reply)
	}
	if out.remind != nil {
		if err := s.reminders.Schedule(sideCtx, *out.remind); err != nil {
			log.Warn().Err(err).Str("post_id", out.remind.PostID).Msg("failed to schedule reminder")
		}
	}
	return nil
}

func (s *WebhookService) reply(ctx context.Context, log zerolog.Logger, replyToken, text string) {
	if replyToken == "" {
		return
	}
	if err := s.messenger.Reply(ctx, replyToken, text); err != nil {
		metrics.RepliesTotal.WithLabelValues("reply", "failed").Inc()
		log.Warn().Err(err).Msg("failed to send reply")
		return
	}
	metrics.RepliesTotal.WithLabelValues("reply", "sent").Inc()
}

// handleText starts a claim only when the message carries a code-shaped word
// and the sender has a draft waiting on one. Everything else is a new post.
func (s *WebhookService) handleText(ctx context.Context, repo *repository.Repository, ev line.Event, now time.Time) (outcome, error) {
	sender := ev.SenderID()
	text := ev.Text()

	codes := s.tokens.Candidates(text)
	if len(codes) == 0 {
		return s.newPost(ctx, repo, sender, text, now)
	}

	draft, err := repo.Post.GetOpenDraftForSender(ctx, sender, now)
	if err != nil {
		return outcome{}, storeError(err)
	}
	if draft != nil {
		return s.claim(ctx, repo, sender, text, codes, draft, now)
	}

	// A draft that lapsed within the last TTL still answers its own code with
	// "expired". Any other word is just text.
	lapsed, err := repo.Post.GetLapsedDraft(ctx, sender, now.Add(-s.tokens.TTL()))
	if err != nil {
		return outcome{}, storeError(err)
	}
	if lapsed != nil {
		if code, err := matchCode(codes, lapsed, now); errors.Is(err, token.ErrTokenExpired) {
			return s.rejectClaim(ctx, repo, sender, token.Strip(text, code), err, now)
		}
	}
	return s.newPost(ctx, repo, sender, text, now)
}

// matchCode returns the candidate whose hash matches the draft's token, with
// the result of checking it. With no match the code is empty.
func matchCode(codes []string, draft *models.Post, now time.Time) (string, error) {
	var storedHash string
	var expiresAt time.Time
	if draft.PostTokenHash != nil {
		storedHash = *draft.PostTokenHash
	}
	if draft.TokenExpiresAt != nil {
		expiresAt = *draft.TokenExpiresAt
	}

	for _, code := range codes {
		err := token.Check(code, storedHash, expiresAt, now)
		if err == nil || errors.Is(err, token.ErrTokenExpired) {
			return code, err
		}
	}
	return "", token.ErrTokenMismatch
}

func (s *WebhookService) claim(ctx context.Context, repo *repository.Repository, sender, text string,
	codes []string, draft *models.Post, now time.Time) (outcome, error) {
	code, claimErr := matchCode(codes, draft, now)
	text = token.Strip(text, code)

	if claimErr == nil {
		parsed := parser.Parse(text)
		merged := draft.Fields().Merge(parsed)
		missing := parser.Missing(merged)

		patch := models.DraftPatch{Fields: parsed, ContentHash: canonical.Hash(merged)}
		var issued token.Issued
		if len(missing) > 0 {
			var err error
			if issued, err = s.tokens.Issue(); err != nil {
				return outcome{}, fmt.Errorf("issue claim code: %w", err)
			}
			patch.TokenHash = &issued.Hash
			patch.TokenExpiresAt = &issued.ExpiresAt
		}

		updated, err := repo.Post.ConditionallyUpdateDraft(ctx, draft.PostID, *draft.PostTokenHash, patch, now)
		if err != nil {
			return outcome{}, storeError(err)
		}
		if updated {
			if len(missing) == 0 {
				if err := repo.Post.MarkPublished(ctx, draft.PostID, now); err != nil {
					return outcome{}, storeError(err)
				}
				metrics.ClaimAttemptsTotal.WithLabelValues("published").Inc()
				return outcome{
					result: "claim_published",
					postID: draft.PostID,
					reply:  publishedMessage(merged),
				}, nil
			}

			metrics.ClaimAttemptsTotal.WithLabelValues("updated").Inc()
			return outcome{
				result: "claim_updated",
				postID: draft.PostID,
				reply:  draftMessage(issued.Code, missing, s.tokens.TTL()),
				remind: s.reminderFor(draft.PostID, sender, issued.Hash, now),
			}, nil
		}

		// Lost the compare-and-swap to a concurrent claim.
		claimErr = token.ErrTokenMismatch
	}

	return s.rejectClaim(ctx, repo, sender, text, claimErr, now)
}

// rejectClaim answers a failed claim and treats the rest of the message as a
// new post. The stale draft is left untouched.
func (s *WebhookService) rejectClaim(ctx context.Context, repo *repository.Repository, sender, text string,
	claimErr error, now time.Time) (outcome, error) {
	notice := msgTokenInvalid
	if errors.Is(claimErr, token.ErrTokenExpired) {
		notice = msgTokenExpired
		metrics.ClaimAttemptsTotal.WithLabelValues("expired").Inc()
	} else {
		metrics.ClaimAttemptsTotal.WithLabelValues("mismatch").Inc()
	}

	out, err := s.newPost(ctx, repo, sender, text, now)
	if err != nil {
		return out, err
	}
	out.result = "claim_failed_" + out.result
	out.reply = notice + "\n" + out.reply
	return out, nil
}

// newPost publishes a complete message directly and drafts anything else.
func (s *WebhookService) newPost(ctx context.Context, repo *repository.Repository, sender, text string, now time.Time) (outcome, error) {
	v := parser.Validate(text)
	if !v.OK {
		post := &models.Post{}
		post.SetFields(v.Data)
		return s.createDraft(ctx, repo, sender, post, now)
	}

	hash := canonical.Hash(v.Data)
	if s.cfg.DedupWindow > 0 {
		dup, err := repo.Post.FindRecentByContentHash(ctx, sender, hash, now.Add(-s.cfg.DedupWindow))
		if err != nil {
			return outcome{}, storeError(err)
		}
		if dup != nil {
			return outcome{result: "duplicate", postID: dup.PostID, reply: msgDuplicate}, nil
		}
	}

	post := &models.Post{
		Status:      models.StatusPublished,
		Source:      models.SourceLine,
		ContentHash: hash,
		LineUserID:  sender,
		PublishedAt: &now,
		CreatedAt:   now,
	}
	post.SetFields(v.Data)
	if err := repo.Post.CreateDraft(ctx, post); err != nil {
		return outcome{}, storeError(err)
	}

	return outcome{result: "published", postID: post.PostID, reply: publishedMessage(v.Data)}, nil
}

// createDraft stores post as a draft holding a fresh claim code. Codes held
// by the sender's other drafts are revoked first.
func (s *WebhookService) createDraft(ctx context.Context, repo *repository.Repository, sender string, post *models.Post, now time.Time) (outcome, error) {
	if err := repo.Post.RevokeSenderTokens(ctx, sender); err != nil {
		return outcome{}, storeError(err)
	}

	issued, err := s.tokens.Issue()
	if err != nil {
		return outcome{}, fmt.Errorf("issue claim code: %w", err)
	}

	fields := post.Fields()
	post.Status = models.StatusDraft
	post.Source = models.SourceLine
	post.ContentHash = canonical.Hash(fields)
	post.PostTokenHash = &issued.Hash
	post.TokenExpiresAt = &issued.ExpiresAt
	post.LineUserID = sender
	post.CreatedAt = now
	if err := repo.Post.CreateDraft(ctx, post); err != nil {
		return outcome{}, storeError(err)
	}

	return outcome{
		result: "draft",
		postID: post.PostID,
		reply:  draftMessage(issued.Code, parser.Missing(fields), s.tokens.TTL()),
		remind: s.reminderFor(post.PostID, sender, issued.Hash, now),
	}, nil
}

// stageImage downloads the message content and uploads it under a fresh post ID.
func (s *WebhookService) stageImage(ctx context.Context, ev line.Event) (*stagedImage, error) {
	content, err := s.messenger.Content(ctx, ev.MessageID())
	if errors.Is(err, line.ErrContentTooLarge) {
		return &stagedImage{tooLarge: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch image content: %w", err)
	}
	defer content.Body.Close()

	if s.cfg.MaxImageSize > 0 && content.Size > s.cfg.MaxImageSize {
		return &stagedImage{tooLarge: true}, nil
	}

	postID := uuid.New().String()
	objectName, imageURL, err := s.storage.UploadImage(ctx, postID, ev.MessageID(), content.ContentType, content.Body, content.Size)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	return &stagedImage{postID: postID, objectName: objectName, url: imageURL}, nil
}

func (s *WebhookService) discardImage(ctx context.Context, log zerolog.Logger, objectName string) {
	if err := s.storage.DeleteImage(context.WithoutCancel(ctx), objectName); err != nil {
		log.Warn().Err(err).Str("object", objectName).Msg("failed to remove orphaned image")
	}
}

func (s *WebhookService) handleImage(ctx context.Context, repo *repository.Repository, ev line.Event,
	staged *stagedImage, now time.Time) (outcome, error) {
	if staged.tooLarge {
		return outcome{result: "image_too_large", reply: msgImageTooLarge}, nil
	}
	url := staged.url
	return s.createDraft(ctx, repo, ev.SenderID(), &models.Post{PostID: staged.postID, ImageURL: &url}, now)
}

func (s *WebhookService) handleFollow(ctx context.Context, repo *repository.Repository, ev line.Event, now time.Time) (outcome, error) {
	sender := ev.SenderID()
	if sender == "" {
		return outcome{result: "ignored"}, nil
	}

	displayName, err := s.messenger.DisplayName(ctx, sender)
	if err != nil {
		s.log.Warn().Err(err).Str("line_user_id", sender).Msg("failed to fetch profile")
	}

	if err := repo.LineUser.Follow(ctx, sender, displayName, now); err != nil {
		return outcome{}, storeError(err)
	}
	return outcome{result: "followed", reply: msgFollow}, nil
}

func (s *WebhookService) handleUnfollow(ctx context.Context, repo *repository.Repository, ev line.Event, now time.Time) (outcome, error) {
	if ev.SenderID() == "" {
		return outcome{result: "ignored"}, nil
	}
	if err := repo.LineUser.Unfollow(ctx, ev.SenderID(), now); err != nil {
		return outcome{}, storeError(err)
	}
	return outcome{result: "unfollowed"}, nil
}

func (s *WebhookService) reminderFor(postID, sender, tokenHash string, now time.Time) *Reminder {
	if s.cfg.RemindWindow <= 0 {
		return nil
	}
	return &Reminder{
		PostID:     postID,
		LineUserID: sender,
		TokenHash:  tokenHash,
		DueAt:      now.Add(s.cfg.RemindWindow),
	}
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreWrite, err)
}
