package service

import (
	"github.com/rs/zerolog"

	"nearexpiry/internal/config"
	"nearexpiry/internal/line"
	"nearexpiry/internal/repository"
	"nearexpiry/internal/storage"
	"nearexpiry/internal/token"
)

type Service struct {
	Webhook  *WebhookService
	Post     PostService
	Auth     AuthService
	Reminder *ReminderWorker
}

func NewService(rep *repository.Repository, cfg *config.Config, storage storage.Storage,
	messenger line.Messenger, reminders ReminderScheduler, log zerolog.Logger) *Service {
	if reminders == nil {
		reminders = NoopReminderScheduler{}
	}

	tokens := token.NewManager(cfg.Webhook.TokenTTL, cfg.Webhook.TokenLength)

	return &Service{
		Webhook: NewWebhookService(rep, tokens, messenger, storage, reminders, WebhookConfig{
			ChannelSecret:     cfg.Line.ChannelSecret,
			VerifyReplyTokens: cfg.Line.VerifyReplyTokens,
			RemindWindow:      cfg.Webhook.RemindWindow,
			DedupWindow:       cfg.Webhook.DedupWindow,
			MaxImageSize:      cfg.MaxImageSize,
		}, log.With().Str("component", "webhook").Logger()),
		Post:     NewPostService(rep.Post),
		Auth:     NewAuthService(cfg.JWTSecretKey),
		Reminder: NewReminderWorker(reminders, rep.Post, messenger, cfg.Webhook.ReminderPoll, log.With().Str("component", "reminder").Logger()),
	}
}
