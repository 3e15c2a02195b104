package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"nearexpiry/internal/config"
	"nearexpiry/internal/service"
)

// WebhookProcessor handles one raw webhook delivery.
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, body []byte, signature string) error
}

type HealthChecker interface {
	HealthCheck() error
}

type Handlers struct {
	Webhook     WebhookProcessor
	PostService service.PostService
	DB          HealthChecker
	Cfg         *config.Config
	Validate    *validator.Validate
	Log         zerolog.Logger
}

func NewHandlers(services *service.Service, db HealthChecker, config *config.Config, log zerolog.Logger) *Handlers {
	return &Handlers{
		Webhook:     services.Webhook,
		PostService: services.Post,
		DB:          db,
		Cfg:         config,
		Validate:    validator.New(),
		Log:         log,
	}
}
