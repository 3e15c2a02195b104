package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"nearexpiry/internal/config"
	"nearexpiry/internal/database"
	handlers "nearexpiry/internal/handler"
	"nearexpiry/internal/line"
	"nearexpiry/internal/middleware"
	"nearexpiry/internal/repository"
	"nearexpiry/internal/service"
	"nearexpiry/internal/storage"
)

type App struct {
	DB               *database.DB
	Redis            *redis.Client
	Services         *service.Service
	Handler          http.Handler
	RemindersEnabled bool
}

func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	db, err := database.ConnectDB(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	minioClient, err := storage.NewMinIOClient(cfg)
	if err != nil {
		db.CloseDB()
		return nil, fmt.Errorf("init minio: %w", err)
	}

	lineClient, err := line.NewClient(cfg.Line.ChannelSecret, cfg.Line.ChannelAccessToken, cfg.Webhook.OutboundTimeout, cfg.MaxImageSize)
	if err != nil {
		db.CloseDB()
		return nil, err
	}

	a := &App{DB: db}

	var reminders service.ReminderScheduler = service.NoopReminderScheduler{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			// reminders are best-effort, the webhook runs without them
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, draft reminders disabled")
			rdb.Close()
		} else {
			a.Redis = rdb
			a.RemindersEnabled = true
			reminders = service.NewRedisReminderScheduler(rdb, log)
		}
	}

	repo := repository.NewRepository(db.DB)
	a.Services = service.NewService(repo, cfg, minioClient, lineClient, reminders, log)
	h := handlers.NewHandlers(a.Services, db, cfg, log)
	a.Handler = NewRouter(h, a.Services.Auth, log)

	return a, nil
}

func NewRouter(h *handlers.Handlers, auth service.AuthService, log zerolog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Metrics)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/webhook/line", h.LineWebhook).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/posts", h.GetPosts).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id}", h.GetPost).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(mux.MiddlewareFunc(middleware.AdminAuth(auth)))
	admin.HandleFunc("/posts/{id}", h.GetPostAdmin).Methods(http.MethodGet)
	admin.HandleFunc("/posts/{id}/status", h.UpdatePostStatus).Methods(http.MethodPatch)

	return middleware.Chain(r,
		middleware.RequestLogger(log),
		middleware.CORSMiddleware,
	)
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.CloseDB()
	}
}
