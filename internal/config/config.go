package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type DB struct {
	DbHOST     string
	DbPORT     string
	DbUSER     string
	DbPASSWORD string
	DbNAME     string
	DbSSLMODE  string
}

type MinIO struct {
	Endpoint   string `validate:"required"`
	AccessKey  string
	SecretKey  string
	BucketName string `validate:"required"`
	UseSSL     bool
	Region     string
	PublicURL  string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Line struct {
	ChannelSecret      string `validate:"required"`
	ChannelAccessToken string `validate:"required"`
	VerifyReplyTokens  []string
}

// Webhook holds the knobs of the draft/claim workflow.
type Webhook struct {
	TokenTTL        time.Duration `validate:"gt=0"`
	TokenLength     int           `validate:"gte=4,lte=16"`
	RemindWindow    time.Duration `validate:"gt=0"`
	ReminderPoll    time.Duration `validate:"gt=0"`
	OutboundTimeout time.Duration `validate:"gt=0"`
	DedupWindow     time.Duration
}

type Config struct {
	ServerPort   int
	Env          string
	LogLevel     string
	DB           DB
	MinIO        MinIO
	Redis        Redis
	Line         Line
	Webhook      Webhook
	JWTSecretKey string
	MaxImageSize int64
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return duration
}

func LoadDB() DB {
	return DB{
		DbHOST:     getEnv("DB_HOST", "localhost"),
		DbPORT:     getEnv("DB_PORT", "5432"),
		DbUSER:     getEnv("DB_USER", "postgres"),
		DbPASSWORD: getEnv("DB_PASSWORD", "password"),
		DbNAME:     getEnv("DB_NAME", "nearexpiry"),
		DbSSLMODE:  getEnv("DB_SSLMODE", "disable"),
	}
}

func LoadMinIO() MinIO {
	return MinIO{
		Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		BucketName: getEnv("MINIO_BUCKET_NAME", "images"),
		UseSSL:     getEnvBool("MINIO_USE_SSL", false),
		Region:     getEnv("MINIO_REGION", "us-east-1"),
		PublicURL:  getEnv("MINIO_PUBLIC_URL", "http://localhost:9000"),
	}
}

func LoadRedis() Redis {
	return Redis{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
	}
}

func LoadLine() Line {
	return Line{
		ChannelSecret:      getEnv("LINE_CHANNEL_SECRET", ""),
		ChannelAccessToken: getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		VerifyReplyTokens: getEnvList("LINE_VERIFY_REPLY_TOKENS", []string{
			"00000000000000000000000000000000",
			"ffffffffffffffffffffffffffffffff",
		}),
	}
}

// LoadWebhook reads TOKEN_TTL_MINS and REMIND_WINDOW_SECS as plain numbers,
// the rest as Go durations.
func LoadWebhook() Webhook {
	return Webhook{
		TokenTTL:        time.Duration(getEnvAsInt("TOKEN_TTL_MINS", 30)) * time.Minute,
		TokenLength:     getEnvAsInt("TOKEN_LENGTH", 6),
		RemindWindow:    time.Duration(getEnvAsInt("REMIND_WINDOW_SECS", 60)) * time.Second,
		ReminderPoll:    time.Duration(getEnvAsInt("REMINDER_POLL_SECS", 10)) * time.Second,
		OutboundTimeout: parseDuration(getEnv("OUTBOUND_TIMEOUT", "5s"), 5*time.Second),
		DedupWindow:     parseDuration(getEnv("DEDUP_WINDOW", "2m"), 2*time.Minute),
	}
}

func LoadConfig() *Config {
	// a missing .env is fine, the environment is used as is
	_ = godotenv.Load()

	return &Config{
		ServerPort:   getEnvAsInt("SERVER_PORT", 8080),
		Env:          getEnv("APP_ENV", "production"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DB:           LoadDB(),
		MinIO:        LoadMinIO(),
		Redis:        LoadRedis(),
		Line:         LoadLine(),
		Webhook:      LoadWebhook(),
		JWTSecretKey: getEnv("JWT_SECRET_KEY", ""),
		MaxImageSize: parseMaxUploadSize(getEnv("MAX_IMAGE_SIZE", "10485760")),
	}
}

// Validate checks the settings the process cannot start without.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func parseMaxUploadSize(value string) int64 {
	size, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 10 * 1024 * 1024
	}
	return size
}
