package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("LINE_CHANNEL_SECRET", "secret")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "token")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 30*time.Minute, cfg.Webhook.TokenTTL)
	assert.Equal(t, 60*time.Second, cfg.Webhook.RemindWindow)
	assert.Equal(t, 5*time.Second, cfg.Webhook.OutboundTimeout)
	assert.Equal(t, 6, cfg.Webhook.TokenLength)
	assert.Len(t, cfg.Line.VerifyReplyTokens, 2)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxImageSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("LINE_CHANNEL_SECRET", "secret")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "token")
	t.Setenv("TOKEN_TTL_MINS", "10")
	t.Setenv("REMIND_WINDOW_SECS", "90")
	t.Setenv("OUTBOUND_TIMEOUT", "2s")
	t.Setenv("LINE_VERIFY_REPLY_TOKENS", " aaa, ,bbb ")
	t.Setenv("MAX_IMAGE_SIZE", "oops")

	cfg := LoadConfig()

	assert.Equal(t, 10*time.Minute, cfg.Webhook.TokenTTL)
	assert.Equal(t, 90*time.Second, cfg.Webhook.RemindWindow)
	assert.Equal(t, 2*time.Second, cfg.Webhook.OutboundTimeout)
	assert.Equal(t, []string{"aaa", "bbb"}, cfg.Line.VerifyReplyTokens)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxImageSize)
}

func TestConfig_ValidateRequiresLineCredentials(t *testing.T) {
	t.Setenv("LINE_CHANNEL_SECRET", "")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "")

	cfg := LoadConfig()

	assert.Error(t, cfg.Validate())
}
