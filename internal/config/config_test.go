package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MAX_CONVERSATION_HISTORY", "")
	t.Setenv("SESSION_TIMEOUT", "")
	t.Setenv("DEFAULT_TARGET_OPERATOR", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10, cfg.MaxConversationHistory)
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, "CLARO", cfg.DefaultTargetOperator)
	assert.InDelta(t, 0.7, cfg.AITemperature, 0.0001)
	assert.True(t, cfg.SerializeContacts)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_CONVERSATION_HISTORY", "4")
	t.Setenv("SESSION_TIMEOUT", "5m")
	t.Setenv("DEFAULT_TARGET_OPERATOR", "wow")
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("AI_TEMPERATURE", "0.2")

	cfg := Load()

	assert.Equal(t, 4, cfg.MaxConversationHistory)
	assert.Equal(t, 5*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, "WOW", cfg.DefaultTargetOperator)
	assert.Equal(t, "redis", cfg.SessionStore)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.InDelta(t, 0.2, cfg.AITemperature, 0.0001)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("AI_MAX_TOKENS", "lots")
	t.Setenv("AI_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")

	cfg := Load()

	assert.Equal(t, 500, cfg.AIMaxTokens)
	assert.Equal(t, 20*time.Second, cfg.AITimeout)
	assert.False(t, cfg.RedisTLS)
}

func TestWebhookRateLimit(t *testing.T) {
	t.Setenv("WEBHOOK_RATE_LIMIT", "0")
	t.Setenv("WEBHOOK_BURST", "")

	cfg := Load()

	assert.Zero(t, cfg.WebhookRateLimit)
	assert.Equal(t, 40, cfg.WebhookBurst)
}
