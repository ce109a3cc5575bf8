package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	AppName       string
	AppVersion    string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Backends: memory, postgres, redis (sessions) / dynamodb (conversation turns)
	SessionStore      string
	ConversationStore string
	ConversationTable string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Reply generation
	LLMProvider         string
	LLMFallbackProvider string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	GeminiAPIKey        string
	BedrockModelID      string
	AIModel             string
	AITemperature       float32
	AIMaxTokens         int
	AITimeout           time.Duration

	// Conversation policy
	MaxConversationHistory int
	SessionTimeout         time.Duration
	DefaultTargetOperator  string
	SerializeContacts      bool
	DedupeMessages         bool
	// DedupeTTL is how long a processed message ID blocks redelivery. Redis
	// expires keys itself; memory and Postgres entries are pruned by App.Start.
	DedupeTTL time.Duration

	WebhookSecret      string
	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// Requests per second per client IP on the webhook; 0 disables limiting.
	WebhookRateLimit float64
	WebhookBurst     int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		AppName:       getEnv("APP_NAME", "telecom-lead-agent"),
		AppVersion:    getEnv("APP_VERSION", "5.0.0"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionStore:      strings.ToLower(getEnv("SESSION_STORE", "memory")),
		ConversationStore: strings.ToLower(getEnv("CONVERSATION_STORE", "memory")),
		ConversationTable: getEnv("CONVERSATION_TABLE", "conversation_turns"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		LLMProvider:         strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMFallbackProvider: strings.ToLower(getEnv("LLM_FALLBACK_PROVIDER", "")),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		AIModel:             getEnv("AI_MODEL", "gpt-4o-mini"),
		AITemperature:       getEnvAsFloat("AI_TEMPERATURE", 0.7),
		AIMaxTokens:         getEnvAsInt("AI_MAX_TOKENS", 500),
		AITimeout:           getEnvAsDuration("AI_TIMEOUT", 20*time.Second),

		MaxConversationHistory: getEnvAsInt("MAX_CONVERSATION_HISTORY", 10),
		SessionTimeout:         getEnvAsDuration("SESSION_TIMEOUT", 30*time.Minute),
		DefaultTargetOperator:  strings.ToUpper(getEnv("DEFAULT_TARGET_OPERATOR", "CLARO")),
		SerializeContacts:      getEnvAsBool("SERIALIZE_CONTACTS", true),
		DedupeMessages:         getEnvAsBool("DEDUPE_MESSAGES", true),
		DedupeTTL:              getEnvAsDuration("DEDUPE_TTL", 72*time.Hour),

		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		WebhookRateLimit:   float64(getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20)),
		WebhookBurst:       getEnvAsInt("WEBHOOK_BURST", 40),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
