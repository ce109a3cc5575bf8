package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/telecom-lead-agent/internal/config"
	"github.com/wolfman30/telecom-lead-agent/internal/reply"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
)

const defaultGeminiModel = "gemini-2.5-flash"

// BuildLLMClient creates the primary provider and, when LLM_FALLBACK_PROVIDER
// is set, wraps it with a fallback. The returned closer releases provider
// resources and is never nil.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (reply.LLMClient, func(), error) {
	if cfg == nil {
		return nil, func() {}, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	primary, closer, err := buildProvider(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		return nil, func() {}, err
	}
	closers = append(closers, closer)
	logger.Info("reply provider configured", "provider", cfg.LLMProvider, "model", cfg.AIModel)

	fallbackName := strings.TrimSpace(cfg.LLMFallbackProvider)
	if fallbackName == "" || fallbackName == cfg.LLMProvider {
		return primary, closeAll, nil
	}
	fallback, closer, err := buildProvider(ctx, fallbackName, cfg, awsCfg)
	if err != nil {
		logger.Warn("fallback provider unavailable; continuing without it", "provider", fallbackName, "error", err)
		return primary, closeAll, nil
	}
	closers = append(closers, closer)
	logger.Info("fallback provider configured", "provider", fallbackName)
	return reply.NewFallbackLLMClient(primary, fallback, logger), closeAll, nil
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, awsCfg *aws.Config) (reply.LLMClient, func(), error) {
	noop := func() {}
	switch name {
	case "", "openai":
		client, err := reply.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: openai client: %w", err)
		}
		return client, noop, nil
	case "gemini":
		model := defaultGeminiModel
		if strings.HasPrefix(cfg.AIModel, "gemini") {
			model = cfg.AIModel
		}
		client, err := reply.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, model)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return client, func() { _ = client.Close() }, nil
	case "bedrock":
		if awsCfg == nil {
			return nil, noop, fmt.Errorf("bootstrap: bedrock requires AWS configuration")
		}
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, noop, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required")
		}
		return reply.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID), noop, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown LLM provider %q", name)
	}
}

// UsesAWS reports whether any configured component talks to AWS.
func UsesAWS(cfg *appconfig.Config) bool {
	return cfg.ConversationStore == "dynamodb" || cfg.LLMProvider == "bedrock" || cfg.LLMFallbackProvider == "bedrock"
}
