package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/wolfman30/telecom-lead-agent/cmd/mainconfig"
	"github.com/wolfman30/telecom-lead-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/telecom-lead-agent/internal/config"
	"github.com/wolfman30/telecom-lead-agent/internal/conversation"
	"github.com/wolfman30/telecom-lead-agent/internal/leads"
	"github.com/wolfman30/telecom-lead-agent/internal/reply"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
)

// llmtest sends one scripted conversation through the configured provider
// chain and prints the reply.
func main() {
	target := flag.String("target", "CLARO", "target operator")
	current := flag.String("current", "WOW", "current operator, empty if unknown")
	message := flag.String("message", "Hola, ¿qué planes de internet tienen?", "last user message")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var awsCfg *aws.Config
	if bootstrap.UsesAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			fail("load aws config", err)
		}
		awsCfg = &loaded
	}

	client, closer, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		fail("build llm client", err)
	}
	defer closer()

	targetOp, err := leads.ParseOperator(*target)
	if err != nil {
		fail("target", err)
	}
	var currentOp leads.Operator
	if *current != "" {
		if currentOp, err = leads.ParseOperator(*current); err != nil {
			fail("current", err)
		}
	}

	gen := reply.NewGenerator(client, reply.Config{
		Model:       cfg.AIModel,
		Temperature: cfg.AITemperature,
		MaxTokens:   int32(cfg.AIMaxTokens),
		Timeout:     cfg.AITimeout,
		MaxHistory:  cfg.MaxConversationHistory,
	}, logger)

	history := []conversation.Message{
		{Role: conversation.RoleUser, Content: "Hola"},
		{Role: conversation.RoleAssistant, Content: "¡Hola! Soy tu asesor de telecomunicaciones. ¿En qué te puedo ayudar?"},
		{Role: conversation.RoleUser, Content: *message},
	}
	persona := reply.DefaultPersonas().Directive(targetOp, currentOp)

	start := time.Now()
	text, err := gen.Generate(ctx, history, reply.LeadContext{
		ContactID:       "+51900000000",
		TargetOperator:  targetOp,
		CurrentOperator: currentOp,
	}, persona)
	if err != nil {
		fail("generate", err)
	}
	fmt.Printf("provider=%s model=%s elapsed=%s\n\n%s\n", cfg.LLMProvider, cfg.AIModel, time.Since(start).Round(time.Millisecond), text)
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
