package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/telecom-lead-agent/internal/api/router"
	appconfig "github.com/wolfman30/telecom-lead-agent/internal/config"
	"github.com/wolfman30/telecom-lead-agent/internal/conversation"
	"github.com/wolfman30/telecom-lead-agent/internal/dedupe"
	httpmiddleware "github.com/wolfman30/telecom-lead-agent/internal/http/middleware"
	"github.com/wolfman30/telecom-lead-agent/internal/leads"
	"github.com/wolfman30/telecom-lead-agent/internal/observability/metrics"
	"github.com/wolfman30/telecom-lead-agent/internal/pipeline"
	"github.com/wolfman30/telecom-lead-agent/internal/reply"
	"github.com/wolfman30/telecom-lead-agent/internal/session"
	"github.com/wolfman30/telecom-lead-agent/internal/webhook"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
)

// App is the fully wired service.
type App struct {
	Leads         leads.Repository
	Sessions      *session.Tracker
	Conversations *conversation.Log
	Pipeline      *pipeline.Pipeline
	Registry      *prometheus.Registry
	Handler       http.Handler
	Dedupe        dedupe.Store
	// WebhookLimiter is nil when WEBHOOK_RATE_LIMIT is 0.
	WebhookLimiter *httpmiddleware.RateLimiter

	logger  *logging.Logger
	closers []func()
}

const (
	limiterPruneInterval = 5 * time.Minute
	dedupePruneInterval  = time.Hour
)

// Start runs background maintenance until ctx is done: idle rate-limit
// buckets are evicted and expired dedupe IDs are deleted.
func (a *App) Start(ctx context.Context) {
	if a.WebhookLimiter != nil {
		go a.WebhookLimiter.Run(ctx, limiterPruneInterval)
	}
	if pruner, ok := a.Dedupe.(dedupe.Pruner); ok {
		go a.pruneDedupe(ctx, pruner, dedupePruneInterval)
	}
}

func (a *App) pruneDedupe(ctx context.Context, pruner dedupe.Pruner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pruner.Prune(ctx)
			if err != nil {
				a.logger.Warn("dedupe prune failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Debug("dedupe pruned", "removed", n)
			}
		}
	}
}

// Close releases pools and clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build wires stores, the reply generator, the pipeline and the HTTP router
// from cfg. awsCfg may be nil when nothing in cfg uses AWS.
func Build(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (app *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	app = &App{logger: logger}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	var (
		pool *pgxpool.Pool
		db   *sql.DB
	)
	if needsPostgres(cfg) {
		if pool, err = BuildPostgresPool(ctx, cfg); err != nil {
			return app, err
		}
		app.closers = append(app.closers, pool.Close)
		if cfg.ConversationStore == "postgres" {
			if db, err = BuildSQLDB(cfg); err != nil {
				return app, err
			}
			app.closers = append(app.closers, func() { _ = db.Close() })
		}
	}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}

	var dynamo *dynamodb.Client
	if cfg.ConversationStore == "dynamodb" && awsCfg != nil {
		dynamo = dynamodb.NewFromConfig(*awsCfg)
	}

	app.Leads = BuildLeadRepository(pool, logger)

	sessionStore, err := BuildSessionStore(cfg, pool, redisClient)
	if err != nil {
		return app, err
	}
	app.Sessions = session.NewTracker(sessionStore, cfg.SessionTimeout, logger)

	turnStore, err := BuildConversationStore(cfg, db, dynamo, logger)
	if err != nil {
		return app, err
	}
	app.Conversations = conversation.NewLog(turnStore, cfg.MaxConversationHistory, logger)

	llm, closeLLM, err := BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return app, err
	}
	app.closers = append(app.closers, closeLLM)
	generator := reply.NewGenerator(llm, reply.Config{
		Model:       cfg.AIModel,
		Temperature: cfg.AITemperature,
		MaxTokens:   int32(cfg.AIMaxTokens),
		Timeout:     cfg.AITimeout,
		MaxHistory:  cfg.MaxConversationHistory,
	}, logger)

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics := metrics.NewPipelineMetrics(app.Registry)

	opts := []pipeline.Option{
		pipeline.WithMetrics(pipelineMetrics),
		pipeline.WithSerializedContacts(cfg.SerializeContacts),
	}
	if store := BuildDedupeStore(cfg, pool, redisClient); store != nil {
		app.Dedupe = store
		opts = append(opts, pipeline.WithDedupe(store, webhook.ChannelWhatsApp))
	}

	app.Pipeline, err = pipeline.New(pipeline.Deps{
		Sessions:      app.Sessions,
		Leads:         app.Leads,
		Conversations: app.Conversations,
		Generator:     generator,
		Personas:      reply.DefaultPersonas(),
		DefaultTarget: leads.Operator(cfg.DefaultTargetOperator),
		Logger:        logger,
	}, opts...)
	if err != nil {
		return app, err
	}

	if cfg.WebhookRateLimit > 0 {
		app.WebhookLimiter = httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookBurst)
	}

	app.Handler = router.New(&router.Config{
		Logger: logger,
		WebhookHandler: webhook.NewHandler(app.Pipeline, webhook.Config{
			Secret:  cfg.WebhookSecret,
			App:     cfg.AppName,
			Version: cfg.AppVersion,
			Metrics: pipelineMetrics,
		}, logger),
		LeadsHandler:        leads.NewHandler(app.Leads, logger),
		ConversationHandler: conversation.NewHandler(app.Conversations, logger),
		MetricsHandler:      promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}),
		AdminJWTSecret:      cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		WebhookLimiter:      app.WebhookLimiter,
	})

	logger.Info("application wired",
		"session_store", cfg.SessionStore,
		"conversation_store", cfg.ConversationStore,
		"llm_provider", cfg.LLMProvider,
		"default_target", cfg.DefaultTargetOperator,
	)
	return app, nil
}
