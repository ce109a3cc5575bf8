package bootstrap

import (
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/telecom-lead-agent/internal/config"
	"github.com/wolfman30/telecom-lead-agent/internal/conversation"
	"github.com/wolfman30/telecom-lead-agent/internal/dedupe"
	"github.com/wolfman30/telecom-lead-agent/internal/leads"
	"github.com/wolfman30/telecom-lead-agent/internal/session"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
)

// BuildLeadRepository picks Postgres when a pool is available.
func BuildLeadRepository(pool *pgxpool.Pool, logger *logging.Logger) leads.Repository {
	if pool == nil {
		logger.Warn("no database configured; leads are kept in memory")
		return leads.NewInMemoryRepository()
	}
	return leads.NewPostgresRepository(pool)
}

// BuildSessionStore selects the session backend named by SESSION_STORE.
func BuildSessionStore(cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client) (session.Store, error) {
	switch cfg.SessionStore {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: SESSION_STORE=postgres requires DATABASE_URL")
		}
		return session.NewPostgresStore(pool), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: SESSION_STORE=redis requires a reachable REDIS_ADDR")
		}
		return session.NewRedisStore(redisClient, 0), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown SESSION_STORE %q", cfg.SessionStore)
	}
}

// BuildConversationStore selects the turn backend named by CONVERSATION_STORE.
func BuildConversationStore(cfg *appconfig.Config, db *sql.DB, dynamo *dynamodb.Client, logger *logging.Logger) (conversation.Store, error) {
	switch cfg.ConversationStore {
	case "", "memory":
		return conversation.NewMemoryStore(), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("bootstrap: CONVERSATION_STORE=postgres requires DATABASE_URL")
		}
		return conversation.NewPostgresStore(db), nil
	case "dynamodb":
		if dynamo == nil {
			return nil, fmt.Errorf("bootstrap: CONVERSATION_STORE=dynamodb requires AWS configuration")
		}
		return conversation.NewDynamoStore(dynamo, cfg.ConversationTable, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown CONVERSATION_STORE %q", cfg.ConversationStore)
	}
}

// BuildDedupeStore returns nil when DEDUPE_MESSAGES is off. Postgres wins over
// Redis so processed IDs share the lead database's durability.
func BuildDedupeStore(cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client) dedupe.Store {
	switch {
	case !cfg.DedupeMessages:
		return nil
	case pool != nil:
		return dedupe.NewPostgresStore(pool, cfg.DedupeTTL)
	case redisClient != nil:
		return dedupe.NewRedisStore(redisClient, cfg.DedupeTTL)
	default:
		return dedupe.NewMemoryStore(cfg.DedupeTTL)
	}
}
