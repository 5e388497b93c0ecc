package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/otherjamesbrown/mailgraph/config"
	"github.com/otherjamesbrown/mailgraph/credentials"
	"github.com/otherjamesbrown/mailgraph/pkg/db"
	"github.com/otherjamesbrown/mailgraph/pkg/extraction/classify"
	"github.com/otherjamesbrown/mailgraph/pkg/extraction/pipeline"
	"github.com/otherjamesbrown/mailgraph/pkg/extraction/router"
	"github.com/otherjamesbrown/mailgraph/pkg/extraction/templatecache"
	"github.com/otherjamesbrown/mailgraph/pkg/graph"
	"github.com/otherjamesbrown/mailgraph/pkg/jobqueue"
	"github.com/otherjamesbrown/mailgraph/pkg/llm"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
	"github.com/otherjamesbrown/mailgraph/pkg/mailsync"
	"github.com/otherjamesbrown/mailgraph/pkg/mailsync/fetch"
	"github.com/otherjamesbrown/mailgraph/pkg/qualify"
	"github.com/otherjamesbrown/mailgraph/pkg/storage"
)

// gmailEndpoint and outlookEndpoint are the two OAuth providers' token
// endpoints; hardcoded here rather than pulled from golang.org/x/oauth2's
// per-vendor subpackages (google, microsoft) since neither is already a
// dependency of this module and both endpoints are public, stable URLs.
var (
	gmailEndpoint = oauth2.Endpoint{
		AuthURL:  "https://accounts.google.com/o/oauth2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
	}
	outlookEndpoint = oauth2.Endpoint{
		AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
	}
)

// deps bundles every constructed dependency a command needs, assembled once
// in newDeps and torn down by close().
type deps struct {
	cfg         *config.AppConfig
	logger      logging.Logger
	pool        *pgxpool.Pool
	redis       *redis.Client
	credStore   *credentials.Store
	graphRepo   *graph.Repository
	blobs       *storage.Repository
	templates   *templatecache.Repository
	dispatcher  *jobqueue.Dispatcher
	llmProvider llm.Provider
	budget      *llm.Budget
	breaker     *llm.CircuitBreaker
	router      *router.Router
	classifier  *classify.Classifier
	fetcher     *fetch.Fetcher
	pipeline    *pipeline.Pipeline
	qualifier   *qualify.Engine
	coordRepo   *mailsync.Repository
	coord       *mailsync.Coordinator
}

// newDeps wires every component per SPEC_FULL.md's component table, reading
// connection settings from cfg and optional LLM/OAuth settings directly from
// the environment (MAILGRAPH_LLM_*, MAILGRAPH_{GMAIL,OUTLOOK}_* — these sit
// outside AppConfig because they carry secrets, not tunables).
func newDeps(ctx context.Context, cfg *config.AppConfig, logger logging.Logger) (*deps, error) {
	pool, err := db.Connect(ctx, db.FromAppConfig(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	credStore, err := credentials.NewStore(pool, oauthConfigsFromEnv(), logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing credential store: %w", err)
	}

	graphRepo := graph.NewRepository(pool, logger)
	blobs := storage.NewRepository(pool, logger)
	templates := templatecache.NewRepository(pool, logger)
	dispatcher := jobqueue.NewDispatcher(redisClient)

	llmProvider := llmProviderFromEnv(cfg)
	budget := llm.NewBudget(cfg.LLMPerUserRPM, cfg.LLMGlobalRPM, cfg.LLMDailyUserDollarCap)
	breaker := llm.NewCircuitBreaker(0, 0, 0)

	rt := router.New(cfg.CostPolicy, llmProvider, budget, breaker, logger)
	cls := classify.New(llmProvider, budget, breaker, logger)
	fetcher := fetch.New(credStore, &http.Client{Timeout: 60 * time.Second})
	pl := pipeline.New(graphRepo, templates, blobs, rt, cls, fetcher, pool, logger)

	qualifier := qualify.NewEngine(graphRepo, llmProvider, budget, breaker, logger)

	coordRepo := mailsync.NewRepository(pool)
	coord := mailsync.NewCoordinator(coordRepo, cfg.MaxEmailsPerSync, logger)

	return &deps{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		redis:       redisClient,
		credStore:   credStore,
		graphRepo:   graphRepo,
		blobs:       blobs,
		templates:   templates,
		dispatcher:  dispatcher,
		llmProvider: llmProvider,
		budget:      budget,
		breaker:     breaker,
		router:      rt,
		classifier:  cls,
		fetcher:     fetcher,
		pipeline:    pl,
		qualifier:   qualifier,
		coordRepo:   coordRepo,
		coord:       coord,
	}, nil
}

func (d *deps) close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// oauthConfigsFromEnv builds the oauth2.Config map credentials.Store needs
// to refresh expired tokens, one entry per provider with a client
// id/secret/redirect URL set in the environment. A provider with no client
// id configured is simply omitted — GetAccessToken still works for
// already-valid tokens, and only fails on refresh for that provider.
func oauthConfigsFromEnv() map[credentials.Provider]*oauth2.Config {
	configs := map[credentials.Provider]*oauth2.Config{}

	if id := os.Getenv("MAILGRAPH_GMAIL_CLIENT_ID"); id != "" {
		configs[credentials.ProviderGmail] = &oauth2.Config{
			ClientID:     id,
			ClientSecret: os.Getenv("MAILGRAPH_GMAIL_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("MAILGRAPH_GMAIL_REDIRECT_URL"),
			Endpoint:     gmailEndpoint,
			Scopes:       []string{"https://www.googleapis.com/auth/gmail.readonly"},
		}
	}
	if id := os.Getenv("MAILGRAPH_OUTLOOK_CLIENT_ID"); id != "" {
		configs[credentials.ProviderOutlook] = &oauth2.Config{
			ClientID:     id,
			ClientSecret: os.Getenv("MAILGRAPH_OUTLOOK_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("MAILGRAPH_OUTLOOK_REDIRECT_URL"),
			Endpoint:     outlookEndpoint,
			Scopes:       []string{"Mail.Read", "offline_access"},
		}
	}
	return configs
}

// llmProviderFromEnv builds the HTTP-based llm.Provider (C4/C7's shared
// hosted-model client) from MAILGRAPH_LLM_* settings. Returns nil when no
// endpoint is configured, which is valid as long as every Message resolves
// at Stage 1 and every document extracts via template cache hits alone —
// anything that falls through returns an explicit error rather than
// silently degrading.
func llmProviderFromEnv(cfg *config.AppConfig) llm.Provider {
	endpoint := os.Getenv("MAILGRAPH_LLM_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	return llm.NewHTTPProvider(llm.HTTPConfig{
		Endpoint:   endpoint,
		APIKey:     os.Getenv("MAILGRAPH_LLM_API_KEY"),
		Model:      os.Getenv("MAILGRAPH_LLM_MODEL"),
		MaxRetries: 2,
		Timeout:    60 * time.Second,
	})
}
