package main

import (
	"context"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/btp-research/internal/analysis"
	"github.com/sells-group/btp-research/internal/catalog"
	"github.com/sells-group/btp-research/internal/guest"
	"github.com/sells-group/btp-research/internal/metrics"
	"github.com/sells-group/btp-research/internal/prefs"
	"github.com/sells-group/btp-research/internal/relevance"
	"github.com/sells-group/btp-research/internal/store"
	anthropicpkg "github.com/sells-group/btp-research/pkg/anthropic"
	"github.com/sells-group/btp-research/pkg/perplexity"
)

// appEnv holds the clients a command needs. Fields a command did not ask
// for stay nil.
type appEnv struct {
	Metrics    *metrics.Metrics
	Catalog    *catalog.HTTPClient
	Store      store.Store
	Classifier *relevance.Classifier
	Filler     *relevance.Filler
	Analyzer   *analysis.Analyzer
	State      prefs.Store
	Guest      *guest.Limiter

	redis *redis.Client
}

// envNeeds selects which parts of appEnv to build.
type envNeeds struct {
	store     bool
	relevance bool
	analysis  bool
	state     bool
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
}

// initEnv validates configuration for mode and builds what needs asks for.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string, needs envNeeds) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{Metrics: metrics.New()}
	env.Catalog = catalog.NewHTTPClient(
		catalog.WithBaseURL(cfg.Catalog.BaseURL),
		catalog.WithInventoryPath(cfg.Catalog.InventoryPath),
		catalog.WithTimeout(time.Duration(cfg.Catalog.TimeoutSecs)*time.Second),
		catalog.WithRateLimit(cfg.Catalog.RateLimit),
		catalog.WithCacheTTL(cfg.Catalog.CacheTTL),
		catalog.WithMetrics(env.Metrics),
	)

	if needs.store || needs.relevance {
		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		env.Store = st
		if err := st.Migrate(ctx); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}

	if needs.relevance {
		ai := anthropicpkg.NewClient(cfg.Anthropic.Key, anthropicOptions()...)
		env.Classifier = relevance.NewClassifier(ai, env.Store,
			relevance.WithModel(cfg.Relevance.Model),
			relevance.WithMetrics(env.Metrics),
		)
		env.Filler = relevance.NewFiller(env.Classifier, env.Store,
			relevance.WithBatchSize(cfg.Relevance.BatchSize),
			relevance.WithBatchDelay(cfg.Relevance.BatchDelay),
			relevance.WithFillerMetrics(env.Metrics),
		)
	}

	if needs.analysis {
		prompts, err := analysis.LoadPrompts(cfg.Analysis.PromptsFile)
		if err != nil {
			env.Close()
			return nil, err
		}
		ai := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
			perplexity.WithTimeout(time.Duration(cfg.Perplexity.TimeoutSecs)*time.Second),
		)
		env.Analyzer = analysis.NewAnalyzer(ai,
			analysis.WithPrompts(prompts),
			analysis.WithMetrics(env.Metrics),
		)
	}

	if needs.state {
		st, client, err := initState(ctx)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.State = st
		env.redis = client
		env.Guest = guest.NewLimiter(st, guest.WithKey(cfg.Guest.Key), guest.WithLimit(cfg.Guest.Limit))
	}

	return env, nil
}

func anthropicOptions() []anthropicpkg.Option {
	if cfg.Anthropic.BaseURL == "" {
		return nil
	}
	return []anthropicpkg.Option{anthropicpkg.WithBaseURL(cfg.Anthropic.BaseURL)}
}

// initState opens the configured client-local state backend. The redis
// client is returned so the caller can close it.
func initState(ctx context.Context) (prefs.Store, *redis.Client, error) {
	switch cfg.Prefs.Backend {
	case "redis":
		client, err := prefs.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		zap.L().Info("prefs: using redis", zap.String("addr", cfg.Redis.Addr))
		return prefs.NewRedisStore(client), client, nil
	case "memory":
		return prefs.NewMemoryStore(), nil, nil
	default:
		zap.L().Debug("prefs: using file", zap.String("path", cfg.Prefs.Path))
		return prefs.NewFileStore(cfg.Prefs.Path), nil, nil
	}
}

// hasToken reports whether token is one of the configured API tokens.
func hasToken(token string) bool {
	return token != "" && slices.Contains(cfg.Server.APITokens, token)
}
