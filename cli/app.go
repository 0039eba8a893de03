// Application wiring for CLI commands.
//
// Information Hiding:
// - Provider chain construction from settings
// - Search backend selection and decoration
// - Storage backend selection and lifetime

package cli

import (
	"context"
	"fmt"

	"github.com/phuslu/log"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/richinex/querygate/agent"
	"github.com/richinex/querygate/config"
	"github.com/richinex/querygate/engine"
	"github.com/richinex/querygate/failover"
	"github.com/richinex/querygate/llm"
	"github.com/richinex/querygate/retrieval"
	"github.com/richinex/querygate/storage"
	"github.com/richinex/querygate/tools"
)

// App holds the wired engine and the backends it needs.
type App struct {
	Settings config.Settings
	Engine   *engine.Engine
	Chain    *failover.Controller

	History   storage.ConversationStorage
	Turns     storage.TurnRecorder
	Documents storage.DocumentStore

	closers []func()
}

// Build wires every component named by settings. The caller must Close
// the returned App.
func Build(ctx context.Context, settings config.Settings) (*App, error) {
	app := &App{Settings: settings}

	chain, err := BuildChain(settings)
	if err != nil {
		return nil, err
	}
	app.Chain = chain

	if err := app.openStorage(ctx); err != nil {
		app.Close()
		return nil, err
	}

	var cache *redis.Client
	if settings.Storage.RedisAddr != "" {
		cache, err = storage.NewRedisClient(ctx, settings.Storage.RedisAddr, settings.Storage.RedisPassword)
		if err != nil {
			// The search cache is optional.
			log.Warn().Err(err).Msg("search cache disabled")
			cache = nil
		} else {
			app.closers = append(app.closers, func() { _ = cache.Close() })
		}
	}

	registry, err := BuildSearch(settings.Search, cache)
	if err != nil {
		app.Close()
		return nil, err
	}

	ec := settings.Engine
	loop := agent.NewBuilder(chain).
		SystemPrompt(ec.SystemPrompt).
		MaxIterations(ec.MaxIterations).
		ClosingInstruction(ec.ClosingInstruction).
		Tools(registry).
		ToolConfig(tools.ToolConfig{
			TimeoutSecs: settings.Search.TimeoutSecs,
			MaxRetries:  settings.Search.MaxRetries,
		}).
		Build()

	opts := []engine.Option{
		engine.WithRanker(retrieval.NewRanker(retrieval.RankerOptions{
			TitleBonus:     ec.TitleBonus,
			TitlePrefixLen: ec.TitlePrefixLen,
			MinTokenLen:    ec.MinTokenLen,
		})),
		engine.WithAssembler(retrieval.NewAssembler(retrieval.AssemblerOptions{
			CharsPerToken: ec.CharsPerToken,
			MaxDocuments:  ec.MaxDocuments,
		})),
	}
	if app.Turns != nil {
		opts = append(opts, engine.WithRecorder(app.Turns))
	}
	if ec.Deadline.Duration > 0 {
		opts = append(opts, engine.WithDeadline(ec.Deadline.Duration))
	}
	app.Engine = engine.New(loop, chain, opts...)

	log.Info().
		Int("providers", len(chain.Entries())).
		Str("search", settings.Search.Backend).
		Dur("deadline", app.Engine.Deadline()).
		Msg("engine ready")
	return app, nil
}

// Close releases every backend opened by Build, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// BuildChain creates the fallback controller from the configured providers.
func BuildChain(settings config.Settings) (*failover.Controller, error) {
	entries := make([]failover.Entry, 0, len(settings.Providers))
	for _, pc := range settings.Providers {
		provider, err := buildProvider(pc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name(), err)
		}
		entries = append(entries, failover.Entry{
			ID:       pc.Name(),
			Provider: provider,
			Timeout:  pc.Timeout.Duration,
		})
	}

	var breaker *failover.Breaker
	if settings.Breaker.Threshold > 0 {
		breaker = failover.NewBreaker(settings.Breaker.Threshold, settings.Breaker.Cooldown.Duration)
	}
	return failover.New(entries, breaker)
}

func buildProvider(pc config.ProviderConfig) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(pc.Type)
	if err != nil {
		return nil, err
	}
	b := llm.NewProviderBuilder(providerType).
		Model(pc.Model).
		BaseURL(pc.BaseURL).
		MaxTokens(pc.MaxTokens)
	if pc.Temperature != nil {
		b = b.Temperature(float32(*pc.Temperature))
	}
	return b.FromEnv()
}

// BuildSearch creates the tool registry for the configured search backend.
// The "none" backend yields an empty registry, so web search requests are
// answered without tools. cache may be nil.
func BuildSearch(cfg config.SearchConfig, cache *redis.Client) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	var searcher tools.Searcher
	switch cfg.Backend {
	case "none":
		return registry, nil
	case "api":
		searcher = tools.NewAPISearcher(cfg.Endpoint, cfg.MaxResults)
	case "duckduckgo", "":
		searcher = tools.NewDuckDuckGoSearcher()
	default:
		return nil, fmt.Errorf("unknown search backend %q", cfg.Backend)
	}

	if cfg.Rate > 0 {
		searcher = tools.NewRateLimitedSearcher(searcher, cfg.Rate)
	}
	if cache != nil {
		searcher = tools.NewCachedSearcher(searcher, cache, cfg.CacheTTL.Duration)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = tools.DefaultMaxResults
	}
	if err := registry.Register(tools.NewWebSearchTool(searcher, maxResults)); err != nil {
		return nil, fmt.Errorf("failed to register web search: %w", err)
	}
	return registry, nil
}

// openStorage selects backends. SQLite holds history, turns and documents
// unless Postgres (documents) or Mongo (turns) are configured.
func (a *App) openStorage(ctx context.Context) error {
	sc := a.Settings.Storage

	if sc.SqlitePath != "" {
		db, err := storage.OpenSqlite(sc.SqlitePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.History, a.Turns, a.Documents = db, db, db
	} else {
		mem := storage.NewInMemoryStorage()
		a.History, a.Turns, a.Documents = mem, mem, mem
	}

	if sc.PostgresDSN != "" {
		pg, err := storage.OpenPostgres(ctx, sc.PostgresDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
		a.Documents = pg
	}

	if sc.MongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(sc.MongoURI))
		if err != nil {
			return fmt.Errorf("mongo connect: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		if err := client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongo ping: %w", err)
		}
		a.Turns = storage.NewMongoTurns(client.Database(sc.MongoDB))
	}
	return nil
}
