package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/centsify/centsify/internal/ai"
	"github.com/centsify/centsify/internal/assistant"
	"github.com/centsify/centsify/internal/auth"
	"github.com/centsify/centsify/internal/curriculum"
	"github.com/centsify/centsify/internal/platform/cache"
	"github.com/centsify/centsify/internal/platform/config"
	"github.com/centsify/centsify/internal/platform/database"
	"github.com/centsify/centsify/internal/progress"
	"github.com/centsify/centsify/internal/quiz"
	"github.com/centsify/centsify/internal/storage"
	"github.com/centsify/centsify/internal/trading"
	"github.com/centsify/centsify/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	handler, cleanup, err := newHandler(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "storage", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// closers runs shutdown hooks in reverse order.
type closers []func()

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// newHandler wires every service from cfg. The returned cleanup releases
// connections opened along the way.
func newHandler(ctx context.Context, cfg *config.Config) (http.Handler, func(), error) {
	var cleanup closers
	fail := func(err error) (http.Handler, func(), error) {
		cleanup.close()
		return nil, func() {}, err
	}

	content, err := curriculum.Load(cfg.CurriculumPath)
	if err != nil {
		return fail(fmt.Errorf("loading curriculum: %w", err))
	}
	if orphans := content.Bank.Orphans(); len(orphans) > 0 {
		slog.Warn("quiz sets without a roadmap topic", "keys", orphans)
	}
	slog.Info("curriculum loaded", "topics", content.Catalog.Len())

	checks := make(map[string]web.HealthChecker)

	var redisCache *cache.Cache
	if cfg.Cache.URL != "" {
		redisCache, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return fail(fmt.Errorf("connecting to cache: %w", err))
		}
		cleanup = append(cleanup, func() { redisCache.Close() })
		checks["cache"] = redisCache
	}

	var db *database.DB
	if cfg.Storage.Backend == "postgres" {
		db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return fail(fmt.Errorf("connecting to database: %w", err))
		}
		cleanup = append(cleanup, db.Close)
		checks["database"] = db
	}

	kv, err := newStore(ctx, cfg, redisCache, db)
	if err != nil {
		return fail(err)
	}

	var events quiz.EventLogger = quiz.NopEventLogger{}
	if db != nil && cfg.Quiz.RecordEvents {
		pg := quiz.NewPostgresEventLogger(db.Pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("creating quiz event schema: %w", err))
		}
		events = pg
	}

	engine := quiz.NewEngine(quiz.EngineConfig{
		Bank:          content.Bank,
		FeedbackDelay: cfg.Quiz.FeedbackDelay,
		Events:        events,
	})

	srv := web.New(web.Deps{
		Auth: auth.NewService(kv, auth.Config{
			SessionTTL: cfg.Auth.SessionTTL,
			BcryptCost: cfg.Auth.BcryptCost,
		}),
		Content:        content,
		Progress:       progress.NewDirectory(content.Catalog, kv),
		Quiz:           engine,
		Trader:         trading.NewTrader(kv, newQuotes(cfg, redisCache), cfg.Trading.StartingCashCents),
		Assistant:      newAssistant(cfg),
		Checks:         checks,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	return srv.Handler(), cleanup.close, nil
}

func newStore(ctx context.Context, cfg *config.Config, redisCache *cache.Cache, db *database.DB) (storage.KV, error) {
	switch cfg.Storage.Backend {
	case "file":
		kv, err := storage.NewFileStore(cfg.Storage.FilePath)
		if err != nil {
			return nil, fmt.Errorf("opening file store: %w", err)
		}
		return kv, nil
	case "redis":
		if redisCache == nil {
			return nil, fmt.Errorf("redis backend requires CENTSIFY_CACHE_URL")
		}
		return storage.NewRedisStore(redisCache.Client), nil
	case "postgres":
		kv, err := storage.NewPostgresStore(ctx, db.Pool)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return kv, nil
	default:
		slog.Warn("using in-memory storage; progress is lost on restart")
		return storage.NewMemoryStore(), nil
	}
}

// sampleQuotes back paper trading when no market data key is configured.
var sampleQuotes = trading.StaticQuotes{
	"AAPL":  19_000,
	"MSFT":  41_500,
	"GOOGL": 17_000,
	"AMZN":  18_500,
	"VOO":   50_000,
}

func newQuotes(cfg *config.Config, redisCache *cache.Cache) trading.QuoteProvider {
	if cfg.Market.AlphaVantageKey == "" {
		slog.Warn("no market data key; using sample quotes")
		return sampleQuotes
	}
	var quotes trading.QuoteProvider = trading.NewAlphaVantage(cfg.Market.AlphaVantageKey)
	if redisCache != nil {
		quotes = trading.NewCachedQuotes(quotes, redisCache, cfg.Market.QuoteTTL)
	}
	return quotes
}

func newAssistant(cfg *config.Config) *assistant.Assistant {
	router := ai.NewRouter()
	if cfg.HasAIProvider() {
		router.Register("google", ai.NewGoogleProvider(cfg.AI.GoogleAPIKey, ai.WithGoogleModel(cfg.AI.GoogleModel)))
	} else {
		slog.Warn("no AI provider configured; the assistant will reply with a fallback")
	}

	acfg := assistant.Config{
		AI:     router,
		Budget: ai.NewBudget(cfg.AI.TokenBudget),
	}
	if cfg.Speech.AssemblyAIKey != "" {
		acfg.Transcriber = assistant.NewAssemblyAI(cfg.Speech.AssemblyAIKey)
	}
	if cfg.Speech.VoiceRSSKey != "" {
		acfg.Synthesizer = assistant.NewVoiceRSS(cfg.Speech.VoiceRSSKey, cfg.Speech.VoiceRSSLanguage)
	}
	return assistant.New(acfg)
}
