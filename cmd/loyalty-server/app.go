package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	mem "loyaltykit/adapters/memory"
	jsonfileAdapter "loyaltykit/adapters/jsonfile"
	redisAdapter "loyaltykit/adapters/redis"
	sqlxAdapter "loyaltykit/adapters/sqlx"
	"loyaltykit/analytics"
	"loyaltykit/api/httpapi"
	"loyaltykit/config"
	"loyaltykit/core"
	"loyaltykit/engine"
	"loyaltykit/integrations/webhook"
	"loyaltykit/leaderboard"
	"loyaltykit/loyalty"
	"loyaltykit/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Hub       *realtime.Hub
	Board     *leaderboard.SkipList
	Service   *engine.LoyaltyService
	Analytics *analytics.AnalyticsService
	Handler   http.Handler
	Server    *http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	// .env is optional; real deployments set process env directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction {
		if err := config.LoadSecretsFromEnv(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideBoard() *leaderboard.SkipList {
	return leaderboard.NewSkipList()
}

func provideStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	return setupStorage(ctx, cfg)
}

func provideService(hub *realtime.Hub, board *leaderboard.SkipList, storage engine.Storage, cfg *config.Config) *engine.LoyaltyService {
	svc := loyalty.New(
		loyalty.WithRealtime(hub),
		loyalty.WithStorage(storage),
		loyalty.WithDispatchMode(engine.DispatchAsync),
	)

	// Keep the in-process leaderboard current with awarded XP.
	svc.Subscribe(core.EventXPAwarded, func(_ context.Context, e core.Event) {
		board.Update(e.CustomerID, e.CenterID, e.TotalXP)
	})

	if len(cfg.Webhooks.Endpoints) > 0 {
		sink := webhook.New(cfg.Webhooks.Endpoints)
		for _, typ := range []core.EventType{
			core.EventSyncRecorded,
			core.EventXPAwarded,
			core.EventAchievementUnlocked,
			core.EventLevelUp,
		} {
			svc.Subscribe(typ, func(_ context.Context, e core.Event) { sink.OnEvent(e) })
		}
	}

	return svc
}

func provideAnalytics(svc *engine.LoyaltyService) *analytics.AnalyticsService {
	as := analytics.NewAnalyticsService()
	hook := as.GetHook()
	for _, typ := range []core.EventType{
		core.EventSyncRecorded,
		core.EventXPAwarded,
		core.EventAchievementUnlocked,
		core.EventLevelUp,
	} {
		svc.Subscribe(typ, func(_ context.Context, e core.Event) { hook.OnEvent(e) })
	}
	return as
}

func provideHandler(svc *engine.LoyaltyService, hub *realtime.Hub, board *leaderboard.SkipList, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, hub, board, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		store, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		return store, nil
	case "file":
		return jsonfileAdapter.New(cfg.Storage.File.Path)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
