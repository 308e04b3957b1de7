// Package app owns the long-lived collaborators of the API and assembles the
// HTTP handler from them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/cloudwego/eino/components/model"
	"go.opentelemetry.io/otel"

	"github.com/tjfontaine/lambda-api/internal/ai"
	"github.com/tjfontaine/lambda-api/internal/auth"
	"github.com/tjfontaine/lambda-api/internal/cache"
	"github.com/tjfontaine/lambda-api/internal/config"
	"github.com/tjfontaine/lambda-api/internal/llm"
	"github.com/tjfontaine/lambda-api/internal/ratelimit"
	"github.com/tjfontaine/lambda-api/internal/secrets"
	"github.com/tjfontaine/lambda-api/internal/server"
	"github.com/tjfontaine/lambda-api/internal/storage"
	"github.com/tjfontaine/lambda-api/internal/storage/memory"
	"github.com/tjfontaine/lambda-api/internal/storage/sqldb"
	"github.com/tjfontaine/lambda-api/internal/telemetry"
)

// ServiceName identifies the service in telemetry.
const ServiceName = "lambda-api"

// Version is reported in telemetry resources.
var Version = "dev"

// App holds every singleton the handlers share. Close releases what New
// opened.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     storage.Store
	Cache     *cache.Client
	Memory    *ai.Memory
	Limiter   *ratelimit.Limiter
	Secrets   *secrets.Cache
	Telemetry *telemetry.Provider
	Auth      *auth.Service
	AI        *ai.Service
	Server    *server.Server

	checkpoints  storage.CheckpointStore
	chatModel    model.ToolCallingChatModel
	limiterStore ratelimit.Store
	closers      []func(context.Context) error
}

// New builds the App. Without WithConfig or WithConfigFile the configuration
// is loaded from config.yaml and the environment.
func New(ctx context.Context, opts ...Option) (*App, error) {
	a := &App{}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if a.Config == nil {
		if err := WithConfigFile("config.yaml")(a); err != nil {
			return nil, err
		}
	}
	if a.Logger == nil {
		a.Logger = NewLogger(a.Config)
	}

	if err := a.init(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

// NewLogger returns the JSON logger for cfg: debug level in development,
// info otherwise.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Env == config.EnvDevelopment {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	if a.Telemetry == nil && cfg.TracingEnabled() {
		p, err := telemetry.Setup(ctx, telemetry.Options{
			ServiceName: ServiceName,
			Version:     Version,
			Logger:      a.Logger,
		})
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		a.Telemetry = p
		a.closers = append(a.closers, p.Shutdown)
	}

	authSecret, err := a.resolveAuthSecret(ctx)
	if err != nil {
		return err
	}

	if a.Store == nil {
		store, err := sqldb.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	}

	if a.Cache == nil && cfg.RedisURL != "" {
		c, err := cache.Connect(ctx, cfg.RedisURL, a.Logger)
		if err != nil {
			// Redis is optional; memory and counters fall back to in-process state.
			a.Logger.WarnContext(ctx, "redis unavailable, using in-process state", slog.String("error", err.Error()))
		} else {
			a.Cache = c
			a.closers = append(a.closers, func(context.Context) error { return c.Close() })
		}
	}

	if a.limiterStore == nil {
		if a.Cache != nil {
			a.limiterStore = ratelimit.NewRedisStore(a.Cache.Redis())
		} else {
			a.limiterStore = ratelimit.NewMemoryStore()
		}
	}
	a.Limiter = ratelimit.New(a.limiterStore, cfg.RateLimitMaxRequests, cfg.RateLimitWindow())

	a.Auth, err = auth.NewService(a.Store, authSecret)
	if err != nil {
		return fmt.Errorf("create auth service: %w", err)
	}

	if err := a.initAI(ctx); err != nil {
		return err
	}

	return a.initServer()
}

// resolveAuthSecret prefers AUTH_SECRET_ID, read through Secrets Manager,
// over BETTER_AUTH_SECRET.
func (a *App) resolveAuthSecret(ctx context.Context) (string, error) {
	cfg := a.Config
	if cfg.AuthSecretID == "" {
		return cfg.AuthSecret, nil
	}

	if a.Secrets == nil {
		c, err := secrets.NewFromRegion(ctx, cfg.AWSRegion, a.Logger)
		if err != nil {
			return "", err
		}
		a.Secrets = c
	}
	secret, err := a.Secrets.Get(ctx, cfg.AuthSecretID)
	if err != nil {
		return "", fmt.Errorf("resolve auth secret: %w", err)
	}
	return secret, nil
}

func (a *App) initAI(ctx context.Context) error {
	cfg := a.Config

	if a.chatModel == nil {
		cm, err := llm.New(ctx, llm.Config{
			APIKey:      cfg.ModelAPIKey(),
			BaseURL:     cfg.OpenAIBaseURL,
			ArkAPIKey:   cfg.ArkAPIKey,
			ArkModel:    cfg.ArkModel,
			ArkBaseURL:  cfg.ArkBaseURL,
			ArkRegion:   cfg.ArkRegion,
			Model:       cfg.LLMModel,
			Temperature: float32(cfg.LLMTemperature),
		})
		switch {
		case errors.Is(err, llm.ErrNoCredentials):
			a.Logger.WarnContext(ctx, "no model credentials configured, AI routes will fail")
			cm = llm.Unavailable{}
		case err != nil:
			return fmt.Errorf("create chat model: %w", err)
		}
		a.chatModel = cm
	}

	a.Memory = ai.NewMemory(a.Cache, a.Logger)
	a.checkpoints = ai.SelectCheckpoints(a.Cache, a.Store, memory.New())

	svc, err := ai.NewService(a.chatModel,
		ai.WithMemory(a.Memory),
		ai.WithCheckpoints(a.checkpoints),
		ai.WithExamples(a.Store),
		ai.WithModelName(cfg.LLMModel),
		ai.WithTracer(telemetry.NewTracer(cfg.LangsmithProject, cfg.TracingEnabled())),
		ai.WithLogger(a.Logger),
	)
	if err != nil {
		return fmt.Errorf("create ai service: %w", err)
	}
	a.AI = svc
	return nil
}

func (a *App) initServer() error {
	cfg := a.Config
	a.Server = server.New(server.Options{
		Port:       cfg.Port,
		Logger:     a.Logger,
		Production: cfg.IsProduction(),
		CORSOrigin: cfg.CORSOrigin,
		Tracing:    cfg.TracingEnabled(),
	})

	meter := otel.Meter(ServiceName)
	if a.Telemetry != nil {
		meter = a.Telemetry.Meter(ServiceName)
	}
	metrics, err := telemetry.NewHTTPMetrics(meter)
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}
	a.Server.Router.Use(metrics.Middleware)

	a.routes()
	return nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.Server.Handler()
}

// Close releases owned resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
