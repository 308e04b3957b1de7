package app

import (
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"

	"github.com/tjfontaine/lambda-api/internal/cache"
	"github.com/tjfontaine/lambda-api/internal/config"
	"github.com/tjfontaine/lambda-api/internal/ratelimit"
	"github.com/tjfontaine/lambda-api/internal/secrets"
	"github.com/tjfontaine/lambda-api/internal/storage"
	"github.com/tjfontaine/lambda-api/internal/telemetry"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithConfigFile loads configuration from path and the environment.
func WithConfigFile(path string) Option {
	return func(a *App) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a.Config = cfg
		return nil
	}
}

// WithConfig uses an already validated configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		a.Config = cfg
		return nil
	}
}

// WithLogger overrides the logger derived from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.Logger = logger
		return nil
	}
}

// WithStore uses store instead of opening DATABASE_URL. The caller keeps
// ownership of store.
func WithStore(store storage.Store) Option {
	return func(a *App) error {
		a.Store = store
		return nil
	}
}

// WithCache uses c instead of connecting to REDIS_URL. The caller keeps
// ownership of c.
func WithCache(c *cache.Client) Option {
	return func(a *App) error {
		a.Cache = c
		return nil
	}
}

// WithChatModel uses cm instead of building one from the model settings.
func WithChatModel(cm model.ToolCallingChatModel) Option {
	return func(a *App) error {
		a.chatModel = cm
		return nil
	}
}

// WithRateLimitStore overrides the counter store. By default counters live
// in Redis when a cache is configured and in memory otherwise.
func WithRateLimitStore(store ratelimit.Store) Option {
	return func(a *App) error {
		a.limiterStore = store
		return nil
	}
}

// WithSecrets uses c to resolve AUTH_SECRET_ID.
func WithSecrets(c *secrets.Cache) Option {
	return func(a *App) error {
		a.Secrets = c
		return nil
	}
}

// WithTelemetry uses an installed telemetry provider. The caller keeps
// ownership of p.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(a *App) error {
		a.Telemetry = p
		return nil
	}
}
