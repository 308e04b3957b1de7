// Package secrets reads values from AWS Secrets Manager with a short-lived
// in-process cache.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// CacheTTL is how long a fetched secret is served from memory.
const CacheTTL = 5 * time.Minute

// API is the subset of the Secrets Manager client the cache uses.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type entry struct {
	value   string
	fetched time.Time
}

// Cache fetches secrets by name or ARN.
type Cache struct {
	api    API
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides CacheTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache over api.
func New(api API, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		api:     api,
		logger:  logger,
		ttl:     CacheTTL,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromRegion creates a Cache with a Secrets Manager client built from the
// default AWS credential chain.
func NewFromRegion(ctx context.Context, region string, logger *slog.Logger, opts ...Option) (*Cache, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(secretsmanager.NewFromConfig(cfg), logger, opts...), nil
}

// Get returns the secret string for name. A cached value younger than the
// TTL is returned without calling Secrets Manager.
func (c *Cache) Get(ctx context.Context, name string) (string, error) {
	return c.get(ctx, name, true)
}

// GetFresh bypasses the cache and does not populate it.
func (c *Cache) GetFresh(ctx context.Context, name string) (string, error) {
	return c.get(ctx, name, false)
}

func (c *Cache) get(ctx context.Context, name string, useCache bool) (string, error) {
	if useCache {
		c.mu.Lock()
		e, ok := c.entries[name]
		c.mu.Unlock()
		if ok && c.now().Sub(e.fetched) < c.ttl {
			return e.value, nil
		}
	}

	out, err := c.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to retrieve secret",
			slog.String("secret_name", name),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}
	value := aws.ToString(out.SecretString)

	if useCache {
		c.mu.Lock()
		c.entries[name] = entry{value: value, fetched: c.now()}
		c.mu.Unlock()
	}
	return value, nil
}

// GetJSON decodes the secret string for name into dst.
func (c *Cache) GetJSON(ctx context.Context, name string, dst any) error {
	value, err := c.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return fmt.Errorf("decode secret %s: %w", name, err)
	}
	return nil
}
