// Package config loads and validates the service configuration from an
// optional YAML file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/lambda-api/internal/storage/dialect"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config is the validated service configuration. Keys match the environment
// variable names in lower case.
type Config struct {
	Env  string `koanf:"node_env" validate:"oneof=development staging production"`
	Port int    `koanf:"port" validate:"gt=0,lte=65535"`

	DatabaseURL string `koanf:"database_url" validate:"required,database_url"`

	AuthSecret   string `koanf:"better_auth_secret" validate:"omitempty,min=32"`
	AuthURL      string `koanf:"better_auth_url" validate:"required,url"`
	AuthSecretID string `koanf:"auth_secret_id"`

	AWSRegion    string `koanf:"aws_region" validate:"required"`
	AWSAccountID string `koanf:"aws_account_id"`

	RedisURL   string `koanf:"redis_url" validate:"omitempty,url"`
	CORSOrigin string `koanf:"cors_origin" validate:"omitempty,url"`

	RateLimitWindowMS    int `koanf:"rate_limit_window_ms" validate:"gt=0"`
	RateLimitMaxRequests int `koanf:"rate_limit_max_requests" validate:"gt=0"`

	CSRFSecret    string `koanf:"csrf_secret" validate:"omitempty,min=32"`
	SessionSecret string `koanf:"session_secret" validate:"omitempty,min=32"`

	OpenAIAPIKey    string  `koanf:"openai_api_key"`
	OpenAIBaseURL   string  `koanf:"openai_base_url" validate:"omitempty,url"`
	LangchainAPIKey string  `koanf:"langchain_api_key"`
	LLMModel        string  `koanf:"llm_model" validate:"required"`
	LLMTemperature  float64 `koanf:"llm_temperature" validate:"gte=0,lte=2"`

	ArkAPIKey  string `koanf:"ark_api_key"`
	ArkModel   string `koanf:"ark_model"`
	ArkBaseURL string `koanf:"ark_base_url" validate:"omitempty,url"`
	ArkRegion  string `koanf:"ark_region"`

	LangsmithAPIKey   string `koanf:"langsmith_api_key"`
	LangsmithProject  string `koanf:"langsmith_project"`
	LangsmithTracing  bool   `koanf:"langsmith_tracing"`
	LangsmithEndpoint string `koanf:"langsmith_endpoint" validate:"omitempty,url"`
}

var defaults = map[string]any{
	"node_env":                EnvDevelopment,
	"port":                    3000,
	"aws_region":              "us-east-1",
	"rate_limit_window_ms":    60000,
	"rate_limit_max_requests": 100,
	"llm_model":               "gpt-4o-mini",
	"llm_temperature":         0.7,
	"langsmith_project":       "dev",
	"langsmith_tracing":       true,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (when present) and then the environment, applies defaults
// and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	// Environment overrides file values
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) || k.String(key) == "" {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.substitute()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration, returning an error that names every
// offending variable.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
		return strings.ToUpper(name)
	})
	_ = v.RegisterValidation("database_url", validDatabaseURL)

	var problems []string
	if c.AuthSecret == "" && c.AuthSecretID == "" {
		problems = append(problems, "BETTER_AUTH_SECRET: required")
	}

	err := v.Struct(c)
	if err == nil {
		if len(problems) == 0 {
			return nil
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for _, fe := range verrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// validDatabaseURL accepts the postgres://, sqlite: and file: forms the
// storage layer can open.
func validDatabaseURL(fl validator.FieldLevel) bool {
	_, _, err := dialect.FromURL(fl.Field().String())
	return err == nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// RateLimitWindow returns the fixed rate limit window.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}

// ModelAPIKey returns the key used for the OpenAI-compatible model endpoint.
func (c *Config) ModelAPIKey() string {
	if c.OpenAIAPIKey != "" {
		return c.OpenAIAPIKey
	}
	return c.LangchainAPIKey
}

// ArkEnabled reports whether Ark model credentials are configured.
func (c *Config) ArkEnabled() bool {
	return c.ArkAPIKey != "" && c.ArkModel != ""
}

// TracingEnabled reports whether model calls should be traced.
func (c *Config) TracingEnabled() bool {
	return c.LangsmithTracing
}

// substitute expands ${VAR} references in secret-bearing values loaded from
// the config file.
func (c *Config) substitute() {
	for _, s := range []*string{
		&c.DatabaseURL,
		&c.AuthSecret,
		&c.RedisURL,
		&c.OpenAIAPIKey,
		&c.LangchainAPIKey,
		&c.ArkAPIKey,
		&c.LangsmithAPIKey,
	} {
		*s = substituteEnvVars(*s)
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
