package auth

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// DefaultRefreshTokenTTL is used when no refresh lifetime is configured
const DefaultRefreshTokenTTL = 7 * 24 * time.Hour

// EnvConfig is the Config implementation read from the environment
type EnvConfig struct {
	SigningKey         string        `env:"AUTH_SIGNING_KEY"`
	SigningMethod      string        `env:"AUTH_SIGNING_METHOD" envDefault:"HS256"`
	Issuer             string        `env:"AUTH_ISSUER"`
	Audience           []string      `env:"AUTH_AUDIENCE" envSeparator:","`
	AccessTokenMinutes int           `env:"AUTH_ACCESS_TOKEN_MINUTES" envDefault:"15"`
	RefreshTokenTTL    time.Duration `env:"AUTH_REFRESH_TOKEN_TTL" envDefault:"168h"`
	ContextKey         string        `env:"AUTH_CONTEXT_KEY" envDefault:"user"`
	TokenLookup        string        `env:"AUTH_TOKEN_LOOKUP" envDefault:"header:Authorization"`
	AuthScheme         string        `env:"AUTH_SCHEME" envDefault:"Bearer"`
	DefaultRole        string        `env:"AUTH_DEFAULT_ROLE" envDefault:"Customer"`

	HTTPAddr     string            `env:"HTTP_ADDR" envDefault:":8080"`
	Persistence  PersistenceConfig `envPrefix:"DATABASE_"`
	LogLevel     string            `env:"LOG_LEVEL" envDefault:"info"`
	SeedDefaults bool              `env:"SEED_DEFAULTS" envDefault:"true"`
}

// PersistenceConfig is read from DATABASE_* variables and satisfies the
// persistence client configuration.
type PersistenceConfig struct {
	DSN            string        `env:"DSN" envDefault:"file::memory:?cache=shared"`
	Driver         string        `env:"DRIVER" envDefault:"sqlite"`
	Server         string        `env:"SERVER" envDefault:"localhost"`
	Debug          bool          `env:"DEBUG"`
	PingTimeout    time.Duration `env:"PING_TIMEOUT" envDefault:"5s"`
	OtelIdentifier string        `env:"OTEL_IDENTIFIER" envDefault:"market-auth"`
}

func (p PersistenceConfig) GetDSN() string                { return p.DSN }
func (p PersistenceConfig) GetDriver() string             { return p.Driver }
func (p PersistenceConfig) GetServer() string             { return p.Server }
func (p PersistenceConfig) GetDebug() bool                { return p.Debug }
func (p PersistenceConfig) GetPingTimeout() time.Duration { return p.PingTimeout }
func (p PersistenceConfig) GetOtelIdentifier() string     { return p.OtelIdentifier }

var _ Config = (*EnvConfig)(nil)

// LoadConfig reads EnvConfig from the environment and validates it.
func LoadConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "failed to parse environment").
			WithTextCode(TextCodeInvalidConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the service must not start with.
func (c EnvConfig) Validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return ErrMissingSigningKey
	}

	err := validation.ValidateStruct(&c,
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.Audience, validation.Required),
		validation.Field(&c.SigningMethod, validation.Required, validation.In(jwt.SigningMethodHS256.Alg())),
		validation.Field(&c.AccessTokenMinutes, validation.Required, validation.Min(1)),
		validation.Field(&c.RefreshTokenTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.DefaultRole, validation.Required),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, ErrInvalidConfig.Message).
			WithTextCode(TextCodeInvalidConfig).
			WithMetadata(map[string]any{"fields": err.Error()})
	}

	return nil
}

func (c EnvConfig) GetSigningKey() string {
	return c.SigningKey
}

func (c EnvConfig) GetSigningMethod() string {
	return c.SigningMethod
}

func (c EnvConfig) GetContextKey() string {
	return c.ContextKey
}

func (c EnvConfig) GetTokenExpiration() int {
	return c.AccessTokenMinutes
}

func (c EnvConfig) GetRefreshTokenExpiration() time.Duration {
	return c.RefreshTokenTTL
}

func (c EnvConfig) GetTokenLookup() string {
	return c.TokenLookup
}

func (c EnvConfig) GetAuthScheme() string {
	return c.AuthScheme
}

func (c EnvConfig) GetIssuer() string {
	return c.Issuer
}

func (c EnvConfig) GetAudience() []string {
	return c.Audience
}

func (c EnvConfig) GetDefaultRole() string {
	return c.DefaultRole
}
