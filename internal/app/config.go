package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/notify"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage     string `default:"postgres" usage:"Storage backend: postgres or memory"`
	CatalogFile string `default:"" usage:"Catalog JSON loaded at startup when Storage is memory" flag:"catalog-file"`
	JWTSecret   string `usage:"HMAC secret for bearer tokens (STORE_JWT_SECRET)" flag:"jwt-secret"`
	Redis       RedisConfig
	Reviews     ReviewsConfig
	HTTP        HTTPConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig controls order confirmation delivery. An empty Addr logs
// confirmations instead of publishing them.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis address for order confirmations"`
	Password string `default:"" usage:"Redis password"`
	Channel  string `default:"orders.confirmed" usage:"Pub/sub channel for order confirmations"`
}

// ReviewsConfig bounds the optimistic retry loop of review mutations.
type ReviewsConfig struct {
	MaxAttempts   int           `default:"5" usage:"Attempts before a review write reports a conflict" flag:"reviews-max-attempts"`
	RetryInterval time.Duration `default:"10ms" usage:"Initial delay after a review version conflict" flag:"reviews-retry-interval"`
}

// HTTPConfig limits request handling.
type HTTPConfig struct {
	MaxBodyBytes int64 `default:"1048576" usage:"Maximum request body size" flag:"max-body-bytes"`
	MaxListLimit int   `default:"100" usage:"Maximum page size of the catalog listing" flag:"max-list-limit"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q: want %s or %s", c.Storage, StoragePostgres, StorageMemory)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT secret is required: set STORE_JWT_SECRET")
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = notify.DefaultChannel
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			c.Redis.Addr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
