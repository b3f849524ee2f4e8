package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Feed kinds.
const (
	FeedPostgres = "postgres"
	FeedKafka    = "kafka"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product images" flag:"image-base-url"`
	Database     DatabaseConfig
	Auth         AuthConfig
	Redis        RedisConfig
	Pebble       PebbleConfig
	S3           S3Config
	Feed         FeedConfig
	Session      SessionConfig
	Consent      ConsentConfig
	Upload       UploadConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// DatabaseConfig tunes the PostgreSQL connection pool.
type DatabaseConfig struct {
	MaxConns          int32         `default:"10" usage:"Maximum pool connections" flag:"db-max-conns"`
	MinConns          int32         `default:"1" usage:"Minimum idle pool connections" flag:"db-min-conns"`
	MaxConnLifetime   time.Duration `default:"1h" usage:"Maximum connection lifetime" flag:"db-max-conn-lifetime"`
	MaxConnIdleTime   time.Duration `default:"30m" usage:"Maximum connection idle time" flag:"db-max-conn-idle"`
	HealthCheckPeriod time.Duration `default:"1m" usage:"Idle connection health check interval" flag:"db-health-check"`
}

// AuthConfig locates the GoTrue identity service.
type AuthConfig struct {
	URL       string        `usage:"GoTrue base URL (e.g. https://project.supabase.co)" flag:"auth-url"`
	AnonKey   string        `usage:"Public API key sent as apikey header" flag:"auth-anon-key"`
	JWTSecret string        `usage:"HMAC secret of access tokens, enables bearer restore" flag:"auth-jwt-secret"`
	Timeout   time.Duration `default:"10s" usage:"GoTrue request timeout" flag:"auth-timeout"`
}

// RedisConfig enables the shared session snapshot store.
type RedisConfig struct {
	URL    string `usage:"Redis URL (STOREFRONT_REDIS_URL or REDIS_URL); in-memory when empty" flag:"redis-url"`
	Prefix string `default:"storefront:" usage:"Key prefix" flag:"redis-prefix"`
}

// PebbleConfig locates the local consent store.
type PebbleConfig struct {
	Dir string `usage:"Pebble directory for consent decisions; in-memory when empty" flag:"pebble-dir"`
}

// S3Config enables document uploads.
type S3Config struct {
	Endpoint     string `usage:"S3 endpoint; uploads are disabled when empty" flag:"s3-endpoint"`
	Region       string `default:"us-east-1" usage:"S3 region" flag:"s3-region"`
	AccessKey    string `usage:"S3 access key" flag:"s3-access-key"`
	SecretKey    string `usage:"S3 secret key" flag:"s3-secret-key"`
	Bucket       string `default:"customer-documents" usage:"Upload bucket" flag:"s3-bucket"`
	PublicURL    string `usage:"Public base URL of uploaded objects" flag:"s3-public-url"`
	UsePathStyle bool   `default:"true" usage:"Use path-style addressing" flag:"s3-path-style"`
}

// FeedConfig selects the order insert change feed.
type FeedConfig struct {
	Kind       string        `default:"postgres" usage:"Change feed: postgres or kafka" flag:"feed"`
	Channel    string        `default:"order_inserts" usage:"Postgres NOTIFY channel" flag:"feed-channel"`
	RetryDelay time.Duration `default:"1s" usage:"Delay between listener reconnects" flag:"feed-retry-delay"`
	Brokers    []string      `usage:"Kafka brokers" flag:"feed-brokers"`
	Topic      string        `default:"order-inserts" usage:"Kafka topic" flag:"feed-topic"`
	Group      string        `default:"storefront" usage:"Kafka consumer group" flag:"feed-group"`
}

// SessionConfig controls browser sessions.
type SessionConfig struct {
	Cookie     string        `default:"sf_session" usage:"Session cookie name" flag:"session-cookie"`
	Secure     bool          `default:"false" usage:"Mark the session cookie Secure" flag:"session-secure"`
	TTL        time.Duration `default:"30m" usage:"Idle session lifetime" flag:"session-ttl"`
	Janitor    time.Duration `default:"1m" usage:"Idle session sweep interval" flag:"session-janitor"`
	FeedBuffer int           `default:"16" usage:"Order events buffered per session" flag:"session-feed-buffer"`
}

// ConsentConfig controls the browser cookie consent is stored under.
type ConsentConfig struct {
	Cookie    string        `default:"sf_browser" usage:"Browser id cookie name" flag:"consent-cookie"`
	Retention time.Duration `default:"8760h" usage:"Lifetime of a consent decision" flag:"consent-retention"`
}

// UploadConfig bounds document uploads.
type UploadConfig struct {
	MaxSize int64 `default:"10485760" usage:"Maximum upload size in bytes" flag:"upload-max-size"`
}

// RateLimitConfig controls the rate limiters. Max applies per live session
// or per IP, Login per IP on the login route, Sessions to new sessions per IP.
type RateLimitConfig struct {
	Max      int           `default:"100" usage:"Max requests per window"`
	Login    int           `default:"10" usage:"Max login attempts per IP per window" flag:"rate-limit-login"`
	Sessions int           `default:"60" usage:"Max new sessions per IP per window" flag:"rate-limit-sessions"`
	Window   time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (session cookie)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.URL == "" {
		return errors.New("auth URL is required: set STOREFRONT_AUTH_URL")
	}
	switch c.Feed.Kind = strings.ToLower(c.Feed.Kind); c.Feed.Kind {
	case FeedPostgres:
	case FeedKafka:
		if len(c.Feed.Brokers) == 0 {
			return errors.New("kafka feed requires brokers")
		}
	default:
		return errors.Errorf("unknown feed %q", c.Feed.Kind)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
