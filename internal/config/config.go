// Package config loads service configuration.
//
// Precedence, lowest to highest: built-in defaults, an optional YAML file,
// variables from a .env file, then the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Env       string          `yaml:"env"`
	Port      int             `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	ClientURL string          `yaml:"client_url"`
	Store     StoreConfig     `yaml:"store"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cloud     CloudConfig     `yaml:"cloudinary"`
	Payment   PaymentConfig   `yaml:"payment"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Upload    UploadConfig    `yaml:"upload"`
}

type StoreConfig struct {
	// Driver is "mongo" or "memory".
	Driver string `yaml:"driver"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Transactions   bool          `yaml:"transactions"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type AuthConfig struct {
	AccessSecret  string        `yaml:"access_secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	ResetTTL      time.Duration `yaml:"reset_ttl"`
	CookieSecure  bool          `yaml:"cookie_secure"`
}

type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled"`
	RedisURL    string        `yaml:"redis_url"`
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

type CloudConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Folder    string `yaml:"folder"`
}

type PaymentConfig struct {
	StripeSecretKey      string `yaml:"stripe_secret_key"`
	StripePublishableKey string `yaml:"stripe_publishable_key"`
	Currency             string `yaml:"currency"`
	VerifyOrders         bool   `yaml:"verify_orders"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type UploadConfig struct {
	TempDir  string `yaml:"temp_dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Env:       "development",
		Port:      8080,
		LogLevel:  "info",
		ClientURL: "http://localhost:5173",
		Store:     StoreConfig{Driver: "mongo"},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "shopnest",
			ConnectTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			ResetTTL:   15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			MaxAttempts: 5,
			Window:      15 * time.Minute,
		},
		Cloud:     CloudConfig{Folder: "shopnest"},
		Payment:   PaymentConfig{Currency: "inr", VerifyOrders: true},
		SMTP:      SMTPConfig{Port: 587},
		Telemetry: TelemetryConfig{Exporter: "stdout", ServiceName: "shopnest-api"},
		Upload:    UploadConfig{TempDir: os.TempDir(), MaxBytes: 8 << 20},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), .env and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}
	cfg.applyDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML file onto c.
func (c *Config) LoadFile(path string) error {
	clean := filepath.Clean(path)
	switch filepath.Ext(clean) {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("unsupported config file %s: %w", clean, ErrInvalid)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", clean, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %v: %w", clean, err, ErrInvalid)
	}
	return nil
}

// LoadEnv overlays environment variables onto c.
func (c *Config) LoadEnv() error {
	setString(&c.Env, "APP_ENV")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.ClientURL, "CLIENT_URL")
	setString(&c.Store.Driver, "STORE_DRIVER")

	setString(&c.Mongo.URI, "MONGO_URL")
	setString(&c.Mongo.URI, "MONGO_PUBLIC_URL")
	setString(&c.Mongo.Database, "MONGO_DB")

	setString(&c.Auth.AccessSecret, "JWT_ACCESS_SECRET")
	setString(&c.Auth.RefreshSecret, "JWT_REFRESH_SECRET")

	setString(&c.RateLimit.RedisURL, "REDIS_URL")

	setString(&c.Cloud.CloudName, "CLOUDINARY_CLOUD_NAME")
	setString(&c.Cloud.APIKey, "CLOUDINARY_API_KEY")
	setString(&c.Cloud.APISecret, "CLOUDINARY_API_SECRET")
	setString(&c.Cloud.Folder, "CLOUDINARY_FOLDER")

	setString(&c.Payment.StripeSecretKey, "STRIPE_SECRET_KEY")
	setString(&c.Payment.StripePublishableKey, "STRIPE_API_KEY")
	setString(&c.Payment.Currency, "STRIPE_CURRENCY")

	setString(&c.SMTP.Host, "SMTP_HOST")
	setString(&c.SMTP.Username, "SMTP_USER")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setString(&c.SMTP.From, "SMTP_FROM")

	setString(&c.Telemetry.Exporter, "OTEL_EXPORTER")
	setString(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Telemetry.ServiceName, "OTEL_SERVICE_NAME")

	setString(&c.Upload.TempDir, "UPLOAD_TMP_DIR")

	var errs []error
	errs = append(errs,
		setInt(&c.Port, "PORT"),
		setInt(&c.SMTP.Port, "SMTP_PORT"),
		setInt(&c.RateLimit.MaxAttempts, "LOGIN_MAX_ATTEMPTS"),
		setBool(&c.Mongo.Transactions, "MONGO_TRANSACTIONS"),
		setBool(&c.Auth.CookieSecure, "COOKIE_SECURE"),
		setBool(&c.RateLimit.Enabled, "LOGIN_RATE_LIMIT"),
		setBool(&c.Payment.VerifyOrders, "STRIPE_VERIFY_ORDERS"),
		setBool(&c.Telemetry.Enabled, "OTEL_ENABLED"),
		setDuration(&c.Mongo.ConnectTimeout, "MONGO_CONNECT_TIMEOUT"),
		setDuration(&c.Auth.AccessTTL, "ACCESS_TOKEN_TTL"),
		setDuration(&c.Auth.RefreshTTL, "REFRESH_TOKEN_TTL"),
		setDuration(&c.Auth.ResetTTL, "RESET_TOKEN_TTL"),
		setDuration(&c.RateLimit.Window, "LOGIN_WINDOW"),
	)
	return errors.Join(errs...)
}

func (c *Config) applyDevDefaults() {
	if c.Env != "development" {
		return
	}
	if c.Auth.AccessSecret == "" {
		c.Auth.AccessSecret = "dev-access-secret"
	}
	if c.Auth.RefreshSecret == "" {
		c.Auth.RefreshSecret = "dev-refresh-secret"
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: %w", c.Port, ErrInvalid)
	}
	switch c.Store.Driver {
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return fmt.Errorf("mongo uri and database are required: %w", ErrInvalid)
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver %q: %w", c.Store.Driver, ErrInvalid)
	}
	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return fmt.Errorf("jwt access and refresh secrets are required: %w", ErrInvalid)
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 || c.Auth.ResetTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive: %w", ErrInvalid)
	}
	if c.RateLimit.Enabled && (c.RateLimit.MaxAttempts < 1 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit needs positive attempts and window: %w", ErrInvalid)
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "stdout":
		case "otlp":
			if c.Telemetry.Endpoint == "" {
				return fmt.Errorf("otlp exporter needs an endpoint: %w", ErrInvalid)
			}
		default:
			return fmt.Errorf("unknown telemetry exporter %q: %w", c.Telemetry.Exporter, ErrInvalid)
		}
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return ":" + strconv.Itoa(c.Port) }

func (c *Config) IsProduction() bool { return c.Env == "production" }

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s=%q is not an integer: %w", key, v, ErrInvalid)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s=%q is not a boolean: %w", key, v, ErrInvalid)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s=%q is not a duration: %w", key, v, ErrInvalid)
	}
	*dst = d
	return nil
}
