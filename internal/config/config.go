package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go-ops-dashboard/internal/money"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Currency CurrencyConfig
	Redis    RedisConfig
	Cache    CacheConfig
	AI       AIConfig
	HTTP     HTTPConfig
	Uploads  UploadsConfig
	Web      WebConfig
}

type AppConfig struct {
	Name    string
	Env     string
	Port    string
	BaseURL string
}

type DatabaseConfig struct {
	Driver         string // mysql, sqlite
	DSN            string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnectRetries int
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type AuthConfig struct {
	AllowRegistration bool
	AdminUsername     string
	AdminPassword     string
}

type CurrencyConfig struct {
	Base string
}

// RedisConfig is optional; an empty Addr keeps the cache in-process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CacheConfig struct {
	TTL time.Duration
}

type AIConfig struct {
	APIKey string
	Model  string
}

type HTTPConfig struct {
	CORSAllowOrigins []string
}

type UploadsConfig struct {
	Dir string
}

type WebConfig struct {
	Dir string
}

// IsProduction reports whether the app runs in production mode
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Load reads configuration from .env, config.toml and OPS_ prefixed
// environment variables, in increasing order of priority.
func Load() (*Config, error) {
	// .env only seeds the process environment; absence is fine
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("OPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ops-dashboard")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.base_url", "http://localhost:8080")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.connect_retries", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", 24*time.Hour)

	v.SetDefault("auth.allow_registration", false)
	v.SetDefault("auth.admin_username", "")
	v.SetDefault("auth.admin_password", "")

	v.SetDefault("currency.base", string(money.USD))

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.ttl", time.Minute)

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gemini-2.0-flash-001")

	v.SetDefault("http.cors_allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("uploads.dir", "./uploads")
	v.SetDefault("web.dir", "./web")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Port:    v.GetString("app.port"),
			BaseURL: strings.TrimRight(v.GetString("app.base_url"), "/"),
		},
		Database: DatabaseConfig{
			Driver:         strings.ToLower(v.GetString("database.driver")),
			DSN:            v.GetString("database.dsn"),
			MaxOpenConns:   v.GetInt("database.max_open_conns"),
			MaxIdleConns:   v.GetInt("database.max_idle_conns"),
			ConnectRetries: v.GetInt("database.connect_retries"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetDuration("jwt.expiration"),
		},
		Auth: AuthConfig{
			AllowRegistration: v.GetBool("auth.allow_registration"),
			AdminUsername:     v.GetString("auth.admin_username"),
			AdminPassword:     v.GetString("auth.admin_password"),
		},
		Currency: CurrencyConfig{
			Base: strings.ToUpper(v.GetString("currency.base")),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Cache: CacheConfig{
			TTL: v.GetDuration("cache.ttl"),
		},
		AI: AIConfig{
			APIKey: v.GetString("ai.api_key"),
			Model:  v.GetString("ai.model"),
		},
		HTTP: HTTPConfig{
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
		Uploads: UploadsConfig{
			Dir: v.GetString("uploads.dir"),
		},
		Web: WebConfig{
			Dir: v.GetString("web.dir"),
		},
	}
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required (OPS_DATABASE_DSN)")
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		if c.IsProduction() {
			return errors.New("jwt.secret is required in production")
		}
	} else if c.IsProduction() && len(c.JWT.Secret) < 32 {
		return errors.New("jwt.secret must be at least 32 characters in production")
	}
	if c.JWT.Expiration <= 0 {
		return errors.New("jwt.expiration must be positive")
	}
	if !money.IsSupported(c.Currency.Base) {
		return fmt.Errorf("unsupported base currency %q", c.Currency.Base)
	}
	return nil
}
