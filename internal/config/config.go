package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	JWT      JWTConfig
	Admin    AdminConfig
	HTTP     HTTPConfig
	Billing  BillingConfig
}

type AppConfig struct {
	Name string
	Env  string // development, production
	Port string
}

type DatabaseConfig struct {
	Driver       string // postgres, sqlite
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	LogLevel     string // silent, error, warn, info
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration // access token lifetime
}

// AdminConfig seeds the first admin account at startup when both fields are set.
type AdminConfig struct {
	Email    string
	Password string
}

type HTTPConfig struct {
	CORSAllowOrigins []string
}

// BillingConfig tunes the billing run.
type BillingConfig struct {
	Workers                     int
	StoreTimeout                time.Duration
	RegeneratePolicy            string // replace, skip
	QualityPolicy               string // all, real_only
	MaxConsecutiveStoreFailures int
	LockBackend                 string // memory, database, redis
	LockTTL                     time.Duration
	PDFDir                      string // archive directory for rendered PDFs, empty = disabled
}

const devJWTSecret = "default_super_secret_key"

// Load reads configs/.env when present, then environment variables and an
// optional config.yaml. Environment keys are the upper-cased config keys with
// dots replaced by underscores, e.g. DB_HOST or BILLING_WORKERS.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("port"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("db.driver")),
			Host:         v.GetString("db.host"),
			Port:         v.GetInt("db.port"),
			User:         v.GetString("db.user"),
			Password:     v.GetString("db.password"),
			Name:         v.GetString("db.name"),
			SSLMode:      v.GetString("db.sslmode"),
			SQLitePath:   v.GetString("db.sqlite_path"),
			MaxOpenConns: v.GetInt("db.max_open_conns"),
			MaxIdleConns: v.GetInt("db.max_idle_conns"),
			LogLevel:     v.GetString("db.log_level"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			TTL:    v.GetDuration("jwt.ttl"),
		},
		Admin: AdminConfig{
			Email:    v.GetString("admin.email"),
			Password: v.GetString("admin.password"),
		},
		HTTP: HTTPConfig{
			CORSAllowOrigins: splitList(v.GetString("http.cors_allow_origins")),
		},
		Billing: BillingConfig{
			Workers:                     v.GetInt("billing.workers"),
			StoreTimeout:                v.GetDuration("billing.store_timeout"),
			RegeneratePolicy:            strings.ToLower(v.GetString("billing.regenerate_policy")),
			QualityPolicy:               strings.ToLower(v.GetString("billing.quality_policy")),
			MaxConsecutiveStoreFailures: v.GetInt("billing.max_consecutive_store_failures"),
			LockBackend:                 strings.ToLower(v.GetString("billing.lock_backend")),
			LockTTL:                     v.GetDuration("billing.lock_ttl"),
			PDFDir:                      v.GetString("billing.pdf_dir"),
		},
	}

	if cfg.JWT.Secret == "" && !cfg.IsProduction() {
		cfg.JWT.Secret = devJWTSecret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "energy-billing")
	v.SetDefault("app.env", "development")
	v.SetDefault("port", "8080")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "postgres")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.sqlite_path", "energy-billing.db")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.log_level", "warn")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.ttl", 12*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("http.cors_allow_origins", "http://localhost:5173,http://127.0.0.1:5173")

	v.SetDefault("billing.workers", 4)
	v.SetDefault("billing.store_timeout", 10*time.Second)
	v.SetDefault("billing.regenerate_policy", "replace")
	v.SetDefault("billing.quality_policy", "all")
	v.SetDefault("billing.max_consecutive_store_failures", 5)
	v.SetDefault("billing.lock_backend", "database")
	v.SetDefault("billing.lock_ttl", 15*time.Minute)
}

func (c *Config) validate() error {
	if c.IsProduction() && c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required in production")
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWT.TTL)
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	b := c.Billing
	if b.Workers <= 0 {
		return fmt.Errorf("BILLING_WORKERS must be positive, got %d", b.Workers)
	}
	if b.StoreTimeout <= 0 {
		return fmt.Errorf("BILLING_STORE_TIMEOUT must be positive, got %s", b.StoreTimeout)
	}
	if b.MaxConsecutiveStoreFailures <= 0 {
		return fmt.Errorf("BILLING_MAX_CONSECUTIVE_STORE_FAILURES must be positive, got %d", b.MaxConsecutiveStoreFailures)
	}
	switch b.RegeneratePolicy {
	case "replace", "skip":
	default:
		return fmt.Errorf("unknown BILLING_REGENERATE_POLICY %q", b.RegeneratePolicy)
	}
	switch b.QualityPolicy {
	case "all", "real_only":
	default:
		return fmt.Errorf("unknown BILLING_QUALITY_POLICY %q", b.QualityPolicy)
	}
	switch b.LockBackend {
	case "memory", "database", "redis":
	default:
		return fmt.Errorf("unknown BILLING_LOCK_BACKEND %q", b.LockBackend)
	}
	if b.LockTTL <= 0 {
		return fmt.Errorf("BILLING_LOCK_TTL must be positive, got %s", b.LockTTL)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the postgres connection URL.
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Addr returns the redis host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
