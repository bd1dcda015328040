// Package config loads service configuration from config.yaml, a .env file
// and PAYROLL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/warp/payroll-engine/payroll"
)

const EnvPrefix = "PAYROLL"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Payroll   PayrollConfig
	Scheduler SchedulerConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

type AppConfig struct {
	Name string
	Env  string // development, production
	Port string
}

type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	CORSAllowOrigins []string
}

// DatabaseConfig selects the salary store.
type DatabaseConfig struct {
	Driver string // memory, sqlite, postgres
	Path   string // sqlite file
	DSN    string // postgres connection string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type AuthConfig struct {
	// Disabled injects a wildcard development actor. Refused in production.
	Disabled  bool
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

type PayrollConfig struct {
	CommissionRate   string // decimal, per ton
	SeniorBaseAmount string // decimal, per period
	Workers          int
	Timezone         string // IANA name; period boundaries are computed in it
}

type SchedulerConfig struct {
	Enabled         bool
	Interval        time.Duration
	IncludePrevious bool // also refresh the previous half-month
}

type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with PAYROLL_ prefix (e.g., PAYROLL_DATABASE_DRIVER)
// 2. .env in the working directory
// 3. config.yaml in paths (default: ".", "./config")
// 4. Built-in defaults
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("database.driver")),
			Path:   v.GetString("database.path"),
			DSN:    v.GetString("database.dsn"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		Auth: AuthConfig{
			Disabled:  v.GetBool("auth.disabled"),
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
			TokenTTL:  v.GetDuration("auth.token_ttl"),
		},
		Payroll: PayrollConfig{
			CommissionRate:   v.GetString("payroll.commission_rate"),
			SeniorBaseAmount: v.GetString("payroll.senior_base_amount"),
			Workers:          v.GetInt("payroll.workers"),
			Timezone:         v.GetString("payroll.timezone"),
		},
		Scheduler: SchedulerConfig{
			Enabled:         v.GetBool("scheduler.enabled"),
			Interval:        v.GetDuration("scheduler.interval"),
			IncludePrevious: v.GetBool("scheduler.include_previous"),
		},
		Metrics: MetricsConfig{
			Enabled:   v.GetBool("metrics.enabled"),
			Namespace: v.GetString("metrics.namespace"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "payroll-engine")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 60*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("http.cors_allow_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/payroll.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.lock_ttl", 30*time.Second)

	v.SetDefault("auth.issuer", "payroll-engine")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("payroll.commission_rate", payroll.DefaultCommissionRate.String())
	v.SetDefault("payroll.senior_base_amount", payroll.DefaultSeniorBaseAmount.String())
	v.SetDefault("payroll.workers", payroll.DefaultWorkers)
	v.SetDefault("payroll.timezone", "Local")

	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("scheduler.include_previous", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "payroll")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be memory, sqlite or postgres, got %q", c.Database.Driver)
	}

	if _, err := c.Commission(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Payroll.Workers < 1 {
		return fmt.Errorf("payroll.workers must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive when the scheduler is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required unless auth.disabled is set")
	}

	// Production-specific validations
	if c.IsProduction() {
		if c.Auth.Disabled {
			return fmt.Errorf("auth.disabled is not allowed in production")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters in production")
		}
		if c.Database.Driver == "memory" {
			return fmt.Errorf("database.driver=memory is not allowed in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.App.Env == "production" }

// Commission parses the configured compensation policy.
func (c *Config) Commission() (payroll.CommissionConfig, error) {
	rate, err := decimal.NewFromString(c.Payroll.CommissionRate)
	if err != nil {
		return payroll.CommissionConfig{}, fmt.Errorf("payroll.commission_rate: %w", err)
	}
	base, err := decimal.NewFromString(c.Payroll.SeniorBaseAmount)
	if err != nil {
		return payroll.CommissionConfig{}, fmt.Errorf("payroll.senior_base_amount: %w", err)
	}
	cc := payroll.CommissionConfig{Rate: rate, SeniorBaseAmount: base}
	if err := cc.Validate(); err != nil {
		return payroll.CommissionConfig{}, err
	}
	return cc, nil
}

// Location returns the timezone period boundaries are computed in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Payroll.Timezone)
	if err != nil {
		return nil, fmt.Errorf("payroll.timezone: %w", err)
	}
	return loc, nil
}
