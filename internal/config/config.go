package config

import (
	"fmt"
	"net/url"
	"time"
	_ "time/tzdata" // LIBRARY_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	Business  BusinessConfig  `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"SERVER_PORT"`
	Host         string        `mapstructure:"SERVER_HOST"`
	Env          string        `mapstructure:"ENV"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"DATABASE_DRIVER"`
	URL             string        `mapstructure:"DATABASE_URL"`
	Host            string        `mapstructure:"DATABASE_HOST"`
	Port            string        `mapstructure:"DATABASE_PORT"`
	Name            string        `mapstructure:"DATABASE_NAME"`
	User            string        `mapstructure:"DATABASE_USER"`
	Password        string        `mapstructure:"DATABASE_PASSWORD"`
	SSLMode         string        `mapstructure:"DATABASE_SSLMODE"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	Host          string        `mapstructure:"REDIS_HOST"`
	Port          string        `mapstructure:"REDIS_PORT"`
	Password      string        `mapstructure:"REDIS_PASSWORD"`
	DB            int           `mapstructure:"REDIS_DB"`
	StatsTTL      time.Duration `mapstructure:"REDIS_STATS_TTL"`
	NotifyChannel string        `mapstructure:"REDIS_NOTIFY_CHANNEL"`
}

type SchedulerConfig struct {
	ReminderCron string `mapstructure:"REMINDER_CRON"`
	Timezone     string `mapstructure:"LIBRARY_TIMEZONE"`
	MetricsPort  string `mapstructure:"SCHEDULER_METRICS_PORT"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type BusinessConfig struct {
	MaxActiveLoans int    `mapstructure:"MAX_ACTIVE_LOANS"`
	MinLoanDays    int    `mapstructure:"MIN_LOAN_DAYS"`
	MaxLoanDays    int    `mapstructure:"MAX_LOAN_DAYS"`
	FinePerDay     string `mapstructure:"FINE_PER_DAY"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

// Supported values of DATABASE_DRIVER. Both go through sqlx.
const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
)

var defaults = map[string]any{
	"SERVER_PORT":                "8080",
	"SERVER_HOST":                "0.0.0.0",
	"ENV":                        "development",
	"SERVER_READ_TIMEOUT":        "15s",
	"SERVER_WRITE_TIMEOUT":       "15s",
	"DATABASE_DRIVER":            DriverPostgres,
	"DATABASE_URL":               "",
	"DATABASE_HOST":              "localhost",
	"DATABASE_PORT":              "5432",
	"DATABASE_NAME":              "library",
	"DATABASE_USER":              "postgres",
	"DATABASE_PASSWORD":          "",
	"DATABASE_SSLMODE":           "disable",
	"DATABASE_MAX_OPEN_CONNS":    25,
	"DATABASE_MAX_IDLE_CONNS":    5,
	"DATABASE_CONN_MAX_LIFETIME": "1h",
	"REDIS_HOST":                 "localhost",
	"REDIS_PORT":                 "6379",
	"REDIS_PASSWORD":             "",
	"REDIS_DB":                   0,
	"REDIS_STATS_TTL":            "5m",
	"REDIS_NOTIFY_CHANNEL":       "library:notifications",
	"REMINDER_CRON":              "0 0 8 * * *",
	"LIBRARY_TIMEZONE":           "Asia/Jakarta",
	"SCHEDULER_METRICS_PORT":     "9091",
	"LOG_LEVEL":                  "info",
	"LOG_FORMAT":                 "",
	"MAX_ACTIVE_LOANS":           5,
	"MIN_LOAN_DAYS":              1,
	"MAX_LOAN_DAYS":              30,
	"FINE_PER_DAY":               "5000",
	"HEALTH_CHECK_TIMEOUT":       "5s",
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	v := viper.New()

	// Every key needs a default so that Unmarshal picks up its env override.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the built-in configuration without reading the environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Host: "0.0.0.0", Env: "development", ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second},
		Database: DatabaseConfig{
			Driver: DriverPostgres, Host: "localhost", Port: "5432", Name: "library", User: "postgres", SSLMode: "disable",
			MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: time.Hour,
		},
		Redis:     RedisConfig{Host: "localhost", Port: "6379", StatsTTL: 5 * time.Minute, NotifyChannel: "library:notifications"},
		Scheduler: SchedulerConfig{ReminderCron: "0 0 8 * * *", Timezone: "UTC", MetricsPort: "9091"},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Business:  BusinessConfig{MaxActiveLoans: 5, MinLoanDays: 1, MaxLoanDays: 30, FinePerDay: "5000"},
		Health:    HealthConfig{Timeout: "5s"},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverPGX:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverPGX, c.Database.Driver)
	}

	if c.Database.URL == "" && (c.Database.Host == "" || c.Database.Name == "") {
		return fmt.Errorf("DATABASE_URL or DATABASE_HOST and DATABASE_NAME are required")
	}

	if c.Business.MaxActiveLoans <= 0 {
		return fmt.Errorf("MAX_ACTIVE_LOANS must be greater than 0")
	}

	if c.Business.MinLoanDays <= 0 || c.Business.MaxLoanDays < c.Business.MinLoanDays {
		return fmt.Errorf("MIN_LOAN_DAYS must be positive and not greater than MAX_LOAN_DAYS")
	}

	fine, err := decimal.NewFromString(c.Business.FinePerDay)
	if err != nil {
		return fmt.Errorf("FINE_PER_DAY must be a valid decimal: %w", err)
	}
	if fine.IsNegative() {
		return fmt.Errorf("FINE_PER_DAY must not be negative")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("LIBRARY_TIMEZONE must be a valid IANA zone: %w", err)
	}

	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(c.Scheduler.ReminderCron); err != nil {
		return fmt.Errorf("REMINDER_CRON must be a valid cron spec: %w", err)
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"json\" or \"console\", got %q", c.Logging.Format)
	}

	if _, err := time.ParseDuration(c.Health.Timeout); err != nil {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be a valid duration: %w", err)
	}

	return nil
}

// DSN returns DATABASE_URL when set, otherwise a URL built from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + d.Port,
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(d.SSLMode)
	}
	return u.String()
}

// Addr returns the host:port of the redis server.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// LogFormat returns LOG_FORMAT when set. Otherwise development gets the
// console encoder and everything else JSON.
func (c *Config) LogFormat() string {
	if c.Logging.Format != "" {
		return c.Logging.Format
	}
	if c.IsDevelopment() {
		return "console"
	}
	return "json"
}

// GetFinePerDay returns the late fee per day as decimal
func (c *Config) GetFinePerDay() decimal.Decimal {
	fine, _ := decimal.NewFromString(c.Business.FinePerDay)
	return fine
}

// GetLocation returns the library timezone used to decide "today".
func (c *Config) GetLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.Health.Timeout)
	if err != nil {
		return 5 * time.Second
	}
	return timeout
}
