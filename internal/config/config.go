package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/ehr/emr/internal/domain/scheduling"
	"github.com/ehr/emr/internal/platform/auth"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret           string        `mapstructure:"JWT_SECRET"`
	TokenTTL            time.Duration `mapstructure:"TOKEN_TTL"`
	AdminEmail          string        `mapstructure:"ADMIN_EMAIL"`
	AdminPasswordHash   string        `mapstructure:"ADMIN_PASSWORD_HASH"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	LoginRateLimitRPS   float64       `mapstructure:"LOGIN_RATE_LIMIT_RPS"`
	LoginRateLimitBurst int           `mapstructure:"LOGIN_RATE_LIMIT_BURST"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MonthlyMode         string        `mapstructure:"RECURRENCE_MONTHLY_MODE"`
	DashboardDays       int           `mapstructure:"DASHBOARD_HORIZON_DAYS"`
	ListMonths          int           `mapstructure:"LIST_HORIZON_MONTHS"`
	ReminderCron        string        `mapstructure:"REMINDER_CRON"`
	MigrationsDir       string        `mapstructure:"MIGRATIONS_DIR"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "TOKEN_TTL", "ADMIN_EMAIL", "ADMIN_PASSWORD_HASH", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOGIN_RATE_LIMIT_RPS", "LOGIN_RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "RECURRENCE_MONTHLY_MODE", "DASHBOARD_HORIZON_DAYS",
	"LIST_HORIZON_MONTHS", "REMINDER_CRON", "MIGRATIONS_DIR",
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("TOKEN_TTL", auth.DefaultTokenTTL)
	v.SetDefault("ADMIN_EMAIL", "admin@example.com")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("LOGIN_RATE_LIMIT_RPS", 0.2)
	v.SetDefault("LOGIN_RATE_LIMIT_BURST", 5)
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("RECURRENCE_MONTHLY_MODE", string(scheduling.MonthlyCalendar))
	v.SetDefault("DASHBOARD_HORIZON_DAYS", 7)
	v.SetDefault("LIST_HORIZON_MONTHS", 3)
	v.SetDefault("REMINDER_CRON", "0 7 * * *")
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret of at least 32 bytes is required.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters when ENV=%q", c.Env)
	}
	if c.AdminPasswordHash != "" && !auth.IsHash(c.AdminPasswordHash) {
		return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if _, err := scheduling.ParseMonthlyMode(c.MonthlyMode); err != nil {
		return fmt.Errorf("RECURRENCE_MONTHLY_MODE: %w", err)
	}
	if c.DashboardDays <= 0 || c.ListMonths <= 0 {
		return fmt.Errorf("DASHBOARD_HORIZON_DAYS and LIST_HORIZON_MONTHS must be positive")
	}
	if _, err := cron.ParseStandard(c.ReminderCron); err != nil {
		return fmt.Errorf("REMINDER_CRON %q: %w", c.ReminderCron, err)
	}
	if c.RateLimitRPS <= 0 || c.LoginRateLimitRPS <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

// Secret returns the JWT signing key. Development without JWT_SECRET gets a
// fixed key so tokens survive restarts.
func (c *Config) Secret() []byte {
	if c.JWTSecret == "" && c.IsDev() {
		return []byte("development-only-signing-key-change-me")
	}
	return []byte(c.JWTSecret)
}
