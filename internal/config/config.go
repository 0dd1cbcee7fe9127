// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"langschool_backend/pkg/utils"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SchemaPath string
}

// DSN returns a lib/pq key=value connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Config is the complete service configuration.
type Config struct {
	Port               string
	StoreBackend       string
	DB                 DBConfig
	CORSAllowedOrigins []string
	JWTSecret          []byte
	SafeIPs            []string

	SpamASCIIThreshold float64
	SpamRequireLink    bool
	BannedCacheSize    int
	BannedCacheTTL     time.Duration

	ContactAlertFrom      string
	ContactAlertEmails    []string
	NotifyMaxRetryElapsed time.Duration

	PriceSummaryCron string

	LogFormat string
	LogLevel  string
}

// Load reads .env files (if present) and the environment. Files never
// override variables that are already set.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:         utils.Getenv("PORT", "8080"),
		StoreBackend: strings.ToLower(utils.Getenv("STORE_BACKEND", BackendPostgres)),
		DB: DBConfig{
			Host:       utils.Getenv("DB_HOST", "localhost"),
			Port:       utils.Getenv("DB_PORT", "5432"),
			User:       utils.Getenv("DB_USER", "langschool"),
			Password:   utils.Getenv("DB_PASSWORD", "langschool"),
			Name:       utils.Getenv("DB_NAME", "langschool"),
			SSLMode:    utils.Getenv("DB_SSLMODE", "disable"),
			SchemaPath: utils.Getenv("DB_SCHEMA_PATH", ""),
		},
		CORSAllowedOrigins: utils.GetenvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001"}),
		JWTSecret:          []byte(utils.Getenv("JWT_SECRET", "")),
		SafeIPs:            utils.GetenvList("SAFE_IPS", nil),
		ContactAlertFrom:   utils.Getenv("CONTACT_ALERT_FROM", "no-reply@localhost"),
		ContactAlertEmails: utils.GetenvList("CONTACT_ALERT_EMAILS", nil),
		PriceSummaryCron:   utils.Getenv("PRICE_SUMMARY_CRON", "@hourly"),
		LogFormat:          utils.Getenv("LOG_FORMAT", "console"),
		LogLevel:           utils.Getenv("LOG_LEVEL", "info"),
	}

	var errs []error
	cfg.SpamASCIIThreshold = parseFloat("SPAM_ASCII_THRESHOLD", 60, &errs)
	cfg.SpamRequireLink = parseBool("SPAM_REQUIRE_LINK", true, &errs)
	cfg.BannedCacheSize = parseInt("BANNED_CACHE_SIZE", 1024, &errs)
	cfg.BannedCacheTTL = parseDuration("BANNED_CACHE_TTL", 10*time.Minute, &errs)
	cfg.NotifyMaxRetryElapsed = parseDuration("NOTIFY_MAX_RETRY_ELAPSED", 30*time.Second, &errs)

	if cfg.StoreBackend != BackendPostgres && cfg.StoreBackend != BackendMemory {
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, cfg.StoreBackend))
	}
	if cfg.SpamASCIIThreshold <= 0 || cfg.SpamASCIIThreshold > 100 {
		errs = append(errs, fmt.Errorf("SPAM_ASCII_THRESHOLD must be greater than 0 and at most 100, got %v", cfg.SpamASCIIThreshold))
	}
	if cfg.BannedCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("BANNED_CACHE_SIZE must be positive, got %d", cfg.BannedCacheSize))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFloat(key string, fallback float64, errs *[]error) float64 {
	raw := utils.Getenv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid number %q", key, raw))
		return fallback
	}
	return v
}

func parseInt(key string, fallback int, errs *[]error) int {
	raw := utils.Getenv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return fallback
	}
	return v
}

func parseBool(key string, fallback bool, errs *[]error) bool {
	raw := utils.Getenv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, raw))
		return fallback
	}
	return v
}

func parseDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := utils.Getenv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return fallback
	}
	return v
}
