package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingToken           = errors.New("TELEGRAM_BOT_TOKEN is required")
	ErrMissingDB              = errors.New("DATABASE_URL is required")
	ErrMissingBankCredentials = errors.New("BANK_SECRET_ID and BANK_SECRET_KEY are required")
	ErrInvalidPollInterval    = errors.New("invalid poll interval")
)

type Config struct {
	Telegram  TelegramConfig
	Database  DatabaseConfig
	Bank      BankConfig
	Poll      PollConfig
	Log       LogConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	// CategoryRulesFile - YAML с ключевыми словами категорий, пусто = встроенные
	CategoryRulesFile string
}

type TelegramConfig struct {
	Token   string
	AdminID int64
	Debug   bool
}

type DatabaseConfig struct {
	URL string
}

type BankConfig struct {
	SecretID        string
	SecretKey       string
	BaseURL         string
	InstitutionName string
	Country         string
	Currency        string
	// RedirectURL - куда агрегатор вернет пользователя после согласия (web app)
	RedirectURL string
	Timeout     time.Duration
}

type PollConfig struct {
	IntervalMin time.Duration
	IntervalMax time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	Concurrency int
}

type LogConfig struct {
	Level string
	// Format - json или console
	Format string
	// Output - stderr, stdout или путь к файлу
	Output string
}

type CacheConfig struct {
	TTL time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type MetricsConfig struct {
	Addr string
}

// LoadDotEnv подгружает .env, если он есть. Уже выставленные переменные не трогает.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func Load() (*Config, error) {
	cfg := &Config{
		Telegram: TelegramConfig{
			Token:   os.Getenv("TELEGRAM_BOT_TOKEN"),
			AdminID: getEnvInt64OrDefault("ADMIN_ID", 0),
			Debug:   getEnvOrDefault("TELEGRAM_DEBUG", "") == "true",
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Bank: BankConfig{
			SecretID:        os.Getenv("BANK_SECRET_ID"),
			SecretKey:       os.Getenv("BANK_SECRET_KEY"),
			BaseURL:         getEnvOrDefault("BANK_BASE_URL", "https://bankaccountdata.gocardless.com/api/v2"),
			InstitutionName: getEnvOrDefault("BANK_INSTITUTION_NAME", "Nordea Personal"),
			Country:         getEnvOrDefault("BANK_COUNTRY", "SE"),
			Currency:        getEnvOrDefault("BANK_CURRENCY", "SEK"),
			RedirectURL:     os.Getenv("WEB_APP_URL"),
			Timeout:         time.Duration(getEnvIntOrDefault("BANK_TIMEOUT_SEC", 30)) * time.Second,
		},
		Poll: PollConfig{
			IntervalMin: time.Duration(getEnvIntOrDefault("POLL_INTERVAL_MIN_SEC", 60)) * time.Second,
			IntervalMax: time.Duration(getEnvIntOrDefault("POLL_INTERVAL_MAX_SEC", 120)) * time.Second,
			MaxRetries:  getEnvIntOrDefault("POLL_MAX_RETRIES", 3),
			RetryDelay:  time.Duration(getEnvIntOrDefault("POLL_RETRY_DELAY_SEC", 5)) * time.Second,
			Concurrency: getEnvIntOrDefault("POLL_CONCURRENCY", 8),
		},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
			Output: getEnvOrDefault("LOG_OUTPUT", "stderr"),
		},
		Cache: CacheConfig{
			TTL: time.Duration(getEnvIntOrDefault("CACHE_TTL_SEC", 21600)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", 10),
		},
		Metrics: MetricsConfig{
			Addr: getEnvOrDefault("METRICS_ADDR", ":9090"),
		},
		CategoryRulesFile: os.Getenv("CATEGORY_RULES_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return ErrMissingToken
	}
	if c.Database.URL == "" {
		return ErrMissingDB
	}
	if c.Bank.SecretID == "" || c.Bank.SecretKey == "" {
		return ErrMissingBankCredentials
	}
	if c.Poll.IntervalMin <= 0 || c.Poll.IntervalMax < c.Poll.IntervalMin {
		return fmt.Errorf("%w: min %s, max %s", ErrInvalidPollInterval, c.Poll.IntervalMin, c.Poll.IntervalMax)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}
