package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequired() {
	os.Setenv("TELEGRAM_BOT_TOKEN", "test_token")
	os.Setenv("DATABASE_URL", "postgres://localhost:5432/test")
	os.Setenv("BANK_SECRET_ID", "id")
	os.Setenv("BANK_SECRET_KEY", "key")
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr error
	}{
		{
			name: "valid config",
			envVars: map[string]string{
				"TELEGRAM_BOT_TOKEN": "test_token",
				"DATABASE_URL":       "postgres://localhost:5432/test",
				"BANK_SECRET_ID":     "id",
				"BANK_SECRET_KEY":    "key",
			},
			wantErr: nil,
		},
		{
			name: "missing telegram token",
			envVars: map[string]string{
				"DATABASE_URL":    "postgres://localhost:5432/test",
				"BANK_SECRET_ID":  "id",
				"BANK_SECRET_KEY": "key",
			},
			wantErr: ErrMissingToken,
		},
		{
			name: "missing database url",
			envVars: map[string]string{
				"TELEGRAM_BOT_TOKEN": "test_token",
				"BANK_SECRET_ID":     "id",
				"BANK_SECRET_KEY":    "key",
			},
			wantErr: ErrMissingDB,
		},
		{
			name: "missing bank secret key",
			envVars: map[string]string{
				"TELEGRAM_BOT_TOKEN": "test_token",
				"DATABASE_URL":       "postgres://localhost:5432/test",
				"BANK_SECRET_ID":     "id",
			},
			wantErr: ErrMissingBankCredentials,
		},
		{
			name: "poll max below min",
			envVars: map[string]string{
				"TELEGRAM_BOT_TOKEN":    "test_token",
				"DATABASE_URL":          "postgres://localhost:5432/test",
				"BANK_SECRET_ID":        "id",
				"BANK_SECRET_KEY":       "key",
				"POLL_INTERVAL_MIN_SEC": "120",
				"POLL_INTERVAL_MAX_SEC": "60",
			},
			wantErr: ErrInvalidPollInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()

			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}
			defer clearEnvVars()

			cfg, err := Load()

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Errorf("Load() unexpected error = %v", err)
				return
			}

			if cfg == nil {
				t.Error("Load() returned nil config")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	clearEnvVars()
	setRequired()
	defer clearEnvVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %v, want %v", cfg.Log.Level, "info")
	}
	if cfg.Poll.IntervalMin != 60*time.Second || cfg.Poll.IntervalMax != 120*time.Second {
		t.Errorf("Poll interval = %v..%v, want 60s..120s", cfg.Poll.IntervalMin, cfg.Poll.IntervalMax)
	}
	if cfg.Poll.MaxRetries != 3 {
		t.Errorf("Poll.MaxRetries = %v, want 3", cfg.Poll.MaxRetries)
	}
	if cfg.Bank.Country != "SE" || cfg.Bank.Currency != "SEK" {
		t.Errorf("Bank country/currency = %v/%v", cfg.Bank.Country, cfg.Bank.Currency)
	}
	if cfg.Bank.InstitutionName != "Nordea Personal" {
		t.Errorf("Bank.InstitutionName = %v", cfg.Bank.InstitutionName)
	}
	if cfg.Telegram.AdminID != 0 {
		t.Errorf("Telegram.AdminID = %v, want 0", cfg.Telegram.AdminID)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Metrics.Addr = %v", cfg.Metrics.Addr)
	}
}

func TestAdminID(t *testing.T) {
	clearEnvVars()
	setRequired()
	os.Setenv("ADMIN_ID", "123456789")
	defer clearEnvVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Telegram.AdminID != 123456789 {
		t.Errorf("Telegram.AdminID = %v, want 123456789", cfg.Telegram.AdminID)
	}
}

func TestGetEnvIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		envValue   string
		defaultVal int
		want       int
	}{
		{"valid int", "42", 10, 42},
		{"empty string", "", 10, 10},
		{"invalid int", "abc", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("TEST_INT", tt.envValue)
			defer os.Unsetenv("TEST_INT")

			got := getEnvIntOrDefault("TEST_INT", tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnvIntOrDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "TELEGRAM_BOT_TOKEN=from_file\nBANK_COUNTRY=FI\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("BANK_COUNTRY", "SE")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}

	if got := os.Getenv("TELEGRAM_BOT_TOKEN"); got != "from_file" {
		t.Errorf("TELEGRAM_BOT_TOKEN = %q, want from_file", got)
	}
	if got := os.Getenv("BANK_COUNTRY"); got != "SE" {
		t.Errorf("existing env must win, BANK_COUNTRY = %q", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("LoadDotEnv() missing file error = %v", err)
	}
}

func clearEnvVars() {
	envVars := []string{
		"TELEGRAM_BOT_TOKEN",
		"TELEGRAM_DEBUG",
		"DATABASE_URL",
		"BANK_SECRET_ID",
		"BANK_SECRET_KEY",
		"BANK_BASE_URL",
		"BANK_INSTITUTION_NAME",
		"BANK_COUNTRY",
		"BANK_CURRENCY",
		"BANK_TIMEOUT_SEC",
		"WEB_APP_URL",
		"ADMIN_ID",
		"POLL_INTERVAL_MIN_SEC",
		"POLL_INTERVAL_MAX_SEC",
		"POLL_MAX_RETRIES",
		"POLL_RETRY_DELAY_SEC",
		"POLL_CONCURRENCY",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"CACHE_TTL_SEC",
		"RATE_LIMIT_PER_MINUTE",
		"METRICS_ADDR",
		"CATEGORY_RULES_FILE",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
