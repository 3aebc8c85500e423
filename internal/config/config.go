// Package config содержит загрузку и валидацию конфигурации.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"spotifychart/internal/credentials"
	"spotifychart/pkg/logger"

	"github.com/joho/godotenv"
)

// DefaultChartPlaylist плейлист "Top 50 - South Korea"
const DefaultChartPlaylist = "37i9dQZEVXbNxXF4SkHj9F"

// Config представляет конфигурацию приложения
type Config struct {
	// Spotify
	Credentials   credentials.Credentials
	ChartPlaylist string
	SpotifyAPIURL string
	TokenURL      string

	// Collector
	RequestDelay      time.Duration
	IntermediateEvery int
	OutputDir         string
	CSVHeaderLang     string
	Timezone          string

	// Database (опционально)
	DatabaseURL string

	// Telegram (опционально)
	BotToken     string
	NotifyChatID int64

	// Retry
	RetryConfig RetryConfig

	// Logging
	LogConfig logger.Config
}

// RetryConfig представляет конфигурацию retry механизма
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// Load загружает конфигурацию из .env и переменных окружения
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	config := &Config{
		Credentials:       credentials.FromEnv(os.LookupEnv),
		ChartPlaylist:     getEnv("CHART_PLAYLIST", DefaultChartPlaylist),
		SpotifyAPIURL:     getEnv("SPOTIFY_API_URL", ""),
		TokenURL:          getEnv("SPOTIFY_TOKEN_URL", ""),
		RequestDelay:      getEnvDuration("REQUEST_DELAY", 2*time.Second),
		IntermediateEvery: getEnvInt("INTERMEDIATE_EVERY", 100),
		OutputDir:         getEnv("OUTPUT_DIR", "."),
		CSVHeaderLang:     strings.ToLower(getEnv("CSV_HEADER_LANG", "ko")),
		Timezone:          getEnv("TIMEZONE", "Asia/Seoul"),
		DatabaseURL:       getEnv("DB_DSN", ""),
		BotToken:          getEnv("BOT_TOKEN", ""),
		NotifyChatID:      getEnvInt64("NOTIFY_CHAT_ID", 0),
		RetryConfig: RetryConfig{
			MaxRetries:        getEnvInt("RETRY_MAX_RETRIES", 3),
			InitialDelay:      getEnvDuration("RETRY_INITIAL_DELAY", 1*time.Second),
			MaxDelay:          getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
			BackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2.0),
		},
		LogConfig: logger.Config{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "console"),
			Output:     getEnv("LOG_OUTPUT", "stderr"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/spotifychart.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 28),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate проверяет конфигурацию.
// Учетные данные проверяются отдельно, их еще можно ввести интерактивно.
func (c *Config) Validate() error {
	var errs []error

	if c.ChartPlaylist == "" {
		errs = append(errs, fmt.Errorf("CHART_PLAYLIST is required"))
	}

	if c.RequestDelay < 0 {
		errs = append(errs, fmt.Errorf("REQUEST_DELAY must not be negative"))
	}

	if c.IntermediateEvery <= 0 {
		errs = append(errs, fmt.Errorf("INTERMEDIATE_EVERY must be positive"))
	}

	if c.CSVHeaderLang != "ko" && c.CSVHeaderLang != "en" {
		errs = append(errs, fmt.Errorf("CSV_HEADER_LANG must be ko or en, got %q", c.CSVHeaderLang))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err))
	}

	if c.RetryConfig.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_RETRIES must not be negative"))
	}

	if c.RetryConfig.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("RETRY_BACKOFF_MULTIPLIER must be at least 1"))
	}

	if (c.BotToken == "") != (c.NotifyChatID == 0) {
		errs = append(errs, fmt.Errorf("BOT_TOKEN and NOTIFY_CHAT_ID must be set together"))
	}

	return errors.Join(errs...)
}

// Location возвращает часовой пояс для слотов сбора
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// NotificationsEnabled сообщает, настроены ли уведомления в Telegram
func (c *Config) NotificationsEnabled() bool {
	return c.BotToken != "" && c.NotifyChatID != 0
}

// getEnv получает переменную окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает переменную окружения как int
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvInt64 получает переменную окружения как int64
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения как time.Duration
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvFloat получает переменную окружения как float64
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
