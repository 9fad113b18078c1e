package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"shopping-lists/internal/storage"
)

const (
	DefaultBack4AppServerURL = "https://parseapi.back4app.com/"
	DefaultDatabasePath      = "data/shopping.db"
	DefaultPort              = "8080"
	DefaultSessionTTL        = 24 * time.Hour
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultHTTPRetryMax      = 2
)

// Config holds the configuration for the application.
type Config struct {
	Backend  storage.Backend
	Port     string
	LogLevel string

	SessionSecret string
	SessionTTL    time.Duration

	// SQLite backend
	DatabasePath string

	// Memory backend
	MemorySnapshotPath string

	// Back4App backend
	Back4AppServerURL string
	Back4AppAppID     string
	Back4AppClientKey string
	Back4AppMasterKey string
	HTTPTimeout       time.Duration
	HTTPRetryMax      int

	// Telegram Config
	TelegramBotToken   string
	TelegramWebhookURL string
	TelegramUsers      map[int64]string
	TelegramAdminID    int64
}

// NewFromEnv creates a new Config object from environment variables. A .env
// file in the working directory, if present, is loaded first without
// overriding variables that are already set.
func NewFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Port:               getenv("PORT", DefaultPort),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		DatabasePath:       getenv("DATABASE_PATH", DefaultDatabasePath),
		MemorySnapshotPath: os.Getenv("MEMORY_SNAPSHOT_PATH"),
		Back4AppServerURL:  getenv("BACK4APP_SERVER_URL", DefaultBack4AppServerURL),
		Back4AppAppID:      os.Getenv("BACK4APP_APP_ID"),
		Back4AppClientKey:  os.Getenv("BACK4APP_CLIENT_KEY"),
		Back4AppMasterKey:  os.Getenv("BACK4APP_MASTER_KEY"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL: os.Getenv("TELEGRAM_WEBHOOK_URL"),
	}

	var result *multierror.Error

	backendName := getenv("STORE_BACKEND", string(storage.BackendMemory))
	backend, ok := storage.ParseBackend(backendName)
	if !ok {
		result = multierror.Append(result, fmt.Errorf("STORE_BACKEND %q is not one of memory, sqlite, back4app", backendName))
	}
	cfg.Backend = backend

	if cfg.SessionSecret == "" {
		result = multierror.Append(result, fmt.Errorf("SESSION_SECRET environment variable not set"))
	}

	var err error
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", DefaultSessionTTL); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.HTTPTimeout, err = durationEnv("HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.HTTPRetryMax, err = intEnv("HTTP_RETRY_MAX", DefaultHTTPRetryMax); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.TelegramUsers, err = parseTelegramUsers(os.Getenv("TELEGRAM_USERS")); err != nil {
		result = multierror.Append(result, err)
	}
	if v := os.Getenv("TELEGRAM_ADMIN_ID"); v != "" {
		if cfg.TelegramAdminID, err = strconv.ParseInt(v, 10, 64); err != nil {
			result = multierror.Append(result, fmt.Errorf("TELEGRAM_ADMIN_ID must be an integer: %w", err))
		}
	}

	if cfg.TelegramBotToken != "" && cfg.TelegramWebhookURL == "" {
		result = multierror.Append(result, fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set"))
	}

	// The remote store cannot start without all three credentials.
	if backend == storage.BackendBack4App {
		for _, kv := range []struct{ name, value string }{
			{"BACK4APP_APP_ID", cfg.Back4AppAppID},
			{"BACK4APP_CLIENT_KEY", cfg.Back4AppClientKey},
			{"BACK4APP_MASTER_KEY", cfg.Back4AppMasterKey},
		} {
			if kv.value == "" {
				result = multierror.Append(result, fmt.Errorf("%s environment variable not set", kv.name))
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// TelegramEnabled reports whether the bot should be started.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

// parseTelegramUsers reads "telegramID:username" pairs separated by commas.
func parseTelegramUsers(v string) (map[int64]string, error) {
	users := make(map[int64]string)
	if strings.TrimSpace(v) == "" {
		return users, nil
	}
	for _, pair := range strings.Split(v, ",") {
		idStr, username, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || username == "" {
			return nil, fmt.Errorf("TELEGRAM_USERS entry %q must be telegramID:username", pair)
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_USERS entry %q has a non-numeric id: %w", pair, err)
		}
		users[id] = username
	}
	return users, nil
}
