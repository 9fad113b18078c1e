package config

import (
	"strings"
	"testing"
	"time"

	"shopping-lists/internal/storage"
)

// clearEnv blanks every variable NewFromEnv reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STORE_BACKEND", "PORT", "LOG_LEVEL", "SESSION_SECRET", "SESSION_TTL",
		"DATABASE_PATH", "MEMORY_SNAPSHOT_PATH",
		"BACK4APP_SERVER_URL", "BACK4APP_APP_ID", "BACK4APP_CLIENT_KEY", "BACK4APP_MASTER_KEY",
		"HTTP_TIMEOUT", "HTTP_RETRY_MAX",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_WEBHOOK_URL", "TELEGRAM_USERS", "TELEGRAM_ADMIN_ID",
	} {
		t.Setenv(key, "")
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SESSION_SECRET", "s3cret")

		cfg, err := NewFromEnv()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.Backend != storage.BackendMemory {
			t.Errorf("Expected backend 'memory', got '%s'", cfg.Backend)
		}
		if cfg.Port != DefaultPort {
			t.Errorf("Expected port '%s', got '%s'", DefaultPort, cfg.Port)
		}
		if cfg.SessionTTL != DefaultSessionTTL {
			t.Errorf("Expected session TTL %v, got %v", DefaultSessionTTL, cfg.SessionTTL)
		}
		if cfg.Back4AppServerURL != DefaultBack4AppServerURL {
			t.Errorf("Expected server URL '%s', got '%s'", DefaultBack4AppServerURL, cfg.Back4AppServerURL)
		}
		if cfg.HTTPRetryMax != DefaultHTTPRetryMax {
			t.Errorf("Expected retry max %d, got %d", DefaultHTTPRetryMax, cfg.HTTPRetryMax)
		}
		if cfg.TelegramEnabled() {
			t.Error("Expected telegram to be disabled without a token")
		}
	})

	t.Run("Back4App", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SESSION_SECRET", "s3cret")
		t.Setenv("STORE_BACKEND", "back4app")
		t.Setenv("BACK4APP_APP_ID", "app")
		t.Setenv("BACK4APP_CLIENT_KEY", "client")
		t.Setenv("BACK4APP_MASTER_KEY", "master")
		t.Setenv("HTTP_TIMEOUT", "5s")

		cfg, err := NewFromEnv()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.Backend != storage.BackendBack4App {
			t.Errorf("Expected backend 'back4app', got '%s'", cfg.Backend)
		}
		if cfg.Back4AppAppID != "app" || cfg.Back4AppClientKey != "client" || cfg.Back4AppMasterKey != "master" {
			t.Errorf("Unexpected credentials: %+v", cfg)
		}
		if cfg.HTTPTimeout != 5*time.Second {
			t.Errorf("Expected timeout 5s, got %v", cfg.HTTPTimeout)
		}
	})

	t.Run("MissingBack4AppCredentials", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SESSION_SECRET", "s3cret")
		t.Setenv("STORE_BACKEND", "back4app")
		t.Setenv("BACK4APP_CLIENT_KEY", "client")

		_, err := NewFromEnv()
		if err == nil {
			t.Fatal("Expected an error for missing credentials, got nil")
		}
		for _, want := range []string{
			"BACK4APP_APP_ID environment variable not set",
			"BACK4APP_MASTER_KEY environment variable not set",
		} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("Expected error to mention '%s', got '%s'", want, err.Error())
			}
		}
		if strings.Contains(err.Error(), "BACK4APP_CLIENT_KEY") {
			t.Errorf("Did not expect BACK4APP_CLIENT_KEY in error, got '%s'", err.Error())
		}
	})

	t.Run("MissingSessionSecret", func(t *testing.T) {
		clearEnv(t)

		_, err := NewFromEnv()
		if err == nil {
			t.Fatal("Expected an error for missing SESSION_SECRET, got nil")
		}
		expectedError := "SESSION_SECRET environment variable not set"
		if !strings.Contains(err.Error(), expectedError) {
			t.Errorf("Expected error '%s', got '%s'", expectedError, err.Error())
		}
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SESSION_SECRET", "s3cret")
		t.Setenv("STORE_BACKEND", "postgres")

		_, err := NewFromEnv()
		if err == nil {
			t.Fatal("Expected an error for unknown backend, got nil")
		}
		if !strings.Contains(err.Error(), `"postgres"`) {
			t.Errorf("Expected error to name the backend, got '%s'", err.Error())
		}
	})

	t.Run("TelegramUsers", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SESSION_SECRET", "s3cret")
		t.Setenv("TELEGRAM_BOT_TOKEN", "token")
		t.Setenv("TELEGRAM_WEBHOOK_URL", "https://example.com/webhook")
		t.Setenv("TELEGRAM_USERS", "111:ana, 222:bruno")
		t.Setenv("TELEGRAM_ADMIN_ID", "111")

		cfg, err := NewFromEnv()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if !cfg.TelegramEnabled() {
			t.Error("Expected telegram to be enabled")
		}
		if cfg.TelegramUsers[111] != "ana" || cfg.TelegramUsers[222] != "bruno" {
			t.Errorf("Unexpected telegram users: %v", cfg.TelegramUsers)
		}
		if cfg.TelegramAdminID != 111 {
			t.Errorf("Expected admin id 111, got %d", cfg.TelegramAdminID)
		}
	})

	t.Run("MalformedTelegramUsers", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SESSION_SECRET", "s3cret")
		t.Setenv("TELEGRAM_USERS", "ana")

		if _, err := NewFromEnv(); err == nil {
			t.Fatal("Expected an error for malformed TELEGRAM_USERS, got nil")
		}
	})
}
