package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const testNonceSecret = "0123456789abcdef0123"

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("admin.nonce_secret", testNonceSecret)

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := AppConfig{
		HTTPAddress:      defaultHTTPAddress,
		Namespace:        defaultNamespace,
		DatabaseDriver:   DatabaseDriverSQLite,
		DatabasePath:     defaultDatabasePath,
		LogLevel:         defaultLogLevel,
		LogEncoding:      defaultLogEncoding,
		FeedURL:          defaultFeedURL,
		FeedTimeout:      30 * time.Second,
		FeedMaxBytes:     defaultFeedMaxBytes,
		AdminNonceSecret: testNonceSecret,
		AdminNonceTTL:    12 * time.Hour,
		MetricsEnabled:   true,
		KafkaBrokers:     []string{},
		KafkaTopic:       defaultKafkaTopic,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.AdminAuthEnabled() {
		t.Fatalf("admin auth must be disabled without credentials")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ANANTA_ADMIN_NONCE_SECRET", testNonceSecret)
	t.Setenv("ANANTA_HTTP_NAMESPACE", "shop-api/")
	t.Setenv("ANANTA_DATABASE_DRIVER", "Postgres")
	t.Setenv("ANANTA_DATABASE_DSN", "postgres://diamonds@localhost/diamonds")
	t.Setenv("ANANTA_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("ANANTA_ADMIN_USERNAME", "owner")
	t.Setenv("ANANTA_ADMIN_PASSWORD", "secret")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Namespace != "/shop-api" {
		t.Fatalf("unexpected namespace %q", cfg.Namespace)
	}
	if cfg.DatabaseDriver != DatabaseDriverPostgres {
		t.Fatalf("unexpected driver %q", cfg.DatabaseDriver)
	}
	if diff := cmp.Diff([]string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers); diff != "" {
		t.Fatalf("brokers mismatch (-want +got):\n%s", diff)
	}
	if !cfg.AdminAuthEnabled() {
		t.Fatalf("expected admin auth to be enabled")
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name   string
		values map[string]any
	}{
		{name: "missing-nonce-secret", values: map[string]any{}},
		{name: "short-nonce-secret", values: map[string]any{"admin.nonce_secret": "short"}},
		{name: "unknown-driver", values: map[string]any{"admin.nonce_secret": testNonceSecret, "database.driver": "mysql"}},
		{name: "postgres-without-dsn", values: map[string]any{"admin.nonce_secret": testNonceSecret, "database.driver": "postgres"}},
		{name: "empty-feed-url", values: map[string]any{"admin.nonce_secret": testNonceSecret, "feed.url": " "}},
		{name: "zero-timeout", values: map[string]any{"admin.nonce_secret": testNonceSecret, "feed.timeout_seconds": 0}},
		{name: "half-credentials", values: map[string]any{"admin.nonce_secret": testNonceSecret, "admin.username": "owner"}},
		{name: "brokers-without-topic", values: map[string]any{"admin.nonce_secret": testNonceSecret, "kafka.brokers": "k:9092", "kafka.topic": ""}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.values {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadForSyncSkipsServerSettings(t *testing.T) {
	cfg, err := LoadForSync(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.FeedURL != defaultFeedURL {
		t.Fatalf("unexpected feed url %q", cfg.FeedURL)
	}
}

func TestLoadEnvFilesIgnoresMissingFiles(t *testing.T) {
	directory := t.TempDir()
	envPath := filepath.Join(directory, "test.env")
	if err := os.WriteFile(envPath, []byte("ANANTA_TEST_ENV_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("ANANTA_TEST_ENV_VALUE") })

	if err := LoadEnvFiles(filepath.Join(directory, "missing.env"), envPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("ANANTA_TEST_ENV_VALUE"); got != "from-file" {
		t.Fatalf("expected env value from file, got %q", got)
	}
}
