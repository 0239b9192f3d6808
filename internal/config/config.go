package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix               = "ANANTA"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultNamespace        = "/wp-json/ananta-custom-diamond"
	defaultDatabaseDriver   = "sqlite"
	defaultDatabasePath     = "ananta-diamonds.db"
	defaultLogLevel         = "info"
	defaultLogEncoding      = "json"
	defaultFeedURL          = "https://anantajewelry.com/pub/tech-test/mock-diamonds.json"
	defaultFeedTimeoutSecs  = 30
	defaultFeedMaxBytes     = 32 << 20
	defaultNonceTTLMinutes  = 720
	defaultKafkaTopic       = "diamond-sync-reports"
	DatabaseDriverSQLite    = "sqlite"
	DatabaseDriverPostgres  = "postgres"
	defaultMetricsEnabled   = true
	defaultEnvFileName      = ".env"
	minimumNonceSecretBytes = 16
)

// AppConfig captures runtime configuration for the diamond service.
type AppConfig struct {
	HTTPAddress      string
	Namespace        string
	DatabaseDriver   string
	DatabasePath     string
	DatabaseDSN      string
	LogLevel         string
	LogEncoding      string
	FeedURL          string
	FeedTimeout      time.Duration
	FeedMaxBytes     int64
	AdminUsername    string
	AdminPassword    string
	AdminNonceSecret string
	AdminNonceTTL    time.Duration
	MetricsEnabled   bool
	KafkaBrokers     []string
	KafkaTopic       string
}

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{defaultEnvFileName}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if isMissingFile(err) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.namespace", defaultNamespace)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("feed.url", defaultFeedURL)
	configViper.SetDefault("feed.timeout_seconds", defaultFeedTimeoutSecs)
	configViper.SetDefault("feed.max_bytes", defaultFeedMaxBytes)
	configViper.SetDefault("admin.username", "")
	configViper.SetDefault("admin.password", "")
	configViper.SetDefault("admin.nonce_secret", "")
	configViper.SetDefault("admin.nonce_ttl_minutes", defaultNonceTTLMinutes)
	configViper.SetDefault("metrics.enabled", defaultMetricsEnabled)
	configViper.SetDefault("kafka.brokers", "")
	configViper.SetDefault("kafka.topic", defaultKafkaTopic)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      strings.TrimSpace(configViper.GetString("http.address")),
		Namespace:        normalizeNamespace(configViper.GetString("http.namespace")),
		DatabaseDriver:   strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:     strings.TrimSpace(configViper.GetString("database.path")),
		DatabaseDSN:      strings.TrimSpace(configViper.GetString("database.dsn")),
		LogLevel:         configViper.GetString("log.level"),
		LogEncoding:      configViper.GetString("log.encoding"),
		FeedURL:          strings.TrimSpace(configViper.GetString("feed.url")),
		FeedTimeout:      time.Duration(configViper.GetInt("feed.timeout_seconds")) * time.Second,
		FeedMaxBytes:     configViper.GetInt64("feed.max_bytes"),
		AdminUsername:    strings.TrimSpace(configViper.GetString("admin.username")),
		AdminPassword:    configViper.GetString("admin.password"),
		AdminNonceSecret: configViper.GetString("admin.nonce_secret"),
		AdminNonceTTL:    time.Duration(configViper.GetInt("admin.nonce_ttl_minutes")) * time.Minute,
		MetricsEnabled:   configViper.GetBool("metrics.enabled"),
		KafkaBrokers:     splitList(configViper.GetString("kafka.brokers")),
		KafkaTopic:       strings.TrimSpace(configViper.GetString("kafka.topic")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadForSync parses the subset of settings the command line sync needs.
func LoadForSync(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   strings.TrimSpace(configViper.GetString("database.path")),
		DatabaseDSN:    strings.TrimSpace(configViper.GetString("database.dsn")),
		LogLevel:       configViper.GetString("log.level"),
		LogEncoding:    configViper.GetString("log.encoding"),
		FeedURL:        strings.TrimSpace(configViper.GetString("feed.url")),
		FeedTimeout:    time.Duration(configViper.GetInt("feed.timeout_seconds")) * time.Second,
		FeedMaxBytes:   configViper.GetInt64("feed.max_bytes"),
		KafkaBrokers:   splitList(configViper.GetString("kafka.brokers")),
		KafkaTopic:     strings.TrimSpace(configViper.GetString("kafka.topic")),
	}
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.validateFeed(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// AdminAuthEnabled reports whether basic auth guards the admin pages.
func (c AppConfig) AdminAuthEnabled() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.Namespace == "" {
		return fmt.Errorf("http.namespace is required")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateFeed(); err != nil {
		return err
	}
	if len(strings.TrimSpace(c.AdminNonceSecret)) < minimumNonceSecretBytes {
		return fmt.Errorf("admin.nonce_secret is required (at least %d bytes)", minimumNonceSecretBytes)
	}
	if c.AdminNonceTTL <= 0 {
		return fmt.Errorf("admin.nonce_ttl_minutes must be positive")
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		return fmt.Errorf("admin.username and admin.password must be set together")
	}
	return nil
}

func (c AppConfig) validateStorage() error {
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required")
		}
	case DatabaseDriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	return nil
}

func (c AppConfig) validateFeed() error {
	if c.FeedURL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.FeedTimeout <= 0 {
		return fmt.Errorf("feed.timeout_seconds must be positive")
	}
	if c.FeedMaxBytes <= 0 {
		return fmt.Errorf("feed.max_bytes must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}
	return nil
}

func normalizeNamespace(value string) string {
	trimmed := strings.Trim(strings.TrimSpace(value), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
