package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultMetricsAddr     = ":9090"
	defaultKeyForgeBaseURL = "https://preview.keyforge.ai"
	defaultKeyForgeTenant  = "ACMECOM"
	defaultSessionLifetime = 12 * time.Hour
	defaultCacheTTL        = 2 * time.Minute
	defaultVaultKVMount    = "secret"
	defaultRemindersFile   = "reminders.yaml"

	defaultCertPageSize        = 10
	defaultUserPageSize        = 10
	defaultEntitlementPageSize = 10
	defaultFanoutWorkers       = 8
	defaultExportRowLimit      = 3000
)

type Config struct {
	HTTPAddr    string
	MetricsAddr string

	KeyForgeBaseURL  string
	KeyForgeTenant   string
	KeyForgeAPIToken string
	// KeyForgeTimeout is zero unless set; backend calls are then bounded only by their context.
	KeyForgeTimeout time.Duration

	DatabaseURL      string
	AuthCookieSecure bool
	SessionLifetime  time.Duration
	CacheTTL         time.Duration

	CertPageSize        int
	UserPageSize        int
	EntitlementPageSize int
	FanoutWorkers       int
	ExportRowLimit      int

	VaultAddr      string
	VaultToken     string
	VaultNamespace string
	VaultKVMount   string
	VaultTokenPath string

	SlackBotToken  string
	SlackChannelID string
	RemindersFile  string
}

type LoadOptions struct {
	RequireDatabaseURL bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
}

func LoadRequireDB() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		HTTPAddr:            getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:         getenvDefault("METRICS_ADDR", defaultMetricsAddr),
		KeyForgeBaseURL:     strings.TrimRight(getenvDefault("KEYFORGE_BASE_URL", defaultKeyForgeBaseURL), "/"),
		KeyForgeTenant:      getenvDefault("KEYFORGE_TENANT", defaultKeyForgeTenant),
		KeyForgeAPIToken:    strings.TrimSpace(os.Getenv("KEYFORGE_API_TOKEN")),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		AuthCookieSecure:    getenvBoolDefault("AUTH_COOKIE_SECURE", false),
		SessionLifetime:     getenvDurationDefault("SESSION_LIFETIME", defaultSessionLifetime),
		CacheTTL:            getenvDurationDefault("CACHE_TTL", defaultCacheTTL),
		CertPageSize:        getenvIntDefault("CERT_PAGE_SIZE", defaultCertPageSize),
		UserPageSize:        getenvIntDefault("USER_PAGE_SIZE", defaultUserPageSize),
		EntitlementPageSize: getenvIntDefault("ENTITLEMENT_PAGE_SIZE", defaultEntitlementPageSize),
		FanoutWorkers:       getenvIntDefault("FANOUT_WORKERS", defaultFanoutWorkers),
		ExportRowLimit:      getenvIntDefault("EXPORT_ROW_LIMIT", defaultExportRowLimit),
		VaultAddr:           strings.TrimSpace(os.Getenv("VAULT_ADDR")),
		VaultToken:          strings.TrimSpace(os.Getenv("VAULT_TOKEN")),
		VaultNamespace:      strings.TrimSpace(os.Getenv("VAULT_NAMESPACE")),
		VaultKVMount:        getenvDefault("VAULT_KV_MOUNT", defaultVaultKVMount),
		VaultTokenPath:      strings.TrimSpace(os.Getenv("VAULT_TOKEN_PATH")),
		SlackBotToken:       strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN")),
		SlackChannelID:      strings.TrimSpace(os.Getenv("SLACK_CHANNEL_ID")),
		RemindersFile:       getenvDefault("REMINDERS_FILE", defaultRemindersFile),
	}

	if v := os.Getenv("KEYFORGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.KeyForgeTimeout = d
		}
	}

	if cfg.KeyForgeBaseURL == "" {
		return cfg, errors.New("KEYFORGE_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.KeyForgeTenant) == "" {
		return cfg, errors.New("KEYFORGE_TENANT must not be empty")
	}
	if opts.RequireDatabaseURL && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

// VaultConfigured reports whether the backend API token should be read from Vault.
func (c Config) VaultConfigured() bool {
	return c.VaultAddr != "" && c.VaultTokenPath != ""
}

// SlackConfigured reports whether Slack notifications can be sent.
func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func getenvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch v {
	case "1":
		return true
	case "0":
		return false
	default:
		return def
	}
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
