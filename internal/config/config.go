// Package config handles configuration loading from environment variables and optional YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Google        GoogleConfig
	Outlook       OutlookConfig
	Auth          AuthConfig
	Sync          SyncConfig
	RateLimit     RateLimitConfig
	Notifications NotificationsConfig
	Logging       LoggingConfig
	Display       DisplayConfig
	Retention     RetentionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string
}

// GoogleConfig holds Google OAuth and Calendar settings.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	CalendarID   string
}

// Enabled reports whether Google credentials are configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// OutlookConfig holds Microsoft identity platform and Graph settings.
type OutlookConfig struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	RedirectURI  string
	Scopes       []string
}

// Enabled reports whether Outlook credentials are configured.
func (o OutlookConfig) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// AuthConfig holds authentication and key material.
type AuthConfig struct {
	APITokenHash  string
	SecretKey     string
	EncryptionKey string
}

// SyncConfig bounds the unified provider fetch.
type SyncConfig struct {
	ProviderTimeout  time.Duration
	WindowPastDays   int
	WindowFutureDays int
}

// Window returns the fetch window around now.
func (s SyncConfig) Window(now time.Time) (time.Time, time.Time) {
	return now.AddDate(0, 0, -s.WindowPastDays), now.AddDate(0, 0, s.WindowFutureDays)
}

// RateLimitConfig holds the per-client token bucket settings for /api.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// NtfyConfig holds ntfy notification settings.
type NtfyConfig struct {
	Enabled  bool
	Server   string
	Topic    string
	Token    string
	Priority string
}

// PushoverConfig holds Pushover notification settings.
type PushoverConfig struct {
	Enabled  bool
	AppToken string
	UserKey  string
	Priority int
	Sound    string
}

// NotificationsConfig holds all notification provider settings.
type NotificationsConfig struct {
	Ntfy     NtfyConfig
	Pushover PushoverConfig
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// DisplayConfig holds display formatting settings.
type DisplayConfig struct {
	Timezone       string
	DateFormat     string
	TimeFormat     string
	DatetimeFormat string
}

// RetentionConfig holds data retention settings.
type RetentionConfig struct {
	Enabled       bool
	SyncRunsDays  int
	OAuthStateTTL time.Duration
	Schedule      string
}

// Defaults returns a configuration populated with built-in defaults only.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			BaseURL:      DefaultBaseURL,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(DefaultDataDir, DefaultDBName),
		},
		Google: GoogleConfig{
			Scopes:     append([]string(nil), DefaultGoogleScopes...),
			CalendarID: DefaultGoogleCalendarID,
		},
		Outlook: OutlookConfig{
			Tenant: DefaultOutlookTenant,
			Scopes: append([]string(nil), DefaultOutlookScopes...),
		},
		Sync: SyncConfig{
			ProviderTimeout:  DefaultProviderTimeout,
			WindowPastDays:   DefaultWindowPastDays,
			WindowFutureDays: DefaultWindowFutureDays,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: DefaultRequestsPerMinute,
			Burst:             DefaultBurst,
		},
		Notifications: NotificationsConfig{
			Ntfy: NtfyConfig{
				Server:   "https://ntfy.sh",
				Priority: "default",
			},
			Pushover: PushoverConfig{
				Sound: "pushover",
			},
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Display: DisplayConfig{
			Timezone: DefaultTimezone,
		},
		Retention: RetentionConfig{
			Enabled:       true,
			SyncRunsDays:  DefaultSyncRunsDays,
			OAuthStateTTL: DefaultOAuthStateTTL,
			Schedule:      DefaultVacuumSchedule,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file, and
// environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg, err := LoadUnvalidated()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without Validate, for tooling that needs only part
// of the configuration.
func LoadUnvalidated() (*Config, error) {
	cfg := Defaults()

	if dataDir := getEnvAny("TRAINERCAL_DATA_DIR", "DATA_DIR"); dataDir != "" {
		cfg.Database.Path = filepath.Join(dataDir, DefaultDBName)
	}

	if err := loadConfigFile(cfg, GetConfigFilePath()); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	cfg.deriveRedirects()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = getEnvAnyDefault(s.Host, "TRAINERCAL_HOST", "HOST")
	s.Port = getEnvIntAny(s.Port, "TRAINERCAL_SERVER_PORT", "PORT")
	s.BaseURL = strings.TrimRight(getEnvAnyDefault(s.BaseURL, "TRAINERCAL_BASE_URL", "BASE_URL"), "/")
	s.ReadTimeout = getEnvDurationAny(s.ReadTimeout, "TRAINERCAL_READ_TIMEOUT")
	s.WriteTimeout = getEnvDurationAny(s.WriteTimeout, "TRAINERCAL_WRITE_TIMEOUT")
	if origins := getEnvAny("TRAINERCAL_CORS_ORIGINS"); origins != "" {
		s.CORSOrigins = splitList(origins)
	}

	cfg.Database.Path = getEnvAnyDefault(cfg.Database.Path, "TRAINERCAL_DB_PATH")

	g := &cfg.Google
	g.ClientID = getEnvAnyDefault(g.ClientID, "TRAINERCAL_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID")
	g.ClientSecret = getEnvAnyDefault(g.ClientSecret, "TRAINERCAL_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET")
	g.RedirectURI = getEnvAnyDefault(g.RedirectURI, "TRAINERCAL_GOOGLE_REDIRECT_URI")
	g.CalendarID = getEnvAnyDefault(g.CalendarID, "TRAINERCAL_GOOGLE_CALENDAR_ID")

	o := &cfg.Outlook
	o.ClientID = getEnvAnyDefault(o.ClientID, "TRAINERCAL_OUTLOOK_CLIENT_ID", "OUTLOOK_CLIENT_ID")
	o.ClientSecret = getEnvAnyDefault(o.ClientSecret, "TRAINERCAL_OUTLOOK_CLIENT_SECRET", "OUTLOOK_CLIENT_SECRET")
	o.Tenant = getEnvAnyDefault(o.Tenant, "TRAINERCAL_OUTLOOK_TENANT")
	o.RedirectURI = getEnvAnyDefault(o.RedirectURI, "TRAINERCAL_OUTLOOK_REDIRECT_URI")

	a := &cfg.Auth
	a.APITokenHash = getEnvAnyDefault(a.APITokenHash, "TRAINERCAL_API_TOKEN_HASH")
	a.SecretKey = getEnvAnyDefault(a.SecretKey, "TRAINERCAL_SECRET_KEY", "SECRET_KEY")
	a.EncryptionKey = getEnvAnyDefault(a.EncryptionKey, "TRAINERCAL_ENCRYPTION_KEY", "ENCRYPTION_KEY")

	cfg.Sync.ProviderTimeout = getEnvDurationAny(cfg.Sync.ProviderTimeout, "TRAINERCAL_PROVIDER_TIMEOUT")
	cfg.Sync.WindowPastDays = getEnvIntAny(cfg.Sync.WindowPastDays, "TRAINERCAL_SYNC_PAST_DAYS")
	cfg.Sync.WindowFutureDays = getEnvIntAny(cfg.Sync.WindowFutureDays, "TRAINERCAL_SYNC_FUTURE_DAYS")

	n := &cfg.Notifications
	n.Ntfy.Enabled = getEnvBoolAny(n.Ntfy.Enabled, "TRAINERCAL_NTFY_ENABLED")
	n.Ntfy.Server = getEnvAnyDefault(n.Ntfy.Server, "TRAINERCAL_NTFY_SERVER")
	n.Ntfy.Topic = getEnvAnyDefault(n.Ntfy.Topic, "TRAINERCAL_NTFY_TOPIC")
	n.Ntfy.Token = getEnvAnyDefault(n.Ntfy.Token, "TRAINERCAL_NTFY_TOKEN")
	n.Pushover.Enabled = getEnvBoolAny(n.Pushover.Enabled, "TRAINERCAL_PUSHOVER_ENABLED")
	n.Pushover.AppToken = getEnvAnyDefault(n.Pushover.AppToken, "TRAINERCAL_PUSHOVER_APP_TOKEN")
	n.Pushover.UserKey = getEnvAnyDefault(n.Pushover.UserKey, "TRAINERCAL_PUSHOVER_USER_KEY")

	cfg.Logging.Level = getEnvAnyDefault(cfg.Logging.Level, "TRAINERCAL_LOG_LEVEL", "LOG_LEVEL")
	cfg.Logging.Format = getEnvAnyDefault(cfg.Logging.Format, "TRAINERCAL_LOG_FORMAT", "LOG_FORMAT")
	cfg.Display.Timezone = getEnvAnyDefault(cfg.Display.Timezone, "TRAINERCAL_TIMEZONE", "TZ")

	r := &cfg.Retention
	r.Enabled = getEnvBoolAny(r.Enabled, "TRAINERCAL_RETENTION_ENABLED")
	r.SyncRunsDays = getEnvIntAny(r.SyncRunsDays, "TRAINERCAL_RETENTION_SYNC_RUNS_DAYS")
	r.Schedule = getEnvAnyDefault(r.Schedule, "TRAINERCAL_RETENTION_SCHEDULE")
}

// deriveRedirects fills provider callback URLs from the base URL when unset.
func (c *Config) deriveRedirects() {
	if c.Google.RedirectURI == "" {
		c.Google.RedirectURI = c.Server.BaseURL + "/oauth/google/callback"
	}
	if c.Outlook.RedirectURI == "" {
		c.Outlook.RedirectURI = c.Server.BaseURL + "/oauth/outlook/callback"
	}
}

// Validate checks that required configuration fields are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.SecretKey == "" {
		errs = append(errs, errors.New("TRAINERCAL_SECRET_KEY is required"))
	}
	if c.Auth.EncryptionKey == "" {
		errs = append(errs, errors.New("TRAINERCAL_ENCRYPTION_KEY is required"))
	}
	if c.Auth.APITokenHash == "" {
		errs = append(errs, errors.New("TRAINERCAL_API_TOKEN_HASH is required (generate with `server hash-token`)"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	if c.Sync.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("sync.provider_timeout must be positive"))
	}
	if c.Sync.WindowPastDays < 0 || c.Sync.WindowFutureDays <= 0 {
		errs = append(errs, errors.New("sync window must have non-negative past days and positive future days"))
	}
	if _, err := time.LoadLocation(c.Display.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid display timezone %q", c.Display.Timezone))
	}
	if c.Notifications.Ntfy.Enabled && c.Notifications.Ntfy.Topic == "" {
		errs = append(errs, errors.New("ntfy is enabled but no topic is set"))
	}
	if c.Notifications.Pushover.Enabled && (c.Notifications.Pushover.AppToken == "" || c.Notifications.Pushover.UserKey == "") {
		errs = append(errs, errors.New("pushover is enabled but app_token or user_key is missing"))
	}
	if c.Retention.Enabled {
		if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid retention.schedule %q: %w", c.Retention.Schedule, err))
		}
	}
	return errors.Join(errs...)
}

// Helper functions for environment variable parsing

func getEnvAny(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return value
		}
	}
	return ""
}

func getEnvAnyDefault(defaultValue string, keys ...string) string {
	if value := getEnvAny(keys...); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntAny(defaultValue int, keys ...string) int {
	if value := getEnvAny(keys...); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBoolAny(defaultValue bool, keys ...string) bool {
	if value := getEnvAny(keys...); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

func getEnvDurationAny(defaultValue time.Duration, keys ...string) time.Duration {
	if value := getEnvAny(keys...); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
