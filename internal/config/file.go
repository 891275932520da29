package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type fileDuration time.Duration

func (d *fileDuration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid duration type")
	}
	if value.Tag == "!!int" {
		var seconds int64
		if err := value.Decode(&seconds); err != nil {
			return err
		}
		*d = fileDuration(time.Duration(seconds) * time.Second)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = fileDuration(parsed)
	return nil
}

type ConfigFile struct {
	Server        *ServerConfigFile        `yaml:"server"`
	Database      *DatabaseConfigFile      `yaml:"database"`
	Google        *GoogleConfigFile        `yaml:"google"`
	Outlook       *OutlookConfigFile       `yaml:"outlook"`
	Auth          *AuthConfigFile          `yaml:"auth"`
	Sync          *SyncConfigFile          `yaml:"sync"`
	RateLimit     *RateLimitConfigFile     `yaml:"rate_limit"`
	Notifications *NotificationsConfigFile `yaml:"notifications"`
	Logging       *LoggingConfigFile       `yaml:"logging"`
	Display       *DisplayConfigFile       `yaml:"display"`
	Retention     *RetentionConfigFile     `yaml:"retention"`
}

type ServerConfigFile struct {
	Host         *string       `yaml:"host"`
	Port         *int          `yaml:"port"`
	BaseURL      *string       `yaml:"base_url"`
	ReadTimeout  *fileDuration `yaml:"read_timeout"`
	WriteTimeout *fileDuration `yaml:"write_timeout"`
	CORSOrigins  *[]string     `yaml:"cors_origins"`
}

type DatabaseConfigFile struct {
	Path *string `yaml:"path"`
}

type GoogleConfigFile struct {
	ClientID     *string   `yaml:"client_id"`
	ClientSecret *string   `yaml:"client_secret"`
	RedirectURI  *string   `yaml:"redirect_uri"`
	Scopes       *[]string `yaml:"scopes"`
	CalendarID   *string   `yaml:"calendar_id"`
}

type OutlookConfigFile struct {
	ClientID     *string   `yaml:"client_id"`
	ClientSecret *string   `yaml:"client_secret"`
	Tenant       *string   `yaml:"tenant"`
	RedirectURI  *string   `yaml:"redirect_uri"`
	Scopes       *[]string `yaml:"scopes"`
}

type AuthConfigFile struct {
	APITokenHash  *string `yaml:"api_token_hash"`
	SecretKey     *string `yaml:"secret_key"`
	EncryptionKey *string `yaml:"encryption_key"`
}

type SyncConfigFile struct {
	ProviderTimeout  *fileDuration `yaml:"provider_timeout"`
	WindowPastDays   *int          `yaml:"window_past_days"`
	WindowFutureDays *int          `yaml:"window_future_days"`
}

type RateLimitConfigFile struct {
	RequestsPerMinute *int `yaml:"requests_per_minute"`
	Burst             *int `yaml:"burst"`
}

type NtfyConfigFile struct {
	Enabled  *bool   `yaml:"enabled"`
	Server   *string `yaml:"server"`
	Topic    *string `yaml:"topic"`
	Token    *string `yaml:"token"`
	Priority *string `yaml:"priority"`
}

type PushoverConfigFile struct {
	Enabled  *bool   `yaml:"enabled"`
	AppToken *string `yaml:"app_token"`
	UserKey  *string `yaml:"user_key"`
	Priority *int    `yaml:"priority"`
	Sound    *string `yaml:"sound"`
}

type NotificationsConfigFile struct {
	Ntfy     *NtfyConfigFile     `yaml:"ntfy"`
	Pushover *PushoverConfigFile `yaml:"pushover"`
}

type LoggingConfigFile struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
}

type DisplayConfigFile struct {
	Timezone       *string `yaml:"timezone"`
	DateFormat     *string `yaml:"date_format"`
	TimeFormat     *string `yaml:"time_format"`
	DatetimeFormat *string `yaml:"datetime_format"`
}

type RetentionConfigFile struct {
	Enabled       *bool         `yaml:"enabled"`
	SyncRunsDays  *int          `yaml:"sync_runs_days"`
	OAuthStateTTL *fileDuration `yaml:"oauth_state_ttl"`
	Schedule      *string       `yaml:"schedule"`
}

func loadConfigFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyConfigFile(cfg, &file)
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *fileDuration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}

func applyConfigFile(cfg *Config, file *ConfigFile) {
	if cfg == nil || file == nil {
		return
	}

	if f := file.Server; f != nil {
		set(&cfg.Server.Host, f.Host)
		set(&cfg.Server.Port, f.Port)
		set(&cfg.Server.BaseURL, f.BaseURL)
		setDuration(&cfg.Server.ReadTimeout, f.ReadTimeout)
		setDuration(&cfg.Server.WriteTimeout, f.WriteTimeout)
		set(&cfg.Server.CORSOrigins, f.CORSOrigins)
	}

	if f := file.Database; f != nil && f.Path != nil {
		cfg.Database.Path = filepath.Clean(*f.Path)
	}

	if f := file.Google; f != nil {
		set(&cfg.Google.ClientID, f.ClientID)
		set(&cfg.Google.ClientSecret, f.ClientSecret)
		set(&cfg.Google.RedirectURI, f.RedirectURI)
		set(&cfg.Google.Scopes, f.Scopes)
		set(&cfg.Google.CalendarID, f.CalendarID)
	}

	if f := file.Outlook; f != nil {
		set(&cfg.Outlook.ClientID, f.ClientID)
		set(&cfg.Outlook.ClientSecret, f.ClientSecret)
		set(&cfg.Outlook.Tenant, f.Tenant)
		set(&cfg.Outlook.RedirectURI, f.RedirectURI)
		set(&cfg.Outlook.Scopes, f.Scopes)
	}

	if f := file.Auth; f != nil {
		set(&cfg.Auth.APITokenHash, f.APITokenHash)
		set(&cfg.Auth.SecretKey, f.SecretKey)
		set(&cfg.Auth.EncryptionKey, f.EncryptionKey)
	}

	if f := file.Sync; f != nil {
		setDuration(&cfg.Sync.ProviderTimeout, f.ProviderTimeout)
		set(&cfg.Sync.WindowPastDays, f.WindowPastDays)
		set(&cfg.Sync.WindowFutureDays, f.WindowFutureDays)
	}

	if f := file.RateLimit; f != nil {
		set(&cfg.RateLimit.RequestsPerMinute, f.RequestsPerMinute)
		set(&cfg.RateLimit.Burst, f.Burst)
	}

	if n := file.Notifications; n != nil {
		if f := n.Ntfy; f != nil {
			set(&cfg.Notifications.Ntfy.Enabled, f.Enabled)
			set(&cfg.Notifications.Ntfy.Server, f.Server)
			set(&cfg.Notifications.Ntfy.Topic, f.Topic)
			set(&cfg.Notifications.Ntfy.Token, f.Token)
			set(&cfg.Notifications.Ntfy.Priority, f.Priority)
		}
		if f := n.Pushover; f != nil {
			set(&cfg.Notifications.Pushover.Enabled, f.Enabled)
			set(&cfg.Notifications.Pushover.AppToken, f.AppToken)
			set(&cfg.Notifications.Pushover.UserKey, f.UserKey)
			set(&cfg.Notifications.Pushover.Priority, f.Priority)
			set(&cfg.Notifications.Pushover.Sound, f.Sound)
		}
	}

	if f := file.Logging; f != nil {
		set(&cfg.Logging.Level, f.Level)
		set(&cfg.Logging.Format, f.Format)
	}

	if f := file.Display; f != nil {
		set(&cfg.Display.Timezone, f.Timezone)
		set(&cfg.Display.DateFormat, f.DateFormat)
		set(&cfg.Display.TimeFormat, f.TimeFormat)
		set(&cfg.Display.DatetimeFormat, f.DatetimeFormat)
	}

	if f := file.Retention; f != nil {
		set(&cfg.Retention.Enabled, f.Enabled)
		set(&cfg.Retention.SyncRunsDays, f.SyncRunsDays)
		setDuration(&cfg.Retention.OAuthStateTTL, f.OAuthStateTTL)
		set(&cfg.Retention.Schedule, f.Schedule)
	}
}

// GetConfigFilePath returns the path to the config file based on environment variables.
func GetConfigFilePath() string {
	dataDir := getEnvAnyDefault(DefaultDataDir, "TRAINERCAL_DATA_DIR", "DATA_DIR")
	return getEnvAnyDefault(filepath.Join(dataDir, "config.yaml"), "TRAINERCAL_CONFIG_FILE", "CONFIG_FILE")
}
