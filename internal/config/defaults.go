package config

import "time"

// Server defaults
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8080
	DefaultBaseURL      = "http://localhost:8080"
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 90 * time.Second
)

// Database defaults
const (
	DefaultDataDir = "/data"
	DefaultDBName  = "trainercal.db"
)

// Provider defaults
const (
	DefaultGoogleCalendarID = "primary"
	DefaultOutlookTenant    = "common"
)

var (
	DefaultGoogleScopes  = []string{"https://www.googleapis.com/auth/calendar.readonly"}
	DefaultOutlookScopes = []string{"offline_access", "https://graph.microsoft.com/Calendars.Read"}
)

// Sync defaults
const (
	DefaultProviderTimeout  = 45 * time.Second
	DefaultWindowPastDays   = 30
	DefaultWindowFutureDays = 90
)

// Rate limit defaults
const (
	DefaultRequestsPerMinute = 120
	DefaultBurst             = 20
)

// Logging defaults
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Display defaults
const (
	DefaultTimezone = "UTC"
)

// Retention defaults
const (
	DefaultSyncRunsDays   = 30
	DefaultOAuthStateTTL  = 10 * time.Minute
	DefaultVacuumSchedule = "0 3 * * *"
)
