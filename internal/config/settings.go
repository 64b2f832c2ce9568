package config

import (
	"log/slog"
	"time"
)

// Defaults for the deploy tunables.
const (
	DefaultPollInterval   = 5 * time.Second
	DefaultHTTPTimeout    = 60 * time.Second
	DefaultAccountManager = "account.demandware.com"
	DefaultAPIVersion     = "v22_6"
)

// Settings holds the tool tunables. Environment values seed the flag
// defaults; flags have the final word.
type Settings struct {
	ConfigFile      string
	PollInterval    time.Duration
	PollTimeout     time.Duration // 0 polls until a terminal state
	UploadRetries   int
	HTTPTimeout     time.Duration
	AccountManager  string
	APIVersion      string
	DoNotZip        bool
	LogLevel        string
	LogFile         string
	MetricsFile     string
	NotifyURL       string
	NotifyKey       string
	PasswordFile    string
	LegacyExitCodes bool
}

// LoadSettings reads tunables from the environment.
func LoadSettings(env Env) Settings {
	return Settings{
		ConfigFile:      env.String("IMPEX_CONFIG", ""),
		PollInterval:    env.Duration("IMPEX_POLL_INTERVAL", DefaultPollInterval),
		PollTimeout:     env.Duration("IMPEX_POLL_TIMEOUT", 0),
		UploadRetries:   env.Int("IMPEX_UPLOAD_RETRIES", 0),
		HTTPTimeout:     env.Duration("IMPEX_HTTP_TIMEOUT", DefaultHTTPTimeout),
		AccountManager:  env.String("IMPEX_ACCOUNT_MANAGER", DefaultAccountManager),
		APIVersion:      env.String("IMPEX_API_VERSION", DefaultAPIVersion),
		DoNotZip:        env.Bool("IMPEX_DO_NOT_ZIP", false),
		LogLevel:        env.String("IMPEX_LOG_LEVEL", "info"),
		LogFile:         env.String("IMPEX_LOG_FILE", ""),
		MetricsFile:     env.String("IMPEX_METRICS_FILE", ""),
		NotifyURL:       env.String("IMPEX_NOTIFY_URL", ""),
		NotifyKey:       env.Secret("IMPEX_NOTIFY_KEY_FILE"),
		PasswordFile:    env.String("IMPEX_PASSWORD_FILE", ""),
		LegacyExitCodes: env.Bool("IMPEX_LEGACY_EXIT_CODES", false),
	}
}

// WithDefaults fills in zero or invalid values with defaults.
func (s Settings) WithDefaults() Settings {
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.PollTimeout < 0 {
		s.PollTimeout = 0
	}
	if s.UploadRetries < 0 {
		s.UploadRetries = 0
	}
	if s.HTTPTimeout <= 0 {
		s.HTTPTimeout = DefaultHTTPTimeout
	}
	if s.AccountManager == "" {
		s.AccountManager = DefaultAccountManager
	}
	if s.APIVersion == "" {
		s.APIVersion = DefaultAPIVersion
	}
	return s
}

// Level returns the slog level named by LogLevel.
func (s Settings) Level() slog.Level {
	return ParseLogLevel(s.LogLevel)
}
