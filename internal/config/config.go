// Package config loads client settings from flags, FITSYNC_* environment variables and an
// optional config file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys.
const (
	KeyAPIBaseURL         = "api_base_url"
	KeyDataDir            = "data_dir"
	KeyDeviceSecret       = "device_secret"
	KeyCacheURL           = "cache_url"
	KeyHTTPTimeout        = "http_timeout"
	KeyRefreshInterval    = "refresh_interval"
	KeyRefreshWaitTimeout = "refresh_wait_timeout"
	KeyLogLevel           = "log_level"
	KeyLogDevelopment     = "log_development"
)

const (
	codeMissingAPIBaseURL   = "config.missing_api_base_url"
	codeInvalidAPIBaseURL   = "config.invalid_api_base_url"
	codeMissingDeviceSecret = "config.missing_device_secret"
	codeInvalidCacheURL     = "config.invalid_cache_url"
	codeInvalidDuration     = "config.invalid_duration"
)

// EnvPrefix is prepended to every key to form its environment variable.
const EnvPrefix = "FITSYNC"

// Config is the validated client configuration.
type Config struct {
	APIBaseURL         string
	DataDir            string
	DeviceSecret       string
	CacheURL           string
	HTTPTimeout        time.Duration
	RefreshInterval    time.Duration
	RefreshWaitTimeout time.Duration
	LogLevel           string
	LogDevelopment     bool
}

// DefaultDataDir is $XDG_CONFIG_HOME/fitsync, or ~/.config/fitsync.
func DefaultDataDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "fitsync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "fitsync")
}

// RegisterFlags declares every key on fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyAPIBaseURL, "", "API base URL (http:// or https://)")
	fs.String(KeyDataDir, DefaultDataDir(), "Directory for the sealed vault and the default cache")
	fs.String(KeyDeviceSecret, "", "Secret the vault key is derived from")
	fs.String(KeyCacheURL, "", "Cache database URL (sqlite:// or postgres://); empty means sqlite in data_dir")
	fs.Duration(KeyHTTPTimeout, 15*time.Second, "Per-request HTTP timeout")
	fs.Duration(KeyRefreshInterval, 5*time.Minute, "Proactive token refresh interval")
	fs.Duration(KeyRefreshWaitTimeout, 5*time.Second, "How long a request waits for another caller's refresh")
	fs.String(KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	fs.Bool(KeyLogDevelopment, false, "Human readable development logs")
}

// Bind wires fs and the environment into v. A non-empty file is read as a config file.
func Bind(v *viper.Viper, fs *pflag.FlagSet, file string) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config.read: %w", err)
		}
	}
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// Load validates the values held by v.
func Load(v *viper.Viper) (Config, error) {
	base := strings.TrimSpace(v.GetString(KeyAPIBaseURL))
	if base == "" {
		return Config{}, configError(codeMissingAPIBaseURL, "api_base_url must be provided")
	}
	if u, err := url.Parse(base); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Config{}, configError(codeInvalidAPIBaseURL, "api_base_url must be an absolute http(s) URL")
	}

	secret := v.GetString(KeyDeviceSecret)
	if secret == "" {
		return Config{}, configError(codeMissingDeviceSecret, "device_secret must be provided")
	}

	dataDir := v.GetString(KeyDataDir)
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	cacheURL := strings.TrimSpace(v.GetString(KeyCacheURL))
	if cacheURL == "" {
		cacheURL = "sqlite://" + filepath.ToSlash(filepath.Join(dataDir, "cache.db"))
	}
	u, err := url.Parse(cacheURL)
	if err != nil {
		return Config{}, configError(codeInvalidCacheURL, "cache_url is not a URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return Config{}, configError(codeInvalidCacheURL, "cache_url scheme must be sqlite or postgres")
	}

	cfg := Config{
		APIBaseURL:         base,
		DataDir:            dataDir,
		DeviceSecret:       secret,
		CacheURL:           cacheURL,
		HTTPTimeout:        v.GetDuration(KeyHTTPTimeout),
		RefreshInterval:    v.GetDuration(KeyRefreshInterval),
		RefreshWaitTimeout: v.GetDuration(KeyRefreshWaitTimeout),
		LogLevel:           v.GetString(KeyLogLevel),
		LogDevelopment:     v.GetBool(KeyLogDevelopment),
	}
	durations := []struct {
		key string
		d   time.Duration
	}{
		{KeyHTTPTimeout, cfg.HTTPTimeout},
		{KeyRefreshInterval, cfg.RefreshInterval},
		{KeyRefreshWaitTimeout, cfg.RefreshWaitTimeout},
	}
	for _, it := range durations {
		if it.d <= 0 {
			return Config{}, configError(codeInvalidDuration, it.key+" must be greater than zero")
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}
